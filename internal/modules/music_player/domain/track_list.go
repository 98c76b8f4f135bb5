package domain

// TrackListType represents the kind of result a node returned for a load request.
type TrackListType int

const (
	TrackListTypeEmpty TrackListType = iota
	TrackListTypeTrack
	TrackListTypePlaylist
	TrackListTypeSearch
	TrackListTypeError
)

func (t TrackListType) String() string {
	switch t {
	case TrackListTypeTrack:
		return "track"
	case TrackListTypePlaylist:
		return "playlist"
	case TrackListTypeSearch:
		return "search"
	case TrackListTypeError:
		return "error"
	default:
		return "empty"
	}
}

// TrackList is the result of loading an identifier on a node.
type TrackList struct {
	Type          TrackListType
	Name          string // playlist name
	SelectedTrack int    // playlist selected track, -1 if none
	Tracks        []Track
	Exception     *TrackException
}

// IsEmpty reports whether the list holds no playable tracks.
func (l *TrackList) IsEmpty() bool {
	return l == nil || len(l.Tracks) == 0
}
