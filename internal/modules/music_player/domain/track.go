package domain

import (
	"strconv"
	"time"
)

// TrackInfo holds the descriptive metadata of a track.
// A zero value field means the value is unknown.
type TrackInfo struct {
	Identifier string
	Title      string
	Author     string
	Duration   time.Duration
	URI        string
	SourceName string // e.g., "youtube", "spotify", "soundcloud"
	IsSeekable bool
	IsStream   bool
	ISRC       string
	ArtworkURL string
}

// Track is a fully resolved, playable track.
type Track struct {
	Encoded string // Lavalink encoded track data
	Info    TrackInfo
}

// Source returns the parsed TrackSource for this track.
func (t *Track) Source() TrackSource {
	return ParseTrackSource(t.Info.SourceName)
}

// IsValid returns true if the track has the minimum required fields.
func (t *Track) IsValid() bool {
	return t.Encoded != "" && t.Info.Title != ""
}

// FormattedDuration returns the duration as a human-readable string (mm:ss or hh:mm:ss).
func (t *Track) FormattedDuration() string {
	if t.Info.IsStream {
		return "LIVE"
	}
	return FormatDuration(t.Info.Duration)
}

// UnresolvedTrack is a descriptor for a track that has not been matched
// against a node yet. At least one of Encoded, Info.Title or Info.URI is set.
type UnresolvedTrack struct {
	Encoded string
	Info    TrackInfo
}

// IsValid returns true if the descriptor carries enough data to be resolved.
func (u *UnresolvedTrack) IsValid() bool {
	return u.Encoded != "" || u.Info.Title != "" || u.Info.URI != ""
}

// FormatDuration renders d as mm:ss or hh:mm:ss.
func FormatDuration(d time.Duration) string {
	totalSeconds := int(d.Seconds())
	hours := totalSeconds / 3600
	minutes := (totalSeconds % 3600) / 60
	seconds := totalSeconds % 60

	if hours > 0 {
		return pad(hours) + ":" + pad(minutes) + ":" + pad(seconds)
	}
	return pad(minutes) + ":" + pad(seconds)
}

func pad(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}
