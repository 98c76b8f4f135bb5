package infrastructure

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/disgoorg/disgolink/v3/lavalink"
	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/sgrlink/internal/modules/music_player/application/ports"
	"github.com/sglre6355/sgrlink/internal/modules/music_player/domain"
)

// sessionUpdate is the body of PATCH /v4/sessions/{sessionId}.
type sessionUpdate struct {
	Resuming bool  `json:"resuming"`
	Timeout  int64 `json:"timeout"`
}

// seekableTrack reads info.isSeekable, which lavalink.TrackInfo does not
// decode, from the JSON of a track.
type seekableTrack struct {
	Info struct {
		IsSeekable bool `json:"isSeekable"`
	} `json:"info"`
}

func seekable(tracks []seekableTrack, i int) bool {
	return i < len(tracks) && tracks[i].Info.IsSeekable
}

// NodePlayer is the node's view of a player.
type NodePlayer struct {
	GuildID snowflake.ID
	Track   *domain.Track
	Volume  int
	Paused  bool
	State   domain.PlayerStatePayload
	Voice   ports.VoiceState
	Filters domain.FilterData
}

func toNodePlayer(p lavalink.Player, flags seekableTrack) (NodePlayer, error) {
	player := NodePlayer{
		GuildID: p.GuildID,
		Volume:  int(p.Volume),
		Paused:  p.Paused,
		State:   toStatePayload(p.GuildID, p.State),
		Voice: ports.VoiceState{
			Token:     p.Voice.Token,
			Endpoint:  p.Voice.Endpoint,
			SessionID: p.Voice.SessionID,
		},
	}
	if p.Track != nil {
		track := toDomainTrack(*p.Track, flags.Info.IsSeekable)
		player.Track = &track
	}

	// the node's filter document maps onto FilterData field for field
	data, err := json.Marshal(p.Filters)
	if err != nil {
		return NodePlayer{}, fmt.Errorf("failed to encode player filters: %w", err)
	}
	if err := json.Unmarshal(data, &player.Filters); err != nil {
		return NodePlayer{}, fmt.Errorf("failed to decode player filters: %w", err)
	}
	return player, nil
}

func toStats(players, playing int, uptime time.Duration, systemLoad, lavalinkLoad float64) ports.NodeStats {
	return ports.NodeStats{
		Players:        players,
		PlayingPlayers: playing,
		Uptime:         uptime,
		SystemLoad:     systemLoad,
		LavalinkLoad:   lavalinkLoad,
	}
}

func toNodeInfo(info lavalink.Info) *ports.NodeInfo {
	plugins := make([]string, 0, len(info.Plugins))
	for _, p := range info.Plugins {
		plugins = append(plugins, p.Name)
	}
	return &ports.NodeInfo{
		Version:        info.Version.Semver,
		SourceManagers: info.SourceManagers,
		Filters:        info.Filters,
		Plugins:        plugins,
	}
}

func toStatePayload(guildID snowflake.ID, state lavalink.PlayerState) domain.PlayerStatePayload {
	return domain.PlayerStatePayload{
		GuildID:   guildID,
		Position:  time.Duration(state.Position) * time.Millisecond,
		Connected: state.Connected,
		Ping:      time.Duration(state.Ping) * time.Millisecond,
	}
}

// toPlayerPayload converts a player-scoped frame into the payload delivered
// to the player of its guild. Events disgolink does not know are plugin
// events and keep their raw frame.
func toPlayerPayload(message lavalink.Message, raw []byte) (domain.PlayerPayload, bool) {
	var frame struct {
		Track seekableTrack `json:"track"`
	}
	if _, ok := message.(lavalink.Event); ok {
		_ = json.Unmarshal(raw, &frame)
	}
	isSeekable := frame.Track.Info.IsSeekable

	switch m := message.(type) {
	case lavalink.PlayerUpdateMessage:
		return toStatePayload(m.GuildID, m.State), true
	case lavalink.TrackStartEvent:
		return domain.TrackStartPayload{GuildID: m.GuildID(), Track: toDomainTrack(m.Track, isSeekable)}, true
	case lavalink.TrackEndEvent:
		return domain.TrackEndPayload{
			GuildID: m.GuildID(),
			Track:   toDomainTrack(m.Track, isSeekable),
			Reason:  toEndReason(m.Reason),
		}, true
	case lavalink.TrackExceptionEvent:
		return domain.TrackExceptionPayload{
			GuildID:   m.GuildID(),
			Track:     toDomainTrack(m.Track, isSeekable),
			Exception: toDomainException(m.Exception),
		}, true
	case lavalink.TrackStuckEvent:
		return domain.TrackStuckPayload{
			GuildID:   m.GuildID(),
			Track:     toDomainTrack(m.Track, isSeekable),
			Threshold: time.Duration(m.Threshold) * time.Millisecond,
		}, true
	case lavalink.WebSocketClosedEvent:
		return domain.WebSocketClosedPayload{
			GuildID:  m.GuildID(),
			Code:     m.Code,
			Reason:   m.Reason,
			ByRemote: m.ByRemote,
		}, true
	case lavalink.Event:
		return domain.PluginEventPayload{
			GuildID: m.GuildID(),
			Type:    string(m.Type()),
			Data:    json.RawMessage(raw),
		}, true
	default:
		return nil, false
	}
}

func toEndReason(reason lavalink.TrackEndReason) domain.TrackEndReason {
	switch reason {
	case lavalink.TrackEndReasonFinished:
		return domain.TrackEndFinished
	case lavalink.TrackEndReasonLoadFailed:
		return domain.TrackEndLoadFailed
	case lavalink.TrackEndReasonStopped:
		return domain.TrackEndStopped
	case lavalink.TrackEndReasonReplaced:
		return domain.TrackEndReplaced
	case lavalink.TrackEndReasonCleanup:
		return domain.TrackEndCleanup
	default:
		return domain.TrackEndStopped
	}
}

func toDomainTrack(track lavalink.Track, isSeekable bool) domain.Track {
	info := track.Info
	return domain.Track{
		Encoded: track.Encoded,
		Info: domain.TrackInfo{
			Identifier: info.Identifier,
			Title:      info.Title,
			Author:     info.Author,
			Duration:   time.Duration(info.Length) * time.Millisecond,
			URI:        derefString(info.URI),
			SourceName: info.SourceName,
			IsSeekable: isSeekable,
			IsStream:   info.IsStream,
			ISRC:       derefString(info.ISRC),
			ArtworkURL: derefString(info.ArtworkURL),
		},
	}
}

func toDomainTracks(tracks []lavalink.Track, flags []seekableTrack) []domain.Track {
	out := make([]domain.Track, len(tracks))
	for i, t := range tracks {
		out[i] = toDomainTrack(t, seekable(flags, i))
	}
	return out
}

func toDomainException(e lavalink.Exception) domain.TrackException {
	return domain.TrackException{
		Message:  e.Message,
		Severity: string(e.Severity),
		Cause:    e.Cause,
	}
}

// toTrackList converts a load result. data is the raw "data" member of the
// response, read again for the seekable flags.
func toTrackList(result lavalink.LoadResult, data json.RawMessage) (*domain.TrackList, error) {
	switch d := result.Data.(type) {
	case lavalink.Track:
		var flags seekableTrack
		if err := json.Unmarshal(data, &flags); err != nil {
			return nil, err
		}
		return &domain.TrackList{
			Type:          domain.TrackListTypeTrack,
			SelectedTrack: -1,
			Tracks:        []domain.Track{toDomainTrack(d, flags.Info.IsSeekable)},
		}, nil
	case lavalink.Playlist:
		var flags struct {
			Tracks []seekableTrack `json:"tracks"`
		}
		if err := json.Unmarshal(data, &flags); err != nil {
			return nil, err
		}
		return &domain.TrackList{
			Type:          domain.TrackListTypePlaylist,
			Name:          d.Info.Name,
			SelectedTrack: d.Info.SelectedTrack,
			Tracks:        toDomainTracks(d.Tracks, flags.Tracks),
		}, nil
	case lavalink.Search:
		var flags []seekableTrack
		if err := json.Unmarshal(data, &flags); err != nil {
			return nil, err
		}
		return &domain.TrackList{
			Type:          domain.TrackListTypeSearch,
			SelectedTrack: -1,
			Tracks:        toDomainTracks(d, flags),
		}, nil
	case lavalink.Exception:
		exception := toDomainException(d)
		return &domain.TrackList{
			Type:          domain.TrackListTypeError,
			SelectedTrack: -1,
			Exception:     &exception,
		}, nil
	default:
		return &domain.TrackList{
			Type:          domain.TrackListTypeEmpty,
			SelectedTrack: -1,
		}, nil
	}
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
