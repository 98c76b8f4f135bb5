package ports

import (
	"encoding/json"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/sgrlink/internal/modules/music_player/domain"
)

// VoiceState is the voice-gateway credential triple a node needs to join a call.
type VoiceState struct {
	Token     string `json:"token"`
	Endpoint  string `json:"endpoint"`
	SessionID string `json:"sessionId"`
}

// IsComplete reports whether all three credentials are present.
func (v VoiceState) IsComplete() bool {
	return v.Token != "" && v.Endpoint != "" && v.SessionID != ""
}

// PlayerUpdateTrack selects the track of a player update.
// A nil Encoded with an empty Identifier stops playback.
type PlayerUpdateTrack struct {
	Encoded    *string
	Identifier string
	UserData   map[string]any
}

// MarshalJSON encodes either the identifier or the (possibly null) encoded track.
func (t PlayerUpdateTrack) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, 2)
	if t.Identifier != "" {
		out["identifier"] = t.Identifier
	} else {
		out["encoded"] = t.Encoded
	}
	if len(t.UserData) > 0 {
		out["userData"] = t.UserData
	}
	return json.Marshal(out)
}

// PlayerUpdate is a partial player update. Nil fields are omitted from the
// request so the node keeps their current values. Filters replaces the whole
// filter set.
type PlayerUpdate struct {
	Track    *PlayerUpdateTrack `json:"track,omitempty"`
	Position *int64             `json:"position,omitempty"`
	EndTime  *int64             `json:"endTime,omitempty"`
	Volume   *int               `json:"volume,omitempty"`
	Paused   *bool              `json:"paused,omitempty"`
	Filters  *domain.FilterData `json:"filters,omitempty"`
	Voice    *VoiceState        `json:"voice,omitempty"`
}

// NodeInfo holds the capabilities a node reports about itself.
type NodeInfo struct {
	Version        string
	SourceManagers []string
	Filters        []string
	Plugins        []string
}

// NodeStats is the load reported by a node.
type NodeStats struct {
	Players        int
	PlayingPlayers int
	Uptime         time.Duration
	SystemLoad     float64
	LavalinkLoad   float64
}

// NowPlayingInfo contains information for the "Now Playing" notification.
type NowPlayingInfo struct {
	Identifier         string
	Title              string
	Artist             string
	Duration           string
	URI                string
	ArtworkURL         string
	SourceName         string
	IsStream           bool
	RequesterID        snowflake.ID
	RequesterName      string
	RequesterAvatarURL string
	EnqueuedAt         time.Time
}
