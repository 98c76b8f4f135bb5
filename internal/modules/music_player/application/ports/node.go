package ports

import (
	"context"

	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/sgrlink/internal/modules/music_player/domain"
)

// Node defines the operations a player needs from a remote audio node.
type Node interface {
	// ID returns the configured node identifier.
	ID() string

	// IsConnected reports whether the node socket is up and a session id is known.
	IsConnected() bool

	// Info returns the capabilities reported by the node, or nil if not fetched yet.
	Info() *NodeInfo

	// UpdatePlayer patches the node-side player. Unset fields are left untouched.
	UpdatePlayer(ctx context.Context, guildID snowflake.ID, update PlayerUpdate, noReplace bool) error

	// DestroyPlayer removes the node-side player.
	DestroyPlayer(ctx context.Context, guildID snowflake.ID) error

	// DecodeTrack decodes an encoded track token.
	DecodeTrack(ctx context.Context, encoded string) (domain.Track, error)

	// LoadTracks loads a URL or a prefixed search query.
	LoadTracks(ctx context.Context, identifier string) (*domain.TrackList, error)
}

// NodeProvider selects nodes for players.
type NodeProvider interface {
	// UsableNode returns the node with the given id if it is connected.
	UsableNode(id string) (Node, error)

	// LeastUsedNode returns the connected node with the lowest load that serves region.
	// An empty region matches every node.
	LeastUsedNode(region string) (Node, error)
}

// PlayerEventSink receives guild-scoped frames from nodes.
type PlayerEventSink interface {
	// DispatchPlayerEvent routes payload to the player of its guild and
	// reports whether such a player exists.
	DispatchPlayerEvent(nodeID string, payload domain.PlayerPayload) bool
}
