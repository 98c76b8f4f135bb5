package domain

import (
	"context"

	"github.com/disgoorg/snowflake/v2"
)

// QueueStore persists queue snapshots keyed by guild.
type QueueStore interface {
	// Get returns the stored data for the given guild, or nil if nothing is stored.
	Get(ctx context.Context, guildID snowflake.ID) ([]byte, error)

	// Set stores data for the given guild.
	Set(ctx context.Context, guildID snowflake.ID, data []byte) error

	// Delete removes the stored data for the given guild.
	Delete(ctx context.Context, guildID snowflake.ID) error

	// Stringify encodes a snapshot into the store's format.
	Stringify(snapshot QueueSnapshot) ([]byte, error)

	// Parse decodes data previously produced by Stringify.
	Parse(data []byte) (QueueSnapshot, error)
}

// QueueChangesWatcher observes queue mutations. It must not mutate the queue.
type QueueChangesWatcher interface {
	TracksAdd(guildID snowflake.ID, entries []*QueueEntry, position int, snapshot QueueSnapshot)
	TracksRemoved(guildID snowflake.ID, entries []*QueueEntry, position int, snapshot QueueSnapshot)
	Shuffled(guildID snowflake.ID, before, after QueueSnapshot)
}
