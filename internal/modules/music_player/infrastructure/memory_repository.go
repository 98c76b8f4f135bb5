package infrastructure

import (
	"bytes"
	"context"
	"sync"

	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/sgrlink/internal/modules/music_player/domain"
)

// MemoryQueueStore is an in-memory implementation of QueueStore.
type MemoryQueueStore struct {
	jsonQueueCodec

	mu     sync.RWMutex
	queues map[snowflake.ID][]byte
}

// NewMemoryQueueStore creates a new MemoryQueueStore.
func NewMemoryQueueStore() *MemoryQueueStore {
	return &MemoryQueueStore{
		queues: make(map[snowflake.ID][]byte),
	}
}

// Get returns the stored queue of the guild, or nil if there is none.
func (s *MemoryQueueStore) Get(_ context.Context, guildID snowflake.ID) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.queues[guildID]
	if !ok {
		return nil, nil
	}
	return bytes.Clone(data), nil
}

// Set stores the queue of the guild.
func (s *MemoryQueueStore) Set(_ context.Context, guildID snowflake.ID, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.queues[guildID] = bytes.Clone(data)
	return nil
}

// Delete removes the stored queue of the guild.
func (s *MemoryQueueStore) Delete(_ context.Context, guildID snowflake.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.queues, guildID)
	return nil
}

// Count returns the number of stored queues (for testing/monitoring).
func (s *MemoryQueueStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.queues)
}

// MemoryNowPlayingRepository keeps the "Now Playing" message of each guild in memory.
type MemoryNowPlayingRepository struct {
	mu       sync.Mutex
	messages map[snowflake.ID]domain.NowPlayingMessage
}

// NewMemoryNowPlayingRepository creates a new MemoryNowPlayingRepository.
func NewMemoryNowPlayingRepository() *MemoryNowPlayingRepository {
	return &MemoryNowPlayingRepository{
		messages: make(map[snowflake.ID]domain.NowPlayingMessage),
	}
}

// Swap stores msg and returns the message previously stored for its guild.
func (r *MemoryNowPlayingRepository) Swap(msg domain.NowPlayingMessage) (domain.NowPlayingMessage, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	old, ok := r.messages[msg.GuildID]
	r.messages[msg.GuildID] = msg
	return old, ok
}

// Take removes and returns the message stored for guildID.
func (r *MemoryNowPlayingRepository) Take(guildID snowflake.ID) (domain.NowPlayingMessage, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg, ok := r.messages[guildID]
	delete(r.messages, guildID)
	return msg, ok
}

var (
	_ domain.QueueStore           = (*MemoryQueueStore)(nil)
	_ domain.NowPlayingRepository = (*MemoryNowPlayingRepository)(nil)
)
