package application

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/sgrlink/internal/modules/music_player/domain"
)

// Queue is the queue of one player. Every mutation is persisted through the
// QueueStore and reported to the optional QueueChangesWatcher.
type Queue struct {
	guildID snowflake.ID
	store   domain.QueueStore
	watcher domain.QueueChangesWatcher

	mu     sync.Mutex
	queue  *domain.Queue
	closed bool
}

// NewQueue creates an empty queue for guildID.
func NewQueue(
	guildID snowflake.ID,
	maxPrevious int,
	store domain.QueueStore,
	watcher domain.QueueChangesWatcher,
) *Queue {
	return &Queue{
		guildID: guildID,
		store:   store,
		watcher: watcher,
		queue:   domain.NewQueue(maxPrevious),
	}
}

// Restore replaces the in-memory queue with the stored snapshot, if any.
func (q *Queue) Restore(ctx context.Context) error {
	data, err := q.store.Get(ctx, q.guildID)
	if err != nil {
		return fmt.Errorf("failed to read stored queue: %w", err)
	}
	if data == nil {
		return nil
	}

	snapshot, err := q.store.Parse(data)
	if err != nil {
		return fmt.Errorf("failed to parse stored queue: %w", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	restored, err := domain.RestoreQueue(snapshot, q.queue.MaxPrevious())
	if err != nil {
		return fmt.Errorf("failed to restore queue: %w", err)
	}
	q.queue = restored
	return nil
}

// Current returns the current entry, or nil.
func (q *Queue) Current() *domain.QueueEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.queue.Current()
}

// Upcoming returns the upcoming entries in play order.
func (q *Queue) Upcoming() []*domain.QueueEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.queue.Upcoming()
}

// Previous returns the history, most recent first.
func (q *Queue) Previous() []*domain.QueueEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.queue.Previous()
}

// Len returns the number of upcoming entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.queue.Len()
}

// LoopMode returns the repeat mode.
func (q *Queue) LoopMode() domain.LoopMode {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.queue.LoopMode()
}

// Snapshot returns the persistable state of the queue.
func (q *Queue) Snapshot() domain.QueueSnapshot {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.queue.Snapshot()
}

// SetLoopMode sets the repeat mode.
func (q *Queue) SetLoopMode(ctx context.Context, mode domain.LoopMode) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.queue.SetLoopMode(mode)
	return q.save(ctx)
}

// SetCurrent installs entry as the current track.
func (q *Queue) SetCurrent(ctx context.Context, entry *domain.QueueEntry) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.queue.SetCurrent(entry)
	return q.save(ctx)
}

// Add inserts entries before position; a negative position appends.
func (q *Queue) Add(ctx context.Context, position int, entries ...*domain.QueueEntry) error {
	if len(entries) == 0 {
		return nil
	}

	q.mu.Lock()
	if position < 0 || position > q.queue.Len() {
		position = q.queue.Len()
	}
	q.queue.Add(position, entries...)
	snapshot := q.queue.Snapshot()
	err := q.save(ctx)
	q.mu.Unlock()

	if q.watcher != nil {
		q.watcher.TracksAdd(q.guildID, entries, position, snapshot)
	}
	return err
}

// Remove removes count upcoming entries starting at index.
func (q *Queue) Remove(ctx context.Context, index, count int) ([]*domain.QueueEntry, error) {
	q.mu.Lock()
	removed := q.queue.Remove(index, count)
	if len(removed) == 0 {
		q.mu.Unlock()
		return nil, ErrInvalidPosition
	}
	snapshot := q.queue.Snapshot()
	err := q.save(ctx)
	q.mu.Unlock()

	if q.watcher != nil {
		q.watcher.TracksRemoved(q.guildID, removed, index, snapshot)
	}
	return removed, err
}

// Clear removes all upcoming entries and returns how many were removed.
func (q *Queue) Clear(ctx context.Context) (int, error) {
	q.mu.Lock()
	removed := q.queue.Clear()
	if len(removed) == 0 {
		q.mu.Unlock()
		return 0, nil
	}
	snapshot := q.queue.Snapshot()
	err := q.save(ctx)
	q.mu.Unlock()

	if q.watcher != nil {
		q.watcher.TracksRemoved(q.guildID, removed, 0, snapshot)
	}
	return len(removed), err
}

// Shuffle randomises the upcoming entries.
func (q *Queue) Shuffle(ctx context.Context) error {
	q.mu.Lock()
	before := q.queue.Snapshot()
	q.queue.Shuffle()
	after := q.queue.Snapshot()
	err := q.save(ctx)
	q.mu.Unlock()

	if q.watcher != nil {
		q.watcher.Shuffled(q.guildID, before, after)
	}
	return err
}

// Advance retires the current entry and makes the next one current.
// A pending candidate is resolved with resolve first; if that fails the
// candidate is dropped, the current entry stays nil and the error is
// returned together with the candidate. Returns nil, nil when the queue is
// exhausted.
func (q *Queue) Advance(
	ctx context.Context,
	resolve func(context.Context, *domain.QueueEntry) error,
) (*domain.QueueEntry, error) {
	q.mu.Lock()
	candidate := q.queue.Advance()
	if err := q.save(ctx); err != nil {
		slog.Warn("failed to persist queue", "guild", q.guildID, "error", err)
	}
	q.mu.Unlock()

	if candidate == nil {
		return nil, nil
	}

	if !candidate.IsResolved() {
		if err := resolve(ctx, candidate); err != nil {
			return candidate, err
		}
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return candidate, ErrPlayerDestroyed
	}
	q.queue.SetCurrent(candidate)
	if err := q.save(ctx); err != nil {
		slog.Warn("failed to persist queue", "guild", q.guildID, "error", err)
	}
	return candidate, nil
}

// Close stops persisting the queue. Mutations still in flight, such as an
// Advance waiting on a resolution, are discarded from then on.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}

// Destroy closes the queue and deletes the persisted copy.
func (q *Queue) Destroy(ctx context.Context) error {
	q.Close()
	return q.store.Delete(ctx, q.guildID)
}

// save must be called with q.mu held. A closed queue is not saved.
func (q *Queue) save(ctx context.Context) error {
	if q.closed {
		return nil
	}
	data, err := q.store.Stringify(q.queue.Snapshot())
	if err != nil {
		return fmt.Errorf("failed to encode queue: %w", err)
	}
	if err := q.store.Set(ctx, q.guildID, data); err != nil {
		return fmt.Errorf("failed to store queue: %w", err)
	}
	return nil
}
