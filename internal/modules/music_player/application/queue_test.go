package application

import (
	"context"
	"errors"
	"testing"

	"github.com/sglre6355/sgrlink/internal/modules/music_player/domain"
)

func resolveNothing(context.Context, *domain.QueueEntry) error { return nil }

func TestQueue_MutationsArePersistedAndWatched(t *testing.T) {
	store := newMemoryStore()
	watcher := &mockWatcher{}
	q := NewQueue(testGuildID, 10, store, watcher)
	ctx := context.Background()

	if err := q.Add(ctx, -1, testEntry("a"), testEntry("b"), testEntry("c")); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := q.Add(ctx, 0, testEntry("first")); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	snapshot, ok := store.stored(t, testGuildID)
	if !ok {
		t.Fatal("expected the queue to be stored")
	}
	if len(snapshot.Upcoming) != 4 || snapshot.Upcoming[0].Encoded != "enc-first" {
		t.Errorf("unexpected stored queue %+v", snapshot.Upcoming)
	}

	removed, err := q.Remove(ctx, 1, 2)
	if err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if len(removed) != 2 || removed[0].Encoded() != "enc-a" {
		t.Errorf("unexpected removed entries")
	}
	if _, err := q.Remove(ctx, 10, 1); !errors.Is(err, ErrInvalidPosition) {
		t.Errorf("expected ErrInvalidPosition, got %v", err)
	}

	if err := q.Shuffle(ctx); err != nil {
		t.Fatalf("Shuffle() error = %v", err)
	}
	if n, err := q.Clear(ctx); err != nil || n != 2 {
		t.Errorf("Clear() = %d, %v", n, err)
	}

	watcher.mu.Lock()
	defer watcher.mu.Unlock()
	if len(watcher.added) != 2 || watcher.added[0] != 3 || watcher.added[1] != 1 {
		t.Errorf("added notifications = %v", watcher.added)
	}
	if len(watcher.removed) != 2 || watcher.removed[0] != 2 || watcher.removed[1] != 2 {
		t.Errorf("removed notifications = %v", watcher.removed)
	}
	if watcher.shuffles != 1 {
		t.Errorf("expected 1 shuffle notification, got %d", watcher.shuffles)
	}
}

func TestQueue_Restore(t *testing.T) {
	store := newMemoryStore()
	ctx := context.Background()

	saved := NewQueue(testGuildID, 10, store, nil)
	if err := saved.Add(ctx, -1, testEntry("a"), testEntry("b")); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := saved.SetLoopMode(ctx, domain.LoopModeQueue); err != nil {
		t.Fatalf("SetLoopMode() error = %v", err)
	}
	if _, err := saved.Advance(ctx, resolveNothing); err != nil {
		t.Fatalf("Advance() error = %v", err)
	}

	restored := NewQueue(testGuildID, 10, store, nil)
	if err := restored.Restore(ctx); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}

	if current := restored.Current(); current == nil || current.Encoded() != "enc-a" {
		t.Error("expected enc-a to be restored as current")
	}
	if restored.Len() != 1 || restored.LoopMode() != domain.LoopModeQueue {
		t.Errorf("unexpected restored queue: len=%d loop=%v", restored.Len(), restored.LoopMode())
	}

	empty := NewQueue(999, 10, store, nil)
	if err := empty.Restore(ctx); err != nil {
		t.Errorf("Restore() of a missing queue error = %v", err)
	}
	if empty.Len() != 0 || empty.Current() != nil {
		t.Error("expected an empty queue")
	}
}

func TestQueue_Restore_Corrupt(t *testing.T) {
	store := newMemoryStore()
	store.data[testGuildID] = []byte("{not json")

	q := NewQueue(testGuildID, 10, store, nil)
	if err := q.Restore(context.Background()); err == nil {
		t.Error("expected an error for a corrupt snapshot")
	}
}

func TestQueue_Advance(t *testing.T) {
	tests := []struct {
		name      string
		loop      domain.LoopMode
		entries   []string
		advances  int
		wantOrder []string
	}{
		{
			name:      "plays through once",
			entries:   []string{"a", "b"},
			advances:  3,
			wantOrder: []string{"a", "b", ""},
		},
		{
			name:      "repeat queue wraps around",
			loop:      domain.LoopModeQueue,
			entries:   []string{"a", "b"},
			advances:  5,
			wantOrder: []string{"a", "b", "a", "b", "a"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := NewQueue(testGuildID, 10, newMemoryStore(), nil)
			ctx := context.Background()

			if err := q.SetLoopMode(ctx, tt.loop); err != nil {
				t.Fatalf("SetLoopMode() error = %v", err)
			}
			for _, id := range tt.entries {
				if err := q.Add(ctx, -1, testEntry(id)); err != nil {
					t.Fatalf("Add() error = %v", err)
				}
			}

			for i := range tt.advances {
				next, err := q.Advance(ctx, resolveNothing)
				if err != nil {
					t.Fatalf("Advance() error = %v", err)
				}
				got := ""
				if next != nil {
					got = next.Info().Identifier
				}
				if got != tt.wantOrder[i] {
					t.Errorf("advance %d: got %q, want %q", i, got, tt.wantOrder[i])
				}
			}
		})
	}
}

func TestQueue_Advance_RepeatQueue(t *testing.T) {
	q := NewQueue(testGuildID, 10, newMemoryStore(), nil)
	ctx := context.Background()

	if err := q.SetLoopMode(ctx, domain.LoopModeQueue); err != nil {
		t.Fatalf("SetLoopMode() error = %v", err)
	}
	if err := q.SetCurrent(ctx, testEntry("a")); err != nil {
		t.Fatalf("SetCurrent() error = %v", err)
	}
	if err := q.Add(ctx, -1, testEntry("b")); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	next, err := q.Advance(ctx, resolveNothing)
	if err != nil {
		t.Fatalf("Advance() error = %v", err)
	}
	if next == nil || next.Encoded() != "enc-b" {
		t.Fatal("expected enc-b to be next")
	}

	previous := q.Previous()
	if len(previous) != 1 || previous[0].Encoded() != "enc-a" {
		t.Errorf("expected enc-a in history")
	}
	if current := q.Current(); current == nil || current.Encoded() != "enc-b" {
		t.Errorf("expected enc-b to be current")
	}
	upcoming := q.Upcoming()
	if len(upcoming) != 1 || upcoming[0].Encoded() != "enc-a" {
		t.Errorf("expected enc-a to be re-queued")
	}
}

func TestQueue_Advance_HistoryIsBounded(t *testing.T) {
	q := NewQueue(testGuildID, 2, newMemoryStore(), nil)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c", "d"} {
		if err := q.Add(ctx, -1, testEntry(id)); err != nil {
			t.Fatalf("Add() error = %v", err)
		}
	}
	for range 4 {
		if _, err := q.Advance(ctx, resolveNothing); err != nil {
			t.Fatalf("Advance() error = %v", err)
		}
	}

	previous := q.Previous()
	if len(previous) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(previous))
	}
	if previous[0].Encoded() != "enc-c" || previous[1].Encoded() != "enc-b" {
		t.Errorf("expected most recent first, got %s, %s", previous[0].Encoded(), previous[1].Encoded())
	}
}

func TestQueue_Advance_ResolveFailure(t *testing.T) {
	q := NewQueue(testGuildID, 10, newMemoryStore(), nil)
	ctx := context.Background()

	pending, err := domain.NewUnresolvedQueueEntry(domain.UnresolvedTrack{
		Info: domain.TrackInfo{Title: "Pending"},
	}, testRequester)
	if err != nil {
		t.Fatalf("NewUnresolvedQueueEntry() error = %v", err)
	}
	if err := q.Add(ctx, -1, pending); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	failure := errors.New("resolve failed")
	next, err := q.Advance(ctx, func(context.Context, *domain.QueueEntry) error { return failure })
	if !errors.Is(err, failure) {
		t.Fatalf("expected the resolve error, got %v", err)
	}
	if next != pending {
		t.Error("expected the failed candidate to be returned")
	}
	if q.Current() != nil {
		t.Error("expected no current entry")
	}
	if q.Len() != 0 {
		t.Errorf("expected the candidate to be dropped, got %d upcoming", q.Len())
	}
}

func TestQueue_PersistFailure(t *testing.T) {
	store := newMemoryStore()
	store.setErr = errors.New("disk full")
	watcher := &mockWatcher{}
	q := NewQueue(testGuildID, 10, store, watcher)

	if err := q.Add(context.Background(), -1, testEntry("a")); err == nil {
		t.Error("expected the store error to be returned")
	}
	if q.Len() != 1 {
		t.Error("expected the entry to be added in memory")
	}
	if len(watcher.added) != 1 {
		t.Error("expected the watcher to be notified")
	}
}
