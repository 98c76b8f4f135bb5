package domain

import (
	"errors"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

// ErrInvalidUnresolvedTrack is returned when a descriptor has neither an
// encoded token, a title nor a URI.
var ErrInvalidUnresolvedTrack = errors.New("unresolved track needs an encoded track, a title or a uri")

// QueueEntry is a stable handle to a track in a queue. It is either pending
// (holding an UnresolvedTrack) or resolved (holding a Track). Resolving flips
// the variant in place so every holder of the handle observes the change.
type QueueEntry struct {
	mu         sync.RWMutex
	track      *Track
	unresolved *UnresolvedTrack

	RequesterID snowflake.ID
	EnqueuedAt  time.Time
}

// NewQueueEntry creates a resolved entry for track.
func NewQueueEntry(track Track, requesterID snowflake.ID) *QueueEntry {
	return &QueueEntry{
		track:       &track,
		RequesterID: requesterID,
		EnqueuedAt:  time.Now().UTC(),
	}
}

// NewUnresolvedQueueEntry creates a pending entry for descriptor.
func NewUnresolvedQueueEntry(
	descriptor UnresolvedTrack,
	requesterID snowflake.ID,
) (*QueueEntry, error) {
	if !descriptor.IsValid() {
		return nil, ErrInvalidUnresolvedTrack
	}
	return &QueueEntry{
		unresolved:  &descriptor,
		RequesterID: requesterID,
		EnqueuedAt:  time.Now().UTC(),
	}, nil
}

// IsResolved reports whether the entry holds a playable track.
func (e *QueueEntry) IsResolved() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.track != nil
}

// Track returns the resolved track, if any.
func (e *QueueEntry) Track() (Track, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.track == nil {
		return Track{}, false
	}
	return *e.track, true
}

// Unresolved returns the pending descriptor, if the entry is still pending.
func (e *QueueEntry) Unresolved() (UnresolvedTrack, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.track != nil || e.unresolved == nil {
		return UnresolvedTrack{}, false
	}
	return *e.unresolved, true
}

// Resolve replaces the pending variant with track.
func (e *QueueEntry) Resolve(track Track) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.track = &track
	e.unresolved = nil
}

// Info returns the metadata of whichever variant the entry currently holds.
func (e *QueueEntry) Info() TrackInfo {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.track != nil {
		return e.track.Info
	}
	if e.unresolved != nil {
		return e.unresolved.Info
	}
	return TrackInfo{}
}

// Encoded returns the encoded track token, which may be empty for a pending entry.
func (e *QueueEntry) Encoded() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.track != nil {
		return e.track.Encoded
	}
	if e.unresolved != nil {
		return e.unresolved.Encoded
	}
	return ""
}
