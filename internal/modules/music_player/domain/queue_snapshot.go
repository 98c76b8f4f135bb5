package domain

import (
	"fmt"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

// StoredTrackInfo is the persisted form of TrackInfo.
type StoredTrackInfo struct {
	Identifier string `json:"identifier,omitempty"`
	Title      string `json:"title,omitempty"`
	Author     string `json:"author,omitempty"`
	DurationMS int64  `json:"length,omitempty"`
	URI        string `json:"uri,omitempty"`
	SourceName string `json:"sourceName,omitempty"`
	IsSeekable bool   `json:"isSeekable,omitempty"`
	IsStream   bool   `json:"isStream,omitempty"`
	ISRC       string `json:"isrc,omitempty"`
	ArtworkURL string `json:"artworkUrl,omitempty"`
}

// StoredTrack is the persisted form of a QueueEntry.
type StoredTrack struct {
	Encoded     string          `json:"encoded,omitempty"`
	Info        StoredTrackInfo `json:"info"`
	RequesterID snowflake.ID    `json:"requester"`
	EnqueuedAt  time.Time       `json:"enqueuedAt"`
}

// QueueSnapshot is the persisted form of a Queue.
type QueueSnapshot struct {
	Current  *StoredTrack  `json:"current"`
	Upcoming []StoredTrack `json:"tracks"`
	Previous []StoredTrack `json:"previous"`
	LoopMode LoopMode      `json:"loopMode"`
}

// Snapshot captures the queue state for persistence.
func (q *Queue) Snapshot() QueueSnapshot {
	snapshot := QueueSnapshot{
		Upcoming: make([]StoredTrack, len(q.upcoming)),
		Previous: make([]StoredTrack, len(q.previous)),
		LoopMode: q.loopMode,
	}
	if q.current != nil {
		current := storeEntry(q.current)
		snapshot.Current = &current
	}
	for i, e := range q.upcoming {
		snapshot.Upcoming[i] = storeEntry(e)
	}
	for i, e := range q.previous {
		snapshot.Previous[i] = storeEntry(e)
	}
	return snapshot
}

// RestoreQueue rebuilds a Queue from a snapshot. Every entry comes back
// pending: a stored token may not decode on the node that plays it next, so
// it is resolved again before playback, falling back to a search.
func RestoreQueue(snapshot QueueSnapshot, maxPrevious int) (*Queue, error) {
	q := NewQueue(maxPrevious)
	q.loopMode = snapshot.LoopMode

	if snapshot.Current != nil {
		entry, err := restoreEntry(*snapshot.Current)
		if err != nil {
			return nil, fmt.Errorf("current track: %w", err)
		}
		q.current = entry
	}
	for i, stored := range snapshot.Upcoming {
		entry, err := restoreEntry(stored)
		if err != nil {
			return nil, fmt.Errorf("track %d: %w", i, err)
		}
		q.upcoming = append(q.upcoming, entry)
	}
	for i, stored := range snapshot.Previous {
		if len(q.previous) >= q.maxPrevious {
			break
		}
		entry, err := restoreEntry(stored)
		if err != nil {
			return nil, fmt.Errorf("previous track %d: %w", i, err)
		}
		q.previous = append(q.previous, entry)
	}
	return q, nil
}

func storeEntry(e *QueueEntry) StoredTrack {
	info := e.Info()
	return StoredTrack{
		Encoded: e.Encoded(),
		Info: StoredTrackInfo{
			Identifier: info.Identifier,
			Title:      info.Title,
			Author:     info.Author,
			DurationMS: info.Duration.Milliseconds(),
			URI:        info.URI,
			SourceName: info.SourceName,
			IsSeekable: info.IsSeekable,
			IsStream:   info.IsStream,
			ISRC:       info.ISRC,
			ArtworkURL: info.ArtworkURL,
		},
		RequesterID: e.RequesterID,
		EnqueuedAt:  e.EnqueuedAt,
	}
}

func restoreEntry(s StoredTrack) (*QueueEntry, error) {
	info := TrackInfo{
		Identifier: s.Info.Identifier,
		Title:      s.Info.Title,
		Author:     s.Info.Author,
		Duration:   time.Duration(s.Info.DurationMS) * time.Millisecond,
		URI:        s.Info.URI,
		SourceName: s.Info.SourceName,
		IsSeekable: s.Info.IsSeekable,
		IsStream:   s.Info.IsStream,
		ISRC:       s.Info.ISRC,
		ArtworkURL: s.Info.ArtworkURL,
	}

	entry, err := NewUnresolvedQueueEntry(UnresolvedTrack{Encoded: s.Encoded, Info: info}, s.RequesterID)
	if err != nil {
		return nil, err
	}
	if !s.EnqueuedAt.IsZero() {
		entry.EnqueuedAt = s.EnqueuedAt
	}
	return entry, nil
}
