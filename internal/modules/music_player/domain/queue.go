package domain

import "math/rand/v2"

// DefaultMaxPreviousTracks is the history bound used when none is configured.
const DefaultMaxPreviousTracks = 25

// Queue holds the current track, the upcoming tracks and a bounded,
// most-recent-first history of previously played tracks.
// It is not safe for concurrent use; the owning player serialises access.
type Queue struct {
	current     *QueueEntry
	upcoming    []*QueueEntry
	previous    []*QueueEntry
	maxPrevious int
	loopMode    LoopMode
}

// NewQueue creates a new empty Queue. A negative maxPrevious selects
// DefaultMaxPreviousTracks.
func NewQueue(maxPrevious int) *Queue {
	if maxPrevious < 0 {
		maxPrevious = DefaultMaxPreviousTracks
	}
	return &Queue{
		upcoming:    make([]*QueueEntry, 0),
		previous:    make([]*QueueEntry, 0),
		maxPrevious: maxPrevious,
	}
}

// MaxPrevious returns the history bound.
func (q *Queue) MaxPrevious() int {
	return q.maxPrevious
}

// IsEmpty returns true if there is neither a current nor an upcoming track.
func (q *Queue) IsEmpty() bool {
	return q.current == nil && len(q.upcoming) == 0
}

// Len returns the number of upcoming tracks.
func (q *Queue) Len() int {
	return len(q.upcoming)
}

// Current returns the current entry, or nil.
func (q *Queue) Current() *QueueEntry {
	return q.current
}

// SetCurrent replaces the current entry without touching the history.
func (q *Queue) SetCurrent(entry *QueueEntry) {
	q.current = entry
}

// Upcoming returns a copy of the upcoming entries in play order.
func (q *Queue) Upcoming() []*QueueEntry {
	result := make([]*QueueEntry, len(q.upcoming))
	copy(result, q.upcoming)
	return result
}

// Previous returns a copy of the history, most recent first.
func (q *Queue) Previous() []*QueueEntry {
	result := make([]*QueueEntry, len(q.previous))
	copy(result, q.previous)
	return result
}

// LoopMode returns the repeat mode.
func (q *Queue) LoopMode() LoopMode {
	return q.loopMode
}

// SetLoopMode sets the repeat mode.
func (q *Queue) SetLoopMode(mode LoopMode) {
	q.loopMode = mode
}

// Add inserts entries before position. A position outside [0, Len()] appends.
func (q *Queue) Add(position int, entries ...*QueueEntry) {
	if position < 0 || position >= len(q.upcoming) {
		q.upcoming = append(q.upcoming, entries...)
		return
	}

	upcoming := make([]*QueueEntry, 0, len(q.upcoming)+len(entries))
	upcoming = append(upcoming, q.upcoming[:position]...)
	upcoming = append(upcoming, entries...)
	upcoming = append(upcoming, q.upcoming[position:]...)
	q.upcoming = upcoming
}

// Remove removes up to count upcoming entries starting at index and returns them.
// Returns nil if index is out of bounds.
func (q *Queue) Remove(index, count int) []*QueueEntry {
	if index < 0 || index >= len(q.upcoming) || count <= 0 {
		return nil
	}
	end := min(index+count, len(q.upcoming))

	removed := make([]*QueueEntry, end-index)
	copy(removed, q.upcoming[index:end])
	q.upcoming = append(q.upcoming[:index], q.upcoming[end:]...)
	return removed
}

// Shuffle randomises the order of the upcoming entries.
func (q *Queue) Shuffle() {
	rand.Shuffle(len(q.upcoming), func(i, j int) {
		q.upcoming[i], q.upcoming[j] = q.upcoming[j], q.upcoming[i]
	})
}

// Clear removes all upcoming entries. The current entry and history are kept.
func (q *Queue) Clear() []*QueueEntry {
	removed := q.upcoming
	q.upcoming = make([]*QueueEntry, 0)
	return removed
}

// Advance retires the current entry and pops the next candidate:
//  1. the current entry is pushed to the front of the history, which is
//     truncated to MaxPrevious,
//  2. with LoopModeQueue the current entry is also re-appended to upcoming,
//  3. the head of upcoming is removed and returned.
//
// The current entry is left nil; the caller installs the candidate with
// SetCurrent once it is playable. Returns nil when nothing is left.
func (q *Queue) Advance() *QueueEntry {
	if q.current != nil {
		q.pushPrevious(q.current)
		if q.loopMode == LoopModeQueue {
			q.upcoming = append(q.upcoming, q.current)
		}
		q.current = nil
	}

	if len(q.upcoming) == 0 {
		return nil
	}

	next := q.upcoming[0]
	q.upcoming[0] = nil
	q.upcoming = q.upcoming[1:]
	return next
}

func (q *Queue) pushPrevious(entry *QueueEntry) {
	if q.maxPrevious == 0 {
		return
	}
	previous := make([]*QueueEntry, 0, min(len(q.previous)+1, q.maxPrevious))
	previous = append(previous, entry)
	for _, e := range q.previous {
		if len(previous) >= q.maxPrevious {
			break
		}
		previous = append(previous, e)
	}
	q.previous = previous
}
