package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

func TestTrack_FormattedDuration(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		isStream bool
		want     string
	}{
		{
			name:     "minutes and seconds",
			duration: 3*time.Minute + 5*time.Second,
			want:     "03:05",
		},
		{
			name:     "hours",
			duration: time.Hour + 2*time.Minute + 3*time.Second,
			want:     "01:02:03",
		},
		{
			name:     "zero",
			duration: 0,
			want:     "00:00",
		},
		{
			name:     "stream",
			duration: time.Hour,
			isStream: true,
			want:     "LIVE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			track := Track{Info: TrackInfo{Duration: tt.duration, IsStream: tt.isStream}}
			if got := track.FormattedDuration(); got != tt.want {
				t.Errorf("FormattedDuration() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTrack_IsValid(t *testing.T) {
	tests := []struct {
		name  string
		track Track
		want  bool
	}{
		{
			name:  "valid track",
			track: Track{Encoded: "abc", Info: TrackInfo{Title: "Song"}},
			want:  true,
		},
		{
			name:  "missing encoded",
			track: Track{Info: TrackInfo{Title: "Song"}},
			want:  false,
		},
		{
			name:  "missing title",
			track: Track{Encoded: "abc"},
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.track.IsValid(); got != tt.want {
				t.Errorf("IsValid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewUnresolvedQueueEntry(t *testing.T) {
	requester := snowflake.ID(42)

	tests := []struct {
		name       string
		descriptor UnresolvedTrack
		wantErr    error
	}{
		{
			name:       "title only",
			descriptor: UnresolvedTrack{Info: TrackInfo{Title: "Song"}},
		},
		{
			name:       "uri only",
			descriptor: UnresolvedTrack{Info: TrackInfo{URI: "https://example.com/a.mp3"}},
		},
		{
			name:       "encoded only",
			descriptor: UnresolvedTrack{Encoded: "QAAA"},
		},
		{
			name:       "nothing to resolve from",
			descriptor: UnresolvedTrack{Info: TrackInfo{Author: "Artist"}},
			wantErr:    ErrInvalidUnresolvedTrack,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry, err := NewUnresolvedQueueEntry(tt.descriptor, requester)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected error %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if entry.IsResolved() {
				t.Error("expected entry to be pending")
			}
			if entry.RequesterID != requester {
				t.Errorf("expected requester %d, got %d", requester, entry.RequesterID)
			}
		})
	}
}

func TestQueueEntry_ResolveInPlace(t *testing.T) {
	entry, err := NewUnresolvedQueueEntry(
		UnresolvedTrack{Info: TrackInfo{Title: "Song", Author: "Artist"}},
		snowflake.ID(1),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Another holder of the same handle, e.g. the queue.
	alias := entry

	if _, ok := alias.Track(); ok {
		t.Fatal("expected no resolved track before Resolve")
	}
	if info := alias.Info(); info.Title != "Song" {
		t.Errorf("expected descriptor title, got %q", info.Title)
	}

	entry.Resolve(Track{Encoded: "QAAA", Info: TrackInfo{Title: "Song (Official)", Author: "Artist"}})

	track, ok := alias.Track()
	if !ok {
		t.Fatal("expected alias to observe the resolved track")
	}
	if track.Encoded != "QAAA" {
		t.Errorf("expected encoded QAAA, got %q", track.Encoded)
	}
	if _, pending := alias.Unresolved(); pending {
		t.Error("expected no pending descriptor after Resolve")
	}
	if alias.Encoded() != "QAAA" {
		t.Errorf("expected Encoded() QAAA, got %q", alias.Encoded())
	}
}
