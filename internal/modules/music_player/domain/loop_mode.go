package domain

import "fmt"

// LoopMode represents the repeat mode for queue playback.
type LoopMode int

const (
	LoopModeNone  LoopMode = iota // Default: no looping
	LoopModeTrack                 // Repeat current track indefinitely
	LoopModeQueue                 // Re-append finished tracks to the end of the queue
)

// String returns a human-readable representation of the loop mode.
func (m LoopMode) String() string {
	switch m {
	case LoopModeTrack:
		return "track"
	case LoopModeQueue:
		return "queue"
	default:
		return "off"
	}
}

// ParseLoopMode converts a string to domain.LoopMode.
// "off" and "none" both select LoopModeNone.
func ParseLoopMode(s string) (LoopMode, error) {
	switch s {
	case "off", "none", "":
		return LoopModeNone, nil
	case "track":
		return LoopModeTrack, nil
	case "queue":
		return LoopModeQueue, nil
	default:
		return LoopModeNone, fmt.Errorf("unknown loop mode %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m LoopMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *LoopMode) UnmarshalText(text []byte) error {
	mode, err := ParseLoopMode(string(text))
	if err != nil {
		return err
	}
	*m = mode
	return nil
}
