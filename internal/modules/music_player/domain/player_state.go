package domain

// ConnectionState is the voice connection state of a player.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateDisconnecting
	StateDestroying
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	case StateDestroying:
		return "destroying"
	default:
		return "disconnected"
	}
}

// DestroyReason tells listeners why a player was destroyed.
// Callers may use their own values besides the predefined ones.
type DestroyReason string

const (
	DestroyReasonDisconnected        DestroyReason = "Disconnected"
	DestroyReasonChannelDeleted      DestroyReason = "ChannelDeleted"
	DestroyReasonPlayerReconnectFail DestroyReason = "PlayerReconnectFail"
	DestroyReasonQueueEmpty          DestroyReason = "QueueEmpty"
	DestroyReasonNodeDestroy         DestroyReason = "NodeDestroy"
	DestroyReasonNodeDeleted         DestroyReason = "NodeDeleted"
	DestroyReasonNodeNoVoice         DestroyReason = "NodeNoVoice"
	DestroyReasonLeaveCommand        DestroyReason = "LeaveCommand"
	// DestroyReasonShutdown keeps the stored queue so it is restored on the
	// next start.
	DestroyReasonShutdown DestroyReason = "Shutdown"
)

// KeepsQueue reports whether a player destroyed for r keeps its stored queue.
func (r DestroyReason) KeepsQueue() bool {
	return r == DestroyReasonShutdown
}
