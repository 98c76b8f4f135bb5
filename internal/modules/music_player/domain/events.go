package domain

import (
	"encoding/json"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

// TrackEndReason represents why a track ended.
type TrackEndReason string

const (
	// TrackEndFinished means the track finished normally.
	TrackEndFinished TrackEndReason = "finished"
	// TrackEndLoadFailed means the track failed to load.
	TrackEndLoadFailed TrackEndReason = "loadFailed"
	// TrackEndStopped means the track was stopped by the user.
	TrackEndStopped TrackEndReason = "stopped"
	// TrackEndReplaced means the track was replaced by another.
	TrackEndReplaced TrackEndReason = "replaced"
	// TrackEndCleanup means the player was cleaned up by the node.
	TrackEndCleanup TrackEndReason = "cleanup"
)

// ShouldAdvanceQueue returns true if this end reason should advance the queue.
func (r TrackEndReason) ShouldAdvanceQueue() bool {
	return r == TrackEndFinished || r == TrackEndLoadFailed
}

// PlayerPayload is a guild-scoped frame received from a node.
type PlayerPayload interface {
	Guild() snowflake.ID
}

// TrackException describes a playback failure reported by a node.
type TrackException struct {
	Message  string
	Severity string
	Cause    string
}

type TrackStartPayload struct {
	GuildID snowflake.ID
	Track   Track
}

type TrackEndPayload struct {
	GuildID snowflake.ID
	Track   Track
	Reason  TrackEndReason
}

type TrackExceptionPayload struct {
	GuildID   snowflake.ID
	Track     Track
	Exception TrackException
}

type TrackStuckPayload struct {
	GuildID   snowflake.ID
	Track     Track
	Threshold time.Duration
}

type WebSocketClosedPayload struct {
	GuildID  snowflake.ID
	Code     int
	Reason   string
	ByRemote bool
}

// PlayerStatePayload is the periodic position report of a node player.
type PlayerStatePayload struct {
	GuildID   snowflake.ID
	Position  time.Duration
	Connected bool
	Ping      time.Duration
}

// PluginEventPayload carries events of node plugins such as SponsorBlock
// (SegmentsLoaded, SegmentSkipped, ChaptersLoaded, ChapterStarted).
type PluginEventPayload struct {
	GuildID snowflake.ID
	Type    string
	Data    json.RawMessage
}

func (p TrackStartPayload) Guild() snowflake.ID      { return p.GuildID }
func (p TrackEndPayload) Guild() snowflake.ID        { return p.GuildID }
func (p TrackExceptionPayload) Guild() snowflake.ID  { return p.GuildID }
func (p TrackStuckPayload) Guild() snowflake.ID      { return p.GuildID }
func (p WebSocketClosedPayload) Guild() snowflake.ID { return p.GuildID }
func (p PlayerStatePayload) Guild() snowflake.ID     { return p.GuildID }
func (p PluginEventPayload) Guild() snowflake.ID     { return p.GuildID }

// EventKind identifies a notification published to subscribers.
type EventKind string

const (
	EventTrackStart         EventKind = "trackStart"
	EventTrackEnd           EventKind = "trackEnd"
	EventTrackStuck         EventKind = "trackStuck"
	EventTrackError         EventKind = "trackError"
	EventQueueEnd           EventKind = "queueEnd"
	EventPlayerCreate       EventKind = "playerCreate"
	EventPlayerMove         EventKind = "playerMove"
	EventPlayerDisconnect   EventKind = "playerDisconnect"
	EventPlayerSocketClosed EventKind = "playerSocketClosed"
	EventPlayerDestroy      EventKind = "playerDestroy"
	EventPlayerUpdate       EventKind = "playerUpdate"
	EventPlugin             EventKind = "plugin"

	EventNodeCreate       EventKind = "nodeCreate"
	EventNodeConnect      EventKind = "nodeConnect"
	EventNodeReconnecting EventKind = "nodeReconnecting"
	EventNodeDisconnect   EventKind = "nodeDisconnect"
	EventNodeError        EventKind = "nodeError"
	EventNodeRaw          EventKind = "nodeRaw"
	EventNodeDestroy      EventKind = "nodeDestroy"
)

// Event is a notification delivered through the event bus.
type Event interface {
	Kind() EventKind
}

// TrackStartEvent is published when a node starts playing the current track.
type TrackStartEvent struct {
	GuildID       snowflake.ID
	TextChannelID snowflake.ID
	Entry         *QueueEntry
	Payload       TrackStartPayload
}

// TrackEndEvent is published when a track ends.
type TrackEndEvent struct {
	GuildID snowflake.ID
	Entry   *QueueEntry
	Payload TrackEndPayload
}

// TrackStuckEvent is published when a node reports a stuck track.
type TrackStuckEvent struct {
	GuildID snowflake.ID
	Entry   *QueueEntry
	Payload TrackStuckPayload
}

// TrackErrorEvent is published on playback exceptions and on resolution
// failures. Exactly one of Payload and Err is meaningful.
type TrackErrorEvent struct {
	GuildID       snowflake.ID
	TextChannelID snowflake.ID
	Entry         *QueueEntry
	Payload       *TrackExceptionPayload
	Err           error
}

// QueueEndEvent is published when the queue has nothing left to play.
type QueueEndEvent struct {
	GuildID       snowflake.ID
	TextChannelID snowflake.ID
	LastTrack     *QueueEntry
	Payload       PlayerPayload
}

type PlayerCreateEvent struct {
	GuildID snowflake.ID
	NodeID  string
}

type PlayerMoveEvent struct {
	GuildID      snowflake.ID
	OldChannelID snowflake.ID
	NewChannelID snowflake.ID
}

type PlayerDisconnectEvent struct {
	GuildID   snowflake.ID
	ChannelID snowflake.ID
}

type PlayerSocketClosedEvent struct {
	GuildID snowflake.ID
	Payload WebSocketClosedPayload
}

type PlayerDestroyEvent struct {
	GuildID snowflake.ID
	Reason  DestroyReason
}

type PlayerUpdateEvent struct {
	GuildID snowflake.ID
	Payload PlayerStatePayload
}

type PluginEvent struct {
	GuildID snowflake.ID
	Payload PluginEventPayload
}

type NodeCreateEvent struct {
	NodeID string
}

type NodeConnectEvent struct {
	NodeID  string
	Resumed bool
}

type NodeReconnectingEvent struct {
	NodeID  string
	Attempt int
}

type NodeDisconnectEvent struct {
	NodeID string
	Code   int
	Reason string
}

type NodeErrorEvent struct {
	NodeID string
	Err    error
}

// NodeRawEvent carries every frame received from a node, unparsed.
type NodeRawEvent struct {
	NodeID string
	Data   []byte
}

type NodeDestroyEvent struct {
	NodeID string
	Reason string
}

func (TrackStartEvent) Kind() EventKind         { return EventTrackStart }
func (TrackEndEvent) Kind() EventKind           { return EventTrackEnd }
func (TrackStuckEvent) Kind() EventKind         { return EventTrackStuck }
func (TrackErrorEvent) Kind() EventKind         { return EventTrackError }
func (QueueEndEvent) Kind() EventKind           { return EventQueueEnd }
func (PlayerCreateEvent) Kind() EventKind       { return EventPlayerCreate }
func (PlayerMoveEvent) Kind() EventKind         { return EventPlayerMove }
func (PlayerDisconnectEvent) Kind() EventKind   { return EventPlayerDisconnect }
func (PlayerSocketClosedEvent) Kind() EventKind { return EventPlayerSocketClosed }
func (PlayerDestroyEvent) Kind() EventKind      { return EventPlayerDestroy }
func (PlayerUpdateEvent) Kind() EventKind       { return EventPlayerUpdate }
func (PluginEvent) Kind() EventKind             { return EventPlugin }
func (NodeCreateEvent) Kind() EventKind         { return EventNodeCreate }
func (NodeConnectEvent) Kind() EventKind        { return EventNodeConnect }
func (NodeReconnectingEvent) Kind() EventKind   { return EventNodeReconnecting }
func (NodeDisconnectEvent) Kind() EventKind     { return EventNodeDisconnect }
func (NodeErrorEvent) Kind() EventKind          { return EventNodeError }
func (NodeRawEvent) Kind() EventKind            { return EventNodeRaw }
func (NodeDestroyEvent) Kind() EventKind        { return EventNodeDestroy }
