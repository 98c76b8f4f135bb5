package application

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/sgrlink/internal/modules/music_player/application/ports"
	"github.com/sglre6355/sgrlink/internal/modules/music_player/domain"
)

// playerInboxSoftLimit is the inbox length above which position reports
// are dropped. Track and socket events are always queued.
const playerInboxSoftLimit = 64

// PlayerOptions configures a new player.
type PlayerOptions struct {
	GuildID        snowflake.ID
	VoiceChannelID snowflake.ID
	TextChannelID  snowflake.ID
	SelfMute       bool
	SelfDeaf       bool

	// NodeID pins the player to a node. When empty the least used node
	// serving Region is chosen.
	NodeID string
	Region string

	// Volume is the initial volume. Zero means 100.
	Volume int
}

// PlayOptions controls a Play call. The zero value plays the current entry,
// or advances the queue when there is none.
type PlayOptions struct {
	// Entry replaces the current entry.
	Entry     *domain.QueueEntry
	Position  time.Duration
	EndTime   time.Duration
	Paused    *bool
	Volume    *int
	NoReplace bool
}

// Player drives one guild's playback on a node. State is guarded by mu,
// which is never held across I/O. Updates to the node are serialized by
// sendMu. Node frames are consumed in arrival order by a single goroutine.
type Player struct {
	guildID snowflake.ID
	manager *Manager
	queue   *Queue

	ctx    context.Context
	cancel context.CancelFunc

	inboxMu sync.Mutex
	inbox   []domain.PlayerPayload
	wake    chan struct{}

	sendMu    sync.Mutex
	filterGen atomic.Uint64

	mu                 sync.RWMutex
	node               ports.Node
	state              domain.ConnectionState
	voiceChannelID     snowflake.ID
	textChannelID      snowflake.ID
	selfMute           bool
	selfDeaf           bool
	voice              ports.VoiceState
	pendingVoiceServer bool
	voiceReady         chan struct{}
	playing            bool
	paused             bool
	position           time.Duration
	positionAt         time.Time
	ping               time.Duration
	volume             int
	filters            domain.FilterData
	lastStarted        string
	emptyTimer         *time.Timer
}

func newPlayer(m *Manager, node ports.Node, queue *Queue, opts PlayerOptions) *Player {
	ctx, cancel := context.WithCancel(context.Background())

	volume := opts.Volume
	if volume == 0 {
		volume = 100
	}

	return &Player{
		guildID:        opts.GuildID,
		manager:        m,
		queue:          queue,
		ctx:            ctx,
		cancel:         cancel,
		wake:           make(chan struct{}, 1),
		node:           node,
		state:          domain.StateDisconnected,
		voiceChannelID: opts.VoiceChannelID,
		textChannelID:  opts.TextChannelID,
		selfMute:       opts.SelfMute,
		selfDeaf:       opts.SelfDeaf,
		volume:         volume,
	}
}

// GuildID returns the guild the player belongs to.
func (p *Player) GuildID() snowflake.ID {
	return p.guildID
}

// Queue returns the player's queue.
func (p *Player) Queue() *Queue {
	return p.queue
}

func (p *Player) Node() ports.Node {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.node
}

func (p *Player) State() domain.ConnectionState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

func (p *Player) VoiceChannelID() snowflake.ID {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.voiceChannelID
}

// SetVoiceChannel changes the channel used by the next Connect.
func (p *Player) SetVoiceChannel(channelID snowflake.ID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.voiceChannelID = channelID
}

func (p *Player) TextChannelID() snowflake.ID {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.textChannelID
}

// SetTextChannel changes where notifications for this player are sent.
func (p *Player) SetTextChannel(channelID snowflake.ID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.textChannelID = channelID
}

// Voice returns the voice credentials last received from the gateway.
func (p *Player) Voice() ports.VoiceState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.voice
}

// IsPlaying reports whether a track is loaded on the node, paused or not.
func (p *Player) IsPlaying() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.playing
}

func (p *Player) IsPaused() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.paused
}

func (p *Player) Volume() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.volume
}

// Filters returns the last filter document requested by the caller,
// before projection onto the node's capabilities.
func (p *Player) Filters() domain.FilterData {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.filters
}

func (p *Player) Ping() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.ping
}

// Position returns the playback position, extrapolated from the last node
// report while playing.
func (p *Player) Position() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()

	position := p.position
	if p.playing && !p.paused && !p.positionAt.IsZero() {
		position += time.Since(p.positionAt)
	}

	if current := p.queue.Current(); current != nil {
		if info := current.Info(); !info.IsStream && info.Duration > 0 && position > info.Duration {
			position = info.Duration
		}
	}
	return position
}

// IsDestroyed reports whether Destroy has been called.
func (p *Player) IsDestroyed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state == domain.StateDestroying
}

// Connect asks the gateway to join the voice channel and waits until the
// node has received the voice credentials.
func (p *Player) Connect(ctx context.Context) error {
	p.mu.Lock()
	if p.state == domain.StateDestroying {
		p.mu.Unlock()
		return ErrPlayerDestroyed
	}
	if p.voiceChannelID == 0 {
		p.mu.Unlock()
		return ErrNoVoiceChannel
	}
	channelID := p.voiceChannelID
	p.state = domain.StateConnecting
	ready := make(chan struct{})
	p.voiceReady = ready
	payload := ports.ShardPayload{
		GuildID:   p.guildID,
		ChannelID: &channelID,
		SelfMute:  p.selfMute,
		SelfDeaf:  p.selfDeaf,
	}
	p.mu.Unlock()

	if err := p.manager.shards.SendToShard(ctx, payload); err != nil {
		p.abortConnect()
		return fmt.Errorf("failed to join voice channel: %w", err)
	}

	timer := time.NewTimer(p.manager.options.VoiceConnectTimeout)
	defer timer.Stop()

	select {
	case <-ready:
		return nil
	case <-p.ctx.Done():
		return ErrPlayerDestroyed
	case <-ctx.Done():
		p.abortConnect()
		return fmt.Errorf("context cancelled while waiting for voice connection: %w", ctx.Err())
	case <-timer.C:
		p.abortConnect()
		return ErrVoiceTimeout
	}
}

func (p *Player) abortConnect() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == domain.StateConnecting {
		p.state = domain.StateDisconnected
	}
}

// Disconnect leaves the voice channel without destroying the player.
func (p *Player) Disconnect(ctx context.Context) error {
	p.mu.Lock()
	if p.state == domain.StateDestroying {
		p.mu.Unlock()
		return ErrPlayerDestroyed
	}
	p.state = domain.StateDisconnecting
	p.mu.Unlock()

	err := p.manager.shards.SendToShard(ctx, ports.ShardPayload{GuildID: p.guildID})

	p.mu.Lock()
	if p.state == domain.StateDisconnecting {
		p.state = domain.StateDisconnected
		p.voiceChannelID = 0
		p.voice = ports.VoiceState{}
		p.pendingVoiceServer = false
	}
	p.mu.Unlock()

	if err != nil {
		return fmt.Errorf("failed to leave voice channel: %w", err)
	}
	return nil
}

// Play starts playback. See PlayOptions.
func (p *Player) Play(ctx context.Context, opts PlayOptions) error {
	if p.IsDestroyed() {
		return ErrPlayerDestroyed
	}

	if opts.Entry != nil {
		if err := p.queue.SetCurrent(ctx, opts.Entry); err != nil {
			slog.Warn("failed to persist queue", "guild", p.guildID, "error", err)
		}
	}

	entry := p.queue.Current()
	if entry != nil && !entry.IsResolved() {
		err := p.resolve(ctx, entry)
		if err == nil {
			return p.playEntry(ctx, entry, opts)
		}
		if p.IsDestroyed() {
			return ErrPlayerDestroyed
		}

		p.publish(domain.TrackErrorEvent{GuildID: p.guildID, TextChannelID: p.TextChannelID(), Entry: entry, Err: err})
		if !p.manager.options.AutoSkipOnResolveError {
			return err
		}
		// the failed entry never becomes history
		if err := p.queue.SetCurrent(ctx, nil); err != nil {
			slog.Warn("failed to persist queue", "guild", p.guildID, "error", err)
		}
		entry = nil
	}

	if entry == nil {
		next, err := p.nextPlayable(ctx)
		if err != nil {
			return err
		}
		if next == nil {
			return ErrQueueEmpty
		}
		entry = next
	}

	return p.playEntry(ctx, entry, opts)
}

func (p *Player) playEntry(ctx context.Context, entry *domain.QueueEntry, opts PlayOptions) error {
	track, ok := entry.Track()
	if !ok {
		return domain.ErrInvalidUnresolvedTrack
	}

	encoded := track.Encoded
	update := ports.PlayerUpdate{
		Track:  &ports.PlayerUpdateTrack{Encoded: &encoded},
		Paused: opts.Paused,
		Volume: opts.Volume,
	}
	if opts.Position > 0 {
		position := opts.Position.Milliseconds()
		update.Position = &position
	}
	if opts.EndTime > 0 {
		endTime := opts.EndTime.Milliseconds()
		update.EndTime = &endTime
	}

	if err := p.update(ctx, update, opts.NoReplace); err != nil {
		return fmt.Errorf("failed to play track: %w", err)
	}

	p.mu.Lock()
	p.playing = true
	p.paused = opts.Paused != nil && *opts.Paused
	p.position = opts.Position
	p.positionAt = time.Now()
	if opts.Volume != nil {
		p.volume = *opts.Volume
	}
	p.stopEmptyTimerLocked()
	p.mu.Unlock()

	return nil
}

// Pause pauses playback.
func (p *Player) Pause(ctx context.Context) error {
	if err := p.checkPlaying(); err != nil {
		return err
	}
	if p.IsPaused() {
		return ErrAlreadyPaused
	}

	paused := true
	if err := p.update(ctx, ports.PlayerUpdate{Paused: &paused}, false); err != nil {
		return fmt.Errorf("failed to pause playback: %w", err)
	}

	p.mu.Lock()
	p.freezePositionLocked()
	p.paused = true
	p.mu.Unlock()
	return nil
}

// Resume resumes paused playback.
func (p *Player) Resume(ctx context.Context) error {
	if err := p.checkPlaying(); err != nil {
		return err
	}
	if !p.IsPaused() {
		return ErrNotPaused
	}

	paused := false
	if err := p.update(ctx, ports.PlayerUpdate{Paused: &paused}, false); err != nil {
		return fmt.Errorf("failed to resume playback: %w", err)
	}

	p.mu.Lock()
	p.paused = false
	p.positionAt = time.Now()
	p.mu.Unlock()
	return nil
}

// Seek moves the playback position of the current track. Positions past the
// end are clamped to the track duration.
func (p *Player) Seek(ctx context.Context, position time.Duration) error {
	if err := p.checkPlaying(); err != nil {
		return err
	}

	info := p.queue.Current().Info()
	if !info.IsSeekable || info.IsStream {
		return ErrNotSeekable
	}
	position = max(position, 0)
	if info.Duration > 0 {
		position = min(position, info.Duration)
	}

	ms := position.Milliseconds()
	if err := p.update(ctx, ports.PlayerUpdate{Position: &ms}, false); err != nil {
		return fmt.Errorf("failed to seek: %w", err)
	}

	p.mu.Lock()
	p.position = position
	p.positionAt = time.Now()
	p.mu.Unlock()
	return nil
}

// SetVolume sets the node volume, 0 to 1000 percent.
func (p *Player) SetVolume(ctx context.Context, volume int) error {
	if volume < 0 || volume > 1000 {
		return ErrInvalidVolume
	}
	if err := p.update(ctx, ports.PlayerUpdate{Volume: &volume}, false); err != nil {
		return fmt.Errorf("failed to set volume: %w", err)
	}

	p.mu.Lock()
	p.volume = volume
	p.mu.Unlock()
	return nil
}

// SetRepeatMode sets the repeat mode of the queue.
func (p *Player) SetRepeatMode(ctx context.Context, mode domain.LoopMode) error {
	if p.IsDestroyed() {
		return ErrPlayerDestroyed
	}
	return p.queue.SetLoopMode(ctx, mode)
}

// SetFilters replaces the filter set. Sections the node does not support are
// dropped before sending. When several calls overlap only the newest one is
// sent.
func (p *Player) SetFilters(ctx context.Context, data domain.FilterData) error {
	if p.IsDestroyed() {
		return ErrPlayerDestroyed
	}

	gen := p.filterGen.Add(1)

	p.mu.Lock()
	p.filters = data
	p.mu.Unlock()

	p.sendMu.Lock()
	defer p.sendMu.Unlock()

	if p.filterGen.Load() != gen {
		return nil
	}

	node := p.Node()
	if node == nil {
		return ErrNoNode
	}
	projected := domain.ProjectFilters(data, nodeFilters(node))

	if err := p.send(ctx, ports.PlayerUpdate{Filters: &projected}, false); err != nil {
		return fmt.Errorf("failed to set filters: %w", err)
	}
	return nil
}

// Stop stops playback. The current entry is dropped and, when clearQueue is
// set, so are the upcoming ones. The queue is not advanced.
func (p *Player) Stop(ctx context.Context, clearQueue bool) error {
	if p.IsDestroyed() {
		return ErrPlayerDestroyed
	}

	if clearQueue {
		if _, err := p.queue.Clear(ctx); err != nil {
			slog.Warn("failed to persist queue", "guild", p.guildID, "error", err)
		}
	}

	if err := p.update(ctx, ports.PlayerUpdate{Track: &ports.PlayerUpdateTrack{}}, false); err != nil {
		return fmt.Errorf("failed to stop playback: %w", err)
	}

	if err := p.queue.SetCurrent(ctx, nil); err != nil {
		slog.Warn("failed to persist queue", "guild", p.guildID, "error", err)
	}

	p.mu.Lock()
	p.playing = false
	p.paused = false
	p.position = 0
	p.mu.Unlock()
	return nil
}

// Skip skips count tracks and plays the next one.
func (p *Player) Skip(ctx context.Context, count int) error {
	if p.IsDestroyed() {
		return ErrPlayerDestroyed
	}
	if count < 1 {
		count = 1
	}

	if p.queue.Len() == 0 && p.queue.LoopMode() != domain.LoopModeQueue {
		return ErrQueueEmpty
	}
	if count > 1 {
		if count-1 >= p.queue.Len() {
			return ErrInvalidPosition
		}
		if _, err := p.queue.Remove(ctx, 0, count-1); err != nil {
			return err
		}
	}

	last := p.queue.Current()
	next, err := p.nextPlayable(ctx)
	if err != nil {
		return err
	}
	if next == nil {
		p.finishQueue(ctx, last, nil)
		return ErrQueueEmpty
	}
	return p.playEntry(ctx, next, PlayOptions{})
}

// ChangeNode moves the player to another node, carrying over voice, track,
// position, volume and filters.
func (p *Player) ChangeNode(ctx context.Context, nodeID string) error {
	if p.IsDestroyed() {
		return ErrPlayerDestroyed
	}

	node, err := p.manager.nodes.UsableNode(nodeID)
	if err != nil {
		return fmt.Errorf("failed to change node: %w", err)
	}

	p.sendMu.Lock()
	defer p.sendMu.Unlock()

	p.mu.Lock()
	old := p.node
	if old != nil && old.ID() == node.ID() {
		p.mu.Unlock()
		return nil
	}
	voice := p.voice
	playing := p.playing
	paused := p.paused
	volume := p.volume
	filters := p.filters
	p.freezePositionLocked()
	position := p.position
	p.node = node
	p.mu.Unlock()

	if old != nil {
		if err := old.DestroyPlayer(ctx, p.guildID); err != nil {
			slog.Warn("failed to destroy player on previous node",
				"guild", p.guildID, "node", old.ID(), "error", err)
		}
	}

	projected := domain.ProjectFilters(filters, nodeFilters(node))
	update := ports.PlayerUpdate{
		Volume:  &volume,
		Paused:  &paused,
		Filters: &projected,
	}
	if voice.IsComplete() {
		update.Voice = &voice
	}
	if current := p.queue.Current(); playing && current != nil && current.IsResolved() {
		encoded := current.Encoded()
		ms := position.Milliseconds()
		update.Track = &ports.PlayerUpdateTrack{Encoded: &encoded}
		update.Position = &ms
	}

	if err := p.send(ctx, update, false); err != nil {
		return fmt.Errorf("failed to change node: %w", err)
	}

	p.mu.Lock()
	p.positionAt = time.Now()
	p.mu.Unlock()
	return nil
}

// Search validates input against the link policy and the node's enabled
// sources and loads it on the player's node.
func (p *Player) Search(ctx context.Context, input string) (*domain.TrackList, error) {
	node := p.Node()
	if node == nil {
		return nil, ErrNoNode
	}
	return p.manager.search(ctx, node, input)
}

// Destroy tears the player down. It is idempotent and always completes:
// failures of the node or the gateway are logged, not returned.
func (p *Player) Destroy(ctx context.Context, reason domain.DestroyReason) error {
	p.mu.Lock()
	if p.state == domain.StateDestroying {
		p.mu.Unlock()
		return nil
	}
	p.state = domain.StateDestroying
	p.stopEmptyTimerLocked()
	node := p.node
	p.voice = ports.VoiceState{}
	p.voiceChannelID = 0
	p.playing = false
	p.mu.Unlock()

	p.cancel()

	if err := p.manager.shards.SendToShard(ctx, ports.ShardPayload{GuildID: p.guildID}); err != nil {
		slog.Warn("failed to leave voice channel", "guild", p.guildID, "error", err)
	}

	if node != nil {
		if err := node.DestroyPlayer(ctx, p.guildID); err != nil {
			slog.Warn("failed to destroy node player",
				"guild", p.guildID, "node", node.ID(), "error", err)
		}
	}

	p.queue.Close()
	if !reason.KeepsQueue() {
		if err := p.queue.Destroy(ctx); err != nil {
			slog.Warn("failed to delete stored queue", "guild", p.guildID, "error", err)
		}
	}

	p.manager.removePlayer(p)

	slog.Info("player destroyed", "guild", p.guildID, "reason", reason)
	p.publish(domain.PlayerDestroyEvent{GuildID: p.guildID, Reason: reason})
	return nil
}

// nextPlayable advances the queue until it yields a playable entry.
// Entries that fail to resolve are reported and skipped when
// AutoSkipOnResolveError is set. Returns nil, nil when the queue is exhausted.
func (p *Player) nextPlayable(ctx context.Context) (*domain.QueueEntry, error) {
	for {
		next, err := p.queue.Advance(ctx, p.resolve)
		if p.IsDestroyed() {
			return nil, ErrPlayerDestroyed
		}
		if err == nil {
			return next, nil
		}

		slog.Warn("failed to resolve track",
			"guild", p.guildID, "title", next.Info().Title, "error", err)
		p.publish(domain.TrackErrorEvent{GuildID: p.guildID, TextChannelID: p.TextChannelID(), Entry: next, Err: err})

		if !p.manager.options.AutoSkipOnResolveError {
			return nil, err
		}
	}
}

// resolve is cancelled when the player is destroyed.
func (p *Player) resolve(ctx context.Context, entry *domain.QueueEntry) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(p.ctx, cancel)
	defer stop()

	err := p.manager.resolver.Resolve(ctx, p.Node(), entry)
	if p.IsDestroyed() {
		return ErrPlayerDestroyed
	}
	return err
}

// update sends a player update to the node.
func (p *Player) update(ctx context.Context, update ports.PlayerUpdate, noReplace bool) error {
	p.sendMu.Lock()
	defer p.sendMu.Unlock()
	return p.send(ctx, update, noReplace)
}

// send must be called with sendMu held. The request is cancelled when the
// player is destroyed, and results arriving after that are discarded.
func (p *Player) send(ctx context.Context, update ports.PlayerUpdate, noReplace bool) error {
	if p.IsDestroyed() {
		return ErrPlayerDestroyed
	}
	node := p.Node()
	if node == nil {
		return ErrNoNode
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(p.ctx, cancel)
	defer stop()

	err := node.UpdatePlayer(ctx, p.guildID, update, noReplace)
	if p.IsDestroyed() {
		return ErrPlayerDestroyed
	}
	return err
}

func (p *Player) checkPlaying() error {
	if p.IsDestroyed() {
		return ErrPlayerDestroyed
	}
	if !p.IsPlaying() || p.queue.Current() == nil {
		return ErrNotPlaying
	}
	return nil
}

func (p *Player) freezePositionLocked() {
	if p.playing && !p.paused && !p.positionAt.IsZero() {
		p.position += time.Since(p.positionAt)
	}
	p.positionAt = time.Now()
}

func (p *Player) stopEmptyTimerLocked() {
	if p.emptyTimer != nil {
		p.emptyTimer.Stop()
		p.emptyTimer = nil
	}
}

func (p *Player) publish(event domain.Event) {
	if err := p.manager.publisher.Publish(event); err != nil {
		slog.Warn("failed to publish event",
			"guild", p.guildID, "event", event.Kind(), "error", err)
	}
}

func nodeFilters(node ports.Node) []string {
	if info := node.Info(); info != nil {
		return info.Filters
	}
	return nil
}
