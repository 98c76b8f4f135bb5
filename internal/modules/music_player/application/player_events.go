package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/sgrlink/internal/modules/music_player/application/ports"
	"github.com/sglre6355/sgrlink/internal/modules/music_player/domain"
)

// run consumes node frames for this player until it is destroyed.
func (p *Player) run() {
	for {
		select {
		case <-p.ctx.Done():
			return
		case <-p.wake:
		}

		for {
			payload, ok := p.next()
			if !ok {
				break
			}
			p.handlePayload(payload)
			if p.ctx.Err() != nil {
				return
			}
		}
	}
}

func (p *Player) next() (domain.PlayerPayload, bool) {
	p.inboxMu.Lock()
	defer p.inboxMu.Unlock()
	if len(p.inbox) == 0 {
		return nil, false
	}
	payload := p.inbox[0]
	p.inbox[0] = nil
	p.inbox = p.inbox[1:]
	return payload, true
}

// enqueue hands a node frame to the player's event loop without blocking the
// node's reader. A position report replaces a queued one it directly follows,
// and is dropped while the inbox is over its soft limit.
func (p *Player) enqueue(payload domain.PlayerPayload) bool {
	if p.ctx.Err() != nil {
		return false
	}

	p.inboxMu.Lock()
	state, isState := payload.(domain.PlayerStatePayload)
	n := len(p.inbox)
	switch {
	case isState && n > 0 && isPlayerState(p.inbox[n-1]):
		p.inbox[n-1] = state
	case isState && n >= playerInboxSoftLimit:
		p.inboxMu.Unlock()
		slog.Debug("dropping player update, inbox full", "guild", p.guildID)
		return true
	default:
		p.inbox = append(p.inbox, payload)
	}
	p.inboxMu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
	return true
}

func isPlayerState(payload domain.PlayerPayload) bool {
	_, ok := payload.(domain.PlayerStatePayload)
	return ok
}

func (p *Player) handlePayload(payload domain.PlayerPayload) {
	switch e := payload.(type) {
	case domain.TrackStartPayload:
		p.onTrackStart(e)
	case domain.TrackEndPayload:
		p.onTrackEnd(e)
	case domain.TrackExceptionPayload:
		slog.Error("track exception",
			"guild", p.guildID,
			"track", e.Track.Info.Title,
			"message", e.Exception.Message,
			"severity", e.Exception.Severity,
			"cause", e.Exception.Cause,
		)
		p.publish(domain.TrackErrorEvent{GuildID: p.guildID, TextChannelID: p.TextChannelID(), Entry: p.queue.Current(), Payload: &e})
	case domain.TrackStuckPayload:
		p.onTrackStuck(e)
	case domain.WebSocketClosedPayload:
		slog.Warn("voice websocket closed",
			"guild", p.guildID, "code", e.Code, "reason", e.Reason, "byRemote", e.ByRemote)
		p.publish(domain.PlayerSocketClosedEvent{GuildID: p.guildID, Payload: e})
	case domain.PlayerStatePayload:
		p.mu.Lock()
		p.position = e.Position
		p.positionAt = time.Now()
		p.ping = e.Ping
		p.mu.Unlock()
		p.publish(domain.PlayerUpdateEvent{GuildID: p.guildID, Payload: e})
	case domain.PluginEventPayload:
		p.publish(domain.PluginEvent{GuildID: p.guildID, Payload: e})
	default:
		slog.Debug("ignoring unknown player payload", "guild", p.guildID, "type", fmt.Sprintf("%T", payload))
	}
}

func (p *Player) onTrackStart(e domain.TrackStartPayload) {
	p.mu.Lock()
	p.playing = true
	p.position = 0
	p.positionAt = time.Now()
	p.stopEmptyTimerLocked()
	repeated := p.lastStarted == e.Track.Encoded
	p.lastStarted = e.Track.Encoded
	textChannelID := p.textChannelID
	p.mu.Unlock()

	if repeated && p.manager.options.EmitNewSongsOnly {
		return
	}

	p.publish(domain.TrackStartEvent{
		GuildID:       p.guildID,
		TextChannelID: textChannelID,
		Entry:         p.queue.Current(),
		Payload:       e,
	})
}

func (p *Player) onTrackEnd(e domain.TrackEndPayload) {
	entry := p.queue.Current()
	p.publish(domain.TrackEndEvent{GuildID: p.guildID, Entry: entry, Payload: e})

	// A replaced track is followed by the start of its replacement.
	if e.Reason == domain.TrackEndReplaced {
		return
	}

	p.mu.Lock()
	p.playing = false
	p.paused = false
	p.position = 0
	p.mu.Unlock()

	if !e.Reason.ShouldAdvanceQueue() {
		return
	}

	if e.Reason == domain.TrackEndFinished && entry != nil && p.queue.LoopMode() == domain.LoopModeTrack {
		if err := p.playEntry(p.ctx, entry, PlayOptions{}); err != nil && !errors.Is(err, ErrPlayerDestroyed) {
			slog.Error("failed to repeat track", "guild", p.guildID, "error", err)
		}
		return
	}

	if !p.manager.options.AutoSkip {
		return
	}
	p.advanceAndPlay(e)
}

func (p *Player) onTrackStuck(e domain.TrackStuckPayload) {
	slog.Warn("track stuck", "guild", p.guildID, "track", e.Track.Info.Title, "threshold", e.Threshold)
	p.publish(domain.TrackStuckEvent{GuildID: p.guildID, Entry: p.queue.Current(), Payload: e})

	if p.manager.options.AutoSkip {
		p.advanceAndPlay(e)
	}
}

// advanceAndPlay plays the next playable entry, or ends the queue.
func (p *Player) advanceAndPlay(payload domain.PlayerPayload) {
	last := p.queue.Current()

	next, err := p.nextPlayable(p.ctx)
	if errors.Is(err, ErrPlayerDestroyed) {
		return
	}
	if err != nil || next == nil {
		p.finishQueue(p.ctx, last, payload)
		return
	}

	if err := p.playEntry(p.ctx, next, PlayOptions{}); err != nil && !errors.Is(err, ErrPlayerDestroyed) {
		slog.Error("failed to play next track", "guild", p.guildID, "error", err)
		p.publish(domain.TrackErrorEvent{GuildID: p.guildID, TextChannelID: p.TextChannelID(), Entry: next, Err: err})
	}
}

// finishQueue runs when nothing is left to play. The autoplay hook gets a
// chance to add tracks before the queue end is announced.
func (p *Player) finishQueue(ctx context.Context, last *domain.QueueEntry, payload domain.PlayerPayload) {
	p.mu.Lock()
	p.playing = false
	p.paused = false
	textChannelID := p.textChannelID
	p.mu.Unlock()

	options := p.manager.options.OnEmptyQueue
	if options.AutoPlay != nil && last != nil {
		if err := options.AutoPlay(ctx, p, last); err != nil {
			slog.Warn("autoplay failed", "guild", p.guildID, "error", err)
		} else if p.queue.Len() > 0 {
			next, err := p.nextPlayable(ctx)
			if err == nil && next != nil {
				if err := p.playEntry(ctx, next, PlayOptions{}); err == nil {
					return
				}
			}
		}
	}

	if p.IsDestroyed() {
		return
	}

	p.publish(domain.QueueEndEvent{
		GuildID:       p.guildID,
		TextChannelID: textChannelID,
		LastTrack:     last,
		Payload:       payload,
	})

	if options.DestroyAfter != nil {
		p.scheduleEmptyDestroy(*options.DestroyAfter)
	}
}

func (p *Player) scheduleEmptyDestroy(after time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == domain.StateDestroying {
		return
	}
	p.stopEmptyTimerLocked()
	p.emptyTimer = time.AfterFunc(after, func() {
		if p.IsPlaying() || p.queue.Current() != nil {
			return
		}
		_ = p.Destroy(context.Background(), domain.DestroyReasonQueueEmpty)
	})
}

// handleVoiceServer records the voice server credentials and forwards them
// with the known session id. Without a session id they are held until the
// bot's voice state arrives.
func (p *Player) handleVoiceServer(ctx context.Context, update ports.VoiceServerUpdate) error {
	p.mu.Lock()
	if p.state == domain.StateDestroying {
		p.mu.Unlock()
		return nil
	}
	p.voice.Token = update.Token
	p.voice.Endpoint = update.Endpoint
	p.pendingVoiceServer = !p.voice.IsComplete()
	voice := p.voice
	p.mu.Unlock()

	if !voice.IsComplete() {
		return nil
	}
	return p.sendVoice(ctx, voice)
}

// handleVoiceJoin records the session and channel of the bot's voice state,
// and flushes server credentials that arrived before it.
func (p *Player) handleVoiceJoin(ctx context.Context, channelID snowflake.ID, sessionID string) error {
	p.mu.Lock()
	if p.state == domain.StateDestroying {
		p.mu.Unlock()
		return nil
	}
	oldChannelID := p.voiceChannelID
	p.voiceChannelID = channelID
	p.voice.SessionID = sessionID
	flush := p.pendingVoiceServer && p.voice.IsComplete()
	if flush {
		p.pendingVoiceServer = false
	}
	voice := p.voice
	p.mu.Unlock()

	if oldChannelID != 0 && oldChannelID != channelID {
		p.publish(domain.PlayerMoveEvent{
			GuildID:      p.guildID,
			OldChannelID: oldChannelID,
			NewChannelID: channelID,
		})
	}

	if !flush {
		return nil
	}
	return p.sendVoice(ctx, voice)
}

func (p *Player) sendVoice(ctx context.Context, voice ports.VoiceState) error {
	if err := p.update(ctx, ports.PlayerUpdate{Voice: &voice}, false); err != nil {
		return fmt.Errorf("failed to send voice credentials: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == domain.StateDestroying {
		return nil
	}
	p.state = domain.StateConnected
	if p.voiceReady != nil {
		close(p.voiceReady)
		p.voiceReady = nil
	}
	return nil
}

// handleVoiceLeave reacts to the bot being disconnected from voice when
// the player is not destroyed for it. Playback is paused; with autoReconnect
// the player rejoins its channel and resumes, and is destroyed if that fails.
func (p *Player) handleVoiceLeave(ctx context.Context, autoReconnect bool) error {
	p.mu.Lock()
	if p.state == domain.StateDestroying {
		p.mu.Unlock()
		return nil
	}
	wasPlaying := p.playing && !p.paused
	p.state = domain.StateDisconnected
	// a rejoin gets a new session; credentials wait for it
	p.voice.SessionID = ""
	p.pendingVoiceServer = false
	p.mu.Unlock()

	if wasPlaying {
		if err := p.Pause(ctx); err != nil {
			slog.Warn("failed to pause after voice disconnect", "guild", p.guildID, "error", err)
		}
	}

	if !autoReconnect {
		p.mu.Lock()
		p.voiceChannelID = 0
		p.voice = ports.VoiceState{}
		p.mu.Unlock()
		return nil
	}

	if err := p.Connect(ctx); err != nil {
		if errors.Is(err, ErrPlayerDestroyed) {
			return err
		}
		slog.Warn("failed to reconnect to voice", "guild", p.guildID, "error", err)
		_ = p.Destroy(context.Background(), domain.DestroyReasonPlayerReconnectFail)
		return fmt.Errorf("failed to reconnect to voice: %w", err)
	}

	if wasPlaying {
		return p.Resume(ctx)
	}
	return nil
}
