package infrastructure

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/sgrlink/internal/modules/music_player/application/ports"
	"github.com/sglre6355/sgrlink/internal/modules/music_player/domain"
)

// NotificationEventHandler posts player activity to the guild's text channel.
// It keeps one "Now Playing" message per guild and removes it when the
// track changes, the queue ends or the player is destroyed.
type NotificationEventHandler struct {
	notifier     ports.NotificationSender
	messages     domain.NowPlayingRepository
	subscriber   ports.EventSubscriber
	userInfoProv ports.UserInfoProvider

	subscriptions []ports.Subscription
}

// NewNotificationEventHandler creates a new NotificationEventHandler.
func NewNotificationEventHandler(
	notifier ports.NotificationSender,
	messages domain.NowPlayingRepository,
	subscriber ports.EventSubscriber,
	userInfoProv ports.UserInfoProvider,
) *NotificationEventHandler {
	return &NotificationEventHandler{
		notifier:     notifier,
		messages:     messages,
		subscriber:   subscriber,
		userInfoProv: userInfoProv,
	}
}

// Start registers event handlers with the subscriber.
func (h *NotificationEventHandler) Start() {
	h.subscriptions = append(h.subscriptions,
		h.subscriber.Subscribe(domain.EventTrackStart, func(ctx context.Context, e domain.Event) {
			h.handleTrackStart(ctx, e.(domain.TrackStartEvent))
		}),
		h.subscriber.Subscribe(domain.EventTrackError, func(ctx context.Context, e domain.Event) {
			h.handleTrackError(ctx, e.(domain.TrackErrorEvent))
		}),
		h.subscriber.Subscribe(domain.EventQueueEnd, func(ctx context.Context, e domain.Event) {
			h.handleQueueEnd(ctx, e.(domain.QueueEndEvent))
		}),
		h.subscriber.Subscribe(domain.EventPlayerDestroy, func(ctx context.Context, e domain.Event) {
			h.handlePlayerDestroy(ctx, e.(domain.PlayerDestroyEvent))
		}),
	)

	slog.Debug("notification event handler started")
}

// Stop removes the handlers registered by Start.
func (h *NotificationEventHandler) Stop() {
	for _, sub := range h.subscriptions {
		h.subscriber.Unsubscribe(sub)
	}
	h.subscriptions = nil
}

func (h *NotificationEventHandler) handleTrackStart(_ context.Context, event domain.TrackStartEvent) {
	if event.TextChannelID == 0 {
		return
	}

	info := event.Payload.Track.Info
	var requesterID snowflake.ID
	if event.Entry != nil {
		info = event.Entry.Info()
		requesterID = event.Entry.RequesterID
	}

	nowPlaying := &ports.NowPlayingInfo{
		Identifier:  info.Identifier,
		Title:       info.Title,
		Artist:      info.Author,
		Duration:    domain.FormatDuration(info.Duration),
		URI:         info.URI,
		ArtworkURL:  info.ArtworkURL,
		SourceName:  info.SourceName,
		IsStream:    info.IsStream,
		RequesterID: requesterID,
	}
	if event.Entry != nil {
		nowPlaying.EnqueuedAt = event.Entry.EnqueuedAt
	}

	// Fetch requester display info via port
	if h.userInfoProv != nil && requesterID != 0 {
		userInfo, err := h.userInfoProv.GetUserInfo(event.GuildID, requesterID)
		if err != nil {
			slog.Warn("failed to fetch requester info for now playing",
				"guild", event.GuildID,
				"requester", requesterID,
				"error", err,
			)
			nowPlaying.RequesterName = "Unknown"
		} else {
			nowPlaying.RequesterName = userInfo.DisplayName
			nowPlaying.RequesterAvatarURL = userInfo.AvatarURL
		}
	}

	slog.Debug("sending now playing notification",
		"guild", event.GuildID,
		"track", info.Title,
	)

	messageID, err := h.notifier.SendNowPlaying(event.TextChannelID, nowPlaying)
	if err != nil {
		slog.Error("failed to send now playing notification",
			"guild", event.GuildID,
			"error", err,
		)
		h.deleteNowPlaying(event.GuildID)
		return
	}

	old, ok := h.messages.Swap(domain.NowPlayingMessage{
		GuildID:   event.GuildID,
		ChannelID: event.TextChannelID,
		MessageID: messageID,
	})
	if ok {
		h.deleteMessage(old)
	}
}

func (h *NotificationEventHandler) handleTrackError(_ context.Context, event domain.TrackErrorEvent) {
	if event.TextChannelID == 0 {
		return
	}

	title := "the track"
	if event.Entry != nil && event.Entry.Info().Title != "" {
		title = fmt.Sprintf("**%s**", event.Entry.Info().Title)
	}

	var message string
	switch {
	case event.Payload != nil:
		message = fmt.Sprintf("Failed to play %s: %s", title, event.Payload.Exception.Message)
	case event.Err != nil:
		message = fmt.Sprintf("Failed to load %s.", title)
	default:
		return
	}

	if err := h.notifier.SendError(event.TextChannelID, message); err != nil {
		slog.Warn("failed to send track error notification",
			"guild", event.GuildID,
			"error", err,
		)
	}
}

func (h *NotificationEventHandler) handleQueueEnd(_ context.Context, event domain.QueueEndEvent) {
	h.deleteNowPlaying(event.GuildID)

	if event.TextChannelID == 0 {
		return
	}
	if err := h.notifier.SendQueueEnd(event.TextChannelID); err != nil {
		slog.Warn("failed to send queue end notification",
			"guild", event.GuildID,
			"error", err,
		)
	}
}

func (h *NotificationEventHandler) handlePlayerDestroy(_ context.Context, event domain.PlayerDestroyEvent) {
	h.deleteNowPlaying(event.GuildID)
}

func (h *NotificationEventHandler) deleteNowPlaying(guildID snowflake.ID) {
	if msg, ok := h.messages.Take(guildID); ok {
		h.deleteMessage(msg)
	}
}

func (h *NotificationEventHandler) deleteMessage(msg domain.NowPlayingMessage) {
	slog.Debug("deleting now playing message",
		"guild", msg.GuildID,
		"message_id", msg.MessageID,
	)

	if err := h.notifier.DeleteMessage(msg.ChannelID, msg.MessageID); err != nil {
		slog.Warn("failed to delete now playing message",
			"guild", msg.GuildID,
			"error", err,
		)
	}
}
