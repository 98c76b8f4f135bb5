package infrastructure

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/sgrlink/internal/modules/music_player/application/ports"
)

var _ ports.ShardSender = (*DiscordVoiceGateway)(nil)

// DiscordVoiceGateway sends voice state updates through the discordgo session
// and converts the gateway's voice events for the player manager.
type DiscordVoiceGateway struct {
	session *discordgo.Session
}

// NewDiscordVoiceGateway creates a new DiscordVoiceGateway.
func NewDiscordVoiceGateway(session *discordgo.Session) *DiscordVoiceGateway {
	return &DiscordVoiceGateway{session: session}
}

// SendToShard sends an op 4 voice state update for the payload's guild.
// discordgo picks the shard of the session.
func (g *DiscordVoiceGateway) SendToShard(ctx context.Context, payload ports.ShardPayload) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	channelID := ""
	if payload.ChannelID != nil {
		channelID = payload.ChannelID.String()
	}

	slog.Debug("sending voice state update",
		"guild", payload.GuildID,
		"channel", channelID,
		"self_mute", payload.SelfMute,
		"self_deaf", payload.SelfDeaf,
	)

	err := g.session.ChannelVoiceJoinManual(
		payload.GuildID.String(),
		channelID,
		payload.SelfMute,
		payload.SelfDeaf,
	)
	if err != nil {
		if channelID == "" {
			return fmt.Errorf("failed to leave voice channel: %w", err)
		}
		return fmt.Errorf("failed to join voice channel: %w", err)
	}
	return nil
}

// VoiceServerUpdateFromDiscord converts a gateway VOICE_SERVER_UPDATE.
func VoiceServerUpdateFromDiscord(event *discordgo.VoiceServerUpdate) (ports.VoiceServerUpdate, error) {
	guildID, err := snowflake.Parse(event.GuildID)
	if err != nil {
		return ports.VoiceServerUpdate{}, fmt.Errorf("failed to parse guild ID: %w", err)
	}
	return ports.VoiceServerUpdate{
		GuildID:  guildID,
		Token:    event.Token,
		Endpoint: event.Endpoint,
	}, nil
}

// VoiceStateUpdateFromDiscord converts a gateway VOICE_STATE_UPDATE.
func VoiceStateUpdateFromDiscord(event *discordgo.VoiceStateUpdate) (ports.VoiceStateUpdate, error) {
	if event.VoiceState == nil {
		return ports.VoiceStateUpdate{}, fmt.Errorf("voice state update without state")
	}

	guildID, err := snowflake.Parse(event.GuildID)
	if err != nil {
		return ports.VoiceStateUpdate{}, fmt.Errorf("failed to parse guild ID: %w", err)
	}
	userID, err := snowflake.Parse(event.UserID)
	if err != nil {
		return ports.VoiceStateUpdate{}, fmt.Errorf("failed to parse user ID: %w", err)
	}

	update := ports.VoiceStateUpdate{
		GuildID:   guildID,
		UserID:    userID,
		SessionID: event.SessionID,
	}
	if event.ChannelID != "" {
		channelID, err := snowflake.Parse(event.ChannelID)
		if err != nil {
			return ports.VoiceStateUpdate{}, fmt.Errorf("failed to parse channel ID: %w", err)
		}
		update.ChannelID = &channelID
	}
	return update, nil
}

// ChannelDeleteFromDiscord converts a gateway CHANNEL_DELETE. Channels outside
// guilds report ok=false.
func ChannelDeleteFromDiscord(event *discordgo.ChannelDelete) (ports.ChannelDelete, bool, error) {
	if event.Channel == nil || event.GuildID == "" {
		return ports.ChannelDelete{}, false, nil
	}

	guildID, err := snowflake.Parse(event.GuildID)
	if err != nil {
		return ports.ChannelDelete{}, false, fmt.Errorf("failed to parse guild ID: %w", err)
	}
	channelID, err := snowflake.Parse(event.ID)
	if err != nil {
		return ports.ChannelDelete{}, false, fmt.Errorf("failed to parse channel ID: %w", err)
	}
	return ports.ChannelDelete{GuildID: guildID, ChannelID: channelID}, true, nil
}
