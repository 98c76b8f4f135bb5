package ports

import (
	"context"

	"github.com/disgoorg/snowflake/v2"
)

// ShardPayload is a voice state update (gateway op 4) the bot sends for a guild.
// A nil ChannelID leaves the voice channel.
type ShardPayload struct {
	GuildID   snowflake.ID
	ChannelID *snowflake.ID
	SelfMute  bool
	SelfDeaf  bool
}

// ShardSender delivers voice state updates to the gateway shard of a guild.
type ShardSender interface {
	SendToShard(ctx context.Context, payload ShardPayload) error
}

// VoiceServerUpdate carries the voice server credentials sent by the gateway.
type VoiceServerUpdate struct {
	GuildID  snowflake.ID
	Token    string
	Endpoint string
}

// VoiceStateUpdate is a voice state change of a guild member.
// A nil ChannelID means the member left voice.
type VoiceStateUpdate struct {
	GuildID   snowflake.ID
	UserID    snowflake.ID
	ChannelID *snowflake.ID
	SessionID string
}

// ChannelDelete reports a deleted guild channel.
type ChannelDelete struct {
	GuildID   snowflake.ID
	ChannelID snowflake.ID
}

// VoiceStateProvider defines the interface for getting Discord voice state information.
type VoiceStateProvider interface {
	// GetUserVoiceChannel returns the voice channel ID the user is currently in.
	// Returns nil if the user is not in a voice channel.
	GetUserVoiceChannel(guildID, userID snowflake.ID) (*snowflake.ID, error)
}
