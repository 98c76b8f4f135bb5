package domain

import "github.com/disgoorg/snowflake/v2"

// NowPlayingMessage is the "Now Playing" message posted for a guild.
// The channel is kept with the message id because the text channel of the
// player may change while the message is still up.
type NowPlayingMessage struct {
	GuildID   snowflake.ID
	ChannelID snowflake.ID
	MessageID snowflake.ID
}

// NowPlayingRepository tracks the live "Now Playing" message of each guild.
type NowPlayingRepository interface {
	// Swap stores msg for its guild and returns the message it replaced.
	Swap(msg NowPlayingMessage) (NowPlayingMessage, bool)

	// Take removes and returns the message of guildID.
	Take(guildID snowflake.ID) (NowPlayingMessage, bool)
}
