package bot

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the bot configuration loaded from environment variables.
type Config struct {
	DiscordToken string `env:"DISCORD_TOKEN,notEmpty"`
	// GuildID registers commands in a single guild, where updates apply
	// immediately. Empty registers them globally.
	GuildID string `env:"DISCORD_GUILD_ID"`
	// DeferAfter is how long a command may take before its response is deferred.
	DeferAfter time.Duration `env:"DISCORD_DEFER_AFTER" envDefault:"2s"`
}

// LoadConfig loads configuration from environment variables.
// Returns an error if required fields are missing.
func LoadConfig() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
