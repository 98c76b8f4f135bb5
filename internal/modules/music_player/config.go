package music_player

import (
	"errors"
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/sgrlink/internal/modules/music_player/application"
	"github.com/sglre6355/sgrlink/internal/modules/music_player/domain"
	"github.com/sglre6355/sgrlink/internal/modules/music_player/infrastructure"
)

// ErrNoNodes is returned when neither LAVALINK_NODES nor LAVALINK_NODES_FILE
// names a node.
var ErrNoNodes = errors.New("no lavalink nodes configured")

// Config holds the music player module configuration.
type Config struct {
	// Nodes are connection URLs: lavalink://<id>:<authorization>@<host>:<port>
	Nodes      []infrastructure.NodeURL `env:"LAVALINK_NODES"`
	NodesFile  string                   `env:"LAVALINK_NODES_FILE"`
	ClientName string                   `env:"LAVALINK_CLIENT_NAME" envDefault:"sgrlink"`

	// Applied to nodes that leave them unset.
	RetryAmount       int           `env:"LAVALINK_RETRY_AMOUNT"        envDefault:"5"`
	RetryDelay        time.Duration `env:"LAVALINK_RETRY_DELAY"         envDefault:"10s"`
	RequestTimeout    time.Duration `env:"LAVALINK_REQUEST_TIMEOUT"     envDefault:"10s"`
	ResumeTimeout     time.Duration `env:"LAVALINK_RESUME_TIMEOUT"      envDefault:"60s"`
	RequestsPerSecond float64       `env:"LAVALINK_REQUESTS_PER_SECOND"`
	// ReviveInterval is how often nodes that gave up reconnecting are
	// retried. Zero disables it.
	ReviveInterval time.Duration `env:"LAVALINK_REVIVE_INTERVAL" envDefault:"5m"`

	DefaultSearchPlatform     string        `env:"PLAYER_DEFAULT_SEARCH_PLATFORM"      envDefault:"ytsearch"`
	OnDisconnectAutoReconnect bool          `env:"PLAYER_ON_DISCONNECT_AUTO_RECONNECT"`
	OnDisconnectDestroy       bool          `env:"PLAYER_ON_DISCONNECT_DESTROY"        envDefault:"true"`
	AutoSkip                  bool          `env:"PLAYER_AUTO_SKIP"                    envDefault:"true"`
	AutoSkipOnResolveError    bool          `env:"PLAYER_AUTO_SKIP_ON_RESOLVE_ERROR"   envDefault:"true"`
	EmitNewSongsOnly          bool          `env:"PLAYER_EMIT_NEW_SONGS_ONLY"`
	UseUnresolvedData         bool          `env:"PLAYER_USE_UNRESOLVED_DATA"`
	VoiceConnectTimeout       time.Duration `env:"PLAYER_VOICE_CONNECT_TIMEOUT"        envDefault:"10s"`
	// EmptyQueueDestroyAfter destroys idle players. Zero keeps them.
	EmptyQueueDestroyAfter time.Duration `env:"PLAYER_EMPTY_QUEUE_DESTROY_AFTER"`

	MaxPreviousTracks int `env:"QUEUE_MAX_PREVIOUS_TRACKS" envDefault:"25"`
	// StorePath is a SQLite database file. Empty keeps queues in memory.
	StorePath string `env:"QUEUE_STORE_PATH"`

	LinksAllowed  bool     `env:"SEARCH_LINKS_ALLOWED"   envDefault:"true"`
	LinkWhitelist []string `env:"SEARCH_LINK_WHITELIST"`
	LinkBlacklist []string `env:"SEARCH_LINK_BLACKLIST"`
}

// LoadConfig parses the module configuration from the environment.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if len(cfg.Nodes) == 0 && cfg.NodesFile == "" {
		return nil, ErrNoNodes
	}
	if _, err := domain.ParseSearchPlatform(cfg.DefaultSearchPlatform); err != nil {
		return nil, err
	}
	return cfg, nil
}

// nodesFile is the layout of LAVALINK_NODES_FILE.
type nodesFile struct {
	Nodes []infrastructure.NodeConfig `toml:"nodes"`
}

// NodeConfigs returns every configured node with module defaults applied.
func (c *Config) NodeConfigs() ([]infrastructure.NodeConfig, error) {
	configs := make([]infrastructure.NodeConfig, 0, len(c.Nodes))
	for _, u := range c.Nodes {
		configs = append(configs, u.NodeConfig)
	}

	if c.NodesFile != "" {
		var file nodesFile
		if _, err := toml.DecodeFile(c.NodesFile, &file); err != nil {
			return nil, fmt.Errorf("failed to read nodes file: %w", err)
		}
		configs = append(configs, file.Nodes...)
	}

	if len(configs) == 0 {
		return nil, ErrNoNodes
	}

	seen := make(map[string]struct{}, len(configs))
	for idx, cfg := range configs {
		cfg = c.applyNodeDefaults(cfg).WithDefaults()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[cfg.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate node id %q", infrastructure.ErrInvalidNodeConfig, cfg.ID)
		}
		seen[cfg.ID] = struct{}{}
		configs[idx] = cfg
	}
	return configs, nil
}

// applyNodeDefaults fills settings the node left unset. Connection URLs
// carry the package defaults already, so those are replaced too.
func (c *Config) applyNodeDefaults(cfg infrastructure.NodeConfig) infrastructure.NodeConfig {
	if cfg.RetryAmount == 0 || cfg.RetryAmount == infrastructure.DefaultRetryAmount {
		cfg.RetryAmount = c.RetryAmount
	}
	if cfg.RetryDelay == 0 || cfg.RetryDelay == infrastructure.DefaultRetryDelay {
		cfg.RetryDelay = c.RetryDelay
	}
	if cfg.RequestTimeout == 0 || cfg.RequestTimeout == infrastructure.DefaultRequestTimeout {
		cfg.RequestTimeout = c.RequestTimeout
	}
	if cfg.ResumeTimeout == 0 {
		cfg.ResumeTimeout = c.ResumeTimeout
	}
	if cfg.RequestsPerSecond == 0 {
		cfg.RequestsPerSecond = c.RequestsPerSecond
	}
	return cfg
}

// ManagerOptions builds the player manager options for the bot user.
func (c *Config) ManagerOptions(clientID snowflake.ID, store domain.QueueStore) (application.ManagerOptions, error) {
	platform, err := domain.ParseSearchPlatform(c.DefaultSearchPlatform)
	if err != nil {
		return application.ManagerOptions{}, err
	}

	options := application.DefaultManagerOptions(clientID)
	options.DefaultSearchPlatform = platform
	options.OnDisconnect = application.DisconnectOptions{
		AutoReconnect: c.OnDisconnectAutoReconnect,
		DestroyPlayer: c.OnDisconnectDestroy,
	}
	options.AutoSkip = c.AutoSkip
	options.AutoSkipOnResolveError = c.AutoSkipOnResolveError
	options.EmitNewSongsOnly = c.EmitNewSongsOnly
	options.UseUnresolvedData = c.UseUnresolvedData
	options.VoiceConnectTimeout = c.VoiceConnectTimeout
	options.MaxPreviousTracks = c.MaxPreviousTracks
	options.LinkPolicy = domain.LinkPolicy{
		LinksAllowed: c.LinksAllowed,
		Whitelist:    c.LinkWhitelist,
		Blacklist:    c.LinkBlacklist,
	}
	if c.EmptyQueueDestroyAfter > 0 {
		delay := c.EmptyQueueDestroyAfter
		options.OnEmptyQueue.DestroyAfter = &delay
	}
	options.QueueStore = store
	return options, nil
}
