package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/sgrlink/internal/modules/music_player/application/ports"
	"github.com/sglre6355/sgrlink/internal/modules/music_player/domain"
)

// AutoPlayFunc may add tracks to the queue of player when it runs empty.
type AutoPlayFunc func(ctx context.Context, player *Player, lastTrack *domain.QueueEntry) error

// DisconnectOptions controls what happens when the bot leaves voice
// without the player being destroyed.
type DisconnectOptions struct {
	// AutoReconnect rejoins the previous channel and resumes playback.
	AutoReconnect bool
	// DestroyPlayer destroys the player. It takes precedence over AutoReconnect.
	DestroyPlayer bool
}

// EmptyQueueOptions controls what happens when the queue runs out.
type EmptyQueueOptions struct {
	// DestroyAfter destroys the player after this delay. Nil keeps it forever.
	DestroyAfter *time.Duration
	AutoPlay     AutoPlayFunc
}

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	// ClientID is the bot's user id. Voice states of other users are ignored.
	ClientID              snowflake.ID
	DefaultSearchPlatform domain.SearchPlatform

	OnDisconnect DisconnectOptions
	OnEmptyQueue EmptyQueueOptions

	// AutoSkip plays the next track when one finishes, fails or gets stuck.
	AutoSkip bool
	// AutoSkipOnResolveError skips entries that cannot be resolved.
	AutoSkipOnResolveError bool
	// EmitNewSongsOnly suppresses start events for a track that just played.
	EmitNewSongsOnly bool
	// UseUnresolvedData keeps title, author and artwork of pending entries
	// after they are resolved.
	UseUnresolvedData bool

	MaxPreviousTracks   int
	LinkPolicy          domain.LinkPolicy
	VoiceConnectTimeout time.Duration

	QueueStore   domain.QueueStore
	QueueWatcher domain.QueueChangesWatcher
}

// DefaultManagerOptions returns the default options for the bot clientID.
// QueueStore still has to be set.
func DefaultManagerOptions(clientID snowflake.ID) ManagerOptions {
	return ManagerOptions{
		ClientID:              clientID,
		DefaultSearchPlatform: domain.SearchYouTube,
		OnDisconnect: DisconnectOptions{
			DestroyPlayer: true,
		},
		AutoSkip:               true,
		AutoSkipOnResolveError: true,
		MaxPreviousTracks:      domain.DefaultMaxPreviousTracks,
		LinkPolicy:             domain.LinkPolicy{LinksAllowed: true},
		VoiceConnectTimeout:    10 * time.Second,
	}
}

func (o ManagerOptions) validate() error {
	switch {
	case o.ClientID == 0:
		return fmt.Errorf("%w: client id is required", ErrInvalidOptions)
	case o.QueueStore == nil:
		return fmt.Errorf("%w: queue store is required", ErrInvalidOptions)
	case o.VoiceConnectTimeout <= 0:
		return fmt.Errorf("%w: voice connect timeout must be positive", ErrInvalidOptions)
	case o.OnEmptyQueue.DestroyAfter != nil && *o.OnEmptyQueue.DestroyAfter < 0:
		return fmt.Errorf("%w: destroy delay must not be negative", ErrInvalidOptions)
	}
	if o.DefaultSearchPlatform != "" {
		if _, err := domain.ParseSearchPlatform(string(o.DefaultSearchPlatform)); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidOptions, err)
		}
	}
	return nil
}

// Manager owns the players of all guilds and routes gateway and node
// events to them.
type Manager struct {
	options   ManagerOptions
	nodes     ports.NodeProvider
	shards    ports.ShardSender
	publisher ports.EventPublisher
	resolver  *TrackResolver

	mu      sync.RWMutex
	players map[snowflake.ID]*Player
}

var _ ports.PlayerEventSink = (*Manager)(nil)

// NewManager creates a Manager.
func NewManager(
	options ManagerOptions,
	nodes ports.NodeProvider,
	shards ports.ShardSender,
	publisher ports.EventPublisher,
) (*Manager, error) {
	if err := options.validate(); err != nil {
		return nil, err
	}
	if nodes == nil || shards == nil || publisher == nil {
		return nil, fmt.Errorf("%w: node provider, shard sender and publisher are required", ErrInvalidOptions)
	}
	if options.DefaultSearchPlatform == "" {
		options.DefaultSearchPlatform = domain.SearchYouTube
	}
	if options.MaxPreviousTracks < 0 {
		options.MaxPreviousTracks = domain.DefaultMaxPreviousTracks
	}

	return &Manager{
		options:   options,
		nodes:     nodes,
		shards:    shards,
		publisher: publisher,
		resolver:  NewTrackResolver(options.DefaultSearchPlatform, options.UseUnresolvedData),
		players:   make(map[snowflake.ID]*Player),
	}, nil
}

// Options returns the options the manager was created with.
func (m *Manager) Options() ManagerOptions {
	return m.options
}

// Resolver returns the resolver used for pending entries.
func (m *Manager) Resolver() *TrackResolver {
	return m.resolver
}

// CreatePlayer returns the player of opts.GuildID, creating it if needed.
// A new player restores its queue from the store and is not yet connected.
func (m *Manager) CreatePlayer(ctx context.Context, opts PlayerOptions) (*Player, error) {
	if opts.GuildID == 0 {
		return nil, fmt.Errorf("%w: guild id is required", ErrInvalidOptions)
	}
	if opts.Volume < 0 || opts.Volume > 1000 {
		return nil, ErrInvalidVolume
	}

	if player := m.Player(opts.GuildID); player != nil {
		return player, nil
	}

	// the store is read without holding the player table
	queue := NewQueue(opts.GuildID, m.options.MaxPreviousTracks, m.options.QueueStore, m.options.QueueWatcher)
	if err := queue.Restore(ctx); err != nil {
		slog.Warn("failed to restore queue", "guild", opts.GuildID, "error", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if player, ok := m.players[opts.GuildID]; ok {
		return player, nil
	}

	var (
		node ports.Node
		err  error
	)
	if opts.NodeID != "" {
		node, err = m.nodes.UsableNode(opts.NodeID)
	} else {
		node, err = m.nodes.LeastUsedNode(opts.Region)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select node: %w", err)
	}

	player := newPlayer(m, node, queue, opts)
	m.players[opts.GuildID] = player
	go player.run()

	slog.Info("player created", "guild", opts.GuildID, "node", node.ID())
	player.publish(domain.PlayerCreateEvent{GuildID: opts.GuildID, NodeID: node.ID()})
	return player, nil
}

// Player returns the player of guildID, or nil.
func (m *Manager) Player(guildID snowflake.ID) *Player {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.players[guildID]
}

// Players returns all live players.
func (m *Manager) Players() []*Player {
	m.mu.RLock()
	defer m.mu.RUnlock()

	players := make([]*Player, 0, len(m.players))
	for _, p := range m.players {
		players = append(players, p)
	}
	return players
}

// DestroyPlayer destroys the player of guildID.
func (m *Manager) DestroyPlayer(ctx context.Context, guildID snowflake.ID, reason domain.DestroyReason) error {
	player := m.Player(guildID)
	if player == nil {
		return ErrPlayerNotFound
	}
	return player.Destroy(ctx, reason)
}

// DestroyNodePlayers destroys every player hosted on nodeID.
func (m *Manager) DestroyNodePlayers(ctx context.Context, nodeID string, reason domain.DestroyReason) {
	for _, player := range m.Players() {
		if node := player.Node(); node != nil && node.ID() == nodeID {
			_ = player.Destroy(ctx, reason)
		}
	}
}

func (m *Manager) removePlayer(p *Player) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.players[p.guildID] == p {
		delete(m.players, p.guildID)
	}
}

// DispatchPlayerEvent routes a node frame to the player of its guild.
// Frames from a node the player no longer uses are dropped.
func (m *Manager) DispatchPlayerEvent(nodeID string, payload domain.PlayerPayload) bool {
	player := m.Player(payload.Guild())
	if player == nil {
		return false
	}
	if node := player.Node(); node == nil || node.ID() != nodeID {
		return false
	}
	return player.enqueue(payload)
}

// HandleVoiceServerUpdate forwards voice server credentials to the player.
func (m *Manager) HandleVoiceServerUpdate(ctx context.Context, update ports.VoiceServerUpdate) error {
	player := m.Player(update.GuildID)
	if player == nil {
		return nil
	}
	return player.handleVoiceServer(ctx, update)
}

// HandleVoiceStateUpdate processes a voice state change of the bot.
// Disconnect handling runs in the background and is returned as a Task;
// a nil Task means nothing was started.
func (m *Manager) HandleVoiceStateUpdate(ctx context.Context, update ports.VoiceStateUpdate) (*Task, error) {
	if update.UserID != m.options.ClientID {
		return nil, nil
	}
	player := m.Player(update.GuildID)
	if player == nil || player.IsDestroyed() {
		return nil, nil
	}

	if update.ChannelID != nil {
		return nil, player.handleVoiceJoin(ctx, *update.ChannelID, update.SessionID)
	}

	if m.options.OnDisconnect.DestroyPlayer {
		return runTask(func() error {
			return player.Destroy(context.Background(), domain.DestroyReasonDisconnected)
		}), nil
	}

	player.publish(domain.PlayerDisconnectEvent{
		GuildID:   player.guildID,
		ChannelID: player.VoiceChannelID(),
	})

	autoReconnect := m.options.OnDisconnect.AutoReconnect
	return runTask(func() error {
		err := player.handleVoiceLeave(player.ctx, autoReconnect)
		if errors.Is(err, ErrPlayerDestroyed) {
			return nil
		}
		return err
	}), nil
}

// HandleChannelDelete destroys the player whose voice channel was deleted.
func (m *Manager) HandleChannelDelete(update ports.ChannelDelete) *Task {
	player := m.Player(update.GuildID)
	if player == nil || player.VoiceChannelID() != update.ChannelID {
		return nil
	}
	return runTask(func() error {
		return player.Destroy(context.Background(), domain.DestroyReasonChannelDeleted)
	})
}

// Search loads input on the least used node.
func (m *Manager) Search(ctx context.Context, input string) (*domain.TrackList, error) {
	node, err := m.nodes.LeastUsedNode("")
	if err != nil {
		return nil, err
	}
	return m.search(ctx, node, input)
}

func (m *Manager) search(ctx context.Context, node ports.Node, input string) (*domain.TrackList, error) {
	query := domain.NewSearchQuery(input, m.options.DefaultSearchPlatform)
	if !query.IsValid() {
		return nil, ErrNoResults
	}
	if err := m.options.LinkPolicy.Validate(query); err != nil {
		return nil, err
	}
	if info := node.Info(); info != nil {
		if err := domain.CheckSourceEnabled(query, info.SourceManagers); err != nil {
			return nil, err
		}
	}

	list, err := node.LoadTracks(ctx, query.LavalinkQuery())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}
	if list == nil {
		return nil, ErrNoResults
	}
	if list.Type == domain.TrackListTypeError {
		message := "unknown error"
		if list.Exception != nil {
			message = list.Exception.Message
		}
		return nil, fmt.Errorf("%w: %s", ErrLoadFailed, message)
	}
	if list.IsEmpty() {
		return nil, ErrNoResults
	}
	return list, nil
}
