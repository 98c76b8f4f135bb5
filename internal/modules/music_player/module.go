package music_player

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/sglre6355/sgrlink/internal/bot"
	"github.com/sglre6355/sgrlink/internal/modules/music_player/application"
	"github.com/sglre6355/sgrlink/internal/modules/music_player/domain"
	"github.com/sglre6355/sgrlink/internal/modules/music_player/infrastructure"
	"github.com/sglre6355/sgrlink/internal/modules/music_player/presentation/discord"
)

func init() {
	bot.Register(&MusicPlayerModule{})
}

// Compile-time interface checks.
var _ bot.ConfigurableModule = (*MusicPlayerModule)(nil)

// shutdownTimeout bounds player teardown on shutdown.
const shutdownTimeout = 10 * time.Second

// MusicPlayerModule provides music playback commands backed by Lavalink.
type MusicPlayerModule struct {
	config          *Config
	commandHandlers *discord.CommandHandlers
	autocomplete    *discord.AutocompleteHandler

	manager *application.Manager
	nodes   *infrastructure.NodeManager
	store   domain.QueueStore

	// Event-driven components
	eventBus            *infrastructure.ChannelEventBus
	notificationHandler *infrastructure.NotificationEventHandler

	// Context for background work
	ctx    context.Context
	cancel context.CancelFunc
}

// Name returns the module name.
func (m *MusicPlayerModule) Name() string {
	return "music_player"
}

// Commands returns the slash commands for this module.
func (m *MusicPlayerModule) Commands() []*discordgo.ApplicationCommand {
	return discord.Commands()
}

// CommandHandlers returns the command handlers for this module.
func (m *MusicPlayerModule) CommandHandlers() map[string]bot.InteractionHandler {
	return map[string]bot.InteractionHandler{
		"join":       m.commandHandlers.HandleJoin,
		"leave":      m.commandHandlers.HandleLeave,
		"play":       m.commandHandlers.HandlePlay,
		"stop":       m.commandHandlers.HandleStop,
		"pause":      m.commandHandlers.HandlePause,
		"resume":     m.commandHandlers.HandleResume,
		"skip":       m.commandHandlers.HandleSkip,
		"seek":       m.commandHandlers.HandleSeek,
		"volume":     m.commandHandlers.HandleVolume,
		"nowplaying": m.commandHandlers.HandleNowPlaying,
		"shuffle":    m.commandHandlers.HandleShuffle,
		"filter":     m.commandHandlers.HandleFilter,
		"queue":      m.commandHandlers.HandleQueue,
		"loop":       m.commandHandlers.HandleLoop,
	}
}

// EventHandlers returns the event handlers for this module.
func (m *MusicPlayerModule) EventHandlers() []bot.EventHandler {
	return []bot.EventHandler{
		func(s *discordgo.Session, event *discordgo.VoiceServerUpdate) {
			m.handleVoiceServerUpdate(s, event)
		},
		func(s *discordgo.Session, event *discordgo.VoiceStateUpdate) {
			m.handleVoiceStateUpdate(s, event)
		},
		func(s *discordgo.Session, event *discordgo.ChannelDelete) {
			m.handleChannelDelete(s, event)
		},
		func(s *discordgo.Session, i *discordgo.InteractionCreate) {
			m.handleInteractionCreate(s, i)
		},
	}
}

// LoadConfig loads module-specific configuration from environment variables.
func (m *MusicPlayerModule) LoadConfig() error {
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}
	m.config = cfg
	return nil
}

// Init initializes the module.
func (m *MusicPlayerModule) Init(deps bot.ModuleDependencies) error {
	if deps.Session == nil {
		return errors.New("music_player module requires a Discord session")
	}
	if m.config == nil {
		if err := m.LoadConfig(); err != nil {
			return err
		}
	}

	nodeConfigs, err := m.config.NodeConfigs()
	if err != nil {
		return err
	}

	m.ctx, m.cancel = context.WithCancel(context.Background())

	m.eventBus = infrastructure.NewChannelEventBus(infrastructure.DefaultEventBufferSize)

	m.nodes = infrastructure.NewNodeManager(deps.UserID, m.config.ClientName, m.eventBus, nil)
	for _, cfg := range nodeConfigs {
		if _, err := m.nodes.AddNode(cfg); err != nil {
			_ = m.Shutdown()
			return err
		}
	}

	if err := m.openStore(); err != nil {
		_ = m.Shutdown()
		return err
	}

	options, err := m.config.ManagerOptions(deps.UserID, m.store)
	if err != nil {
		_ = m.Shutdown()
		return err
	}
	m.manager, err = application.NewManager(
		options,
		m.nodes,
		infrastructure.NewDiscordVoiceGateway(deps.Session),
		m.eventBus,
	)
	if err != nil {
		_ = m.Shutdown()
		return err
	}
	m.nodes.SetPlayerEventSink(m.manager)

	// Create infrastructure
	notifier := infrastructure.NewNotifier(deps.Session)
	userInfoProv := infrastructure.NewDiscordUserInfoProvider(deps.Session)
	voiceState := infrastructure.NewVoiceStateProvider(deps.Session)

	m.notificationHandler = infrastructure.NewNotificationEventHandler(
		notifier,
		infrastructure.NewMemoryNowPlayingRepository(),
		m.eventBus,
		userInfoProv,
	)
	m.notificationHandler.Start()

	m.eventBus.Subscribe(domain.EventNodeDestroy, func(ctx context.Context, e domain.Event) {
		event := e.(domain.NodeDestroyEvent)
		m.manager.DestroyNodePlayers(ctx, event.NodeID, domain.DestroyReasonNodeDestroy)
	})

	// Create presentation handlers
	m.commandHandlers = discord.NewCommandHandlers(m.manager, voiceState)
	m.autocomplete = discord.NewAutocompleteHandler(m.manager)

	go m.connectNodes()
	if m.config.ReviveInterval > 0 {
		go m.reviveNodes(m.config.ReviveInterval)
	}

	slog.Info("music_player module initialized", "nodes", len(nodeConfigs))

	return nil
}

func (m *MusicPlayerModule) openStore() error {
	if m.config.StorePath == "" {
		m.store = infrastructure.NewMemoryQueueStore()
		return nil
	}

	store, err := infrastructure.NewSQLiteQueueStore(m.ctx, m.config.StorePath)
	if err != nil {
		return err
	}
	m.store = store
	return nil
}

func (m *MusicPlayerModule) connectNodes() {
	connected, err := m.nodes.ConnectAll(m.ctx)
	if err != nil {
		slog.Error("no lavalink node could connect", "error", err)
		return
	}
	slog.Info("lavalink nodes connected", "connected", connected, "total", len(m.nodes.Nodes()))
}

// reviveNodes reconnects exhausted nodes every interval until shutdown.
func (m *MusicPlayerModule) reviveNodes(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			if revived := m.nodes.ReconnectExhausted(m.ctx); revived > 0 {
				slog.Info("lavalink nodes revived", "revived", revived)
			}
		}
	}
}

// Shutdown cleans up module resources.
func (m *MusicPlayerModule) Shutdown() error {
	if m.manager != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		for _, player := range m.manager.Players() {
			if err := player.Destroy(ctx, domain.DestroyReasonShutdown); err != nil &&
				!errors.Is(err, application.ErrPlayerDestroyed) {
				slog.Warn("failed to destroy player", "guild", player.GuildID(), "error", err)
			}
		}
		cancel()
	}

	// Cancel context to stop background work
	if m.cancel != nil {
		m.cancel()
	}

	if m.nodes != nil {
		m.nodes.Close()
	}

	if m.notificationHandler != nil {
		m.notificationHandler.Stop()
	}

	// Close event bus after everything that publishes to it
	if m.eventBus != nil {
		m.eventBus.Close()
	}

	var err error
	if closer, ok := m.store.(interface{ Close() error }); ok {
		err = closer.Close()
	}
	return err
}

// Event handlers.

func (m *MusicPlayerModule) handleVoiceServerUpdate(
	_ *discordgo.Session,
	event *discordgo.VoiceServerUpdate,
) {
	if m.manager == nil {
		return
	}

	update, err := infrastructure.VoiceServerUpdateFromDiscord(event)
	if err != nil {
		slog.Warn("invalid voice server update", "error", err)
		return
	}
	if err := m.manager.HandleVoiceServerUpdate(m.ctx, update); err != nil {
		slog.Error("failed to handle voice server update", "guild", update.GuildID, "error", err)
	}
}

func (m *MusicPlayerModule) handleVoiceStateUpdate(
	_ *discordgo.Session,
	event *discordgo.VoiceStateUpdate,
) {
	if m.manager == nil {
		return
	}

	update, err := infrastructure.VoiceStateUpdateFromDiscord(event)
	if err != nil {
		slog.Warn("invalid voice state update", "error", err)
		return
	}
	task, err := m.manager.HandleVoiceStateUpdate(m.ctx, update)
	if err != nil {
		slog.Error("failed to handle voice state update", "guild", update.GuildID, "error", err)
		return
	}
	m.watch(task, "voice disconnect", update.GuildID.String())
}

func (m *MusicPlayerModule) handleChannelDelete(
	_ *discordgo.Session,
	event *discordgo.ChannelDelete,
) {
	if m.manager == nil {
		return
	}

	update, ok, err := infrastructure.ChannelDeleteFromDiscord(event)
	if err != nil {
		slog.Warn("invalid channel delete", "error", err)
		return
	}
	if !ok {
		return
	}
	m.watch(m.manager.HandleChannelDelete(update), "channel delete", update.GuildID.String())
}

// watch logs the result of a background task.
func (m *MusicPlayerModule) watch(task *application.Task, name, guildID string) {
	if task == nil {
		return
	}
	go func() {
		if err := task.Wait(m.ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("background task failed", "task", name, "guild", guildID, "error", err)
		}
	}()
}

func (m *MusicPlayerModule) handleInteractionCreate(
	s *discordgo.Session,
	i *discordgo.InteractionCreate,
) {
	if i.Type != discordgo.InteractionApplicationCommandAutocomplete || m.autocomplete == nil {
		return
	}

	data := i.ApplicationCommandData()

	switch data.Name {
	case "play":
		m.autocomplete.HandlePlay(s, i)
	case "queue":
		if len(data.Options) > 0 && data.Options[0].Name == "remove" {
			m.autocomplete.HandleQueueRemove(s, i)
		}
	}
}
