package discord

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/sgrlink/internal/bot"
	"github.com/sglre6355/sgrlink/internal/modules/music_player/application"
	"github.com/sglre6355/sgrlink/internal/modules/music_player/application/ports"
	"github.com/sglre6355/sgrlink/internal/modules/music_player/domain"
	"github.com/sglre6355/sgrlink/internal/modules/music_player/infrastructure"
)

const (
	testClientID = snowflake.ID(1)
	testGuildID  = snowflake.ID(100)
	testVoiceID  = snowflake.ID(10)
	testTextID   = snowflake.ID(20)
	testUserID   = snowflake.ID(42)
)

// mockNode implements ports.Node.
type mockNode struct {
	mu      sync.Mutex
	updates []ports.PlayerUpdate
	results map[string]*domain.TrackList
}

func newMockNode() *mockNode {
	return &mockNode{results: make(map[string]*domain.TrackList)}
}

func (m *mockNode) ID() string { return "main" }

func (m *mockNode) IsConnected() bool { return true }

func (m *mockNode) Info() *ports.NodeInfo {
	return &ports.NodeInfo{
		SourceManagers: []string{"youtube", "soundcloud"},
		Filters:        []string{"volume", "timescale"},
	}
}

func (m *mockNode) UpdatePlayer(_ context.Context, _ snowflake.ID, update ports.PlayerUpdate, _ bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = append(m.updates, update)
	return nil
}

func (m *mockNode) DestroyPlayer(context.Context, snowflake.ID) error { return nil }

func (m *mockNode) DecodeTrack(context.Context, string) (domain.Track, error) {
	return domain.Track{}, errors.New("not supported")
}

func (m *mockNode) LoadTracks(_ context.Context, identifier string) (*domain.TrackList, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if list, ok := m.results[identifier]; ok {
		return list, nil
	}
	return &domain.TrackList{Type: domain.TrackListTypeEmpty, SelectedTrack: -1}, nil
}

func (m *mockNode) lastUpdate(t *testing.T) ports.PlayerUpdate {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.updates) == 0 {
		t.Fatal("expected a player update")
	}
	return m.updates[len(m.updates)-1]
}

// mockNodeProvider implements ports.NodeProvider with a single node.
type mockNodeProvider struct {
	node *mockNode
}

func (p *mockNodeProvider) UsableNode(string) (ports.Node, error) { return p.node, nil }

func (p *mockNodeProvider) LeastUsedNode(string) (ports.Node, error) { return p.node, nil }

// voiceShardSender implements ports.ShardSender by answering every join
// with voice credentials, the way the gateway would.
type voiceShardSender struct {
	manager *application.Manager
}

func (s *voiceShardSender) SendToShard(ctx context.Context, payload ports.ShardPayload) error {
	if payload.ChannelID == nil || s.manager == nil {
		return nil
	}
	if _, err := s.manager.HandleVoiceStateUpdate(ctx, ports.VoiceStateUpdate{
		GuildID:   payload.GuildID,
		UserID:    testClientID,
		ChannelID: payload.ChannelID,
		SessionID: "voice-session",
	}); err != nil {
		return err
	}
	return s.manager.HandleVoiceServerUpdate(ctx, ports.VoiceServerUpdate{
		GuildID:  payload.GuildID,
		Token:    "token",
		Endpoint: "voice.example.com",
	})
}

// nopPublisher implements ports.EventPublisher.
type nopPublisher struct{}

func (nopPublisher) Publish(domain.Event) error { return nil }

// mockVoiceState implements ports.VoiceStateProvider.
type mockVoiceState struct {
	channelID *snowflake.ID
	err       error
}

func (m *mockVoiceState) GetUserVoiceChannel(snowflake.ID, snowflake.ID) (*snowflake.ID, error) {
	return m.channelID, m.err
}

// mockAutocompleteResponder implements AutocompleteResponder.
type mockAutocompleteResponder struct {
	response *discordgo.InteractionResponse
}

func (m *mockAutocompleteResponder) InteractionRespond(
	_ *discordgo.Interaction,
	resp *discordgo.InteractionResponse,
	_ ...discordgo.RequestOption,
) error {
	m.response = resp
	return nil
}

type testEnv struct {
	manager    *application.Manager
	node       *mockNode
	voiceState *mockVoiceState
	handlers   *CommandHandlers
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	node := newMockNode()
	shards := &voiceShardSender{}

	options := application.DefaultManagerOptions(testClientID)
	options.QueueStore = infrastructure.NewMemoryQueueStore()
	options.VoiceConnectTimeout = time.Second

	manager, err := application.NewManager(options, &mockNodeProvider{node: node}, shards, nopPublisher{})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	shards.manager = manager

	voiceID := testVoiceID
	voiceState := &mockVoiceState{channelID: &voiceID}

	t.Cleanup(func() {
		for _, p := range manager.Players() {
			_ = p.Destroy(context.Background(), "test cleanup")
		}
	})

	return &testEnv{
		manager:    manager,
		node:       node,
		voiceState: voiceState,
		handlers:   NewCommandHandlers(manager, voiceState),
	}
}

// play runs /play for query and fails the test on an error response.
func (env *testEnv) play(t *testing.T, query string) {
	t.Helper()
	r := &bot.MockResponder{}
	if err := env.handlers.HandlePlay(nil, command("play", stringOption("query", query)), r); err != nil {
		t.Fatalf("HandlePlay() error = %v", err)
	}
	if embed := firstEmbed(t, r); embed.Color != colorSuccess {
		t.Fatalf("/play failed: %s", embed.Description)
	}
}

func command(
	name string,
	options ...*discordgo.ApplicationCommandInteractionDataOption,
) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			Type:      discordgo.InteractionApplicationCommand,
			GuildID:   testGuildID.String(),
			ChannelID: testTextID.String(),
			Member:    &discordgo.Member{User: &discordgo.User{ID: testUserID.String()}},
			Data: discordgo.ApplicationCommandInteractionData{
				Name:    name,
				Options: options,
			},
		},
	}
}

func autocomplete(
	name string,
	options ...*discordgo.ApplicationCommandInteractionDataOption,
) *discordgo.InteractionCreate {
	i := command(name, options...)
	i.Type = discordgo.InteractionApplicationCommandAutocomplete
	return i
}

func stringOption(name, value string) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{
		Name:  name,
		Type:  discordgo.ApplicationCommandOptionString,
		Value: value,
	}
}

func intOption(name string, value int) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{
		Name:  name,
		Type:  discordgo.ApplicationCommandOptionInteger,
		Value: float64(value),
	}
}

func subCommand(
	name string,
	options ...*discordgo.ApplicationCommandInteractionDataOption,
) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{
		Name:    name,
		Type:    discordgo.ApplicationCommandOptionSubCommand,
		Options: options,
	}
}

func firstEmbed(t *testing.T, r *bot.MockResponder) *discordgo.MessageEmbed {
	t.Helper()
	if r.LastResponse == nil || r.LastResponse.Data == nil || len(r.LastResponse.Data.Embeds) == 0 {
		t.Fatal("expected an embed response")
	}
	return r.LastResponse.Data.Embeds[0]
}

func testTrack(id string) domain.Track {
	return domain.Track{
		Encoded: "enc-" + id,
		Info: domain.TrackInfo{
			Identifier: id,
			Title:      "Track " + id,
			Author:     "Artist",
			Duration:   3 * time.Minute,
			URI:        "https://www.youtube.com/watch?v=" + id,
			SourceName: "youtube",
			IsSeekable: true,
		},
	}
}

func searchResult(tracks ...domain.Track) *domain.TrackList {
	return &domain.TrackList{Type: domain.TrackListTypeSearch, SelectedTrack: -1, Tracks: tracks}
}
