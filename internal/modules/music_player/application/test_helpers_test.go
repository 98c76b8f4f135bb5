package application

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/sgrlink/internal/modules/music_player/application/ports"
	"github.com/sglre6355/sgrlink/internal/modules/music_player/domain"
)

const (
	testClientID  = snowflake.ID(1)
	testGuildID   = snowflake.ID(100)
	testVoiceID   = snowflake.ID(10)
	testTextID    = snowflake.ID(20)
	testRequester = snowflake.ID(42)
)

var errUnknownTrack = errors.New("unknown track")

// mockNode implements ports.Node.
type mockNode struct {
	id   string
	info *ports.NodeInfo

	mu        sync.Mutex
	updates   []ports.PlayerUpdate
	destroyed []snowflake.ID
	loads     []string
	updateErr error
	loadErr   error
	decoded   map[string]domain.Track
	results   map[string]*domain.TrackList

	// loadStarted and loadGate, when set, hold LoadTracks until loadGate is
	// closed. loadCtxErr records the context error seen on release.
	loadStarted chan struct{}
	loadGate    chan struct{}
	loadCtxErr  error
}

func newMockNode(id string) *mockNode {
	return &mockNode{
		id: id,
		info: &ports.NodeInfo{
			SourceManagers: []string{"youtube", "soundcloud", "http"},
			Filters:        []string{"volume", "timescale"},
		},
		decoded: make(map[string]domain.Track),
		results: make(map[string]*domain.TrackList),
	}
}

func (m *mockNode) ID() string { return m.id }

func (m *mockNode) IsConnected() bool { return true }

func (m *mockNode) Info() *ports.NodeInfo { return m.info }

func (m *mockNode) UpdatePlayer(_ context.Context, _ snowflake.ID, update ports.PlayerUpdate, _ bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	m.updates = append(m.updates, update)
	return nil
}

func (m *mockNode) DestroyPlayer(_ context.Context, guildID snowflake.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.destroyed = append(m.destroyed, guildID)
	return nil
}

func (m *mockNode) DecodeTrack(_ context.Context, encoded string) (domain.Track, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	track, ok := m.decoded[encoded]
	if !ok {
		return domain.Track{}, errUnknownTrack
	}
	return track, nil
}

func (m *mockNode) LoadTracks(ctx context.Context, identifier string) (*domain.TrackList, error) {
	m.mu.Lock()
	started, gate := m.loadStarted, m.loadGate
	m.mu.Unlock()
	if gate != nil {
		close(started)
		<-gate
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if gate != nil {
		m.loadCtxErr = ctx.Err()
	}
	m.loads = append(m.loads, identifier)
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	if list, ok := m.results[identifier]; ok {
		return list, nil
	}
	return &domain.TrackList{Type: domain.TrackListTypeEmpty, SelectedTrack: -1}, nil
}

func (m *mockNode) getUpdates() []ports.PlayerUpdate {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ports.PlayerUpdate(nil), m.updates...)
}

func (m *mockNode) getDestroyed() []snowflake.ID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]snowflake.ID(nil), m.destroyed...)
}

func (m *mockNode) getLoads() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.loads...)
}

// playedTracks returns the encoded tracks sent to the node, in order.
func (m *mockNode) playedTracks() []string {
	var played []string
	for _, u := range m.getUpdates() {
		if u.Track != nil && u.Track.Encoded != nil {
			played = append(played, *u.Track.Encoded)
		}
	}
	return played
}

// mockNodeProvider implements ports.NodeProvider.
type mockNodeProvider struct {
	nodes map[string]*mockNode
	least string
}

func (p *mockNodeProvider) UsableNode(id string) (ports.Node, error) {
	node, ok := p.nodes[id]
	if !ok {
		return nil, errors.New("node not found")
	}
	return node, nil
}

func (p *mockNodeProvider) LeastUsedNode(string) (ports.Node, error) {
	node, ok := p.nodes[p.least]
	if !ok {
		return nil, errors.New("no usable node")
	}
	return node, nil
}

// mockShardSender implements ports.ShardSender. onSend runs synchronously
// after a payload has been recorded.
type mockShardSender struct {
	mu       sync.Mutex
	payloads []ports.ShardPayload
	err      error
	onSend   func(ports.ShardPayload)
}

func (s *mockShardSender) SendToShard(_ context.Context, payload ports.ShardPayload) error {
	s.mu.Lock()
	if s.err != nil {
		s.mu.Unlock()
		return s.err
	}
	s.payloads = append(s.payloads, payload)
	onSend := s.onSend
	s.mu.Unlock()

	if onSend != nil {
		onSend(payload)
	}
	return nil
}

func (s *mockShardSender) setOnSend(fn func(ports.ShardPayload)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onSend = fn
}

func (s *mockShardSender) getPayloads() []ports.ShardPayload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ports.ShardPayload(nil), s.payloads...)
}

// mockPublisher implements ports.EventPublisher.
type mockPublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (p *mockPublisher) Publish(event domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *mockPublisher) ofKind(kind domain.EventKind) []domain.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []domain.Event
	for _, e := range p.events {
		if e.Kind() == kind {
			out = append(out, e)
		}
	}
	return out
}

// memoryStore is a domain.QueueStore backed by a map.
type memoryStore struct {
	mu     sync.Mutex
	data   map[snowflake.ID][]byte
	setErr error

	// getStarted and getGate, when set, hold Get until getGate is closed.
	getStarted chan struct{}
	getGate    chan struct{}
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: make(map[snowflake.ID][]byte)}
}

func (s *memoryStore) Get(_ context.Context, guildID snowflake.ID) ([]byte, error) {
	s.mu.Lock()
	started, gate := s.getStarted, s.getGate
	s.mu.Unlock()
	if gate != nil {
		close(started)
		<-gate
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[guildID], nil
}

func (s *memoryStore) Set(_ context.Context, guildID snowflake.ID, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setErr != nil {
		return s.setErr
	}
	s.data[guildID] = data
	return nil
}

func (s *memoryStore) Delete(_ context.Context, guildID snowflake.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, guildID)
	return nil
}

func (s *memoryStore) Stringify(snapshot domain.QueueSnapshot) ([]byte, error) {
	return json.Marshal(snapshot)
}

func (s *memoryStore) Parse(data []byte) (domain.QueueSnapshot, error) {
	var snapshot domain.QueueSnapshot
	err := json.Unmarshal(data, &snapshot)
	return snapshot, err
}

func (s *memoryStore) stored(t *testing.T, guildID snowflake.ID) (domain.QueueSnapshot, bool) {
	t.Helper()
	s.mu.Lock()
	data, ok := s.data[guildID]
	s.mu.Unlock()
	if !ok {
		return domain.QueueSnapshot{}, false
	}
	snapshot, err := s.Parse(data)
	if err != nil {
		t.Fatalf("failed to parse stored queue: %v", err)
	}
	return snapshot, true
}

// mockWatcher implements domain.QueueChangesWatcher.
type mockWatcher struct {
	mu       sync.Mutex
	added    []int
	removed  []int
	shuffles int
}

func (w *mockWatcher) TracksAdd(_ snowflake.ID, entries []*domain.QueueEntry, _ int, _ domain.QueueSnapshot) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.added = append(w.added, len(entries))
}

func (w *mockWatcher) TracksRemoved(_ snowflake.ID, entries []*domain.QueueEntry, _ int, _ domain.QueueSnapshot) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.removed = append(w.removed, len(entries))
}

func (w *mockWatcher) Shuffled(snowflake.ID, domain.QueueSnapshot, domain.QueueSnapshot) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.shuffles++
}

// testEnv bundles a manager with its mocks.
type testEnv struct {
	manager   *Manager
	node      *mockNode
	nodes     *mockNodeProvider
	shards    *mockShardSender
	publisher *mockPublisher
	store     *memoryStore
}

func newTestEnv(t *testing.T, modify func(*ManagerOptions)) *testEnv {
	t.Helper()

	env := &testEnv{
		node:      newMockNode("main"),
		shards:    &mockShardSender{},
		publisher: &mockPublisher{},
		store:     newMemoryStore(),
	}
	env.nodes = &mockNodeProvider{
		nodes: map[string]*mockNode{"main": env.node},
		least: "main",
	}

	options := DefaultManagerOptions(testClientID)
	options.QueueStore = env.store
	options.VoiceConnectTimeout = time.Second
	if modify != nil {
		modify(&options)
	}

	manager, err := NewManager(options, env.nodes, env.shards, env.publisher)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	env.manager = manager

	t.Cleanup(func() {
		for _, p := range manager.Players() {
			_ = p.Destroy(context.Background(), "test cleanup")
		}
	})
	return env
}

// newPlayer creates a player in testVoiceID and feeds it the voice
// credentials, leaving it connected.
func (env *testEnv) newPlayer(t *testing.T) *Player {
	t.Helper()

	ctx := context.Background()
	player, err := env.manager.CreatePlayer(ctx, PlayerOptions{
		GuildID:        testGuildID,
		VoiceChannelID: testVoiceID,
		TextChannelID:  testTextID,
	})
	if err != nil {
		t.Fatalf("CreatePlayer() error = %v", err)
	}

	env.sendVoice(t, testVoiceID)
	if player.State() != domain.StateConnected {
		t.Fatalf("expected player to be connected, got %v", player.State())
	}
	return player
}

// sendVoice delivers a voice state and a voice server update for the bot.
func (env *testEnv) sendVoice(t *testing.T, channelID snowflake.ID) {
	t.Helper()

	ctx := context.Background()
	if _, err := env.manager.HandleVoiceStateUpdate(ctx, ports.VoiceStateUpdate{
		GuildID:   testGuildID,
		UserID:    testClientID,
		ChannelID: &channelID,
		SessionID: "voice-session",
	}); err != nil {
		t.Fatalf("HandleVoiceStateUpdate() error = %v", err)
	}
	if err := env.manager.HandleVoiceServerUpdate(ctx, ports.VoiceServerUpdate{
		GuildID:  testGuildID,
		Token:    "token",
		Endpoint: "voice.example.com",
	}); err != nil {
		t.Fatalf("HandleVoiceServerUpdate() error = %v", err)
	}
}

// autoVoice answers every join request with voice credentials.
func (env *testEnv) autoVoice(t *testing.T) {
	env.shards.setOnSend(func(payload ports.ShardPayload) {
		if payload.ChannelID != nil {
			env.sendVoice(t, *payload.ChannelID)
		}
	})
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

func testEntry(id string) *domain.QueueEntry {
	return domain.NewQueueEntry(testTrack(id), testRequester)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
