package application

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/sgrlink/internal/modules/music_player/application/ports"
	"github.com/sglre6355/sgrlink/internal/modules/music_player/domain"
)

func TestNewManager_Validation(t *testing.T) {
	negative := -time.Second

	tests := []struct {
		name   string
		modify func(*ManagerOptions)
	}{
		{name: "missing client id", modify: func(o *ManagerOptions) { o.ClientID = 0 }},
		{name: "missing queue store", modify: func(o *ManagerOptions) { o.QueueStore = nil }},
		{name: "zero voice timeout", modify: func(o *ManagerOptions) { o.VoiceConnectTimeout = 0 }},
		{name: "negative destroy delay", modify: func(o *ManagerOptions) { o.OnEmptyQueue.DestroyAfter = &negative }},
		{name: "unknown platform", modify: func(o *ManagerOptions) { o.DefaultSearchPlatform = "nosuchsearch" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			options := DefaultManagerOptions(testClientID)
			options.QueueStore = newMemoryStore()
			tt.modify(&options)

			_, err := NewManager(options, &mockNodeProvider{}, &mockShardSender{}, &mockPublisher{})
			if !errors.Is(err, ErrInvalidOptions) {
				t.Errorf("expected ErrInvalidOptions, got %v", err)
			}
		})
	}

	t.Run("missing dependencies", func(t *testing.T) {
		options := DefaultManagerOptions(testClientID)
		options.QueueStore = newMemoryStore()
		if _, err := NewManager(options, nil, &mockShardSender{}, &mockPublisher{}); !errors.Is(err, ErrInvalidOptions) {
			t.Errorf("expected ErrInvalidOptions, got %v", err)
		}
	})
}

func TestNewManager_NegativeHistoryUsesDefault(t *testing.T) {
	options := DefaultManagerOptions(testClientID)
	options.QueueStore = newMemoryStore()
	options.MaxPreviousTracks = -1

	manager, err := NewManager(options, &mockNodeProvider{}, &mockShardSender{}, &mockPublisher{})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	if got := manager.Options().MaxPreviousTracks; got != domain.DefaultMaxPreviousTracks {
		t.Errorf("MaxPreviousTracks = %d, want %d", got, domain.DefaultMaxPreviousTracks)
	}
}

func TestManager_CreatePlayer_RestoreDoesNotBlockDispatch(t *testing.T) {
	env := newTestEnv(t, nil)
	env.newPlayer(t)
	ctx := context.Background()

	started := make(chan struct{})
	gate := make(chan struct{})
	env.store.mu.Lock()
	env.store.getStarted, env.store.getGate = started, gate
	env.store.mu.Unlock()

	created := make(chan error, 1)
	go func() {
		_, err := env.manager.CreatePlayer(ctx, PlayerOptions{GuildID: 200, VoiceChannelID: testVoiceID})
		created <- err
	}()
	<-started

	dispatched := make(chan bool, 1)
	go func() {
		dispatched <- env.manager.DispatchPlayerEvent("main", domain.PlayerStatePayload{GuildID: testGuildID})
	}()
	select {
	case ok := <-dispatched:
		if !ok {
			t.Error("expected the frame to reach the existing player")
		}
	case <-time.After(time.Second):
		t.Fatal("dispatch blocked while another player restored its queue")
	}

	close(gate)
	if err := <-created; err != nil {
		t.Fatalf("CreatePlayer() error = %v", err)
	}
	if env.manager.Player(200) == nil {
		t.Error("expected the second player to be registered")
	}
}

func TestManager_CreatePlayer(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	first, err := env.manager.CreatePlayer(ctx, PlayerOptions{GuildID: testGuildID, VoiceChannelID: testVoiceID})
	if err != nil {
		t.Fatalf("CreatePlayer() error = %v", err)
	}
	second, err := env.manager.CreatePlayer(ctx, PlayerOptions{GuildID: testGuildID, VoiceChannelID: 99})
	if err != nil {
		t.Fatalf("CreatePlayer() error = %v", err)
	}

	if first != second {
		t.Error("expected the existing player to be returned")
	}
	if second.VoiceChannelID() != testVoiceID {
		t.Errorf("expected the original voice channel, got %d", second.VoiceChannelID())
	}
	if first.State() != domain.StateDisconnected {
		t.Errorf("expected a new player to be disconnected, got %v", first.State())
	}
	if first.Volume() != 100 {
		t.Errorf("expected default volume 100, got %d", first.Volume())
	}
	if got := len(env.publisher.ofKind(domain.EventPlayerCreate)); got != 1 {
		t.Errorf("expected 1 create event, got %d", got)
	}
}

func TestManager_CreatePlayer_Errors(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	tests := []struct {
		name    string
		opts    PlayerOptions
		wantErr error
	}{
		{name: "missing guild", opts: PlayerOptions{}, wantErr: ErrInvalidOptions},
		{name: "volume out of range", opts: PlayerOptions{GuildID: 5, Volume: 1001}, wantErr: ErrInvalidVolume},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := env.manager.CreatePlayer(ctx, tt.opts); !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	t.Run("unknown node", func(t *testing.T) {
		if _, err := env.manager.CreatePlayer(ctx, PlayerOptions{GuildID: 5, NodeID: "missing"}); err == nil {
			t.Error("expected an error for an unknown node")
		}
		if env.manager.Player(5) != nil {
			t.Error("expected no player to be registered")
		}
	})
}

func TestManager_CreatePlayer_RestoresQueue(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	saved := NewQueue(testGuildID, 10, env.store, nil)
	if err := saved.Add(ctx, -1, testEntry("a"), testEntry("b")); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	player, err := env.manager.CreatePlayer(ctx, PlayerOptions{GuildID: testGuildID})
	if err != nil {
		t.Fatalf("CreatePlayer() error = %v", err)
	}
	if got := player.Queue().Len(); got != 2 {
		t.Errorf("expected 2 restored entries, got %d", got)
	}
}

func TestManager_RestoredQueueIsResolvedOnPlay(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	saved := NewQueue(testGuildID, 10, env.store, nil)
	if err := saved.Add(ctx, -1, testEntry("a"), testEntry("b")); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	// a still decodes; b's token is stale and is found again by its URI
	env.node.decoded["enc-a"] = testTrack("a")
	fresh := testTrack("b")
	fresh.Encoded = "enc-b-fresh"
	env.node.results[fresh.Info.URI] = &domain.TrackList{
		Type:          domain.TrackListTypeTrack,
		SelectedTrack: -1,
		Tracks:        []domain.Track{fresh},
	}

	player, err := env.manager.CreatePlayer(ctx, PlayerOptions{GuildID: testGuildID, VoiceChannelID: testVoiceID})
	if err != nil {
		t.Fatalf("CreatePlayer() error = %v", err)
	}
	for _, entry := range player.Queue().Upcoming() {
		if entry.IsResolved() {
			t.Fatalf("expected restored entry %s to be pending", entry.Info().Title)
		}
	}
	env.sendVoice(t, testVoiceID)

	if err := player.Play(ctx, PlayOptions{}); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	if err := player.Skip(ctx, 1); err != nil {
		t.Fatalf("Skip() error = %v", err)
	}

	if got, want := env.node.playedTracks(), []string{"enc-a", "enc-b-fresh"}; !slices.Equal(got, want) {
		t.Errorf("played %v, want %v", got, want)
	}
	if got := env.node.getLoads(); !slices.Equal(got, []string{fresh.Info.URI}) {
		t.Errorf("expected only b to be loaded by URI, got %v", got)
	}
}

func TestManager_Connect(t *testing.T) {
	env := newTestEnv(t, nil)
	env.autoVoice(t)

	player, err := env.manager.CreatePlayer(context.Background(), PlayerOptions{
		GuildID:        testGuildID,
		VoiceChannelID: testVoiceID,
		SelfDeaf:       true,
	})
	if err != nil {
		t.Fatalf("CreatePlayer() error = %v", err)
	}

	if err := player.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if player.State() != domain.StateConnected {
		t.Errorf("expected connected, got %v", player.State())
	}

	payloads := env.shards.getPayloads()
	if len(payloads) != 1 || payloads[0].ChannelID == nil || *payloads[0].ChannelID != testVoiceID || !payloads[0].SelfDeaf {
		t.Fatalf("unexpected shard payloads %+v", payloads)
	}

	updates := env.node.getUpdates()
	if len(updates) != 1 || updates[0].Voice == nil {
		t.Fatalf("expected a single voice update, got %+v", updates)
	}
	want := ports.VoiceState{Token: "token", Endpoint: "voice.example.com", SessionID: "voice-session"}
	if *updates[0].Voice != want {
		t.Errorf("voice = %+v, want %+v", *updates[0].Voice, want)
	}
}

func TestManager_Connect_Timeout(t *testing.T) {
	env := newTestEnv(t, func(o *ManagerOptions) { o.VoiceConnectTimeout = 20 * time.Millisecond })

	player, err := env.manager.CreatePlayer(context.Background(), PlayerOptions{GuildID: testGuildID, VoiceChannelID: testVoiceID})
	if err != nil {
		t.Fatalf("CreatePlayer() error = %v", err)
	}

	if err := player.Connect(context.Background()); !errors.Is(err, ErrVoiceTimeout) {
		t.Fatalf("expected ErrVoiceTimeout, got %v", err)
	}
	if player.State() != domain.StateDisconnected {
		t.Errorf("expected disconnected after timeout, got %v", player.State())
	}
}

func TestManager_VoiceServerBeforeState(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	if _, err := env.manager.CreatePlayer(ctx, PlayerOptions{GuildID: testGuildID, VoiceChannelID: testVoiceID}); err != nil {
		t.Fatalf("CreatePlayer() error = %v", err)
	}

	if err := env.manager.HandleVoiceServerUpdate(ctx, ports.VoiceServerUpdate{
		GuildID: testGuildID, Token: "token", Endpoint: "voice.example.com",
	}); err != nil {
		t.Fatalf("HandleVoiceServerUpdate() error = %v", err)
	}
	if got := len(env.node.getUpdates()); got != 0 {
		t.Fatalf("expected no update before the voice state, got %d", got)
	}

	channelID := testVoiceID
	if _, err := env.manager.HandleVoiceStateUpdate(ctx, ports.VoiceStateUpdate{
		GuildID: testGuildID, UserID: testClientID, ChannelID: &channelID, SessionID: "voice-session",
	}); err != nil {
		t.Fatalf("HandleVoiceStateUpdate() error = %v", err)
	}
	if got := len(env.node.getUpdates()); got != 1 {
		t.Errorf("expected 1 voice update, got %d", got)
	}
}

func TestManager_VoiceServerRotation(t *testing.T) {
	env := newTestEnv(t, nil)
	env.newPlayer(t)
	ctx := context.Background()

	if err := env.manager.HandleVoiceServerUpdate(ctx, ports.VoiceServerUpdate{
		GuildID: testGuildID, Token: "rotated-token", Endpoint: "failover.example.com",
	}); err != nil {
		t.Fatalf("HandleVoiceServerUpdate() error = %v", err)
	}

	var voices []ports.VoiceState
	for _, u := range env.node.getUpdates() {
		if u.Voice != nil {
			voices = append(voices, *u.Voice)
		}
	}
	if len(voices) != 2 {
		t.Fatalf("expected 2 voice updates, got %d", len(voices))
	}
	want := ports.VoiceState{Token: "rotated-token", Endpoint: "failover.example.com", SessionID: "voice-session"}
	if voices[1] != want {
		t.Errorf("voice = %+v, want %+v", voices[1], want)
	}
}

func TestManager_VoiceStateUpdate_IgnoresOtherUsers(t *testing.T) {
	env := newTestEnv(t, nil)
	player := env.newPlayer(t)

	task, err := env.manager.HandleVoiceStateUpdate(context.Background(), ports.VoiceStateUpdate{
		GuildID: testGuildID,
		UserID:  snowflake.ID(777),
	})
	if err != nil || task != nil {
		t.Fatalf("expected nothing to happen, got task=%v err=%v", task, err)
	}
	if player.IsDestroyed() {
		t.Error("player must not react to other users")
	}
}

func TestManager_PlayerMove(t *testing.T) {
	env := newTestEnv(t, nil)
	player := env.newPlayer(t)

	env.sendVoice(t, 30)

	moves := env.publisher.ofKind(domain.EventPlayerMove)
	if len(moves) != 1 {
		t.Fatalf("expected 1 move event, got %d", len(moves))
	}
	move := moves[0].(domain.PlayerMoveEvent)
	if move.OldChannelID != testVoiceID || move.NewChannelID != 30 {
		t.Errorf("unexpected move %+v", move)
	}
	if player.VoiceChannelID() != 30 {
		t.Errorf("expected voice channel 30, got %d", player.VoiceChannelID())
	}
}

func TestManager_Disconnect(t *testing.T) {
	tests := []struct {
		name          string
		onDisconnect  DisconnectOptions
		wantDestroyed bool
		wantRejoin    bool
	}{
		{
			name:          "destroy player",
			onDisconnect:  DisconnectOptions{DestroyPlayer: true},
			wantDestroyed: true,
		},
		{
			name:          "destroy wins over reconnect",
			onDisconnect:  DisconnectOptions{DestroyPlayer: true, AutoReconnect: true},
			wantDestroyed: true,
		},
		{
			name:         "auto reconnect",
			onDisconnect: DisconnectOptions{AutoReconnect: true},
			wantRejoin:   true,
		},
		{
			name: "stay disconnected",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, func(o *ManagerOptions) { o.OnDisconnect = tt.onDisconnect })
			player := env.newPlayer(t)
			env.autoVoice(t)

			if err := player.Play(context.Background(), PlayOptions{Entry: testEntry("a")}); err != nil {
				t.Fatalf("Play() error = %v", err)
			}

			task, err := env.manager.HandleVoiceStateUpdate(context.Background(), ports.VoiceStateUpdate{
				GuildID: testGuildID,
				UserID:  testClientID,
			})
			if err != nil {
				t.Fatalf("HandleVoiceStateUpdate() error = %v", err)
			}
			if err := task.Wait(context.Background()); err != nil {
				t.Fatalf("task error = %v", err)
			}

			if got := player.IsDestroyed(); got != tt.wantDestroyed {
				t.Errorf("IsDestroyed() = %v, want %v", got, tt.wantDestroyed)
			}
			if tt.wantDestroyed {
				if env.manager.Player(testGuildID) != nil {
					t.Error("expected the player to be removed")
				}
				destroys := env.publisher.ofKind(domain.EventPlayerDestroy)
				if len(destroys) != 1 || destroys[0].(domain.PlayerDestroyEvent).Reason != domain.DestroyReasonDisconnected {
					t.Errorf("unexpected destroy events %+v", destroys)
				}
				if len(env.publisher.ofKind(domain.EventPlayerDisconnect)) != 0 {
					t.Error("no disconnect event expected when the player is destroyed")
				}
			} else if len(env.publisher.ofKind(domain.EventPlayerDisconnect)) != 1 {
				t.Error("expected a disconnect event")
			}

			var rejoined bool
			for _, p := range env.shards.getPayloads() {
				if p.ChannelID != nil {
					rejoined = true
				}
			}
			if rejoined != tt.wantRejoin {
				t.Errorf("rejoined = %v, want %v", rejoined, tt.wantRejoin)
			}

			if tt.wantRejoin {
				if player.State() != domain.StateConnected {
					t.Errorf("expected connected after reconnect, got %v", player.State())
				}
				if player.IsPaused() {
					t.Error("expected playback to resume after reconnect")
				}
			}
			if !tt.wantDestroyed && !tt.wantRejoin {
				if !player.IsPaused() {
					t.Error("expected playback to be paused while disconnected")
				}
				if player.VoiceChannelID() != 0 {
					t.Errorf("expected the voice channel to be cleared, got %d", player.VoiceChannelID())
				}
			}
		})
	}
}

func TestManager_Disconnect_ReconnectFails(t *testing.T) {
	env := newTestEnv(t, func(o *ManagerOptions) {
		o.OnDisconnect = DisconnectOptions{AutoReconnect: true}
		o.VoiceConnectTimeout = 20 * time.Millisecond
	})
	player := env.newPlayer(t)

	task, err := env.manager.HandleVoiceStateUpdate(context.Background(), ports.VoiceStateUpdate{
		GuildID: testGuildID,
		UserID:  testClientID,
	})
	if err != nil {
		t.Fatalf("HandleVoiceStateUpdate() error = %v", err)
	}
	if err := task.Wait(context.Background()); !errors.Is(err, ErrVoiceTimeout) {
		t.Fatalf("expected ErrVoiceTimeout, got %v", err)
	}

	if !player.IsDestroyed() {
		t.Fatal("expected the player to be destroyed")
	}
	destroys := env.publisher.ofKind(domain.EventPlayerDestroy)
	if len(destroys) != 1 || destroys[0].(domain.PlayerDestroyEvent).Reason != domain.DestroyReasonPlayerReconnectFail {
		t.Errorf("unexpected destroy events %+v", destroys)
	}
}

func TestManager_HandleChannelDelete(t *testing.T) {
	env := newTestEnv(t, nil)
	player := env.newPlayer(t)

	if task := env.manager.HandleChannelDelete(ports.ChannelDelete{GuildID: testGuildID, ChannelID: 999}); task != nil {
		t.Fatal("expected no task for an unrelated channel")
	}

	task := env.manager.HandleChannelDelete(ports.ChannelDelete{GuildID: testGuildID, ChannelID: testVoiceID})
	if err := task.Wait(context.Background()); err != nil {
		t.Fatalf("task error = %v", err)
	}

	if !player.IsDestroyed() {
		t.Fatal("expected the player to be destroyed")
	}
	destroys := env.publisher.ofKind(domain.EventPlayerDestroy)
	if len(destroys) != 1 || destroys[0].(domain.PlayerDestroyEvent).Reason != domain.DestroyReasonChannelDeleted {
		t.Errorf("unexpected destroy events %+v", destroys)
	}
}

func TestManager_DispatchPlayerEvent(t *testing.T) {
	env := newTestEnv(t, nil)
	player := env.newPlayer(t)

	state := domain.PlayerStatePayload{GuildID: testGuildID, Position: 42 * time.Second, Connected: true, Ping: 5 * time.Millisecond}

	if env.manager.DispatchPlayerEvent("other", state) {
		t.Error("frames from another node must be dropped")
	}
	if env.manager.DispatchPlayerEvent("main", domain.PlayerStatePayload{GuildID: 555}) {
		t.Error("frames for unknown guilds must be dropped")
	}
	if !env.manager.DispatchPlayerEvent("main", state) {
		t.Fatal("expected the frame to be accepted")
	}

	waitFor(t, func() bool { return len(env.publisher.ofKind(domain.EventPlayerUpdate)) == 1 })
	if got := player.Ping(); got != 5*time.Millisecond {
		t.Errorf("Ping() = %v", got)
	}
}

func TestManager_DestroyNodePlayers(t *testing.T) {
	env := newTestEnv(t, nil)
	player := env.newPlayer(t)

	env.manager.DestroyNodePlayers(context.Background(), "other", domain.DestroyReasonNodeDestroy)
	if player.IsDestroyed() {
		t.Fatal("players on other nodes must survive")
	}

	env.manager.DestroyNodePlayers(context.Background(), "main", domain.DestroyReasonNodeDestroy)
	if !player.IsDestroyed() {
		t.Fatal("expected the player to be destroyed")
	}
	if len(env.manager.Players()) != 0 {
		t.Error("expected no players left")
	}
	if err := env.manager.DestroyPlayer(context.Background(), testGuildID, domain.DestroyReasonLeaveCommand); !errors.Is(err, ErrPlayerNotFound) {
		t.Errorf("expected ErrPlayerNotFound, got %v", err)
	}
}

func TestManager_Search(t *testing.T) {
	found := &domain.TrackList{
		Type:          domain.TrackListTypeSearch,
		SelectedTrack: -1,
		Tracks:        []domain.Track{testTrack("a")},
	}

	tests := []struct {
		name     string
		input    string
		policy   domain.LinkPolicy
		setup    func(*mockNode)
		wantErr  error
		wantLoad string
	}{
		{
			name:     "search on default platform",
			input:    "some song",
			policy:   domain.LinkPolicy{LinksAllowed: true},
			setup:    func(n *mockNode) { n.results["ytsearch:some song"] = found },
			wantLoad: "ytsearch:some song",
		},
		{
			name:     "explicit platform",
			input:    "scsearch:some song",
			policy:   domain.LinkPolicy{LinksAllowed: true},
			setup:    func(n *mockNode) { n.results["scsearch:some song"] = found },
			wantLoad: "scsearch:some song",
		},
		{
			name:    "empty input",
			input:   "   ",
			wantErr: ErrNoResults,
		},
		{
			name:    "links not allowed",
			input:   "https://www.youtube.com/watch?v=a",
			wantErr: domain.ErrLinksNotAllowed,
		},
		{
			name:    "blacklisted word",
			input:   "forbidden song",
			policy:  domain.LinkPolicy{Blacklist: []string{"forbidden"}},
			wantErr: domain.ErrLinkBlacklisted,
		},
		{
			name:    "link not whitelisted",
			input:   "https://soundcloud.com/a/b",
			policy:  domain.LinkPolicy{LinksAllowed: true, Whitelist: []string{"youtube.com"}},
			wantErr: domain.ErrLinkNotWhitelisted,
		},
		{
			name:    "source not enabled",
			input:   "spsearch:some song",
			policy:  domain.LinkPolicy{LinksAllowed: true},
			wantErr: domain.ErrSourceNotEnabled,
		},
		{
			name:    "load failure",
			input:   "some song",
			policy:  domain.LinkPolicy{LinksAllowed: true},
			setup:   func(n *mockNode) { n.loadErr = errors.New("boom") },
			wantErr: ErrLoadFailed,
		},
		{
			name:   "node exception",
			input:  "some song",
			policy: domain.LinkPolicy{LinksAllowed: true},
			setup: func(n *mockNode) {
				n.results["ytsearch:some song"] = &domain.TrackList{
					Type:      domain.TrackListTypeError,
					Exception: &domain.TrackException{Message: "blocked", Severity: "common"},
				}
			},
			wantErr: ErrLoadFailed,
		},
		{
			name:    "no results",
			input:   "some song",
			policy:  domain.LinkPolicy{LinksAllowed: true},
			wantErr: ErrNoResults,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, func(o *ManagerOptions) { o.LinkPolicy = tt.policy })
			if tt.setup != nil {
				tt.setup(env.node)
			}

			list, err := env.manager.Search(context.Background(), tt.input)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(list.Tracks) != 1 {
				t.Errorf("expected 1 track, got %d", len(list.Tracks))
			}
			if loads := env.node.getLoads(); len(loads) != 1 || loads[0] != tt.wantLoad {
				t.Errorf("loads = %v, want [%s]", loads, tt.wantLoad)
			}
		})
	}
}
