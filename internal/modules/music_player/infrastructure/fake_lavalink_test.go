package infrastructure

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sglre6355/sgrlink/internal/modules/music_player/domain"
)

const (
	fakePassword  = "youshallnotpass"
	fakeSessionID = "sess-1"
)

const fakeInfo = `{
	"version": {"semver": "4.0.8"},
	"sourceManagers": ["youtube", "soundcloud", "http"],
	"filters": ["volume", "equalizer", "timescale"],
	"plugins": [{"name": "sponsorblock-plugin", "version": "3.0.0"}]
}`

const fakeSearchResult = `{
	"loadType": "search",
	"data": [
		{
			"encoded": "enc-a",
			"info": {
				"identifier": "a",
				"isSeekable": true,
				"author": "Artist",
				"length": 180000,
				"isStream": false,
				"position": 0,
				"title": "Song A",
				"uri": "https://www.youtube.com/watch?v=a",
				"artworkUrl": null,
				"isrc": "USRC17607839",
				"sourceName": "youtube"
			},
			"pluginInfo": {},
			"userData": {}
		},
		{
			"encoded": "enc-b",
			"info": {
				"identifier": "b",
				"isSeekable": false,
				"author": "Other",
				"length": 200000,
				"isStream": true,
				"position": 0,
				"title": "Song B",
				"uri": null,
				"artworkUrl": null,
				"isrc": null,
				"sourceName": "youtube"
			},
			"pluginInfo": {},
			"userData": {}
		}
	]
}`

const fakePlayers = `[
	{
		"guildId": "1",
		"track": null,
		"volume": 80,
		"paused": true,
		"state": {"time": 1500000000000, "position": 2500, "connected": true, "ping": 3},
		"voice": {"token": "tok", "endpoint": "eu.discord.media", "sessionId": "voice-session"},
		"filters": {"timescale": {"speed": 1.2, "pitch": 1.0, "rate": 1.0}}
	}
]`

// fakeLavalink is an in-process Lavalink v4 server.
type fakeLavalink struct {
	t      *testing.T
	server *httptest.Server

	upgrader websocket.Upgrader
	reject   atomic.Bool
	dials    atomic.Int32

	mu      sync.Mutex
	conns   []*websocket.Conn
	patches []fakePatch
	headers http.Header
}

type fakePatch struct {
	Path  string
	Query url.Values
	Body  []byte
}

func newFakeLavalink(t *testing.T) *fakeLavalink {
	t.Helper()

	f := &fakeLavalink{t: t}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v4/websocket", f.handleSocket)
	mux.HandleFunc("GET /v4/info", f.authorized(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, fakeInfo)
	}))
	mux.HandleFunc("GET /v4/stats", f.authorized(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, `{"players": 2, "playingPlayers": 1, "uptime": 1000, "cpu": {"cores": 4, "systemLoad": 0.5, "lavalinkLoad": 0.25}}`)
	}))
	mux.HandleFunc("GET /version", f.authorized(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "4.0.8\n")
	}))
	mux.HandleFunc("PATCH /v4/sessions/{sid}", f.authorized(f.recordPatch))
	mux.HandleFunc("PATCH /v4/sessions/{sid}/players/{gid}", f.authorized(f.recordPatch))
	mux.HandleFunc("DELETE /v4/sessions/{sid}/players/{gid}", f.authorized(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	mux.HandleFunc("GET /v4/sessions/{sid}/players", f.authorized(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, fakePlayers)
	}))
	mux.HandleFunc("GET /v4/sessions/{sid}/players/{gid}", f.authorized(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, `{"timestamp": 0, "status": 404, "error": "Not Found", "message": "Player not found", "path": "`+r.URL.Path+`"}`)
	}))
	mux.HandleFunc("GET /v4/loadtracks", f.authorized(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("identifier") == "ytsearch:nothing" {
			writeJSON(w, http.StatusOK, `{"loadType": "empty", "data": {}}`)
			return
		}
		writeJSON(w, http.StatusOK, fakeSearchResult)
	}))
	mux.HandleFunc("GET /slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(func() {
		f.closeConns(websocket.CloseGoingAway)
		f.server.Close()
	})
	return f
}

func (f *fakeLavalink) authorized(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != fakePassword {
			writeJSON(w, http.StatusUnauthorized, `{"status": 401, "error": "Unauthorized", "message": "bad password"}`)
			return
		}
		next(w, r)
	}
}

func (f *fakeLavalink) handleSocket(w http.ResponseWriter, r *http.Request) {
	f.dials.Add(1)
	if f.reject.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	if r.Header.Get("Authorization") != fakePassword {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	// writes to conn are serialised by f.mu, shared with send
	ready := `{"op": "ready", "resumed": false, "sessionId": "` + fakeSessionID + `"}`
	f.mu.Lock()
	f.headers = r.Header.Clone()
	err = conn.WriteMessage(websocket.TextMessage, []byte(ready))
	if err == nil {
		f.conns = append(f.conns, conn)
	}
	f.mu.Unlock()
	if err != nil {
		return
	}

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (f *fakeLavalink) recordPatch(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	f.mu.Lock()
	f.patches = append(f.patches, fakePatch{Path: r.URL.Path, Query: r.URL.Query(), Body: body})
	f.mu.Unlock()

	writeJSON(w, http.StatusOK, `{}`)
}

// send pushes a frame to every connected client.
func (f *fakeLavalink) send(frame string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.conns {
		_ = c.WriteMessage(websocket.TextMessage, []byte(frame))
	}
}

// closeConns closes every socket with a close frame.
func (f *fakeLavalink) closeConns(code int) {
	f.mu.Lock()
	conns := f.conns
	f.conns = nil
	f.mu.Unlock()

	for _, c := range conns {
		msg := websocket.FormatCloseMessage(code, "bye")
		_ = c.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = c.Close()
	}
}

func (f *fakeLavalink) getPatches() []fakePatch {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fakePatch(nil), f.patches...)
}

func (f *fakeLavalink) getHeaders() http.Header {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.headers
}

// config returns a node config pointing at the fake server.
func (f *fakeLavalink) config() NodeConfig {
	u, err := url.Parse(f.server.URL)
	if err != nil {
		f.t.Fatalf("failed to parse server url: %v", err)
	}
	port, _ := strconv.Atoi(u.Port())
	return NodeConfig{
		ID:             "fake",
		Host:           u.Hostname(),
		Port:           port,
		Authorization:  fakePassword,
		RetryAmount:    3,
		RetryDelay:     10 * time.Millisecond,
		RequestTimeout: time.Second,
	}
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

// recordingPublisher collects published events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (p *recordingPublisher) Publish(event domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) ofKind(kind domain.EventKind) []domain.Event {
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

// recordingSink collects dispatched player payloads.
type recordingSink struct {
	mu       sync.Mutex
	known    bool
	payloads []domain.PlayerPayload
}

func (s *recordingSink) DispatchPlayerEvent(_ string, payload domain.PlayerPayload) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payloads = append(s.payloads, payload)
	return s.known
}

func (s *recordingSink) get() []domain.PlayerPayload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.PlayerPayload(nil), s.payloads...)
}
