package infrastructure

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/disgoorg/disgolink/v3/lavalink"
	"github.com/disgoorg/snowflake/v2"
	"github.com/google/uuid"
	"github.com/sglre6355/sgrlink/internal/modules/music_player/application/ports"
	"github.com/sglre6355/sgrlink/internal/modules/music_player/domain"
)

// Request performs a REST call against the node and decodes the JSON
// response into each non-nil out. Failed calls are not retried.
func (n *Node) Request(ctx context.Context, method, path string, body any, outs ...any) error {
	data, err := n.requestRaw(ctx, method, path, body)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	for _, out := range outs {
		if out == nil {
			continue
		}
		if err := json.Unmarshal(data, out); err != nil {
			return &RequestError{
				Method: method,
				Path:   path,
				Kind:   ErrRequestTransport,
				Err:    fmt.Errorf("failed to decode response: %w", err),
			}
		}
	}
	return nil
}

func (n *Node) requestRaw(ctx context.Context, method, path string, body any) ([]byte, error) {
	if n.State() == NodeDestroyed {
		return nil, &RequestError{Method: method, Path: path, Kind: ErrRequestTransport, Err: ErrNodeDestroyed}
	}

	ctx, cancel := context.WithTimeout(ctx, n.config.RequestTimeout)
	defer cancel()

	id := n.track(ctx, method, path, cancel)
	defer n.untrack(id)

	fail := func(err error) error {
		kind := ErrRequestTransport
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			kind = ErrRequestTimeout
		}
		return &RequestError{Method: method, Path: path, Kind: kind, Err: err}
	}

	if n.limiter != nil {
		if err := n.limiter.Wait(ctx); err != nil {
			return nil, fail(err)
		}
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, n.config.RestURL()+path, reader)
	if err != nil {
		return nil, fail(err)
	}
	req.Header.Set("Authorization", n.config.Authorization)
	req.Header.Set("Client-Name", n.clientName)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return nil, fail(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fail(err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var e lavalink.Error
		_ = json.Unmarshal(data, &e)
		message := e.Message
		if message == "" {
			message = http.StatusText(resp.StatusCode)
		}
		return nil, &RequestError{
			Method:  method,
			Path:    path,
			Status:  resp.StatusCode,
			Message: message,
			Kind:    ErrRequestStatus,
		}
	}

	slog.Debug("node request done", "node", n.ID(), "method", method, "path", path, "status", resp.StatusCode)
	return data, nil
}

func (n *Node) track(ctx context.Context, method, path string, cancel context.CancelFunc) uuid.UUID {
	deadline, _ := ctx.Deadline()
	id := uuid.New()

	n.pendingMu.Lock()
	defer n.pendingMu.Unlock()
	n.pending[id] = &pendingRequest{method: method, path: path, deadline: deadline, cancel: cancel}
	return id
}

func (n *Node) untrack(id uuid.UUID) {
	n.pendingMu.Lock()
	defer n.pendingMu.Unlock()
	delete(n.pending, id)
}

func (n *Node) sessionPath(format string, args ...any) (string, error) {
	sessionID := n.SessionID()
	if sessionID == "" {
		return "", ErrNoSession
	}
	return "/v4/sessions/" + url.PathEscape(sessionID) + fmt.Sprintf(format, args...), nil
}

// UpdatePlayer patches the player of guildID. Nil fields of update are left
// untouched by the node.
func (n *Node) UpdatePlayer(
	ctx context.Context,
	guildID snowflake.ID,
	update ports.PlayerUpdate,
	noReplace bool,
) error {
	path, err := n.sessionPath("/players/%s?noReplace=%t", guildID, noReplace)
	if err != nil {
		return err
	}
	return n.Request(ctx, http.MethodPatch, path, update, nil)
}

// DestroyPlayer removes the player of guildID from the node.
func (n *Node) DestroyPlayer(ctx context.Context, guildID snowflake.ID) error {
	path, err := n.sessionPath("/players/%s", guildID)
	if err != nil {
		return err
	}
	return n.Request(ctx, http.MethodDelete, path, nil, nil)
}

// FetchPlayer returns the node's view of the player of guildID.
func (n *Node) FetchPlayer(ctx context.Context, guildID snowflake.ID) (*NodePlayer, error) {
	path, err := n.sessionPath("/players/%s", guildID)
	if err != nil {
		return nil, err
	}
	var (
		msg   lavalink.Player
		flags struct {
			Track seekableTrack `json:"track"`
		}
	)
	if err := n.Request(ctx, http.MethodGet, path, nil, &msg, &flags); err != nil {
		return nil, err
	}
	player, err := toNodePlayer(msg, flags.Track)
	if err != nil {
		return nil, err
	}
	return &player, nil
}

// FetchAllPlayers returns every player of the current session.
func (n *Node) FetchAllPlayers(ctx context.Context) ([]NodePlayer, error) {
	path, err := n.sessionPath("/players")
	if err != nil {
		return nil, err
	}
	var (
		msgs  []lavalink.Player
		flags []struct {
			Track seekableTrack `json:"track"`
		}
	)
	if err := n.Request(ctx, http.MethodGet, path, nil, &msgs, &flags); err != nil {
		return nil, err
	}
	players := make([]NodePlayer, 0, len(msgs))
	for i, m := range msgs {
		var track seekableTrack
		if i < len(flags) {
			track = flags[i].Track
		}
		player, err := toNodePlayer(m, track)
		if err != nil {
			return nil, err
		}
		players = append(players, player)
	}
	return players, nil
}

// UpdateSession configures session resuming.
func (n *Node) UpdateSession(ctx context.Context, resuming bool, timeout time.Duration) error {
	path, err := n.sessionPath("")
	if err != nil {
		return err
	}
	body := sessionUpdate{Resuming: resuming, Timeout: int64(timeout / time.Second)}
	return n.Request(ctx, http.MethodPatch, path, body, nil)
}

// FetchInfo fetches and caches the node's capabilities.
func (n *Node) FetchInfo(ctx context.Context) (*ports.NodeInfo, error) {
	var msg lavalink.Info
	if err := n.Request(ctx, http.MethodGet, "/v4/info", nil, &msg); err != nil {
		return nil, err
	}
	info := toNodeInfo(msg)

	n.mu.Lock()
	n.info = info
	n.mu.Unlock()
	return info, nil
}

// FetchStats fetches and caches the node's load.
func (n *Node) FetchStats(ctx context.Context) (ports.NodeStats, error) {
	var msg lavalink.Stats
	if err := n.Request(ctx, http.MethodGet, "/v4/stats", nil, &msg); err != nil {
		return ports.NodeStats{}, err
	}
	stats := toStats(msg.Players, msg.PlayingPlayers, time.Duration(msg.Uptime)*time.Millisecond, msg.CPU.SystemLoad, msg.CPU.LavalinkLoad)

	n.mu.Lock()
	n.stats = stats
	n.mu.Unlock()
	return stats, nil
}

// FetchVersion returns the server version string.
func (n *Node) FetchVersion(ctx context.Context) (string, error) {
	data, err := n.requestRaw(ctx, http.MethodGet, "/version", nil)
	if err != nil {
		return "", err
	}
	return string(bytes.TrimSpace(data)), nil
}

// DecodeTrack decodes an encoded track token.
func (n *Node) DecodeTrack(ctx context.Context, encoded string) (domain.Track, error) {
	var (
		track lavalink.Track
		flags seekableTrack
	)
	path := "/v4/decodetrack?encodedTrack=" + url.QueryEscape(encoded)
	if err := n.Request(ctx, http.MethodGet, path, nil, &track, &flags); err != nil {
		return domain.Track{}, err
	}
	return toDomainTrack(track, flags.Info.IsSeekable), nil
}

// LoadTracks loads a URL or a prefixed search query.
func (n *Node) LoadTracks(ctx context.Context, identifier string) (*domain.TrackList, error) {
	var (
		result lavalink.LoadResult
		raw    struct {
			Data json.RawMessage `json:"data"`
		}
	)
	path := "/v4/loadtracks?identifier=" + url.QueryEscape(identifier)
	if err := n.Request(ctx, http.MethodGet, path, nil, &result, &raw); err != nil {
		return nil, err
	}
	list, err := toTrackList(result, raw.Data)
	if err != nil {
		return nil, &RequestError{
			Method: http.MethodGet,
			Path:   path,
			Kind:   ErrRequestTransport,
			Err:    fmt.Errorf("failed to decode load result: %w", err),
		}
	}
	return list, nil
}
