package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/disgoorg/disgolink/v3/lavalink"
	"github.com/disgoorg/snowflake/v2"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sglre6355/sgrlink/internal/modules/music_player/application/ports"
	"github.com/sglre6355/sgrlink/internal/modules/music_player/domain"
	"golang.org/x/time/rate"
)

// NodeState is the connection state of a node.
type NodeState int

const (
	NodeDisconnected NodeState = iota
	NodeConnecting
	NodeConnected
	NodeDestroyed
)

func (s NodeState) String() string {
	switch s {
	case NodeDisconnected:
		return "disconnected"
	case NodeConnecting:
		return "connecting"
	case NodeConnected:
		return "connected"
	case NodeDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

var _ ports.Node = (*Node)(nil)

type pendingRequest struct {
	method   string
	path     string
	deadline time.Time
	cancel   context.CancelFunc
}

// Node is a connection to one Lavalink server: an event socket plus the REST API.
type Node struct {
	config     NodeConfig
	userID     snowflake.ID
	clientName string
	publisher  ports.EventPublisher

	httpClient *http.Client
	dialer     *websocket.Dialer
	limiter    *rate.Limiter

	// ctx lives until Destroy.
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.RWMutex
	state     NodeState
	conn      *websocket.Conn
	sessionID string
	info      *ports.NodeInfo
	stats     ports.NodeStats
	attempts  int
	exhausted bool
	sink      ports.PlayerEventSink

	pendingMu sync.Mutex
	pending   map[uuid.UUID]*pendingRequest
}

// NewNode creates a node. It does not connect.
func NewNode(
	config NodeConfig,
	userID snowflake.ID,
	clientName string,
	publisher ports.EventPublisher,
) (*Node, error) {
	config = config.WithDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	n := &Node{
		config:     config,
		userID:     userID,
		clientName: clientName,
		publisher:  publisher,
		httpClient: &http.Client{},
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: config.RequestTimeout,
		},
		ctx:       ctx,
		cancel:    cancel,
		sessionID: config.SessionID,
		pending:   make(map[uuid.UUID]*pendingRequest),
	}
	if config.RequestsPerSecond > 0 {
		burst := max(int(config.RequestsPerSecond), 1)
		n.limiter = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), burst)
	}
	return n, nil
}

// ID returns the configured node id.
func (n *Node) ID() string { return n.config.ID }

// Config returns the node configuration with defaults applied.
func (n *Node) Config() NodeConfig { return n.config }

// State returns the connection state.
func (n *Node) State() NodeState {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.state
}

// IsConnected reports whether the socket is up and a session id is known.
func (n *Node) IsConnected() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.state == NodeConnected && n.sessionID != ""
}

// Exhausted reports whether automatic reconnection gave up.
func (n *Node) Exhausted() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.exhausted
}

// SessionID returns the current session id.
func (n *Node) SessionID() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.sessionID
}

// Info returns the capabilities reported by the node, or nil.
func (n *Node) Info() *ports.NodeInfo {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.info
}

// Stats returns the latest stats pushed by the node.
func (n *Node) Stats() ports.NodeStats {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.stats
}

// SetPlayerEventSink sets the receiver of guild scoped frames.
func (n *Node) SetPlayerEventSink(sink ports.PlayerEventSink) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sink = sink
}

// Connect opens the event socket and waits for the ready frame.
func (n *Node) Connect(ctx context.Context) error {
	n.mu.Lock()
	switch n.state {
	case NodeDestroyed:
		n.mu.Unlock()
		return ErrNodeDestroyed
	case NodeConnecting:
		n.mu.Unlock()
		return ErrNodeConnecting
	case NodeConnected:
		n.mu.Unlock()
		return nil
	}
	previous := n.state
	n.state = NodeConnecting
	sessionID := n.sessionID
	n.mu.Unlock()

	restore := func() {
		n.mu.Lock()
		if n.state == NodeConnecting {
			n.state = previous
		}
		n.mu.Unlock()
	}

	header := http.Header{}
	header.Set("Authorization", n.config.Authorization)
	header.Set("User-Id", n.userID.String())
	header.Set("Client-Name", n.clientName)
	if sessionID != "" {
		header.Set("Session-Id", sessionID)
	}

	slog.Debug("connecting to node", "node", n.ID(), "url", n.config.WebSocketURL())

	conn, resp, err := n.dialer.DialContext(ctx, n.config.WebSocketURL(), header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		restore()
		if resp != nil {
			return fmt.Errorf("%w: status %d", ErrHandshakeRejected, resp.StatusCode)
		}
		return fmt.Errorf("failed to dial node %s: %w", n.ID(), err)
	}

	ready, err := n.awaitReady(ctx, conn)
	if err != nil {
		conn.Close()
		restore()
		return err
	}

	n.mu.Lock()
	if n.state == NodeDestroyed {
		n.mu.Unlock()
		conn.Close()
		return ErrNodeDestroyed
	}
	n.conn = conn
	n.sessionID = ready.SessionID
	n.state = NodeConnected
	n.attempts = 0
	n.exhausted = false
	n.mu.Unlock()

	go n.readLoop(conn)

	slog.Info("node connected", "node", n.ID(), "session", ready.SessionID, "resumed", ready.Resumed)

	if n.config.ResumeTimeout > 0 {
		if err := n.UpdateSession(ctx, true, n.config.ResumeTimeout); err != nil {
			slog.Warn("failed to configure session resuming", "node", n.ID(), "error", err)
		}
	}
	if _, err := n.FetchInfo(ctx); err != nil {
		slog.Warn("failed to fetch node info", "node", n.ID(), "error", err)
	}

	n.publish(domain.NodeConnectEvent{NodeID: n.ID(), Resumed: ready.Resumed})
	return nil
}

func (n *Node) awaitReady(ctx context.Context, conn *websocket.Conn) (lavalink.ReadyMessage, error) {
	deadline := time.Now().Add(n.config.RequestTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return lavalink.ReadyMessage{}, err
	}

	_, data, err := conn.ReadMessage()
	if err != nil {
		return lavalink.ReadyMessage{}, fmt.Errorf("failed to read ready frame: %w", err)
	}
	n.publish(domain.NodeRawEvent{NodeID: n.ID(), Data: data})

	message, err := lavalink.UnmarshalMessage(data)
	if err != nil {
		return lavalink.ReadyMessage{}, fmt.Errorf("failed to decode ready frame: %w", err)
	}
	ready, ok := message.(lavalink.ReadyMessage)
	if !ok || ready.SessionID == "" {
		return lavalink.ReadyMessage{}, fmt.Errorf("expected ready frame, got %q", message.Op())
	}

	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		return lavalink.ReadyMessage{}, err
	}
	return ready, nil
}

// Reconnect connects again after the retry budget ran out. The budget is
// reset. A node that stays unreachable keeps reporting Exhausted.
func (n *Node) Reconnect(ctx context.Context) error {
	n.mu.Lock()
	wasExhausted := n.exhausted
	n.attempts = 0
	n.exhausted = false
	n.mu.Unlock()

	err := n.Connect(ctx)
	if err != nil && wasExhausted {
		n.mu.Lock()
		if n.state == NodeDisconnected {
			n.exhausted = true
		}
		n.mu.Unlock()
	}
	return err
}

func (n *Node) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			n.handleClose(conn, err)
			return
		}
		n.handleMessage(data)
	}
}

func (n *Node) handleClose(conn *websocket.Conn, err error) {
	n.mu.Lock()
	if n.conn != conn {
		n.mu.Unlock()
		return
	}
	n.conn = nil
	if n.state == NodeDestroyed {
		n.mu.Unlock()
		return
	}
	n.state = NodeDisconnected
	n.mu.Unlock()
	conn.Close()

	code, reason := websocket.CloseAbnormalClosure, err.Error()
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		code, reason = closeErr.Code, closeErr.Text
	}

	slog.Warn("node disconnected", "node", n.ID(), "code", code, "reason", reason)
	n.publish(domain.NodeDisconnectEvent{NodeID: n.ID(), Code: code, Reason: reason})

	go n.reconnectLoop()
}

// reconnectLoop retries the connection until it succeeds, the node is
// destroyed or RetryAmount attempts have failed.
func (n *Node) reconnectLoop() {
	timer := time.NewTimer(n.config.RetryDelay)
	defer timer.Stop()

	for {
		n.mu.Lock()
		if n.state != NodeDisconnected {
			n.mu.Unlock()
			return
		}
		if n.attempts >= n.config.RetryAmount {
			n.exhausted = true
			attempts := n.attempts
			n.mu.Unlock()

			slog.Error("giving up on node", "node", n.ID(), "attempts", attempts)
			n.publish(domain.NodeErrorEvent{
				NodeID: n.ID(),
				Err:    fmt.Errorf("node %s: %w after %d attempts", n.ID(), ErrRetryBudgetExhausted, attempts),
			})
			return
		}
		n.attempts++
		attempt := n.attempts
		n.mu.Unlock()

		timer.Reset(n.config.RetryDelay)
		select {
		case <-n.ctx.Done():
			return
		case <-timer.C:
		}

		n.publish(domain.NodeReconnectingEvent{NodeID: n.ID(), Attempt: attempt})

		ctx, cancel := context.WithTimeout(n.ctx, n.config.RequestTimeout)
		err := n.Connect(ctx)
		cancel()
		if err == nil {
			return
		}
		if errors.Is(err, ErrNodeDestroyed) || errors.Is(err, ErrNodeConnecting) {
			return
		}
		slog.Warn("node reconnect failed", "node", n.ID(), "attempt", attempt, "error", err)
		n.publish(domain.NodeErrorEvent{NodeID: n.ID(), Err: err})
	}
}

func (n *Node) handleMessage(data []byte) {
	n.publish(domain.NodeRawEvent{NodeID: n.ID(), Data: data})

	message, err := lavalink.UnmarshalMessage(data)
	if err != nil {
		slog.Warn("failed to decode node frame", "node", n.ID(), "error", err)
		return
	}

	switch msg := message.(type) {
	case lavalink.ReadyMessage:
		n.mu.Lock()
		n.sessionID = msg.SessionID
		n.mu.Unlock()
	case lavalink.StatsMessage:
		n.mu.Lock()
		n.stats = toStats(msg.Players, msg.PlayingPlayers, time.Duration(msg.Uptime)*time.Millisecond, msg.CPU.SystemLoad, msg.CPU.LavalinkLoad)
		n.mu.Unlock()
	default:
		payload, ok := toPlayerPayload(message, data)
		if !ok {
			slog.Debug("ignoring unknown node op", "node", n.ID(), "op", message.Op())
			return
		}
		n.mu.RLock()
		sink := n.sink
		n.mu.RUnlock()
		if sink == nil || !sink.DispatchPlayerEvent(n.ID(), payload) {
			slog.Debug("dropping frame for unknown guild", "node", n.ID(), "guild", payload.Guild(), "op", message.Op())
		}
	}
}

// Destroy closes the node for good. Outstanding requests are cancelled.
func (n *Node) Destroy(reason string) {
	n.mu.Lock()
	if n.state == NodeDestroyed {
		n.mu.Unlock()
		return
	}
	n.state = NodeDestroyed
	conn := n.conn
	n.conn = nil
	n.mu.Unlock()

	n.cancel()

	n.pendingMu.Lock()
	for id, p := range n.pending {
		p.cancel()
		delete(n.pending, id)
	}
	n.pendingMu.Unlock()

	if conn != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		conn.Close()
	}

	slog.Info("node destroyed", "node", n.ID(), "reason", reason)
	n.publish(domain.NodeDestroyEvent{NodeID: n.ID(), Reason: reason})
}

// PendingRequests returns the number of REST calls in flight.
func (n *Node) PendingRequests() int {
	n.pendingMu.Lock()
	defer n.pendingMu.Unlock()
	return len(n.pending)
}

func (n *Node) publish(event domain.Event) {
	if n.publisher == nil {
		return
	}
	if err := n.publisher.Publish(event); err != nil {
		slog.Debug("failed to publish node event", "node", n.ID(), "type", event.Kind(), "error", err)
	}
}
