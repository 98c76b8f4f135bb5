package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/sgrlink/internal/modules/music_player/application/ports"
	"github.com/sglre6355/sgrlink/internal/modules/music_player/domain"
)

// NodeComparator orders candidate nodes. It returns a negative number when a
// should be preferred over b.
type NodeComparator func(a, b *Node) int

// LeastPlayers prefers nodes with fewer players, then the lower id.
func LeastPlayers(a, b *Node) int {
	if d := a.Stats().Players - b.Stats().Players; d != 0 {
		return d
	}
	return strings.Compare(a.ID(), b.ID())
}

// LeastLoad prefers nodes with the lower Lavalink CPU load.
func LeastLoad(a, b *Node) int {
	la, lb := a.Stats().LavalinkLoad, b.Stats().LavalinkLoad
	switch {
	case la < lb:
		return -1
	case la > lb:
		return 1
	}
	return LeastPlayers(a, b)
}

var _ ports.NodeProvider = (*NodeManager)(nil)

// NodeManager owns the pool of nodes.
type NodeManager struct {
	userID     snowflake.ID
	clientName string
	publisher  ports.EventPublisher
	comparator NodeComparator

	mu    sync.RWMutex
	nodes map[string]*Node
	sink  ports.PlayerEventSink
}

// NewNodeManager creates an empty pool. A nil comparator selects LeastPlayers.
func NewNodeManager(
	userID snowflake.ID,
	clientName string,
	publisher ports.EventPublisher,
	comparator NodeComparator,
) *NodeManager {
	if comparator == nil {
		comparator = LeastPlayers
	}
	return &NodeManager{
		userID:     userID,
		clientName: clientName,
		publisher:  publisher,
		comparator: comparator,
		nodes:      make(map[string]*Node),
	}
}

// SetPlayerEventSink sets the receiver of guild scoped frames for every node.
func (m *NodeManager) SetPlayerEventSink(sink ports.PlayerEventSink) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sink = sink
	for _, n := range m.nodes {
		n.SetPlayerEventSink(sink)
	}
}

// AddNode registers a node. It does not connect.
func (m *NodeManager) AddNode(config NodeConfig) (*Node, error) {
	node, err := NewNode(config, m.userID, m.clientName, m.publisher)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if _, ok := m.nodes[node.ID()]; ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDuplicateNode, node.ID())
	}
	node.SetPlayerEventSink(m.sink)
	m.nodes[node.ID()] = node
	m.mu.Unlock()

	slog.Info("node added", "node", node.ID(), "address", node.Config().Address())
	if m.publisher != nil {
		_ = m.publisher.Publish(domain.NodeCreateEvent{NodeID: node.ID()})
	}
	return node, nil
}

// RemoveNode destroys and unregisters a node.
func (m *NodeManager) RemoveNode(id string) error {
	return m.removeNode(id, domain.DestroyReasonNodeDeleted)
}

func (m *NodeManager) removeNode(id string, reason domain.DestroyReason) error {
	m.mu.Lock()
	node, ok := m.nodes[id]
	delete(m.nodes, id)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	node.Destroy(string(reason))
	return nil
}

// Node returns the node with the given id.
func (m *NodeManager) Node(id string) (*Node, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	node, ok := m.nodes[id]
	return node, ok
}

// Nodes returns all nodes ordered by id.
func (m *NodeManager) Nodes() []*Node {
	m.mu.RLock()
	nodes := make([]*Node, 0, len(m.nodes))
	for _, n := range m.nodes {
		nodes = append(nodes, n)
	}
	m.mu.RUnlock()

	slices.SortFunc(nodes, func(a, b *Node) int { return strings.Compare(a.ID(), b.ID()) })
	return nodes
}

// ConnectAll connects every node concurrently and returns how many are
// connected. Nodes whose retry budget ran out are reconnected with a fresh
// budget. It fails only when none could connect.
func (m *NodeManager) ConnectAll(ctx context.Context) (int, error) {
	nodes := m.Nodes()
	if len(nodes) == 0 {
		return 0, ErrNoUsableNode
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, n := range nodes {
		wg.Go(func() {
			if err := connectNode(ctx, n); err != nil {
				slog.Error("failed to connect node", "node", n.ID(), "error", err)
				mu.Lock()
				errs = append(errs, fmt.Errorf("node %s: %w", n.ID(), err))
				mu.Unlock()
			}
		})
	}
	wg.Wait()

	connected := 0
	for _, n := range nodes {
		if n.IsConnected() {
			connected++
		}
	}
	if connected == 0 {
		return 0, fmt.Errorf("%w: %w", ErrNoUsableNode, errors.Join(errs...))
	}
	return connected, nil
}

// ReconnectExhausted reconnects the nodes that gave up reconnecting and
// returns how many of them are connected again.
func (m *NodeManager) ReconnectExhausted(ctx context.Context) int {
	revived := 0
	for _, n := range m.Nodes() {
		if !n.Exhausted() {
			continue
		}
		if err := n.Reconnect(ctx); err != nil {
			slog.Warn("exhausted node is still unreachable", "node", n.ID(), "error", err)
			continue
		}
		slog.Info("exhausted node reconnected", "node", n.ID())
		revived++
	}
	return revived
}

func connectNode(ctx context.Context, n *Node) error {
	if n.Exhausted() {
		return n.Reconnect(ctx)
	}
	return n.Connect(ctx)
}

// UsableNode returns the node with the given id if it is connected.
func (m *NodeManager) UsableNode(id string) (ports.Node, error) {
	node, ok := m.Node(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	if !node.IsConnected() {
		return nil, fmt.Errorf("%w: %s is %s", ErrNoUsableNode, id, node.State())
	}
	return node, nil
}

// LeastUsedNode returns the preferred connected node for region. Nodes
// without regions serve every region.
func (m *NodeManager) LeastUsedNode(region string) (ports.Node, error) {
	candidates := make([]*Node, 0)
	for _, n := range m.Nodes() {
		if !n.IsConnected() {
			continue
		}
		regions := n.Config().Regions
		if region != "" && len(regions) > 0 && !slices.Contains(regions, region) {
			continue
		}
		candidates = append(candidates, n)
	}
	if len(candidates) == 0 {
		if region != "" {
			return nil, fmt.Errorf("%w: region %q", ErrNoUsableNode, region)
		}
		return nil, ErrNoUsableNode
	}

	slices.SortStableFunc(candidates, m.comparator)
	return candidates[0], nil
}

// Close destroys every node.
func (m *NodeManager) Close() {
	for _, n := range m.Nodes() {
		_ = m.removeNode(n.ID(), domain.DestroyReasonNodeDestroy)
	}
}
