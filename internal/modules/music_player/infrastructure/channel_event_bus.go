package infrastructure

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/sglre6355/sgrlink/internal/modules/music_player/application/ports"
	"github.com/sglre6355/sgrlink/internal/modules/music_player/domain"
)

// DefaultEventBufferSize is the default buffer size of the frequent-event lane.
const DefaultEventBufferSize = 100

// ErrEventBusClosed is returned when publishing to a closed bus.
var ErrEventBusClosed = errors.New("event bus is closed")

// ErrEventBufferFull is returned when a frequent event is dropped because its
// buffer is full.
var ErrEventBufferFull = errors.New("event buffer full")

// Compile-time checks that ChannelEventBus implements ports interfaces.
var (
	_ ports.EventPublisher  = (*ChannelEventBus)(nil)
	_ ports.EventSubscriber = (*ChannelEventBus)(nil)
)

// frequentKinds are published for every socket frame or position report.
// They go through a bounded lane and are dropped when it is full.
var frequentKinds = map[domain.EventKind]bool{
	domain.EventNodeRaw:      true,
	domain.EventPlayerUpdate: true,
}

type eventHandler struct {
	id     ports.Subscription
	handle func(context.Context, domain.Event)
}

// ChannelEventBus provides a channel-based event bus for async event handling.
// Frequent events travel in a bounded lane that drops on overflow; every other
// event is queued without limit and never dropped. Each lane is delivered by
// its own dispatcher in publish order. Events of a kind nobody subscribes to
// are discarded on publish.
type ChannelEventBus struct {
	frequent chan domain.Event

	queueMu     sync.Mutex
	queue       []domain.Event
	queueClosed bool
	wake        chan struct{}

	handlers map[domain.EventKind][]eventHandler
	nextID   ports.Subscription

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed bool
	mu     sync.RWMutex
}

// NewChannelEventBus creates a new ChannelEventBus whose frequent-event lane
// holds bufferSize events.
func NewChannelEventBus(bufferSize int) *ChannelEventBus {
	if bufferSize <= 0 {
		bufferSize = DefaultEventBufferSize
	}

	ctx, cancel := context.WithCancel(context.Background())

	bus := &ChannelEventBus{
		frequent: make(chan domain.Event, bufferSize),
		wake:     make(chan struct{}, 1),
		handlers: make(map[domain.EventKind][]eventHandler),
		ctx:      ctx,
		cancel:   cancel,
	}

	bus.wg.Add(2)
	go bus.dispatchFrequent()
	go bus.dispatchQueued()

	return bus
}

func (b *ChannelEventBus) dispatchFrequent() {
	defer b.wg.Done()
	for event := range b.frequent {
		b.deliver(event)
	}
}

func (b *ChannelEventBus) dispatchQueued() {
	defer b.wg.Done()
	for {
		event, ok, closed := b.dequeue()
		if ok {
			b.deliver(event)
			continue
		}
		if closed {
			return
		}
		<-b.wake
	}
}

func (b *ChannelEventBus) dequeue() (event domain.Event, ok, closed bool) {
	b.queueMu.Lock()
	defer b.queueMu.Unlock()
	if len(b.queue) == 0 {
		return nil, false, b.queueClosed
	}
	event = b.queue[0]
	b.queue[0] = nil
	b.queue = b.queue[1:]
	return event, true, false
}

func (b *ChannelEventBus) signal() {
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

func (b *ChannelEventBus) deliver(event domain.Event) {
	b.mu.RLock()
	handlers := b.handlers[event.Kind()]
	b.mu.RUnlock()
	for _, handler := range handlers {
		b.invoke(handler, event)
	}
}

func (b *ChannelEventBus) invoke(handler eventHandler, event domain.Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("event handler panicked", "type", event.Kind(), "panic", r)
		}
	}()
	handler.handle(b.ctx, event)
}

// --- EventPublisher interface ---

// Publish queues event for delivery. It never blocks. Frequent events are
// dropped with ErrEventBufferFull when their lane is full.
func (b *ChannelEventBus) Publish(event domain.Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		slog.Warn("attempted to publish to closed event bus", "type", event.Kind())
		return ErrEventBusClosed
	}
	if len(b.handlers[event.Kind()]) == 0 {
		return nil
	}

	if !frequentKinds[event.Kind()] {
		b.queueMu.Lock()
		b.queue = append(b.queue, event)
		b.queueMu.Unlock()
		b.signal()
		slog.Debug("published event", "type", event.Kind())
		return nil
	}

	select {
	case b.frequent <- event:
		return nil
	default:
		slog.Warn("event buffer full, dropping event", "type", event.Kind())
		return ErrEventBufferFull
	}
}

// --- EventSubscriber interface ---

// Subscribe registers a handler for events of kind.
func (b *ChannelEventBus) Subscribe(
	kind domain.EventKind,
	handler func(context.Context, domain.Event),
) ports.Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.handlers[kind] = append(b.handlers[kind], eventHandler{id: b.nextID, handle: handler})
	return b.nextID
}

// Unsubscribe removes a handler registered with Subscribe.
func (b *ChannelEventBus) Unsubscribe(sub ports.Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for kind, handlers := range b.handlers {
		for i, h := range handlers {
			if h.id != sub {
				continue
			}
			// copy so a dispatch in progress keeps its own slice
			remaining := make([]eventHandler, 0, len(handlers)-1)
			remaining = append(remaining, handlers[:i]...)
			remaining = append(remaining, handlers[i+1:]...)
			b.handlers[kind] = remaining
			return
		}
	}
}

// Close stops the dispatcher after it has delivered the events already queued.
// After calling Close, Publish returns ErrEventBusClosed.
func (b *ChannelEventBus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	close(b.frequent)
	b.mu.Unlock()

	b.queueMu.Lock()
	b.queueClosed = true
	b.queueMu.Unlock()
	b.signal()

	// Wait for dispatcher to drain
	b.wg.Wait()
	b.cancel()

	slog.Debug("channel event bus closed")
}
