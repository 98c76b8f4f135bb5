package ports

import (
	"context"

	"github.com/sglre6355/sgrlink/internal/modules/music_player/domain"
)

// Subscription identifies a registered handler so it can be removed again.
type Subscription uint64

// EventSubscriber defines the interface for subscribing to events.
// Handlers are registered per event kind and invoked when events occur.
type EventSubscriber interface {
	Subscribe(kind domain.EventKind, handler func(context.Context, domain.Event)) Subscription
	Unsubscribe(sub Subscription)
}
