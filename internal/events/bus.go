package events

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Published is raised when a version of a content node goes live.
type Published struct {
	ContentID   string    `json:"content_id"`
	PublishedAt time.Time `json:"published_at"`
}

type Handler func(ctx context.Context, event Published) error

// Bus fans publish events out to registered handlers, synchronously and in
// registration order.
type Bus struct {
	mu       sync.RWMutex
	handlers []Handler
}

func NewBus() *Bus {
	return &Bus{}
}

func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Publish runs every handler and joins their errors.
func (b *Bus) Publish(ctx context.Context, event Published) error {
	if event.PublishedAt.IsZero() {
		event.PublishedAt = time.Now().UTC()
	}

	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	var errs []error
	for _, h := range handlers {
		if err := h(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
