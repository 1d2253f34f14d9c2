package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/herald/api/internal/content"
	"github.com/herald/api/internal/email"
	"github.com/herald/api/internal/events"
)

// ContentSource resolves the node a publish event refers to and the ghosts
// that mirror it
type ContentSource interface {
	GetByID(ctx context.Context, id string) (*content.Node, error)
	Haunting(ctx context.Context, node *content.Node) ([]content.Node, error)
}

// Notifier sends a template to every effective subscriber of a node
type Notifier interface {
	SendNotification(ctx context.Context, node *content.Node, t email.Template) error
}

// Dispatcher turns publish events into subscriber notifications
type Dispatcher struct {
	content  ContentSource
	notifier Notifier
}

// NewDispatcher creates a new dispatcher
func NewDispatcher(source ContentSource, notifier Notifier) *Dispatcher {
	return &Dispatcher{
		content:  source,
		notifier: notifier,
	}
}

// Register subscribes the dispatcher to publish events on bus
func (d *Dispatcher) Register(bus *events.Bus) {
	bus.Subscribe(d.HandlePublished)
}

// HandlePublished notifies subscribers of the published node, then
// subscribers of every ghost haunting it. Ghost subscribers are resolved
// from the ghost's own position in the tree.
func (d *Dispatcher) HandlePublished(ctx context.Context, event events.Published) error {
	node, err := d.content.GetByID(ctx, event.ContentID)
	if err != nil {
		if errors.Is(err, content.ErrNodeNotFound) {
			slog.Warn("publish event for unknown content", "component", "notification", "content_id", event.ContentID)
			return nil
		}
		return err
	}
	if !node.AcceptsSubscriptions() {
		return nil
	}

	var errs []error
	if err := d.notifier.SendNotification(ctx, node, email.TemplatePublicationEvent); err != nil {
		errs = append(errs, fmt.Errorf("notifying %s: %w", node.Path, err))
	}

	ghosts, err := d.content.Haunting(ctx, node)
	if err != nil {
		errs = append(errs, fmt.Errorf("listing ghosts of %s: %w", node.Path, err))
		return errors.Join(errs...)
	}
	for i := range ghosts {
		ghost := &ghosts[i]
		if err := d.notifier.SendNotification(ctx, ghost, email.TemplatePublicationEvent); err != nil {
			errs = append(errs, fmt.Errorf("notifying ghost %s: %w", ghost.Path, err))
		}
	}

	slog.Debug("dispatched publish event", "component", "notification",
		"content_id", node.ID,
		"ghosts", len(ghosts),
	)
	return errors.Join(errs...)
}
