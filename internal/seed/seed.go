package seed

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/herald/api/internal/content"
	"github.com/herald/api/internal/subscription"
)

// Run populates the database with a small demo site for development.
// It is idempotent: if a root already exists, it logs and returns nil.
func Run(ctx context.Context, db *sql.DB) error {
	tree := content.NewRepository(db)
	store := subscription.NewRepository(db)

	// Idempotency check
	_, err := tree.Root(ctx)
	if err == nil {
		slog.Info("database already seeded, skipping")
		return nil
	}
	if !errors.Is(err, content.ErrNodeNotFound) {
		return fmt.Errorf("idempotency check: %w", err)
	}

	slog.Info("seeding database...")

	root := &content.Node{Kind: content.KindRoot, Title: "Example Site"}
	if err := tree.Create(ctx, root); err != nil {
		return fmt.Errorf("create root: %w", err)
	}
	nodes := map[string]*content.Node{content.RootPath: root}

	// --- Content ---
	// Parents come before their children; ghosts after what they haunt.
	type seedNode struct {
		parent  string
		name    string
		title   string
		kind    string
		haunted string
	}
	seedNodes := []seedNode{
		{parent: "/", name: "news", title: "News", kind: content.KindFolder},
		{parent: "/news", name: "launch", title: "We are live", kind: content.KindDocument},
		{parent: "/news", name: "roadmap", title: "What comes next", kind: content.KindDocument},
		{parent: "/news", name: "press-kit.pdf", title: "Press kit", kind: content.KindAsset},
		{parent: "/", name: "blog", title: "Blog", kind: content.KindFolder},
		{parent: "/blog", name: "hello", title: "Hello, world", kind: content.KindDocument},
		{parent: "/", name: "about", title: "About us", kind: content.KindDocument},
		{parent: "/", name: "archive", title: "Archive", kind: content.KindFolder},
		{parent: "/archive", name: "launch", title: "We are live", kind: content.KindGhost, haunted: "/news/launch"},
	}

	for _, sn := range seedNodes {
		node := &content.Node{
			ParentID: &nodes[sn.parent].ID,
			Name:     sn.name,
			Title:    sn.title,
			Kind:     sn.kind,
		}
		if sn.haunted != "" {
			node.HauntedID = &nodes[sn.haunted].ID
		}
		if err := tree.Create(ctx, node); err != nil {
			return fmt.Errorf("create %s: %w", content.ChildPath(sn.parent, sn.name), err)
		}
		nodes[node.Path] = node
		slog.Info("created content", "path", node.Path, "kind", node.Kind)
	}

	// --- Subscriptions ---
	settings := map[string]subscription.Subscribability{
		"/":        subscription.Subscribable,
		"/news":    subscription.Subscribable,
		"/about":   subscription.NotSubscribable,
		"/blog":    subscription.Acquire,
		"/archive": subscription.Subscribable,
	}
	for path, value := range settings {
		if err := store.SetSubscribability(ctx, nodes[path], value); err != nil {
			return fmt.Errorf("set subscribability of %s: %w", path, err)
		}
	}

	subscriptions := []struct {
		path  string
		email string
	}{
		{"/", "dave@example.com"},
		{"/news", "alice@example.com"},
		{"/news", "bob@example.com"},
		{"/news/launch", "carol@example.com"},
		{"/blog/hello", "eve@example.com"},
		{"/archive", "frank@example.com"},
	}
	for _, s := range subscriptions {
		if err := store.AddEmail(ctx, nodes[s.path], s.email); err != nil {
			return fmt.Errorf("subscribe %s to %s: %w", s.email, s.path, err)
		}
	}
	slog.Info("created subscriptions", "count", len(subscriptions))

	slog.Info("seeding complete", "content", len(nodes))
	return nil
}
