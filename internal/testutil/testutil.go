package testutil

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/herald/api/internal/database"
	"github.com/herald/api/internal/email"
	"github.com/oklog/ulid/v2"
)

// TestDB creates an in-memory SQLite database with migrations applied.
// The database is automatically closed when the test completes.
func TestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.Open(":memory:", database.Options{})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}

	if err := db.Migrate(); err != nil {
		db.Close()
		t.Fatalf("running migrations: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db.DB
}

// TestNode represents a content node inserted by CreateTestNode
type TestNode struct {
	ID       string
	ParentID string
	Name     string
	Path     string
	Kind     string
}

// CreateTestRoot inserts the root node directly in the database
func CreateTestRoot(t *testing.T, db *sql.DB) *TestNode {
	t.Helper()
	return insertNode(t, db, nil, "", "/", "root", nil)
}

// CreateTestNode inserts a child of parent directly in the database
func CreateTestNode(t *testing.T, db *sql.DB, parent *TestNode, name, kind string) *TestNode {
	t.Helper()

	path := parent.Path + "/" + name
	if parent.Path == "/" {
		path = "/" + name
	}
	return insertNode(t, db, &parent.ID, name, path, kind, nil)
}

// CreateTestGhost inserts a ghost below parent that mirrors haunted
func CreateTestGhost(t *testing.T, db *sql.DB, parent *TestNode, name string, haunted *TestNode) *TestNode {
	t.Helper()

	path := parent.Path + "/" + name
	if parent.Path == "/" {
		path = "/" + name
	}
	return insertNode(t, db, &parent.ID, name, path, "ghost", &haunted.ID)
}

func insertNode(t *testing.T, db *sql.DB, parentID *string, name, path, kind string, hauntedID *string) *TestNode {
	t.Helper()

	id := ulid.Make().String()
	now := time.Now().UTC().Format(time.RFC3339)

	_, err := db.ExecContext(context.Background(), `
		INSERT INTO content_nodes (id, parent_id, name, title, path, kind, haunted_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, parentID, name, name, path, kind, hauntedID, now, now)
	if err != nil {
		t.Fatalf("creating test node %s: %v", path, err)
	}

	n := &TestNode{ID: id, Name: name, Path: path, Kind: kind}
	if parentID != nil {
		n.ParentID = *parentID
	}
	return n
}

// SetTestSubscribability writes a subscription state row directly
func SetTestSubscribability(t *testing.T, db *sql.DB, node *TestNode, value int) {
	t.Helper()

	now := time.Now().UTC().Format(time.RFC3339)
	_, err := db.ExecContext(context.Background(), `
		INSERT INTO subscription_states (content_id, subscribability, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(content_id) DO UPDATE SET subscribability = excluded.subscribability
	`, node.ID, value, now, now)
	if err != nil {
		t.Fatalf("setting subscribability of %s: %v", node.Path, err)
	}
}

// SentMail is one message captured by Mailbox
type SentMail struct {
	Template email.Template
	Data     email.Data
}

// Mailbox records templated mail instead of delivering it
type Mailbox struct {
	mu   sync.Mutex
	sent []SentMail

	// Err, when set, is returned for every recipient in FailFor (or all
	// recipients when FailFor is empty)
	Err     error
	FailFor map[string]bool
}

// Send fails once ctx is done, like the SMTP channel.
func (m *Mailbox) Send(ctx context.Context, t email.Template, data email.Data) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil && (len(m.FailFor) == 0 || m.FailFor[data.To]) {
		return m.Err
	}
	m.sent = append(m.sent, SentMail{Template: t, Data: data})
	return nil
}

// Sent returns a copy of everything delivered so far
func (m *Mailbox) Sent() []SentMail {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]SentMail, len(m.sent))
	copy(out, m.sent)
	return out
}

// Reset forgets delivered mail
func (m *Mailbox) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = nil
}
