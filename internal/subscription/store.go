package subscription

import (
	"context"
	"database/sql"
	"time"

	"github.com/herald/api/internal/content"
)

// Store persists per-node subscription state. A node that was never written
// reports its default state.
type Store interface {
	State(ctx context.Context, node *content.Node) (State, error)
	HasState(ctx context.Context, node *content.Node) (bool, error)
	SetSubscribability(ctx context.Context, node *content.Node, value Subscribability) error
	AddEmail(ctx context.Context, node *content.Node, email string) error
	RemoveEmail(ctx context.Context, node *content.Node, email string) error
	ReplaceEmails(ctx context.Context, node *content.Node, emails []string) error
	Import(ctx context.Context, node *content.Node, state State) error
}

type Repository struct {
	db *sql.DB
}

var _ Store = (*Repository)(nil)

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) State(ctx context.Context, node *content.Node) (State, error) {
	state := State{
		Subscribability: DefaultSubscribability(node),
		Emails:          make(map[string]struct{}),
	}

	var value int
	err := r.db.QueryRowContext(ctx, `
		SELECT subscribability FROM subscription_states WHERE content_id = ?
	`, node.ID).Scan(&value)
	switch {
	case err == sql.ErrNoRows:
		return state, nil
	case err != nil:
		return State{}, err
	}
	state.Subscribability = Subscribability(value)

	rows, err := r.db.QueryContext(ctx, `
		SELECT email FROM subscription_emails WHERE content_id = ?
	`, node.ID)
	if err != nil {
		return State{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return State{}, err
		}
		state.Emails[email] = struct{}{}
	}
	return state, rows.Err()
}

func (r *Repository) HasState(ctx context.Context, node *content.Node) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM subscription_states WHERE content_id = ?)
	`, node.ID).Scan(&exists)
	return exists, err
}

func (r *Repository) SetSubscribability(ctx context.Context, node *content.Node, value Subscribability) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO subscription_states (content_id, subscribability, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(content_id) DO UPDATE SET subscribability = excluded.subscribability, updated_at = excluded.updated_at
	`, node.ID, int(value), now, now)
	return err
}

func (r *Repository) AddEmail(ctx context.Context, node *content.Node, email string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := ensureState(ctx, tx, node); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO subscription_emails (content_id, email, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(content_id, email) DO NOTHING
	`, node.ID, email, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (r *Repository) RemoveEmail(ctx context.Context, node *content.Node, email string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM subscription_emails WHERE content_id = ? AND email = ?
	`, node.ID, email)
	return err
}

func (r *Repository) ReplaceEmails(ctx context.Context, node *content.Node, emails []string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := ensureState(ctx, tx, node); err != nil {
		return err
	}
	if err := replaceEmails(ctx, tx, node, emails); err != nil {
		return err
	}

	return tx.Commit()
}

// Import writes a complete state in one transaction, replacing what is there.
func (r *Repository) Import(ctx context.Context, node *content.Node, state State) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO subscription_states (content_id, subscribability, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(content_id) DO UPDATE SET subscribability = excluded.subscribability, updated_at = excluded.updated_at
	`, node.ID, int(state.Subscribability), now, now)
	if err != nil {
		return err
	}

	emails := make([]string, 0, len(state.Emails))
	for email := range state.Emails {
		emails = append(emails, email)
	}
	if err := replaceEmails(ctx, tx, node, emails); err != nil {
		return err
	}

	return tx.Commit()
}

func ensureState(ctx context.Context, tx *sql.Tx, node *content.Node) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := tx.ExecContext(ctx, `
		INSERT INTO subscription_states (content_id, subscribability, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(content_id) DO NOTHING
	`, node.ID, int(DefaultSubscribability(node)), now, now)
	return err
}

func replaceEmails(ctx context.Context, tx *sql.Tx, node *content.Node, emails []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM subscription_emails WHERE content_id = ?`, node.ID); err != nil {
		return err
	}

	now := time.Now().UTC().Format(time.RFC3339)
	for _, email := range emails {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO subscription_emails (content_id, email, created_at)
			VALUES (?, ?, ?)
			ON CONFLICT(content_id, email) DO NOTHING
		`, node.ID, email, now)
		if err != nil {
			return err
		}
	}
	return nil
}
