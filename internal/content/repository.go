package content

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	ErrNodeNotFound    = errors.New("content not found")
	ErrInvalidName     = errors.New("invalid content name")
	ErrInvalidKind     = errors.New("invalid content kind")
	ErrRootExists      = errors.New("root already exists")
	ErrParentRequired  = errors.New("parent is required")
	ErrPathTaken       = errors.New("path already in use")
	ErrIDTaken         = errors.New("id already in use")
	ErrHauntedRequired = errors.New("ghost must reference existing content")
)

const nodeColumns = `id, parent_id, name, title, path, kind, haunted_id, created_at, updated_at`

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts node below node.ParentID and fills in Path and timestamps.
// An empty ID is replaced by a new ULID; a given one (the CMS's own id) is
// kept. A node without parent must be the root.
func (r *Repository) Create(ctx context.Context, node *Node) error {
	if !ValidKind(node.Kind) {
		return ErrInvalidKind
	}

	if node.Kind == KindRoot {
		if node.ParentID != nil {
			return ErrInvalidKind
		}
		if _, err := r.Root(ctx); err == nil {
			return ErrRootExists
		} else if !errors.Is(err, ErrNodeNotFound) {
			return err
		}
		node.Path = RootPath
	} else {
		if node.ParentID == nil {
			return ErrParentRequired
		}
		if node.Name == "" || strings.ContainsAny(node.Name, "/?#") || strings.HasPrefix(node.Name, "@@") {
			return ErrInvalidName
		}
		parent, err := r.GetByID(ctx, *node.ParentID)
		if err != nil {
			return err
		}
		node.Path = ChildPath(parent.Path, node.Name)
	}

	if node.Kind == KindGhost {
		if node.HauntedID == nil {
			return ErrHauntedRequired
		}
		if _, err := r.GetByID(ctx, *node.HauntedID); err != nil {
			if errors.Is(err, ErrNodeNotFound) {
				return ErrHauntedRequired
			}
			return err
		}
	} else {
		node.HauntedID = nil
	}

	if _, err := r.GetByPath(ctx, node.Path); err == nil {
		return ErrPathTaken
	} else if !errors.Is(err, ErrNodeNotFound) {
		return err
	}

	if node.ID == "" {
		node.ID = ulid.Make().String()
	} else if _, err := r.GetByID(ctx, node.ID); err == nil {
		return ErrIDTaken
	} else if !errors.Is(err, ErrNodeNotFound) {
		return err
	}
	now := time.Now().UTC()
	node.CreatedAt = now
	node.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO content_nodes (id, parent_id, name, title, path, kind, haunted_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, node.ID, node.ParentID, node.Name, node.Title, node.Path, node.Kind, node.HauntedID, now.Format(time.RFC3339), now.Format(time.RFC3339))
	return err
}

func (r *Repository) GetByID(ctx context.Context, id string) (*Node, error) {
	return scanNode(r.db.QueryRowContext(ctx, `
		SELECT `+nodeColumns+` FROM content_nodes WHERE id = ?
	`, id))
}

func (r *Repository) GetByPath(ctx context.Context, path string) (*Node, error) {
	return scanNode(r.db.QueryRowContext(ctx, `
		SELECT `+nodeColumns+` FROM content_nodes WHERE path = ?
	`, path))
}

func (r *Repository) Root(ctx context.Context) (*Node, error) {
	return scanNode(r.db.QueryRowContext(ctx, `
		SELECT `+nodeColumns+` FROM content_nodes WHERE kind = ?
	`, KindRoot))
}

// Parent returns the container of node, or nil for the root.
func (r *Repository) Parent(ctx context.Context, node *Node) (*Node, error) {
	if node.ParentID == nil {
		return nil, nil
	}
	parent, err := r.GetByID(ctx, *node.ParentID)
	if errors.Is(err, ErrNodeNotFound) {
		return nil, nil
	}
	return parent, err
}

// Haunting lists the ghosts that mirror node.
func (r *Repository) Haunting(ctx context.Context, node *Node) ([]Node, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+nodeColumns+` FROM content_nodes
		WHERE haunted_id = ? AND kind = ?
		ORDER BY path
	`, node.ID, KindGhost)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ghosts []Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		ghosts = append(ghosts, *n)
	}
	return ghosts, rows.Err()
}

func (r *Repository) UpdateTitle(ctx context.Context, id, title string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE content_nodes SET title = ?, updated_at = ? WHERE id = ?
	`, title, time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNodeNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanNode(row scanner) (*Node, error) {
	var n Node
	var parentID, hauntedID sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&n.ID, &parentID, &n.Name, &n.Title, &n.Path, &n.Kind, &hauntedID, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNodeNotFound
	}
	if err != nil {
		return nil, err
	}

	if parentID.Valid {
		n.ParentID = &parentID.String
	}
	if hauntedID.Valid {
		n.HauntedID = &hauntedID.String
	}
	n.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	n.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

	return &n, nil
}
