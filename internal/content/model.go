package content

import (
	"time"
)

type Node struct {
	ID        string    `json:"id"`
	ParentID  *string   `json:"parent_id,omitempty"`
	Name      string    `json:"name"`
	Title     string    `json:"title"`
	Path      string    `json:"path"`
	Kind      string    `json:"kind"`
	HauntedID *string   `json:"haunted_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

const (
	KindRoot     = "root"
	KindFolder   = "folder"
	KindDocument = "document"
	KindGhost    = "ghost"
	KindAsset    = "asset"
)

// RootPath is the path of the single root node.
const RootPath = "/"

func ValidKind(kind string) bool {
	switch kind {
	case KindRoot, KindFolder, KindDocument, KindGhost, KindAsset:
		return true
	}
	return false
}

func (n *Node) IsRoot() bool {
	return n.ParentID == nil
}

// AcceptsSubscriptions reports whether visitors may subscribe to this kind of
// node. Assets (files, images) are published as-is and never notify.
func (n *Node) AcceptsSubscriptions() bool {
	return n.Kind != KindAsset
}

// ChildPath joins a parent path and a child name.
func ChildPath(parentPath, name string) string {
	if parentPath == RootPath {
		return RootPath + name
	}
	return parentPath + "/" + name
}
