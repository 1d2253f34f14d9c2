package subscription

import (
	"context"
	"slices"

	"github.com/herald/api/internal/content"
)

// Tree is the part of the content hierarchy the resolver walks.
type Tree interface {
	GetByID(ctx context.Context, id string) (*content.Node, error)
	Parent(ctx context.Context, node *content.Node) (*content.Node, error)
}

// Resolver answers subscribability questions by walking from a node toward
// the root. Nothing is cached; every call reads the store.
type Resolver struct {
	tree  Tree
	store Store
}

func NewResolver(tree Tree, store Store) *Resolver {
	return &Resolver{tree: tree, store: store}
}

// Supports reports whether node can carry subscriptions at all.
func (r *Resolver) Supports(node *content.Node) bool {
	return node != nil && node.AcceptsSubscriptions()
}

func (r *Resolver) Subscribability(ctx context.Context, node *content.Node) (Subscribability, error) {
	state, err := r.store.State(ctx, node)
	if err != nil {
		return 0, err
	}
	return state.Subscribability, nil
}

func (r *Resolver) SetSubscribability(ctx context.Context, node *content.Node, value Subscribability) error {
	if !slices.Contains(Choices(node), value) {
		return ErrInvalidSubscribability
	}
	return r.store.SetSubscribability(ctx, node, value)
}

// IsSubscribable follows Acquire links upward until an explicit setting is
// found. A walk that runs off the top of the tree is not subscribable.
func (r *Resolver) IsSubscribable(ctx context.Context, node *content.Node) (bool, error) {
	visited := make(map[string]struct{})
	current := node
	for current != nil {
		if _, ok := visited[current.ID]; ok {
			return false, ErrCycle
		}
		visited[current.ID] = struct{}{}

		value, err := r.Subscribability(ctx, current)
		if err != nil {
			return false, err
		}
		switch value {
		case NotSubscribable:
			return false, nil
		case Subscribable:
			return true, nil
		}

		current, err = r.tree.Parent(ctx, current)
		if err != nil {
			return false, err
		}
	}
	return false, nil
}

// Subscriptions returns the effective subscribers of node keyed by email.
//
// Nodes are collected from node upward. Every explicitly subscribable node
// moves a high-water mark; a not-subscribable node (or the end of the walk)
// drops everything collected past the mark, since those nodes only acquired
// their setting. When an email is held by several nodes the nearest wins.
func (r *Resolver) Subscriptions(ctx context.Context, node *content.Node) (map[string]Subscription, error) {
	type candidate struct {
		node   *content.Node
		emails map[string]struct{}
	}

	var candidates []candidate
	lastExplicit := 0
	visited := make(map[string]struct{})

	current := node
walk:
	for current != nil {
		if _, ok := visited[current.ID]; ok {
			return nil, ErrCycle
		}
		visited[current.ID] = struct{}{}

		state, err := r.store.State(ctx, current)
		if err != nil {
			return nil, err
		}

		switch state.Subscribability {
		case NotSubscribable:
			break walk
		case Subscribable:
			candidates = append(candidates, candidate{node: current, emails: state.Emails})
			lastExplicit = len(candidates)
		default:
			candidates = append(candidates, candidate{node: current, emails: state.Emails})
		}

		current, err = r.tree.Parent(ctx, current)
		if err != nil {
			return nil, err
		}
	}
	candidates = candidates[:lastExplicit]

	subscriptions := make(map[string]Subscription)
	for _, c := range candidates {
		for email := range c.emails {
			if _, ok := subscriptions[email]; !ok {
				subscriptions[email] = Subscription{Email: email, Content: c.node}
			}
		}
	}
	return subscriptions, nil
}

// Subscription returns the effective subscription of email, or nil.
func (r *Resolver) Subscription(ctx context.Context, node *content.Node, email string) (*Subscription, error) {
	subscriptions, err := r.Subscriptions(ctx, node)
	if err != nil {
		return nil, err
	}
	s, ok := subscriptions[email]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (r *Resolver) IsSubscribed(ctx context.Context, node *content.Node, email string) (bool, error) {
	s, err := r.Subscription(ctx, node, email)
	return s != nil, err
}

// Subscribe adds email to node's own set. It is a no-op when already present.
func (r *Resolver) Subscribe(ctx context.Context, node *content.Node, email string) error {
	return r.store.AddEmail(ctx, node, email)
}

// Unsubscribe removes email from node's own set only.
func (r *Resolver) Unsubscribe(ctx context.Context, node *content.Node, email string) error {
	return r.store.RemoveEmail(ctx, node, email)
}

// LocalEmails returns node's own set, sorted.
func (r *Resolver) LocalEmails(ctx context.Context, node *content.Node) ([]string, error) {
	state, err := r.store.State(ctx, node)
	if err != nil {
		return nil, err
	}
	emails := make([]string, 0, len(state.Emails))
	for email := range state.Emails {
		emails = append(emails, email)
	}
	slices.Sort(emails)
	return emails, nil
}

func (r *Resolver) SetLocalEmails(ctx context.Context, node *content.Node, emails []string) error {
	return r.store.ReplaceEmails(ctx, node, emails)
}

// Summary counts subscribers for the management view.
type Summary struct {
	Subscribable bool `json:"subscribable"`
	All          int  `json:"all"`
	Local        int  `json:"local"`
	Above        int  `json:"above"`
}

func (r *Resolver) Summary(ctx context.Context, node *content.Node) (Summary, error) {
	subscribable, err := r.IsSubscribable(ctx, node)
	if err != nil {
		return Summary{}, err
	}
	subscriptions, err := r.Subscriptions(ctx, node)
	if err != nil {
		return Summary{}, err
	}
	local, err := r.LocalEmails(ctx, node)
	if err != nil {
		return Summary{}, err
	}

	summary := Summary{
		Subscribable: subscribable,
		All:          len(subscriptions),
		Local:        len(local),
	}
	for _, s := range subscriptions {
		if s.Content.ID != node.ID {
			summary.Above++
		}
	}
	return summary, nil
}
