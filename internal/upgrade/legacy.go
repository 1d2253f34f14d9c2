// Package upgrade imports subscription data exported from the legacy CMS,
// where it lived as attributes on every content object.
package upgrade

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/herald/api/internal/content"
	"github.com/herald/api/internal/subscription"
)

// Export is the document produced by the legacy exporter. JSON exports are
// read by the same decoder.
type Export struct {
	Nodes []Record `yaml:"nodes"`
}

// Record holds the legacy attributes of one content object. Either
// ContentID or Path identifies it.
type Record struct {
	ContentID string `yaml:"content_id"`
	Path      string `yaml:"path"`
	// Subscribability is the legacy integer code or a name; absent keeps
	// the node default.
	Subscribability yaml.Node `yaml:"subscribability"`
	// Subscriptions maps address to anything; only keys are used.
	Subscriptions map[string]interface{} `yaml:"subscriptions"`
	// Pending tokens from the old confirmation scheme are dropped.
	PendingTokens interface{} `yaml:"pending_subscription_tokens"`
}

// parseSubscribability accepts the legacy integer codes as well as names.
func parseSubscribability(value *yaml.Node) (subscription.Subscribability, error) {
	var code int
	if err := value.Decode(&code); err == nil {
		v := subscription.Subscribability(code)
		if !v.Valid() {
			return 0, fmt.Errorf("line %d: %w", value.Line, subscription.ErrInvalidSubscribability)
		}
		return v, nil
	}
	var name string
	if err := value.Decode(&name); err != nil {
		return 0, fmt.Errorf("line %d: %w", value.Line, subscription.ErrInvalidSubscribability)
	}
	v, err := subscription.ParseSubscribability(name)
	if err != nil {
		return 0, fmt.Errorf("line %d: %w", value.Line, err)
	}
	return v, nil
}

// Tree finds the nodes records refer to.
type Tree interface {
	GetByID(ctx context.Context, id string) (*content.Node, error)
	GetByPath(ctx context.Context, path string) (*content.Node, error)
}

// Report summarizes an import run.
type Report struct {
	Imported      int      `json:"imported"`
	Skipped       int      `json:"skipped"`
	Missing       []string `json:"missing,omitempty"`
	Rejected      []string `json:"rejected,omitempty"`
	DroppedEmails []string `json:"dropped_emails,omitempty"`
}

type Importer struct {
	tree  Tree
	store subscription.Store
}

func NewImporter(tree Tree, store subscription.Store) *Importer {
	return &Importer{tree: tree, store: store}
}

// ImportFile reads a YAML or JSON export from path.
func (i *Importer) ImportFile(ctx context.Context, path string) (Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return Report{}, err
	}
	defer f.Close()
	return i.Import(ctx, f)
}

// Import writes every record whose node has no stored state yet. Nodes that
// already have state keep it, so the import can be re-run safely.
func (i *Importer) Import(ctx context.Context, r io.Reader) (Report, error) {
	var export Export
	if err := yaml.NewDecoder(r).Decode(&export); err != nil && !errors.Is(err, io.EOF) {
		return Report{}, fmt.Errorf("parsing legacy export: %w", err)
	}

	var report Report
	for _, rec := range export.Nodes {
		ref := rec.ContentID
		if ref == "" {
			ref = rec.Path
		}

		node, err := i.lookup(ctx, rec)
		if errors.Is(err, content.ErrNodeNotFound) {
			slog.Warn("legacy record for unknown content", "component", "upgrade", "content", ref)
			report.Missing = append(report.Missing, ref)
			continue
		}
		if err != nil {
			return report, err
		}
		if !node.AcceptsSubscriptions() {
			report.Rejected = append(report.Rejected, ref)
			continue
		}

		has, err := i.store.HasState(ctx, node)
		if err != nil {
			return report, err
		}
		if has {
			report.Skipped++
			continue
		}

		state, dropped, err := convert(node, rec)
		if err != nil {
			slog.Warn("rejected legacy record", "component", "upgrade", "content", ref, "error", err)
			report.Rejected = append(report.Rejected, ref)
			continue
		}
		report.DroppedEmails = append(report.DroppedEmails, dropped...)

		if err := i.store.Import(ctx, node, state); err != nil {
			return report, fmt.Errorf("importing %s: %w", node.Path, err)
		}
		report.Imported++
	}

	slog.Info("legacy import finished", "component", "upgrade",
		"imported", report.Imported,
		"skipped", report.Skipped,
		"missing", len(report.Missing),
		"rejected", len(report.Rejected),
		"dropped_emails", len(report.DroppedEmails),
	)
	return report, nil
}

func (i *Importer) lookup(ctx context.Context, rec Record) (*content.Node, error) {
	switch {
	case rec.ContentID != "":
		return i.tree.GetByID(ctx, rec.ContentID)
	case rec.Path != "":
		return i.tree.GetByPath(ctx, rec.Path)
	}
	return nil, content.ErrNodeNotFound
}

// convert builds the stored state. A record without subscribability keeps
// the node's default; addresses that no longer validate are dropped.
func convert(node *content.Node, rec Record) (subscription.State, []string, error) {
	state := subscription.State{
		Subscribability: subscription.DefaultSubscribability(node),
		Emails:          make(map[string]struct{}, len(rec.Subscriptions)),
	}
	if rec.Subscribability.Kind != 0 && rec.Subscribability.Tag != "!!null" {
		value, err := parseSubscribability(&rec.Subscribability)
		if err != nil {
			return state, nil, err
		}
		allowed := false
		for _, c := range subscription.Choices(node) {
			if c == value {
				allowed = true
			}
		}
		if !allowed {
			return state, nil, fmt.Errorf("%s cannot be %s: %w", node.Path, value, subscription.ErrInvalidSubscribability)
		}
		state.Subscribability = value
	}

	var dropped []string
	for addr := range rec.Subscriptions {
		if err := subscription.ValidateEmail(addr); err != nil {
			dropped = append(dropped, addr)
			continue
		}
		state.Emails[addr] = struct{}{}
	}
	sort.Strings(dropped)
	return state, dropped, nil
}
