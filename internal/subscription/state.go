package subscription

import (
	"encoding/json"
	"fmt"

	"github.com/herald/api/internal/content"
)

// Subscribability is the per-node subscription setting.
type Subscribability int

const (
	NotSubscribable Subscribability = 0
	Subscribable    Subscribability = 1
	Acquire         Subscribability = 2
)

func (s Subscribability) Valid() bool {
	return s == NotSubscribable || s == Subscribable || s == Acquire
}

func (s Subscribability) String() string {
	switch s {
	case NotSubscribable:
		return "not_subscribable"
	case Subscribable:
		return "subscribable"
	case Acquire:
		return "acquire"
	}
	return fmt.Sprintf("subscribability(%d)", int(s))
}

// ParseSubscribability accepts the names returned by String.
func ParseSubscribability(s string) (Subscribability, error) {
	switch s {
	case "not_subscribable":
		return NotSubscribable, nil
	case "subscribable":
		return Subscribable, nil
	case "acquire":
		return Acquire, nil
	}
	return 0, ErrInvalidSubscribability
}

func (s Subscribability) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Subscribability) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return ErrInvalidSubscribability
	}
	v, err := ParseSubscribability(name)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// DefaultSubscribability is the value a node has before anyone configures it.
func DefaultSubscribability(node *content.Node) Subscribability {
	if node.IsRoot() {
		return NotSubscribable
	}
	return Acquire
}

// Choices lists the values node may be set to. The root has nothing to
// acquire from.
func Choices(node *content.Node) []Subscribability {
	if node.IsRoot() {
		return []Subscribability{NotSubscribable, Subscribable}
	}
	return []Subscribability{NotSubscribable, Subscribable, Acquire}
}

// State is what the store keeps for one node.
type State struct {
	Subscribability Subscribability
	Emails          map[string]struct{}
}

// Subscription is a derived view: Email is held in Content's local set.
type Subscription struct {
	Email   string        `json:"email"`
	Content *content.Node `json:"content"`
}
