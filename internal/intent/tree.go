// Package intent resolves the user's intent by drilling down the intent tree
// one layer at a time, combining retrieved examples with an LLM oracle.
package intent

import (
	"fmt"
	"strings"

	apperrors "dialog-manager/internal/common/errors"
	"dialog-manager/internal/models"
)

type node struct {
	intent   models.Intent
	children []string
}

// Tree is the read-only intent hierarchy. Only leaves are dispatchable;
// inner nodes narrow classification.
type Tree struct {
	nodes map[string]*node
	order []string
}

// NewTree builds the hierarchy from dotted intent names. Missing ancestors
// are created implicitly so a registry may list leaves only.
func NewTree(intents []models.Intent) (*Tree, error) {
	t := &Tree{nodes: map[string]*node{
		models.RootIntent: {intent: models.Intent{Name: models.RootIntent}},
	}}
	t.order = append(t.order, models.RootIntent)
	declared := make(map[string]struct{}, len(intents))

	for _, in := range intents {
		name := strings.TrimSpace(in.Name)
		if name == "" {
			return nil, apperrors.NewRegistryInvalidError("intent with empty name")
		}
		if name != models.RootIntent && !models.IsDescendant(name, models.RootIntent) {
			return nil, apperrors.NewRegistryInvalidError(fmt.Sprintf("intent %q is not under %q", name, models.RootIntent))
		}
		if strings.Contains(name, "..") || strings.HasSuffix(name, ".") {
			return nil, apperrors.NewRegistryInvalidError(fmt.Sprintf("intent %q has an empty path segment", name))
		}
		if _, dup := declared[name]; dup {
			return nil, apperrors.NewRegistryInvalidError(fmt.Sprintf("duplicate intent %q", name))
		}
		declared[name] = struct{}{}

		n := t.ensure(name)
		n.intent.Description = in.Description
		n.intent.Disabled = in.Disabled
	}
	return t, nil
}

func (t *Tree) ensure(name string) *node {
	if n, ok := t.nodes[name]; ok {
		return n
	}
	parent := t.ensure(models.ParentOf(name))
	n := &node{intent: models.Intent{Name: name}}
	t.nodes[name] = n
	t.order = append(t.order, name)
	parent.children = append(parent.children, name)
	return n
}

// Get returns a copy of the named intent.
func (t *Tree) Get(name string) (models.Intent, bool) {
	n, ok := t.nodes[name]
	if !ok {
		return models.Intent{}, false
	}
	return n.intent, true
}

func (t *Tree) Contains(name string) bool {
	_, ok := t.nodes[name]
	return ok
}

// Children lists the enabled children of name in declaration order.
func (t *Tree) Children(name string) []models.Intent {
	n, ok := t.nodes[name]
	if !ok {
		return nil
	}
	out := make([]models.Intent, 0, len(n.children))
	for _, c := range n.children {
		child := t.nodes[c]
		if child.intent.Disabled {
			continue
		}
		out = append(out, child.intent)
	}
	return out
}

// IsLeaf is true for known intents with no declared children. An inner node
// whose children are all disabled is still not a leaf.
func (t *Tree) IsLeaf(name string) bool {
	n, ok := t.nodes[name]
	return ok && len(n.children) == 0
}

// Leaves lists every enabled leaf except the root.
func (t *Tree) Leaves() []models.Intent {
	var out []models.Intent
	for _, name := range t.order {
		if name == models.RootIntent || t.nodes[name].intent.Disabled {
			continue
		}
		if t.IsLeaf(name) {
			out = append(out, t.nodes[name].intent)
		}
	}
	return out
}

// ChildToward maps a descendant (or the child itself) to the direct child of
// parent on its path.
func (t *Tree) ChildToward(parent, name string) (string, bool) {
	if !models.IsDescendant(name, parent) {
		return "", false
	}
	rest := strings.TrimPrefix(name, parent+".")
	child := parent + "." + strings.SplitN(rest, ".", 2)[0]
	n, ok := t.nodes[child]
	if !ok || n.intent.Disabled {
		return "", false
	}
	return child, true
}
