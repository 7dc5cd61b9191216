package tree

import (
	"sort"
)

// Forest is the set of top-level nodes plus a dotted-name index over every
// node currently in the display tree.
type Forest struct {
	roots   map[string]*ModuleNode // keyed by short name
	index   map[string]*ModuleNode
	aliases map[string]*ModuleNode
}

func newForest() *Forest {
	return &Forest{
		roots:   make(map[string]*ModuleNode),
		index:   make(map[string]*ModuleNode),
		aliases: make(map[string]*ModuleNode),
	}
}

// Roots returns the top-level nodes sorted by short name.
func (f *Forest) Roots() []*ModuleNode {
	out := make([]*ModuleNode, 0, len(f.roots))
	for _, r := range f.roots {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ShortName != out[j].ShortName {
			return out[i].ShortName < out[j].ShortName
		}
		return out[i].DottedName < out[j].DottedName
	})
	return out
}

// Lookup finds a node in the display tree by its dotted name.
func (f *Forest) Lookup(dotted string) (*ModuleNode, bool) {
	n, ok := f.index[dotted]
	return n, ok
}

// Len is the number of nodes in the display tree.
func (f *Forest) Len() int { return len(f.index) }

// Empty reports whether the forest holds no nodes.
func (f *Forest) Empty() bool { return len(f.index) == 0 }

// Walk visits every node in deterministic pre-order. Children are visited
// sorted by short name. A non-nil error from fn stops the walk.
func (f *Forest) Walk(fn func(n *ModuleNode) error) error {
	for _, r := range f.Roots() {
		if err := walk(r, fn); err != nil {
			return err
		}
	}
	return nil
}

func walk(n *ModuleNode, fn func(*ModuleNode) error) error {
	if err := fn(n); err != nil {
		return err
	}
	for _, c := range n.SortedChildren() {
		if err := walk(c, fn); err != nil {
			return err
		}
	}
	return nil
}

// Nodes returns every node in Walk order.
func (f *Forest) Nodes() []*ModuleNode {
	out := make([]*ModuleNode, 0, len(f.index))
	_ = f.Walk(func(n *ModuleNode) error {
		out = append(out, n)
		return nil
	})
	return out
}

// Aliases maps dotted names removed from the display tree to the node that
// now presents their content.
func (f *Forest) Aliases() map[string]*ModuleNode {
	out := make(map[string]*ModuleNode, len(f.aliases))
	for k, v := range f.aliases {
		out[k] = v
	}
	return out
}

// ReplaceRoots swaps the top-level set. Keys are the final labels.
func (f *Forest) ReplaceRoots(roots map[string]*ModuleNode) {
	f.roots = roots
	for _, r := range roots {
		r.Parent = nil
	}
}

// Detach removes n from the dotted-name index and records it as an alias of
// target. Aliases already pointing at n are redirected to target.
func (f *Forest) Detach(n, target *ModuleNode) {
	delete(f.index, n.DottedName)
	for k, v := range f.aliases {
		if v == n {
			f.aliases[k] = target
		}
	}
	f.aliases[n.DottedName] = target
}
