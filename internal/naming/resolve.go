package naming

import (
	"sort"
	"strings"

	"git.home.luguber.info/inful/apitree/internal/foundation/errors"
	"git.home.luguber.info/inful/apitree/internal/tree"
	"git.home.luguber.info/inful/apitree/internal/unit"
)

type resolver struct {
	forest *tree.Forest
	policy Policy
	m      *matcher
}

// Resolve finalizes the short name of every node in forest. Display
// simplifications run bottom-up so that nested flattening and collapsing
// compose; every sibling level is then relabelled and its children map rebuilt
// from the finished label set.
func Resolve(forest *tree.Forest, policy Policy) error {
	m, err := compilePolicy(policy)
	if err != nil {
		return err
	}
	r := &resolver{forest: forest, policy: policy, m: m}

	var top []*tree.ModuleNode
	for _, root := range forest.Roots() {
		if err := r.arrange(root); err != nil {
			return err
		}
		top = append(top, r.collapse(root))
	}
	labels, err := assign("", top)
	if err != nil {
		return err
	}
	forest.ReplaceRoots(labels)
	return nil
}

// arrange finalizes n's display children.
func (r *resolver) arrange(n *tree.ModuleNode) error {
	var members []*tree.ModuleNode
	for _, c := range n.SortedChildren() {
		out, err := r.contribute(c, n)
		if err != nil {
			return err
		}
		members = append(members, out...)
	}
	labels, err := assign(n.DottedName, members)
	if err != nil {
		return err
	}
	for _, c := range labels {
		c.Parent = n
	}
	n.Children = labels
	return nil
}

// contribute returns the nodes c places at its parent's display level.
func (r *resolver) contribute(c, parent *tree.ModuleNode) ([]*tree.ModuleNode, error) {
	if err := r.arrange(c); err != nil {
		return nil, err
	}
	if (c.Kind == unit.Module || c.Kind == unit.Package) && r.m.flattens(c.DottedName) {
		hoisted := c.SortedChildren()
		r.forest.Detach(c, parent)
		return hoisted, nil
	}
	return []*tree.ModuleNode{r.collapse(c)}, nil
}

// collapse merges an undocumented synthetic package with its only child.
// Children are already arranged, so chains collapse in one step per level.
func (r *resolver) collapse(n *tree.ModuleNode) *tree.ModuleNode {
	if !r.policy.CollapseNamespaces || !n.Synthetic || strings.TrimSpace(n.Docstring) != "" || len(n.Children) != 1 {
		return n
	}
	var only *tree.ModuleNode
	for _, c := range n.Children {
		only = c
	}
	only.ShortName = n.ShortName + "." + only.ShortName
	r.forest.Detach(n, only)
	return only
}

// assign computes final labels for one sibling level. Members keep their
// current label unless it collides; colliding members, in dotted-name order,
// take the shortest longer dotted suffix (relative to parent) that no other
// sibling uses and no other colliding member shares, falling back to the
// full dotted name.
func assign(parent string, members []*tree.ModuleNode) (map[string]*tree.ModuleNode, error) {
	groups := make(map[string][]*tree.ModuleNode, len(members))
	for _, m := range members {
		groups[m.ShortName] = append(groups[m.ShortName], m)
	}

	used := make(map[string]bool, len(members))
	var collided []string
	for label, g := range groups {
		if len(g) == 1 {
			used[label] = true
			continue
		}
		collided = append(collided, label)
	}
	sort.Strings(collided)

	for _, label := range collided {
		g := groups[label]
		sort.Slice(g, func(i, j int) bool { return g[i].DottedName < g[j].DottedName })
		base := len(unit.Split(label))
		for _, m := range g {
			chosen := ""
			rel := relative(parent, m.DottedName)
			for k := base + 1; k <= len(rel); k++ {
				cand := suffix(rel, k)
				if used[cand] || sharedSuffix(parent, g, m, k, cand) {
					continue
				}
				chosen = cand
				break
			}
			if chosen == "" {
				chosen = m.DottedName
			}
			if used[chosen] {
				return nil, errors.InternalError("cannot disambiguate sibling label").
					WithContext("dotted_name", m.DottedName).
					WithContext("label", label).
					Build()
			}
			used[chosen] = true
			m.ShortName = chosen
		}
	}

	out := make(map[string]*tree.ModuleNode, len(members))
	for _, m := range members {
		if prev, dup := out[m.ShortName]; dup {
			return nil, errors.AmbiguityError("sibling labels collide").
				WithContext("label", m.ShortName).
				WithContext("first", prev.DottedName).
				WithContext("second", m.DottedName).
				Build()
		}
		out[m.ShortName] = m
	}
	return out, nil
}

func sharedSuffix(parent string, group []*tree.ModuleNode, self *tree.ModuleNode, k int, cand string) bool {
	for _, o := range group {
		if o == self {
			continue
		}
		rel := relative(parent, o.DottedName)
		if len(rel) >= k && suffix(rel, k) == cand {
			return true
		}
	}
	return false
}

func relative(parent, dotted string) []string {
	if parent == "" {
		return unit.Split(dotted)
	}
	return unit.Split(strings.TrimPrefix(dotted, parent+"."))
}

func suffix(segs []string, k int) string {
	return unit.Join(segs[len(segs)-k:]...)
}
