// Package tree reconstructs a navigable forest of ModuleNodes from a flat
// list of dotted-name-qualified units.
package tree

import (
	"fmt"
	"sort"
	"strings"

	"git.home.luguber.info/inful/apitree/internal/unit"
)

// ModuleNode is one documented (or synthesized) unit in the forest.
type ModuleNode struct {
	DottedName string
	ShortName  string
	Kind       unit.Kind
	Docstring  string
	Signature  string
	Root       string
	SourcePath string
	Line       int
	// Synthetic marks intermediate packages created because a descendant
	// was documented but the package itself produced no unit.
	Synthetic bool

	// Parent is a back reference used for breadcrumbs only.
	Parent   *ModuleNode
	Children map[string]*ModuleNode

	outputPath string
}

func newNode(dotted string, kind unit.Kind) *ModuleNode {
	return &ModuleNode{
		DottedName: dotted,
		ShortName:  unit.Last(dotted),
		Kind:       kind,
		Children:   make(map[string]*ModuleNode),
	}
}

// NewSyntheticRoot builds the site root node that wraps every top-level root.
// It is not part of any forest and has no dotted name.
func NewSyntheticRoot(title string, roots []*ModuleNode) *ModuleNode {
	n := &ModuleNode{ShortName: title, Kind: unit.Package, Synthetic: true, Children: make(map[string]*ModuleNode, len(roots))}
	for _, r := range roots {
		n.Children[r.ShortName] = r
	}
	return n
}

// OutputPath returns the assigned output path ("" until links are resolved).
func (n *ModuleNode) OutputPath() string { return n.outputPath }

// SetOutputPath assigns the output path exactly once.
func (n *ModuleNode) SetOutputPath(p string) error {
	if n.outputPath != "" && n.outputPath != p {
		return fmt.Errorf("output path of %s already set to %q", n.label(), n.outputPath)
	}
	n.outputPath = p
	return nil
}

func (n *ModuleNode) label() string {
	if n.DottedName == "" {
		return "<site root>"
	}
	return n.DottedName
}

// IsRoot reports whether n has no parent.
func (n *ModuleNode) IsRoot() bool { return n.Parent == nil }

// HasChildren reports whether n has any children.
func (n *ModuleNode) HasChildren() bool { return len(n.Children) > 0 }

// SortedChildren returns children ordered by short name, ties broken by dotted name.
func (n *ModuleNode) SortedChildren() []*ModuleNode {
	out := make([]*ModuleNode, 0, len(n.Children))
	for _, c := range n.Children {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ShortName != out[j].ShortName {
			return out[i].ShortName < out[j].ShortName
		}
		return out[i].DottedName < out[j].DottedName
	})
	return out
}

// Ancestors returns the chain from the outermost ancestor down to n's parent.
func (n *ModuleNode) Ancestors() []*ModuleNode {
	var chain []*ModuleNode
	for p := n.Parent; p != nil; p = p.Parent {
		chain = append(chain, p)
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// Breadcrumb returns the short names from the root down to and including n.
func (n *ModuleNode) Breadcrumb() []string {
	anc := n.Ancestors()
	out := make([]string, 0, len(anc)+1)
	for _, a := range anc {
		out = append(out, a.ShortName)
	}
	return append(out, n.ShortName)
}

// Summary returns the first paragraph line of the docstring.
func (n *ModuleNode) Summary() string {
	for _, line := range strings.Split(strings.TrimSpace(n.Docstring), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			return line
		}
	}
	return ""
}

func (n *ModuleNode) String() string {
	return fmt.Sprintf("%s(%s)", n.label(), n.Kind)
}
