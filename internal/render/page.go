// Package render turns forest nodes into pages through pluggable template sets.
package render

import (
	"html/template"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"git.home.luguber.info/inful/apitree/internal/links"
	"git.home.luguber.info/inful/apitree/internal/tree"
)

// Template renders a single node. Implementations must not mutate the node,
// its children or the table: they are shared by concurrent workers.
type Template interface {
	Render(node *tree.ModuleNode, children []*tree.ModuleNode, table *links.Table) ([]byte, error)
}

// Crumb is one breadcrumb entry.
type Crumb struct {
	Title   string
	Link    string
	Current bool
}

// TOCEntry is one table-of-contents line; Children nest up to the configured depth.
type TOCEntry struct {
	Label      string
	DottedName string
	Kind       string
	Summary    string
	Link       string
	Depth      int
	Children   []TOCEntry
}

// Indent is the markdown list indentation for the entry's depth.
func (e TOCEntry) Indent() string { return strings.Repeat("  ", e.Depth) }

// Page is the view model every template receives.
type Page struct {
	Title      string
	DottedName string
	Kind       string
	KindTitle  string
	Signature  string
	Docstring  string
	DocHTML    template.HTML
	SourceURL  string
	Path       string
	Weight     int
	IsRoot     bool
	Synthetic  bool
	Breadcrumb []Crumb
	TOC        []TOCEntry
}

// NewPage builds the view model for node. children are listed in the TOC in
// the order given; deeper levels follow each child's sorted children.
func NewPage(node *tree.ModuleNode, children []*tree.ModuleNode, table *links.Table, opts Options) Page {
	isRoot := node == table.Root()
	self := node.OutputPath()
	p := Page{
		Title:      node.ShortName,
		DottedName: node.DottedName,
		Kind:       string(node.Kind),
		KindTitle:  titleCase(string(node.Kind)),
		Signature:  node.Signature,
		SourceURL:  table.SourceURL(node),
		Path:       self,
		IsRoot:     isRoot,
		Synthetic:  node.Synthetic && !isRoot,
		Weight:     weight(node, table),
	}
	if isRoot {
		p.Kind = ""
		p.KindTitle = ""
	} else {
		p.Docstring = RewriteXRefs(node.Docstring, node, table)
	}
	p.Breadcrumb = breadcrumb(node, table)
	p.TOC = toc(children, self, table, 0, opts.tocDepth())
	return p
}

func breadcrumb(node *tree.ModuleNode, table *links.Table) []Crumb {
	root := table.Root()
	self := node.OutputPath()
	if node == root {
		return []Crumb{{Title: root.ShortName, Link: links.Rel(self, self), Current: true}}
	}
	crumbs := []Crumb{{Title: root.ShortName, Link: links.Rel(self, root.OutputPath())}}
	for _, a := range node.Ancestors() {
		crumbs = append(crumbs, Crumb{Title: a.ShortName, Link: links.Rel(self, a.OutputPath())})
	}
	return append(crumbs, Crumb{Title: node.ShortName, Link: links.Rel(self, self), Current: true})
}

func toc(children []*tree.ModuleNode, self string, table *links.Table, depth, maxDepth int) []TOCEntry {
	if len(children) == 0 || depth >= maxDepth {
		return nil
	}
	out := make([]TOCEntry, 0, len(children))
	for _, c := range children {
		out = append(out, TOCEntry{
			Label:      c.ShortName,
			DottedName: c.DottedName,
			Kind:       string(c.Kind),
			Summary:    RewriteXRefs(c.Summary(), c, table),
			Link:       links.Rel(self, c.OutputPath()),
			Depth:      depth,
			Children:   toc(c.SortedChildren(), self, table, depth+1, maxDepth),
		})
	}
	return out
}

// weight is the 1-based position of node among its display siblings.
func weight(node *tree.ModuleNode, table *links.Table) int {
	parent := node.Parent
	if parent == nil {
		if node == table.Root() {
			return 0
		}
		parent = table.Root()
	}
	for i, s := range parent.SortedChildren() {
		if s == node {
			return i + 1
		}
	}
	return 0
}

func titleCase(s string) string {
	return cases.Title(language.English).String(s)
}
