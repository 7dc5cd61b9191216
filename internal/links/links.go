// Package links assigns output paths to forest nodes and exposes the
// resulting immutable name-to-location table to renderers.
package links

import (
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"git.home.luguber.info/inful/apitree/internal/foundation/errors"
	"git.home.luguber.info/inful/apitree/internal/tree"
)

// DefaultTitle labels the synthetic site root.
const DefaultTitle = "API Reference"

// Options controls path assignment and view-source links.
type Options struct {
	// Ext is the page extension including the dot (".md" or ".html").
	Ext string
	// Title labels the synthetic site root.
	Title string
	// SourceLink is a URL template with {path}, {line}, {rev} and {root} placeholders.
	SourceLink string
	// Revision returns the revision substituted for {rev} for a source root.
	Revision func(root string) string
}

// Table is the immutable dotted-name -> output-path map shared by renderers.
type Table struct {
	ext        string
	root       *tree.ModuleNode
	entries    map[string]string
	synthetic  map[string]string
	aliases    map[string]string
	sourceLink string
	revisions  map[string]string
	warnings   []error
}

// Resolve assigns an output path to every node of forest plus the site root
// and returns the lookup table. Two nodes mapping to the same path is an
// ambiguity error naming both. Paths that differ only in case are accepted
// but reported through Warnings.
func Resolve(forest *tree.Forest, opts Options) (*Table, error) {
	if opts.Ext == "" {
		opts.Ext = ".md"
	}
	if !strings.HasPrefix(opts.Ext, ".") {
		opts.Ext = "." + opts.Ext
	}
	if opts.Title == "" {
		opts.Title = DefaultTitle
	}

	t := &Table{
		ext:        opts.Ext,
		root:       tree.NewSyntheticRoot(opts.Title, forest.Roots()),
		entries:    make(map[string]string, forest.Len()),
		synthetic:  make(map[string]string),
		aliases:    make(map[string]string),
		sourceLink: opts.SourceLink,
		revisions:  make(map[string]string),
	}

	owners := make(map[string]string, forest.Len()+1)
	rootIndex := indexName + opts.Ext
	owners[rootIndex] = "<site root>"
	folded := map[string]string{rootIndex: "<site root>"}
	if err := t.root.SetOutputPath(rootIndex); err != nil {
		return nil, internal(err)
	}

	err := forest.Walk(func(n *tree.ModuleNode) error {
		p := t.pathFor(n)
		if prev, taken := owners[p]; taken {
			return errors.AmbiguityError("output path collision").
				WithContext("path", p).
				WithContext("first", prev).
				WithContext("second", n.DottedName).
				Build()
		}
		owners[p] = n.DottedName
		if prev, taken := folded[strings.ToLower(p)]; taken {
			t.warnings = append(t.warnings, errors.AmbiguityError("output paths differ only in case").
				WithContext("path", p).
				WithContext("unit", n.DottedName).
				WithContext("other", prev).
				WithContext("hint", "pages overwrite each other on case-insensitive filesystems").
				Warning().
				Build())
		} else {
			folded[strings.ToLower(p)] = n.DottedName
		}
		if err := n.SetOutputPath(p); err != nil {
			return internal(err)
		}
		if n.Synthetic {
			t.synthetic[n.DottedName] = p
		} else {
			t.entries[n.DottedName] = p
		}
		if opts.Revision != nil && strings.Contains(opts.SourceLink, "{rev}") {
			if _, ok := t.revisions[n.Root]; !ok {
				t.revisions[n.Root] = opts.Revision(n.Root)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for alias, target := range forest.Aliases() {
		t.aliases[alias] = target.OutputPath()
	}
	return t, nil
}

func internal(err error) error {
	return errors.InternalError("output path assignment failed").WithCause(err).Build()
}

// pathFor is the chain of labels from the root: pages with children become
// directory indexes, leaves become files. Leaf labels that would shadow a
// directory index are escaped.
func (t *Table) pathFor(n *tree.ModuleNode) string {
	crumbs := n.Breadcrumb()
	if n.HasChildren() {
		return path.Join(crumbs...) + "/" + indexName + t.ext
	}
	crumbs[len(crumbs)-1] = leafName(crumbs[len(crumbs)-1])
	return path.Join(crumbs...) + t.ext
}

const indexName = "index"

// leafName appends an underscore to "index", "index_", "index__" and so on.
// The mapping stays injective and no leaf file is ever named index<ext>.
func leafName(label string) string {
	if strings.TrimRight(label, "_") == indexName {
		return label + "_"
	}
	return label
}

// Warnings returns the non-fatal path conflicts found while resolving.
func (t *Table) Warnings() []error { return t.warnings }

// Ext returns the page extension.
func (t *Table) Ext() string { return t.ext }

// Root returns the synthetic site root wrapping every top-level node.
func (t *Table) Root() *tree.ModuleNode { return t.root }

// RootIndex is the output path of the site root page.
func (t *Table) RootIndex() string { return t.root.OutputPath() }

// Len is the number of node pages, synthesized intermediates included and
// aliases and the root index excluded.
func (t *Table) Len() int { return len(t.entries) + len(t.synthetic) }

// Lookup resolves a dotted name (or alias) to its output path.
func (t *Table) Lookup(dotted string) (string, bool) {
	if p, ok := t.entries[dotted]; ok {
		return p, true
	}
	if p, ok := t.synthetic[dotted]; ok {
		return p, true
	}
	p, ok := t.aliases[dotted]
	return p, ok
}

// Entries returns a copy of the entries for nodes backed by a scanned unit.
func (t *Table) Entries() map[string]string { return clone(t.entries) }

// Synthetic returns a copy of the entries for intermediate packages the tree
// builder synthesized.
func (t *Table) Synthetic() map[string]string { return clone(t.synthetic) }

// Aliases returns a copy of the alias entries.
func (t *Table) Aliases() map[string]string { return clone(t.aliases) }

func clone(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Paths returns every output path, root index included, sorted.
func (t *Table) Paths() []string {
	out := make([]string, 0, t.Len()+1)
	out = append(out, t.RootIndex())
	for _, p := range t.entries {
		out = append(out, p)
	}
	for _, p := range t.synthetic {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Rel returns the link from the page at output path from to the page at
// output path to.
func (t *Table) Rel(from, to string) string {
	return Rel(from, to)
}

// LinkTo resolves dotted and returns its link relative to the page at from.
func (t *Table) LinkTo(from, dotted string) (string, bool) {
	p, ok := t.Lookup(dotted)
	if !ok {
		return "", false
	}
	return Rel(from, p), true
}

// Rel computes a relative POSIX link between two output paths.
func Rel(from, to string) string {
	fromDir := path.Dir(from)
	if fromDir == "." {
		return to
	}
	a := strings.Split(fromDir, "/")
	b := strings.Split(to, "/")
	i := 0
	for i < len(a) && i < len(b)-1 && a[i] == b[i] {
		i++
	}
	var parts []string
	for range a[i:] {
		parts = append(parts, "..")
	}
	parts = append(parts, b[i:]...)
	return strings.Join(parts, "/")
}

// Revision returns the revision recorded for a source root.
func (t *Table) Revision(root string) string {
	return t.revisions[root]
}

// SourceURL expands the view-source template for n. Synthetic nodes and
// nodes without a source path have no URL.
func (t *Table) SourceURL(n *tree.ModuleNode) string {
	if t.sourceLink == "" || n.Synthetic || n.SourcePath == "" {
		return ""
	}
	line := ""
	if n.Line > 0 {
		line = strconv.Itoa(n.Line)
	}
	root := filepath.ToSlash(n.Root)
	root = strings.TrimPrefix(path.Clean(root), "./")
	if root == "." {
		root = ""
	}
	tmpl := t.sourceLink
	if root == "" {
		tmpl = strings.ReplaceAll(tmpl, "{root}/", "")
	}
	if line == "" {
		tmpl = strings.TrimSuffix(tmpl, "#L{line}")
	}
	r := strings.NewReplacer(
		"{path}", n.SourcePath,
		"{line}", line,
		"{rev}", t.revisions[n.Root],
		"{root}", root,
	)
	return r.Replace(tmpl)
}
