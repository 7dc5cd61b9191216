// Package pathresolve maps files beneath configured source roots to dotted
// names, treating marker-less directories reported by a scanner as namespace
// packages.
package pathresolve

import (
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"git.home.luguber.info/inful/apitree/internal/foundation/errors"
	"git.home.luguber.info/inful/apitree/internal/unit"
)

// Options tunes how file names map onto units.
type Options struct {
	// Suffixes are the recognised source-file suffixes, stripped from module names.
	Suffixes []string
	// Markers are file names that turn their directory into a regular package.
	Markers []string
}

// DefaultOptions matches Python source trees.
func DefaultOptions() Options {
	return Options{
		Suffixes: []string{".py", ".pyi"},
		Markers:  []string{"__init__.py", "__init__.pyi"},
	}
}

// Resolver computes dotted names for paths under a fixed set of roots.
// It records every claimed dotted name so that two sources resolving to the
// same name are reported instead of silently overwriting each other.
type Resolver struct {
	roots      []string
	opts       Options
	boundaries map[string]map[string]struct{} // root -> POSIX dir
	claims     map[string]string              // dotted name -> claiming source
}

// New creates a Resolver for the given roots.
func New(roots []string, opts Options) *Resolver {
	if len(opts.Suffixes) == 0 && len(opts.Markers) == 0 {
		opts = DefaultOptions()
	}
	clean := make([]string, 0, len(roots))
	for _, r := range roots {
		clean = append(clean, filepath.Clean(r))
	}
	return &Resolver{
		roots:      clean,
		opts:       opts,
		boundaries: make(map[string]map[string]struct{}),
		claims:     make(map[string]string),
	}
}

// Roots returns the configured roots.
func (r *Resolver) Roots() []string {
	return append([]string(nil), r.roots...)
}

// RegisterBoundary marks dir (absolute or relative to root) as a package
// boundary even though it has no marker file.
func (r *Resolver) RegisterBoundary(root, dir string) error {
	rel, err := r.relative(root, dir)
	if err != nil {
		return err
	}
	if rel == "" {
		return nil
	}
	root = filepath.Clean(root)
	set, ok := r.boundaries[root]
	if !ok {
		set = make(map[string]struct{})
		r.boundaries[root] = set
	}
	set[rel] = struct{}{}
	return nil
}

// IsBoundary reports whether dir was registered under root.
func (r *Resolver) IsBoundary(root, dir string) bool {
	rel, err := r.relative(root, dir)
	if err != nil {
		return false
	}
	_, ok := r.boundaries[filepath.Clean(root)][rel]
	return ok
}

// Resolve computes the dotted name and kind for file (absolute or relative to
// root). Directories must have been registered as boundaries; files must carry
// a recognised suffix.
func (r *Resolver) Resolve(root, file string) (string, unit.Kind, error) {
	rel, err := r.relative(root, file)
	if err != nil {
		return "", "", err
	}
	if rel == "" {
		return "", "", fmt.Errorf("path %q is the source root itself", file)
	}

	if r.IsBoundary(root, rel) {
		return dotted(rel), unit.Package, nil
	}

	base := path.Base(rel)
	dir := path.Dir(rel)
	for _, m := range r.opts.Markers {
		if base == m {
			if dir == "." {
				return "", "", fmt.Errorf("marker %q directly under source root has no package name", rel)
			}
			return dotted(dir), unit.Package, nil
		}
	}
	for _, s := range r.opts.Suffixes {
		if strings.HasSuffix(base, s) && len(base) > len(s) {
			return dotted(strings.TrimSuffix(rel, s)), unit.Module, nil
		}
	}
	return "", "", fmt.Errorf("path %q is neither a source file nor a registered package boundary", rel)
}

// Claim records that source owns dotted. A second, different source claiming
// the same name is an ambiguity error naming both.
func (r *Resolver) Claim(dotted, source string) error {
	if prev, ok := r.claims[dotted]; ok && prev != source {
		return errors.AmbiguityError("two sources resolve to the same dotted name").
			WithContext("dotted_name", dotted).
			WithContext("first", prev).
			WithContext("second", source).
			Build()
	}
	r.claims[dotted] = source
	return nil
}

// ClaimBoundary claims the dotted name of a registered boundary directory, so
// a module file with the same name (a/b.py beside a/b/) is reported as an
// ambiguity instead of silently parenting the directory's modules.
func (r *Resolver) ClaimBoundary(root, dir string) error {
	if !r.IsBoundary(root, dir) {
		return fmt.Errorf("directory %q is not a registered package boundary", dir)
	}
	rel, err := r.relative(root, dir)
	if err != nil {
		return err
	}
	name := dotted(rel)
	// Namespace packages may span several roots.
	if prev, ok := r.claims[name]; ok && strings.HasSuffix(prev, "/") {
		return nil
	}
	return r.Claim(name, filepath.ToSlash(filepath.Join(filepath.Clean(root), rel))+"/")
}

// Claims returns the claimed dotted names in sorted order.
func (r *Resolver) Claims() []string {
	out := make([]string, 0, len(r.claims))
	for k := range r.claims {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// RootFor returns the configured root containing p, preferring the longest match.
func (r *Resolver) RootFor(p string) (string, bool) {
	best := ""
	for _, root := range r.roots {
		if _, err := r.relative(root, p); err == nil && len(root) > len(best) {
			best = root
		}
	}
	return best, best != ""
}

// relative returns the POSIX path of p below root ("" for root itself).
func (r *Resolver) relative(root, p string) (string, error) {
	root = filepath.Clean(root)
	if !filepath.IsAbs(p) && !strings.HasPrefix(filepath.Clean(p), root+string(filepath.Separator)) && filepath.Clean(p) != root {
		p = filepath.Join(root, p)
	}
	rel, err := filepath.Rel(root, filepath.Clean(p))
	if err != nil {
		return "", fmt.Errorf("path %q is not under root %q: %w", p, root, err)
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("path %q is outside root %q", p, root)
	}
	if rel == "." {
		return "", nil
	}
	return rel, nil
}

func dotted(rel string) string {
	return strings.ReplaceAll(rel, "/", ".")
}
