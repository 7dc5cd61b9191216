package scan

import (
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

var skipDirs = map[string]struct{}{
	"__pycache__":   {},
	"node_modules":  {},
	".git":          {},
	".hg":           {},
	".svn":          {},
	"venv":          {},
	".venv":         {},
	"env":           {},
	".env":          {},
	"build":         {},
	"dist":          {},
	".tox":          {},
	".mypy_cache":   {},
	".ruff_cache":   {},
	".pytest_cache": {},
	"egg-info":      {},
}

var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SkipFunc lets callers prune paths before they are read. rel is POSIX and
// relative to the source root.
type SkipFunc func(root, rel string, dir bool) bool

type sourceDir struct {
	rel       string // "" for the root itself
	hasMarker bool
}

type sourceFile struct {
	rel  string
	size int64
}

type listing struct {
	dirs  []sourceDir
	files []sourceFile
}

// sourceDirs returns every directory holding a source file at any depth.
func (l *listing) sourceDirs() map[string]struct{} {
	out := make(map[string]struct{})
	for _, f := range l.files {
		for dir := path.Dir(f.rel); dir != "." && dir != "/"; dir = path.Dir(dir) {
			if _, seen := out[dir]; seen {
				break
			}
			out[dir] = struct{}{}
		}
	}
	return out
}

// discover walks root and returns the importable directories and source
// files below it, sorted by path. Hidden entries, well-known tool and
// virtualenv directories, symlinks and names that are not identifiers are
// skipped.
func discover(root string, suffix, marker string, skip SkipFunc) (*listing, error) {
	out := &listing{}
	markers := make(map[string]bool)

	err := filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			if p == root {
				return err
			}
			return nil
		}
		name := d.Name()
		rel, relErr := filepath.Rel(root, p)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if p == root {
				out.dirs = append(out.dirs, sourceDir{})
				return nil
			}
			if _, ok := skipDirs[name]; ok || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".egg-info") {
				return filepath.SkipDir
			}
			if !identifierRe.MatchString(name) {
				return filepath.SkipDir
			}
			if skip != nil && skip(root, rel, true) {
				return filepath.SkipDir
			}
			out.dirs = append(out.dirs, sourceDir{rel: rel})
			return nil
		}

		if d.Type()&os.ModeSymlink != 0 || strings.HasPrefix(name, ".") {
			return nil
		}
		if !strings.HasSuffix(name, suffix) {
			return nil
		}
		if name == marker {
			markers[filepath.ToSlash(filepath.Dir(rel))] = true
		} else if !identifierRe.MatchString(strings.TrimSuffix(name, suffix)) {
			return nil
		}
		if skip != nil && skip(root, rel, false) {
			return nil
		}
		var size int64
		if info, infoErr := d.Info(); infoErr == nil {
			size = info.Size()
		}
		out.files = append(out.files, sourceFile{rel: rel, size: size})
		return nil
	})
	if err != nil {
		return nil, err
	}

	for i := range out.dirs {
		key := out.dirs[i].rel
		if key == "" {
			key = "."
		}
		out.dirs[i].hasMarker = markers[key]
	}
	sort.Slice(out.dirs, func(i, j int) bool { return out.dirs[i].rel < out.dirs[j].rel })
	sort.Slice(out.files, func(i, j int) bool { return out.files[i].rel < out.files[j].rel })
	return out, nil
}
