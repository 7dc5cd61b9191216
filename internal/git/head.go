package git

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	ggit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// ErrNotRepository is returned when no repository encloses the given path.
var ErrNotRepository = errors.New("not inside a git repository")

// HeadRevision returns the commit hash HEAD points at for the repository that
// contains dir. Parent directories are searched for the .git directory.
func HeadRevision(dir string) (string, error) {
	repo, err := ggit.PlainOpenWithOptions(dir, &ggit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, ggit.ErrRepositoryNotExists) {
			return "", ErrNotRepository
		}
		return "", fmt.Errorf("open repository: %w", err)
	}
	ref, err := repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			// Fresh repository without commits.
			return "", fmt.Errorf("repository at %s has no commits: %w", dir, err)
		}
		return "", fmt.Errorf("resolve HEAD: %w", err)
	}
	return ref.Hash().String(), nil
}

// RepoRoot returns the top-level working directory of the repository
// containing dir.
func RepoRoot(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for p := abs; ; p = filepath.Dir(p) {
		if fi, statErr := os.Stat(filepath.Join(p, ".git")); statErr == nil && (fi.IsDir() || fi.Mode().IsRegular()) {
			return p, nil
		}
		if filepath.Dir(p) == p {
			return "", ErrNotRepository
		}
	}
}

// RevisionCache memoizes HeadRevision per directory and applies a fallback
// revision when a directory is not under version control.
type RevisionCache struct {
	fallback string
	mu       sync.Mutex
	revs     map[string]string
}

// NewRevisionCache returns a cache that answers fallback (or "main" when
// fallback is empty) for directories without a readable HEAD.
func NewRevisionCache(fallback string) *RevisionCache {
	if strings.TrimSpace(fallback) == "" {
		fallback = "main"
	}
	return &RevisionCache{fallback: fallback, revs: make(map[string]string)}
}

// Revision returns the HEAD commit for dir, or the fallback.
func (c *RevisionCache) Revision(dir string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rev, ok := c.revs[dir]; ok {
		return rev
	}
	rev, err := HeadRevision(dir)
	if err != nil || rev == "" {
		rev = c.fallback
	}
	c.revs[dir] = rev
	return rev
}
