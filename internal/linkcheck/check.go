package linkcheck

import (
	"bytes"
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/apitree/internal/foundation/errors"
)

// Broken is a relative link whose target does not exist.
type Broken struct {
	Page   string // output path of the page holding the link
	Link   string // destination as written
	Target string // resolved output path
}

// Classified converts the broken link into a report warning.
func (b Broken) Classified() *errors.ClassifiedError {
	return errors.NewError(errors.CategoryValidation, "broken relative link").
		Warning().
		WithContext("path", b.Page).
		WithContext("link", b.Link).
		WithContext("target", b.Target).
		Build()
}

// Checker verifies pages under Dir. Known holds output paths already known to
// exist (the pages of the current build); anything else is looked up on disk.
type Checker struct {
	Dir   string
	Known map[string]struct{}
}

// Check reads every page and returns its broken relative links, in page order.
// Pages ending in ".html" are parsed as HTML, everything else as markdown.
func (c *Checker) Check(ctx context.Context, pages []string) ([]Broken, error) {
	var out []Broken
	for _, page := range pages {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		// #nosec G304 -- page is an output path produced by this build
		content, err := os.ReadFile(filepath.Join(c.Dir, filepath.FromSlash(page)))
		if err != nil {
			return out, errors.WrapError(err, errors.CategoryFileSystem, "read page for link check").
				WithContext("path", page).
				Build()
		}
		dests, err := c.extract(page, content)
		if err != nil {
			return out, err
		}
		for _, dest := range dests {
			target, ok := localTarget(dest)
			if !ok {
				continue
			}
			resolved := path.Clean(path.Join(path.Dir(page), target))
			if !c.exists(resolved) {
				out = append(out, Broken{Page: page, Link: dest, Target: resolved})
			}
		}
	}
	return out, nil
}

func (c *Checker) extract(page string, content []byte) ([]string, error) {
	if strings.HasSuffix(page, ".html") {
		return ExtractHTML(bytes.NewReader(content))
	}
	return ExtractMarkdown(stripFrontMatter(content)), nil
}

func (c *Checker) exists(p string) bool {
	if strings.HasPrefix(p, "../") || p == ".." {
		return false
	}
	if _, ok := c.Known[p]; ok {
		return true
	}
	_, err := os.Stat(filepath.Join(c.Dir, filepath.FromSlash(p)))
	return err == nil
}
