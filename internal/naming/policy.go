// Package naming computes display labels for forest nodes, applies the
// configured display simplifications and resolves sibling collisions.
package naming

import (
	"fmt"
	"regexp"
	"strings"

	"git.home.luguber.info/inful/apitree/internal/foundation/errors"
	"git.home.luguber.info/inful/apitree/internal/unit"
)

// Policy selects the display simplifications applied on top of the default
// "last dotted segment" label.
type Policy struct {
	// CollapseNamespaces merges a synthetic, undocumented package with its only child.
	CollapseNamespaces bool `yaml:"collapse_namespaces"`
	// Flatten holds dotted-name globs of modules whose members are hoisted
	// into the enclosing display parent.
	Flatten []string `yaml:"flatten,omitempty"`
	// FlattenPrivate also flattens modules named "_x" (not dunder names).
	FlattenPrivate bool `yaml:"flatten_private"`
}

// IsZero reports whether the policy changes nothing.
func (p Policy) IsZero() bool {
	return !p.CollapseNamespaces && !p.FlattenPrivate && len(p.Flatten) == 0
}

type matcher struct {
	globs    []string
	patterns []*regexp.Regexp
	private  bool
}

func compilePolicy(p Policy) (*matcher, error) {
	m := &matcher{private: p.FlattenPrivate}
	for _, g := range p.Flatten {
		re, err := compileDottedGlob(g)
		if err != nil {
			return nil, errors.ConfigError("invalid flatten pattern").
				WithCause(err).
				WithContext("pattern", g).
				Build()
		}
		m.globs = append(m.globs, g)
		m.patterns = append(m.patterns, re)
	}
	return m, nil
}

// flattens reports whether the node named dotted should be hoisted.
func (m *matcher) flattens(dotted string) bool {
	if m.private && isPrivate(unit.Last(dotted)) {
		return true
	}
	for _, re := range m.patterns {
		if re.MatchString(dotted) {
			return true
		}
	}
	return false
}

func isPrivate(seg string) bool {
	if !strings.HasPrefix(seg, "_") {
		return false
	}
	return !(strings.HasPrefix(seg, "__") && strings.HasSuffix(seg, "__"))
}

// compileDottedGlob turns a dot-separated glob into an anchored regexp.
// "*" matches within one segment, "?" one character, and a "**" segment
// matches zero or more whole segments.
func compileDottedGlob(glob string) (*regexp.Regexp, error) {
	glob = strings.TrimSpace(glob)
	if glob == "" {
		return nil, fmt.Errorf("empty pattern")
	}
	segs := strings.Split(glob, ".")
	var b strings.Builder
	b.WriteString("^")
	for i, seg := range segs {
		if seg == "" {
			return nil, fmt.Errorf("empty segment in %q", glob)
		}
		last := i == len(segs)-1
		if seg == "**" {
			switch {
			case len(segs) == 1:
				b.WriteString(`.*`)
			case last:
				b.WriteString(`[^.]+(?:\.[^.]+)*`)
			default:
				b.WriteString(`(?:[^.]+\.)*`)
			}
			continue
		}
		if strings.Contains(seg, "**") {
			return nil, fmt.Errorf("'**' must be a whole segment in %q", glob)
		}
		for _, r := range seg {
			switch r {
			case '*':
				b.WriteString(`[^.]*`)
			case '?':
				b.WriteString(`[^.]`)
			case '[', ']', '\\':
				return nil, fmt.Errorf("unsupported character %q in %q", r, glob)
			default:
				b.WriteString(regexp.QuoteMeta(string(r)))
			}
		}
		if !last {
			b.WriteString(`\.`)
		}
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}
