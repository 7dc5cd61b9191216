// Package ignore compiles glob-style exclusion patterns and matches candidate
// source paths against them before any structural work begins.
package ignore

import (
	"bufio"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"

	"git.home.luguber.info/inful/apitree/internal/foundation/errors"
)

// Rule is a single exclusion pattern plus where it came from.
type Rule struct {
	Pattern string
	Origin  string // e.g. "config:3" or ".apitreeignore:7"
}

func (r Rule) String() string {
	if r.Origin == "" {
		return r.Pattern
	}
	return fmt.Sprintf("%s (%s)", r.Pattern, r.Origin)
}

type compiledRule struct {
	rule    Rule
	matcher *gitignore.GitIgnore
}

// Engine decides whether a path is excluded. A nil or empty Engine excludes nothing.
type Engine struct {
	rules []compiledRule
}

// FromPatterns wraps plain pattern strings as rules whose origin is their
// 1-based position in the list.
func FromPatterns(origin string, patterns []string) []Rule {
	rules := make([]Rule, 0, len(patterns))
	for i, p := range patterns {
		rules = append(rules, Rule{Pattern: p, Origin: fmt.Sprintf("%s:%d", origin, i+1)})
	}
	return rules
}

// Compile validates and compiles every rule. Blank rules and comments are
// skipped. The first malformed rule aborts compilation with a config error.
func Compile(rules []Rule) (*Engine, error) {
	e := &Engine{rules: make([]compiledRule, 0, len(rules))}
	for _, r := range rules {
		p := strings.TrimSpace(r.Pattern)
		if p == "" || strings.HasPrefix(p, "#") {
			continue
		}
		if err := validate(p); err != nil {
			return nil, errors.ConfigError("malformed ignore pattern").
				WithCause(err).
				WithContext("pattern", r.Pattern).
				WithContext("origin", r.Origin).
				Build()
		}
		e.rules = append(e.rules, compiledRule{
			rule:    Rule{Pattern: p, Origin: r.Origin},
			matcher: gitignore.CompileIgnoreLines(p),
		})
	}
	return e, nil
}

// validate checks glob syntax segment by segment; "**" is accepted as a segment.
func validate(p string) error {
	if strings.HasPrefix(p, "!") {
		return fmt.Errorf("negated patterns are not supported")
	}
	for _, seg := range strings.Split(strings.Trim(p, "/"), "/") {
		if seg == "**" || seg == "" {
			continue
		}
		if _, err := path.Match(seg, ""); err != nil {
			return fmt.Errorf("segment %q: %w", seg, err)
		}
	}
	return nil
}

// Len returns the number of active rules.
func (e *Engine) Len() int {
	if e == nil {
		return 0
	}
	return len(e.rules)
}

// Rules returns the active rules in evaluation order.
func (e *Engine) Rules() []Rule {
	if e == nil {
		return nil
	}
	out := make([]Rule, len(e.rules))
	for i, cr := range e.rules {
		out[i] = cr.rule
	}
	return out
}

// Excluded reports whether p matches any rule.
func (e *Engine) Excluded(p string) bool {
	_, ok := e.Match(p)
	return ok
}

// Match returns the first rule matching p.
func (e *Engine) Match(p string) (Rule, bool) {
	if e == nil || len(e.rules) == 0 {
		return Rule{}, false
	}
	norm := Normalize(p)
	if norm == "" {
		return Rule{}, false
	}
	for _, cr := range e.rules {
		if cr.matcher.MatchesPath(norm) {
			return cr.rule, true
		}
	}
	return Rule{}, false
}

// Normalize converts p to a clean POSIX form without a leading "./".
func Normalize(p string) string {
	if p == "" {
		return ""
	}
	p = strings.ReplaceAll(filepath.ToSlash(p), "\\", "/")
	p = path.Clean(p)
	if p == "." {
		return ""
	}
	return strings.TrimPrefix(p, "./")
}

// LoadFile reads rules from an ignore file, one pattern per line. A missing
// file yields no rules and no error.
func LoadFile(name string) ([]Rule, error) {
	f, err := os.Open(filepath.Clean(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.WrapError(err, errors.CategoryConfig, "read ignore file").
			Fatal().
			WithContext("path", name).
			Build()
	}
	defer func() { _ = f.Close() }()

	var rules []Rule
	base := filepath.Base(name)
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		rules = append(rules, Rule{Pattern: text, Origin: fmt.Sprintf("%s:%d", base, line)})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.WrapError(err, errors.CategoryConfig, "read ignore file").
			Fatal().
			WithContext("path", name).
			Build()
	}
	return rules, nil
}
