package build

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"git.home.luguber.info/inful/apitree/internal/config"
	"git.home.luguber.info/inful/apitree/internal/ignore"
	"git.home.luguber.info/inful/apitree/internal/unit"
)

// Exclusion records a unit removed by an ignore rule.
type Exclusion struct {
	Unit unit.Unit
	Rule ignore.Rule
}

// filter applies configured patterns plus each root's ignore file. Rules
// are matched against a unit's source path and against its dotted name
// written as a path ("a.d.E" -> "a/d/E").
type filter struct {
	base   *ignore.Engine
	byRoot map[string]*ignore.Engine
}

func newFilter(cfg *config.Config) (*filter, error) {
	baseRules := ignore.FromPatterns("config", cfg.Ignore.Patterns)
	base, err := ignore.Compile(baseRules)
	if err != nil {
		return nil, err
	}
	f := &filter{base: base, byRoot: make(map[string]*ignore.Engine)}
	if cfg.Ignore.File == "" || cfg.Ignore.File == "-" {
		return f, nil
	}
	for _, root := range cfg.Sources.Roots {
		info, err := os.Stat(root)
		if err != nil || !info.IsDir() {
			continue
		}
		fileRules, err := ignore.LoadFile(filepath.Join(root, cfg.Ignore.File))
		if err != nil {
			return nil, err
		}
		if len(fileRules) == 0 {
			continue
		}
		engine, err := ignore.Compile(append(append([]ignore.Rule{}, baseRules...), fileRules...))
		if err != nil {
			return nil, err
		}
		f.byRoot[filepath.Clean(root)] = engine
	}
	return f, nil
}

func (f *filter) engine(root string) *ignore.Engine {
	if root != "" {
		if e, ok := f.byRoot[filepath.Clean(root)]; ok {
			return e
		}
	}
	return f.base
}

// match reports the rule excluding u, if any.
func (f *filter) match(u unit.Unit) (ignore.Rule, bool) {
	e := f.engine(u.Root)
	if e.Len() == 0 {
		return ignore.Rule{}, false
	}
	if u.SourcePath != "" {
		if r, ok := e.Match(u.SourcePath); ok {
			return r, true
		}
	}
	return e.Match(strings.ReplaceAll(u.DottedName, ".", "/"))
}

// apply splits units into kept and excluded, checking ctx between units.
func (f *filter) apply(ctx context.Context, units []unit.Unit) ([]unit.Unit, []Exclusion, error) {
	kept := make([]unit.Unit, 0, len(units))
	var excluded []Exclusion
	for _, u := range units {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		if r, ok := f.match(u); ok {
			excluded = append(excluded, Exclusion{Unit: u, Rule: r})
			continue
		}
		kept = append(kept, u)
	}
	return kept, excluded, nil
}

func sortUnits(units []unit.Unit) {
	sort.SliceStable(units, func(i, j int) bool { return units[i].DottedName < units[j].DottedName })
}
