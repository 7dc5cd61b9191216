// Package scan defines the source scanner contract and the bundled scanners
// that turn source trees (or pre-scanned listings) into unit records.
package scan

import (
	"context"
	"fmt"

	"git.home.luguber.info/inful/apitree/internal/foundation/errors"
	"git.home.luguber.info/inful/apitree/internal/unit"
)

// Scanner produces units for the given source roots. Per-file problems are
// reported through warn and the affected file's units are dropped; a non-nil
// return aborts the build.
type Scanner interface {
	Scan(ctx context.Context, roots []string, emit func(unit.Unit), warn func(Warning)) error
}

// Warning is a non-fatal, per-file scan failure.
type Warning struct {
	Root string
	Path string // POSIX, relative to Root
	Unit string // dotted name when known
	Err  error
}

func (w Warning) Error() string {
	loc := w.Path
	if w.Unit != "" {
		loc = fmt.Sprintf("%s (%s)", w.Path, w.Unit)
	}
	return fmt.Sprintf("%s: %v", loc, w.Err)
}

func (w Warning) Unwrap() error { return w.Err }

// Classified converts the warning into a scan-category ClassifiedError.
func (w Warning) Classified() *errors.ClassifiedError {
	b := errors.ScanWarning("unit dropped").
		WithCause(w.Err).
		WithContext("path", w.Path)
	if w.Root != "" {
		b = b.WithContext("root", w.Root)
	}
	if w.Unit != "" {
		b = b.WithContext("unit", w.Unit)
	}
	return b.Build()
}

// StaticScanner replays a fixed list of units and warnings.
type StaticScanner struct {
	Units    []unit.Unit
	Warnings []Warning
}

// Scan implements Scanner. Roots are ignored.
func (s StaticScanner) Scan(ctx context.Context, _ []string, emit func(unit.Unit), warn func(Warning)) error {
	for _, w := range s.Warnings {
		warn(w)
	}
	for _, u := range s.Units {
		if err := ctx.Err(); err != nil {
			return err
		}
		emit(u)
	}
	return nil
}

// Collect runs s and gathers everything it reports.
func Collect(ctx context.Context, s Scanner, roots []string) ([]unit.Unit, []Warning, error) {
	var units []unit.Unit
	var warnings []Warning
	err := s.Scan(ctx, roots,
		func(u unit.Unit) { units = append(units, u) },
		func(w Warning) { warnings = append(warnings, w) },
	)
	return units, warnings, err
}
