package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyBuildID    = "build_id"
	KeyStage      = "stage"
	KeyDurationMS = "duration_ms"
	KeyUnit       = "unit"
	KeyDottedName = "dotted_name"
	KeyKind       = "kind"
	KeyPath       = "path"
	KeyRoot       = "root"
	KeyPattern    = "pattern"
	KeyOrigin     = "origin"
	KeyTemplate   = "template"
	KeyWorkers    = "workers"
	KeyCount      = "count"
	KeyOutcome    = "outcome"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func BuildID(id string) slog.Attr      { return slog.String(KeyBuildID, id) }
func Stage(name string) slog.Attr      { return slog.String(KeyStage, name) }
func DurationMS(ms float64) slog.Attr  { return slog.Float64(KeyDurationMS, ms) }
func Unit(name string) slog.Attr       { return slog.String(KeyUnit, name) }
func DottedName(name string) slog.Attr { return slog.String(KeyDottedName, name) }
func Kind(k string) slog.Attr          { return slog.String(KeyKind, k) }
func Path(p string) slog.Attr          { return slog.String(KeyPath, p) }
func Root(r string) slog.Attr          { return slog.String(KeyRoot, r) }
func Pattern(p string) slog.Attr       { return slog.String(KeyPattern, p) }
func Origin(o string) slog.Attr        { return slog.String(KeyOrigin, o) }
func Template(t string) slog.Attr      { return slog.String(KeyTemplate, t) }
func Workers(n int) slog.Attr          { return slog.Int(KeyWorkers, n) }
func Count(n int) slog.Attr            { return slog.Int(KeyCount, n) }
func Outcome(o string) slog.Attr       { return slog.String(KeyOutcome, o) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
