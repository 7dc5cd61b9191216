package errors

import (
	stderrors "errors"
	"fmt"
	"log/slog"
	"testing"
)

func TestCLIErrorAdapter_ExitCodeFor(t *testing.T) {
	adapter := NewCLIErrorAdapter(false, slog.Default())

	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{name: "nil error", err: nil, expected: 0},
		{name: "validation", err: ValidationError("bad flag").Build(), expected: 2},
		{name: "ambiguity", err: AmbiguityError("duplicate dotted name").Build(), expected: 3},
		{name: "config", err: ConfigError("malformed ignore pattern").Build(), expected: 7},
		{name: "render", err: RenderError("template failed").Build(), expected: 11},
		{name: "canceled", err: CanceledError("build canceled").Build(), expected: 130},
		{name: "wrapped config", err: fmt.Errorf("stage filtering: %w", ConfigError("bad").Build()), expected: 7},
		{name: "unclassified", err: stderrors.New("boom"), expected: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := adapter.ExitCodeFor(tt.err); got != tt.expected {
				t.Errorf("ExitCodeFor() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestCLIErrorAdapter_FormatError(t *testing.T) {
	quiet := NewCLIErrorAdapter(false, slog.Default())
	verbose := NewCLIErrorAdapter(true, slog.Default())

	internal := InternalError("invariant broken").Build()
	if got := quiet.FormatError(internal); got != "Internal error occurred (use -v for details)" {
		t.Errorf("quiet internal = %q", got)
	}
	if got := verbose.FormatError(internal); got != "Error: [internal:fatal] invariant broken" {
		t.Errorf("verbose internal = %q", got)
	}

	cfg := ConfigError("malformed ignore pattern").WithContext("pattern", "[abc").Build()
	if got := quiet.FormatError(cfg); got != "Error: [config:fatal] malformed ignore pattern (pattern=[abc)" {
		t.Errorf("config = %q", got)
	}
	if got := quiet.FormatError(stderrors.New("plain")); got != "Error: plain" {
		t.Errorf("plain = %q", got)
	}
}
