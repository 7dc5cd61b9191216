package config

import (
	"fmt"
	"strings"
	"time"

	"git.home.luguber.info/inful/apitree/internal/foundation/errors"
)

var sourceLinkPlaceholders = []string{"{path}", "{line}", "{rev}", "{root}"}

// Validate checks a defaulted configuration and returns the first problem
// as a config error.
func Validate(cfg *Config) error {
	if len(cfg.Sources.Roots) == 0 {
		return invalid("sources.roots", "at least one source root is required")
	}
	for i, r := range cfg.Sources.Roots {
		if strings.TrimSpace(r) == "" {
			return invalid(fmt.Sprintf("sources.roots[%d]", i), "empty source root")
		}
	}
	switch cfg.Sources.Scanner {
	case ScannerPython, ScannerUnits:
	default:
		return invalid("sources.scanner", fmt.Sprintf("unknown scanner %q (expected python or units)", cfg.Sources.Scanner))
	}
	if cfg.Render.Workers < 0 {
		return invalid("render.workers", "must not be negative")
	}
	if cfg.Render.TOCDepth < 0 {
		return invalid("render.toc_depth", "must not be negative")
	}
	if err := validateSourceLink(cfg.SourceLink); err != nil {
		return err
	}
	if _, err := time.ParseDuration(cfg.Watch.Debounce); err != nil {
		return invalid("watch.debounce", err.Error())
	}
	if cfg.Watch.Interval != "" {
		d, err := time.ParseDuration(cfg.Watch.Interval)
		if err != nil {
			return invalid("watch.interval", err.Error())
		}
		if d < time.Second {
			return invalid("watch.interval", "must be at least 1s")
		}
	}
	return nil
}

// validateSourceLink rejects templates with unknown {placeholders}.
func validateSourceLink(tmpl string) error {
	rest := tmpl
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			return nil
		}
		end := strings.IndexByte(rest[open:], '}')
		if end < 0 {
			return invalid("source_link", "unterminated placeholder")
		}
		ph := rest[open : open+end+1]
		known := false
		for _, k := range sourceLinkPlaceholders {
			if ph == k {
				known = true
				break
			}
		}
		if !known {
			return invalid("source_link", fmt.Sprintf("unknown placeholder %s", ph))
		}
		rest = rest[open+end+1:]
	}
}

func invalid(field, msg string) error {
	return errors.ConfigError("invalid configuration: " + msg).
		WithContext("field", field).
		Build()
}
