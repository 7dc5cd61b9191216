package config

import (
	"path/filepath"
	"time"
)

const (
	defaultTemplate    = "markdown"
	defaultTitle       = "API Reference"
	defaultOutputDir   = "site"
	defaultIgnoreFile  = ".apitreeignore"
	defaultMaxFileSize = 2 << 20
	defaultTOCDepth    = 2
	defaultDebounce    = 500 * time.Millisecond
	defaultHistoryFile = "history.db"
)

// ApplyDefaults fills every unset field. It is idempotent.
func ApplyDefaults(cfg *Config) {
	if cfg.Sources.Scanner == "" {
		cfg.Sources.Scanner = ScannerPython
	}
	if cfg.Sources.MaxFileSize <= 0 {
		cfg.Sources.MaxFileSize = defaultMaxFileSize
	}
	if cfg.Ignore.File == "" {
		cfg.Ignore.File = defaultIgnoreFile
	}
	if cfg.Render.Template == "" {
		cfg.Render.Template = defaultTemplate
	}
	if cfg.Render.Title == "" {
		cfg.Render.Title = defaultTitle
	}
	if cfg.Render.TOCDepth == 0 {
		cfg.Render.TOCDepth = defaultTOCDepth
	}
	if cfg.Output.Directory == "" {
		cfg.Output.Directory = defaultOutputDir
	}
	if cfg.History.Enabled && cfg.History.Path == "" {
		cfg.History.Path = filepath.Join(".apitree", defaultHistoryFile)
	}
	if cfg.Watch.Debounce == "" {
		cfg.Watch.Debounce = defaultDebounce.String()
	}
}
