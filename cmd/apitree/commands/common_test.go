package commands

import (
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/apitree/internal/config"
)

func TestParseLogLevel(t *testing.T) {
	t.Setenv("APITREE_LOG_LEVEL", "warn")
	require.Equal(t, slog.LevelWarn, parseLogLevel(false))
	require.Equal(t, slog.LevelDebug, parseLogLevel(true))
	t.Setenv("APITREE_LOG_LEVEL", "")
	require.Equal(t, slog.LevelInfo, parseLogLevel(false))
}

func TestOverridesApply(t *testing.T) {
	cfg := config.Default("src")
	Overrides{}.apply(cfg)
	require.Equal(t, "site", cfg.Output.Directory)

	Overrides{Output: "out", Template: "html", Workers: 3}.apply(cfg)
	require.Equal(t, "out", cfg.Output.Directory)
	require.Equal(t, "html", cfg.Render.Template)
	require.Equal(t, 3, cfg.Render.Workers)
}

func TestWatchOptions(t *testing.T) {
	cfg := config.Default("src")
	cfg.History.Enabled = true
	cfg.History.Path = filepath.Join(".apitree", "history.db")

	opts := watchOptions(cfg, slog.Default())
	require.Equal(t, []string{"src"}, opts.Roots)
	require.Equal(t, []string{".py", ".pyi"}, opts.Suffixes)
	require.Equal(t, []string{".apitreeignore"}, opts.Names)
	require.Equal(t, []string{"site", ".apitree"}, opts.Exclude)
	require.Equal(t, cfg.Watch.DebounceDuration(), opts.Debounce)

	cfg.Sources.Scanner = config.ScannerUnits
	cfg.Ignore.File = "-"
	opts = watchOptions(cfg, slog.Default())
	require.Empty(t, opts.Suffixes)
	require.Empty(t, opts.Names)
}
