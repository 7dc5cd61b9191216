package commands

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"git.home.luguber.info/inful/apitree/internal/config"
	"git.home.luguber.info/inful/apitree/internal/watch"
)

// WatchCmd implements the 'watch' command.
type WatchCmd struct {
	Overrides   Overrides `embed:""`
	MetricsFile string    `name:"metrics-file" help:"Write Prometheus metrics in textfile format after every build"`
}

func (w *WatchCmd) Run(ctx context.Context, g *Global, root *CLI) error {
	cfg, err := loadConfig(root.Config, w.Overrides)
	if err != nil {
		return err
	}
	s, err := openSession(cfg, w.MetricsFile, g.Logger)
	if err != nil {
		return err
	}
	defer s.Close()

	watcher, err := watch.New(watchOptions(cfg, g.Logger), func(ctx context.Context, reason string) error {
		report, err := s.run(ctx)
		if report != nil {
			_, _ = fmt.Fprintln(g.Out, report.Summary())
		}
		return err
	})
	if err != nil {
		return err
	}
	return watcher.Run(ctx)
}

func watchOptions(cfg *config.Config, logger *slog.Logger) watch.Options {
	opts := watch.Options{
		Roots:    cfg.Sources.Roots,
		Exclude:  []string{cfg.Output.Directory},
		Debounce: cfg.Watch.DebounceDuration(),
		Interval: cfg.Watch.IntervalDuration(),
		Logger:   logger,
	}
	if cfg.Sources.Scanner != config.ScannerUnits {
		opts.Suffixes = []string{".py", ".pyi"}
	}
	if cfg.Ignore.File != "" && cfg.Ignore.File != "-" {
		opts.Names = []string{cfg.Ignore.File}
	}
	if cfg.History.Enabled {
		opts.Exclude = append(opts.Exclude, filepath.Dir(cfg.History.Path))
	}
	return opts
}
