// Package commands implements the apitree command line.
package commands

import (
	"context"
	stdErrors "errors"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/apitree/internal/build"
	"git.home.luguber.info/inful/apitree/internal/config"
	"git.home.luguber.info/inful/apitree/internal/foundation/errors"
	"git.home.luguber.info/inful/apitree/internal/history"
	"git.home.luguber.info/inful/apitree/internal/logfields"
	"git.home.luguber.info/inful/apitree/internal/metrics"
)

// Global carries state shared by all subcommands.
type Global struct {
	Logger *slog.Logger
	Out    io.Writer
}

// CLI definition & global flags.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"apitree.yaml" env:"APITREE_CONFIG"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Build   BuildCmd   `cmd:"" help:"Generate API reference pages from the configured sources"`
	Init    InitCmd    `cmd:"" help:"Initialize a new configuration file"`
	Scan    ScanCmd    `cmd:"" help:"List the units that survive ignore rules without rendering"`
	Watch   WatchCmd   `cmd:"" help:"Rebuild whenever sources change"`
	History HistoryCmd `cmd:"" help:"Show recorded builds"`
}

// AfterApply runs after flag parsing; setup logging once.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply(g *Global) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLogLevel(c.Verbose)}))
	slog.SetDefault(logger)
	g.Logger = logger
	return nil
}

// parseLogLevel honours -v first, then APITREE_LOG_LEVEL.
func parseLogLevel(verbose bool) slog.Level {
	if verbose {
		return slog.LevelDebug
	}
	switch strings.ToLower(strings.TrimSpace(os.Getenv("APITREE_LOG_LEVEL"))) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Overrides are flags that take precedence over the configuration file.
type Overrides struct {
	Output   string `short:"o" help:"Output directory (overrides output.directory)"`
	Template string `short:"t" help:"Template set: markdown or html (overrides render.template)"`
	Workers  int    `short:"w" help:"Render workers, 0 keeps the configured value"`
}

func (o Overrides) apply(cfg *config.Config) {
	if o.Output != "" {
		cfg.Output.Directory = o.Output
	}
	if o.Template != "" {
		cfg.Render.Template = o.Template
	}
	if o.Workers > 0 {
		cfg.Render.Workers = o.Workers
	}
}

func loadConfig(path string, o Overrides) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	o.apply(cfg)
	return cfg, nil
}

// session bundles a build service with the resources it owns.
type session struct {
	svc         *build.Service
	store       history.Store
	prom        *metrics.PrometheusRecorder
	metricsFile string
	logger      *slog.Logger
}

func openSession(cfg *config.Config, metricsFile string, logger *slog.Logger) (*session, error) {
	s := &session{metricsFile: metricsFile, logger: logger}
	opts := []build.Option{build.WithLogger(logger)}
	if metricsFile != "" {
		s.prom = metrics.NewPrometheusRecorder(nil)
		opts = append(opts, build.WithRecorder(s.prom))
	}
	if cfg.History.Enabled {
		store, err := history.Open(cfg.History.Path)
		if err != nil {
			return nil, err
		}
		s.store = store
		opts = append(opts, build.WithHistory(store))
	}
	s.svc = build.New(cfg, opts...)
	return s, nil
}

// run executes one build and exports metrics when requested.
func (s *session) run(ctx context.Context) (*build.Report, error) {
	report, err := s.svc.Run(ctx)
	if s.prom != nil {
		if werr := s.prom.WriteTextfile(s.metricsFile); werr != nil {
			s.logger.Warn("Failed to write metrics file", logfields.Path(s.metricsFile), logfields.Error(werr))
		}
	}
	return report, err
}

func (s *session) Close() {
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Warn("Failed to close history store", logfields.Error(err))
		}
	}
}

// Classify maps a command error to a ClassifiedError so the CLI adapter
// can pick the exit code. Cancellation without a category becomes canceled.
func Classify(err error) error {
	if err == nil || errors.IsClassified(err) {
		return err
	}
	if stdErrors.Is(err, context.Canceled) || stdErrors.Is(err, context.DeadlineExceeded) {
		return errors.CanceledError("build canceled").WithCause(err).Build()
	}
	var se *build.StageError
	if stdErrors.As(err, &se) && se.Kind == build.StageErrorCanceled {
		return errors.CanceledError("build canceled").WithCause(err).Build()
	}
	return err
}
