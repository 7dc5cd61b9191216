package commands

import (
	"context"
	"fmt"
)

// BuildCmd implements the 'build' command.
type BuildCmd struct {
	Overrides   Overrides `embed:""`
	MetricsFile string    `name:"metrics-file" help:"Write Prometheus metrics in textfile format to this path"`
}

func (b *BuildCmd) Run(ctx context.Context, g *Global, root *CLI) error {
	cfg, err := loadConfig(root.Config, b.Overrides)
	if err != nil {
		return err
	}
	s, err := openSession(cfg, b.MetricsFile, g.Logger)
	if err != nil {
		return err
	}
	defer s.Close()

	report, err := s.run(ctx)
	if report != nil {
		_, _ = fmt.Fprintln(g.Out, report.Summary())
	}
	return err
}
