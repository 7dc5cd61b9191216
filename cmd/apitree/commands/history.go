package commands

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"git.home.luguber.info/inful/apitree/internal/foundation/errors"
	"git.home.luguber.info/inful/apitree/internal/history"
)

// HistoryCmd implements the 'history' command.
type HistoryCmd struct {
	Limit  int    `short:"n" help:"Number of builds to show" default:"10"`
	Events string `help:"Show the stage events of one build ID instead"`
}

func (h *HistoryCmd) Run(ctx context.Context, g *Global, root *CLI) error {
	cfg, err := loadConfig(root.Config, Overrides{})
	if err != nil {
		return err
	}
	if !cfg.History.Enabled {
		return errors.ConfigError("build history is disabled (set history.enabled)").
			WithContext("field", "history.enabled").
			Build()
	}
	store, err := history.Open(cfg.History.Path)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	tw := tabwriter.NewWriter(g.Out, 0, 4, 2, ' ', 0)
	if h.Events != "" {
		events, err := store.Events(ctx, h.Events)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(tw, "STAGE\tRESULT\tDURATION\tAT")
		for _, e := range events {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Stage, e.Result,
				e.Duration.Truncate(time.Millisecond), e.Timestamp.Format(time.RFC3339))
		}
		return tw.Flush()
	}

	builds, err := store.Recent(ctx, h.Limit)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(tw, "BUILD\tSTARTED\tOUTCOME\tUNITS\tNODES\tWRITTEN\tISSUES\tDURATION")
	for _, b := range builds {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n", b.ID, b.Start.Format(time.RFC3339),
			b.Outcome, b.Units, b.Nodes, b.Written, b.Issues, b.Duration().Truncate(time.Millisecond))
	}
	return tw.Flush()
}
