package commands

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"text/tabwriter"

	"git.home.luguber.info/inful/apitree/internal/build"
	"git.home.luguber.info/inful/apitree/internal/logfields"
)

// ScanCmd implements the 'scan' command.
type ScanCmd struct {
	Excluded bool `short:"x" help:"Also list excluded units and the rule that matched them"`
}

func (s *ScanCmd) Run(ctx context.Context, g *Global, root *CLI) error {
	cfg, err := loadConfig(root.Config, Overrides{})
	if err != nil {
		return err
	}
	listing, err := build.New(cfg, build.WithLogger(g.Logger)).List(ctx)
	if err != nil {
		return err
	}
	for _, w := range listing.Warnings {
		g.Logger.Warn("Unit dropped", logfields.Root(w.Root), logfields.Path(w.Path), logfields.Error(w.Err))
	}

	tw := tabwriter.NewWriter(g.Out, 0, 4, 2, ' ', 0)
	for _, u := range listing.Units {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", u.DottedName, u.Kind, location(u.Root, u.SourcePath, u.Line))
	}
	if s.Excluded {
		for _, ex := range listing.Excluded {
			_, _ = fmt.Fprintf(tw, "%s\t%s\texcluded by %s\n", ex.Unit.DottedName, ex.Unit.Kind, ex.Rule)
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	g.Logger.Info("Scan complete",
		logfields.Count(len(listing.Units)),
		slog.Int("excluded", len(listing.Excluded)),
		slog.Int("dropped", len(listing.Warnings)))
	return nil
}

func location(root, source string, line int) string {
	p := source
	if root != "" && root != "." {
		p = path.Join(filepath.ToSlash(root), source)
	}
	if line > 0 {
		return fmt.Sprintf("%s:%d", p, line)
	}
	return p
}
