package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/apitree/cmd/apitree/commands"
	"git.home.luguber.info/inful/apitree/internal/foundation/errors"
	"git.home.luguber.info/inful/apitree/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	cli, err := run(ctx, os.Args[1:], os.Stdout)
	stop()
	errors.NewCLIErrorAdapter(cli.Verbose, slog.Default()).HandleError(commands.Classify(err))
}

// run parses args and executes the selected command.
func run(ctx context.Context, args []string, out io.Writer) (*commands.CLI, error) {
	cli := &commands.CLI{}
	g := &commands.Global{Logger: slog.Default(), Out: out}
	parser, err := kong.New(cli,
		kong.Name("apitree"),
		kong.Description("Generate hierarchical API reference pages from documented source units."),
		kong.Vars{"version": version.String()},
		kong.UsageOnError(),
		kong.Writers(out, os.Stderr),
		kong.Bind(g, cli),
		kong.BindTo(ctx, (*context.Context)(nil)),
	)
	if err != nil {
		return cli, errors.InternalError("build command line parser").WithCause(err).Build()
	}
	kctx, err := parser.Parse(args)
	if err != nil {
		return cli, errors.ValidationError("invalid arguments").WithCause(err).Build()
	}
	return cli, kctx.Run()
}
