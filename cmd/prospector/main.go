// Package main provides the prospector CLI entrypoint.
//
// Usage:
//
//	prospector <command> [options] [args]
//
// Exit codes:
//   - 0: success
//   - 1: command failed (resolution error, state error, integrity issues)
//   - 2: usage error
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/prospect-io/prospector/cli/cmd"
	"github.com/prospect-io/prospector/types"
)

// Commit is set via ldflags at build time.
var commit = "unknown"

func main() {
	app := &cli.App{
		Name:           "prospector",
		Usage:          "Resolve model artifact filenames against remote registries",
		Version:        fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		ExitErrHandler: exitErrHandler,
		Commands: []*cli.Command{
			cmd.ResolveCommand(),
			cmd.StatsCommand(),
			cmd.HistoryCommand(),
			cmd.StatusCommand(),
			cmd.CleanupCommand(),
			cmd.RetryFailedCommand(),
			cmd.ValidateStateCommand(),
			cmd.ExportCommand(),
			cmd.ImportCommand(),
			cmd.VersionCommand(commit),
		},
	}

	if err := app.Run(os.Args); err != nil {
		// ExitErrHandler already handled the exit for cli.ExitCoder errors.
		// This branch handles unexpected errors that weren't wrapped.
		os.Exit(1)
	}
}

// exitErrHandler preserves exit codes from cli.Exit() across wrapped errors.
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}

	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()

		// cli.Exit("", N).Error() returns "exit status N"; don't echo those.
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(code)
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
