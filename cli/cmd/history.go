package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/prospect-io/prospector/cli/render"
)

// HistoryCommand returns the history command: the chronological attempt
// log, globally or for one filename.
func HistoryCommand() *cli.Command {
	return &cli.Command{
		Name:      "history",
		Usage:     "Show the attempt log, optionally filtered to one filename",
		ArgsUsage: "[filename]",
		Flags: append(ReadOnlyFlags(),
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Most recent N entries (0 = all)",
			},
		),
		Action: historyAction,
	}
}

func historyAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	store, err := openStore(cfg, newLogger(c))
	if err != nil {
		return err
	}

	if c.NArg() > 0 {
		name := c.Args().First()
		history := store.History(name)
		if len(history) == 0 {
			return cli.Exit(fmt.Sprintf("no attempts recorded for %s", name), 1)
		}
		return r.Render(history)
	}

	entries := store.Snapshot().Log
	if limit := c.Int("limit"); limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return r.Render(entries)
}
