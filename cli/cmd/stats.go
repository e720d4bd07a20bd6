package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/prospect-io/prospector/cli/render"
)

// StatsCommand returns the stats command: aggregate counts over the
// attempt ledger.
func StatsCommand() *cli.Command {
	return &cli.Command{
		Name:   "stats",
		Usage:  "Show attempt statistics (filenames, attempts, status breakdown, bytes)",
		Flags:  ReadOnlyFlags(),
		Action: statsAction,
	}
}

func statsAction(c *cli.Context) error {
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

	return r.Render(store.Stats())
}
