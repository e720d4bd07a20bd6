package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/prospect-io/prospector/cli/render"
	"github.com/prospect-io/prospector/state"
)

// CleanupCommand returns the cleanup command: apply retention policy to the
// attempt ledger.
func CleanupCommand() *cli.Command {
	return &cli.Command{
		Name:  "cleanup",
		Usage: "Remove aged failed records and optionally collapse duplicate successes",
		Flags: append(ReadOnlyFlags(),
			&cli.IntFlag{
				Name:  "retain-failed-days",
				Usage: "Keep failed records newer than this many days",
				Value: state.DefaultRetainFailedDays,
			},
			&cli.BoolFlag{
				Name:  "collapse-duplicates",
				Usage: "Keep only the most recent success per filename",
			},
		),
		Action: cleanupAction,
	}
}

func cleanupAction(c *cli.Context) error {
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

	result, err := store.Cleanup(c.Int("retain-failed-days"), c.Bool("collapse-duplicates"))
	if err != nil {
		return err
	}
	return r.Render(result)
}
