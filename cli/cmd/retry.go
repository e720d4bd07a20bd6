package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/prospect-io/prospector/cli/render"
)

// RetryResponse is the response for the retry-failed command.
type RetryResponse struct {
	Purged int `json:"purged"`
}

// RetryFailedCommand returns the retry-failed command: clear filenames whose
// every attempt failed so the next resolve starts fresh.
func RetryFailedCommand() *cli.Command {
	return &cli.Command{
		Name:   "retry-failed",
		Usage:  "Clear attempt history for filenames that only ever failed",
		Flags:  ReadOnlyFlags(),
		Action: retryFailedAction,
	}
}

func retryFailedAction(c *cli.Context) error {
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

	purged, err := store.RetryFailed()
	if err != nil {
		return err
	}
	return r.Render(RetryResponse{Purged: purged})
}
