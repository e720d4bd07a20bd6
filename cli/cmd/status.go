package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/prospect-io/prospector/cli/render"
	"github.com/prospect-io/prospector/types"
)

// StatusResponse is the response for the status command.
type StatusResponse struct {
	Filename string              `json:"filename"`
	Status   types.AttemptStatus `json:"status"`
	Attempts int                 `json:"attempts"`
}

// StatusCommand returns the status command: the current lifecycle state of
// one filename.
func StatusCommand() *cli.Command {
	return &cli.Command{
		Name:      "status",
		Usage:     "Show the current attempt status of a filename",
		ArgsUsage: "<filename>",
		Flags:     ReadOnlyFlags(),
		Action:    statusAction,
	}
}

func statusAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("status requires exactly one filename", 2)
	}
	name := c.Args().First()

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

	status, ok := store.Status(name)
	if !ok {
		return cli.Exit(fmt.Sprintf("no attempts recorded for %s", name), 1)
	}

	return r.Render(StatusResponse{
		Filename: name,
		Status:   status,
		Attempts: len(store.History(name)),
	})
}
