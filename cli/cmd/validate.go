package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/prospect-io/prospector/cli/render"
)

// ValidateResponse is the response for the validate-state command.
type ValidateResponse struct {
	Valid  bool     `json:"valid"`
	Issues []string `json:"issues,omitempty"`
}

// ValidateStateCommand returns the validate-state command: integrity scan
// of the attempt ledger.
func ValidateStateCommand() *cli.Command {
	return &cli.Command{
		Name:   "validate-state",
		Usage:  "Check the attempt ledger for integrity issues",
		Flags:  ReadOnlyFlags(),
		Action: validateStateAction,
	}
}

func validateStateAction(c *cli.Context) error {
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

	issues := store.Validate()
	if err := r.Render(ValidateResponse{Valid: len(issues) == 0, Issues: issues}); err != nil {
		return err
	}
	if len(issues) > 0 {
		return cli.Exit("", 1)
	}
	return nil
}
