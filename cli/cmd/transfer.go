package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/prospect-io/prospector/cli/render"
	"github.com/prospect-io/prospector/state"
)

// TransferResponse is the response for export and import.
type TransferResponse struct {
	Action string `json:"action"`
	Target string `json:"target"`
	Merged bool   `json:"merged,omitempty"`
}

func s3Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "s3-region",
			Usage:   "AWS region for s3:// targets",
			EnvVars: []string{"AWS_REGION"},
		},
		&cli.StringFlag{
			Name:  "s3-endpoint",
			Usage: "Custom endpoint for S3-compatible providers (R2, MinIO)",
		},
		&cli.BoolFlag{
			Name:  "s3-path-style",
			Usage: "Force path-style addressing (most S3-compatible providers)",
		},
	}
}

func s3Options(c *cli.Context) state.S3Options {
	return state.S3Options{
		Region:       c.String("s3-region"),
		Endpoint:     c.String("s3-endpoint"),
		UsePathStyle: c.Bool("s3-path-style"),
	}
}

// ExportCommand returns the export command: write the attempt ledger to a
// local file or an s3:// object.
func ExportCommand() *cli.Command {
	return &cli.Command{
		Name:      "export",
		Usage:     "Export the attempt ledger to a file or s3://bucket/key",
		ArgsUsage: "<destination>",
		Flags:     append(ReadOnlyFlags(), s3Flags()...),
		Action:    exportAction,
	}
}

func exportAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("export requires a destination path or s3:// URL", 2)
	}
	dest := c.Args().First()

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

	if err := store.Export(c.Context, dest, s3Options(c)); err != nil {
		return err
	}
	return r.Render(TransferResponse{Action: "export", Target: dest})
}

// ImportCommand returns the import command: load an exported ledger,
// replacing the local one or merging into it.
func ImportCommand() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Import an attempt ledger from a file or s3://bucket/key",
		ArgsUsage: "<source>",
		Flags: append(append(ReadOnlyFlags(), s3Flags()...),
			&cli.BoolFlag{
				Name:  "merge",
				Usage: "Merge with existing records instead of replacing them",
			},
		),
		Action: importAction,
	}
}

func importAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("import requires a source path or s3:// URL", 2)
	}
	src := c.Args().First()

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

	merge := c.Bool("merge")
	if err := store.Import(c.Context, src, merge, s3Options(c)); err != nil {
		return err
	}
	return r.Render(TransferResponse{Action: "import", Target: src, Merged: merge})
}
