package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/opsdash/dashgate/cmd/app/commands"
	"github.com/opsdash/dashgate/internal/app"
	"github.com/opsdash/dashgate/internal/config"
)

func getSessionCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "purge-blobs",
			Usage: "Delete expired profile blobs from storage",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    "format",
					Aliases: []string{"f"},
					Value:   "text",
					Usage:   "Output format: 'text' or 'json'",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				txManager, err := container.TxManager()
				if err != nil {
					return err
				}

				secureStore, err := container.SecureStore()
				if err != nil {
					return err
				}

				return commands.RunPurgeBlobs(
					ctx,
					txManager,
					secureStore,
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.String("format"),
				)
			},
		},
		{
			Name:  "routes",
			Usage: "Print the loaded route table with resolved role sets",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    "format",
					Aliases: []string{"f"},
					Value:   "text",
					Usage:   "Output format: 'text' or 'json'",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				table, err := container.RouteTable()
				if err != nil {
					return err
				}

				return commands.RunRoutes(table, commands.DefaultIO().Writer, cmd.String("format"))
			},
		},
		{
			Name:  "create-master-key",
			Usage: "Generate a new master key for profile blob encryption",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "kms-provider",
					Usage: "KMS provider used to wrap the key (omit for plaintext base64 output)",
				},
				&cli.StringFlag{
					Name:  "kms-key-uri",
					Usage: "URI of the wrapping key in the KMS",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return commands.RunCreateMasterKey(
					ctx,
					commands.DefaultIO().Writer,
					cmd.String("kms-provider"),
					cmd.String("kms-key-uri"),
				)
			},
		},
	}
}
