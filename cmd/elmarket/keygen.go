package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/openmerit/elmarket/exchange"
)

var keygenCmd = &cli.Command{
	Name:  "keygen",
	Usage: "Create a receipt signing key for exchange-server",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "out",
			Required: true,
			Usage:    "path of the private key PEM to write",
		},
	},
	Action: func(ctx *cli.Context) error {
		key, err := exchange.NewSigningKey()
		if err != nil {
			return err
		}

		privatePEM, err := key.PrivateKeyPEM()
		if err != nil {
			return err
		}
		if err := os.WriteFile(ctx.String("out"), privatePEM, 0o600); err != nil {
			return fmt.Errorf("write signing key: %w", err)
		}

		publicPEM, err := key.PublicKeyPEM()
		if err != nil {
			return err
		}
		fmt.Fprint(ctx.App.Writer, publicPEM)
		return nil
	},
}
