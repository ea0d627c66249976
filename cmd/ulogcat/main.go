// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

// Command ulogcat inspects and converts ULog files.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
)

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "ulogcat",
		Usage: "Inspect and convert ULog flight logs",
		Flags: parserFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			catCmd(),
			subscriptionsCmd(),
			multiIDCmd(),
			paramsCmd(),
			csvCmd(),
			jsonCmd(),
			roundtripCmd(),
		},
	}
}

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
