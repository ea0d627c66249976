// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

package main

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v3"
	"go.uber.org/multierr"

	"go.e43.eu/ulog"
)

func roundtripCmd() *cli.Command {
	return &cli.Command{
		Name:      "roundtrip",
		Usage:     "decode a log and encode it again",
		ArgsUsage: "IN OUT",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "verify", Usage: "check the output is identical to the input"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			in, outPath := cmd.Args().Get(0), cmd.Args().Get(1)
			if outPath == "" {
				return errors.New("usage: ulogcat roundtrip IN OUT")
			}

			if err := copyLog(cmd, outPath); err != nil {
				return err
			}
			if !cmd.Bool("verify") {
				return nil
			}
			return verify(cmd, in, outPath)
		},
	}
}

func copyLog(cmd *cli.Command, outPath string) (err error) {
	f, err := os.Create(outPath)
	if err != nil {
		return errors.Wrapf(err, "create %s", outPath)
	}
	defer func() {
		err = multierr.Append(err, f.Close())
	}()

	w := bufio.NewWriter(f)
	err = withLog(cmd, func(p *ulog.Parser) error {
		return ulog.Copy(w, p)
	}, ulog.WithRoundTrip())
	return multierr.Append(err, w.Flush())
}

func verify(cmd *cli.Command, inPath, outPath string) error {
	in, err := os.ReadFile(inPath)
	if err != nil {
		return errors.Wrapf(err, "read %s", inPath)
	}
	out, err := os.ReadFile(outPath)
	if err != nil {
		return errors.Wrapf(err, "read %s", outPath)
	}

	switch {
	case bytes.Equal(in, out):
		fmt.Fprintf(cmd.Root().Writer, "%s: identical (%d bytes)\n", outPath, len(out))
		return nil
	case bytes.HasPrefix(in, out):
		fmt.Fprintf(cmd.Root().Writer, "%s: identical; %d trailing bytes not in record form were not copied\n",
			outPath, len(in)-len(out))
		return nil
	}

	n := min(len(in), len(out))
	for i := 0; i < n; i++ {
		if in[i] != out[i] {
			return errors.Errorf("%s differs from %s at offset %d", outPath, inPath, i)
		}
	}
	return errors.Errorf("%s is %d bytes, %s is %d bytes", outPath, len(out), inPath, len(in))
}
