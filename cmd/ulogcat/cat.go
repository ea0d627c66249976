// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

package main

import (
	"context"
	"fmt"
	"io"

	"github.com/urfave/cli/v3"
	"go.uber.org/multierr"

	"go.e43.eu/ulog"
)

func catCmd() *cli.Command {
	return &cli.Command{
		Name:      "cat",
		Usage:     "print every message of a log, one per line",
		ArgsUsage: "FILE",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "header", Usage: "print the file header first"},
			&cli.BoolFlag{Name: "keep-going", Usage: "report undecodable records and continue"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			var opts []ulog.Option
			if cmd.Bool("header") {
				opts = append(opts, ulog.WithHeader())
			}

			out := cmd.Root().Writer
			return withLog(cmd, func(p *ulog.Parser) error {
				var errs error
				for msg, err := range p.All() {
					if err != nil {
						if !cmd.Bool("keep-going") || ulog.IsFatal(err) {
							return multierr.Append(errs, err)
						}
						errs = multierr.Append(errs, err)
						fmt.Fprintf(out, "! %v\n", err)
						continue
					}
					printMessage(out, msg)
				}
				return errs
			}, opts...)
		},
	}
}

func printMessage(w io.Writer, msg ulog.Message) {
	switch m := msg.(type) {
	case *ulog.Header:
		fmt.Fprintf(w, "HEADER version=%d start=%s\n", m.Version, m.StartTime())
	case *ulog.FlagBits:
		fmt.Fprintf(w, "FLAG_BITS compat=% x incompat=% x\n", m.Compat, m.Incompat)
	case *ulog.FormatDefinition:
		fmt.Fprintf(w, "FORMAT %s\n", m.Format)
	case *ulog.Info:
		fmt.Fprintf(w, "INFO %s = %s\n", m.Key(), infoValue(m.Value))
	case *ulog.MultiInfo:
		fmt.Fprintf(w, "INFO_MULTIPLE %s = %s (continued=%t)\n", m.Key(), infoValue(m.Value), m.Continued)
	case *ulog.Parameter:
		fmt.Fprintf(w, "PARAMETER %s = %s\n", m.Key(), m.Value)
	case *ulog.DefaultParameter:
		fmt.Fprintf(w, "PARAMETER_DEFAULT %s = %s (types=%d)\n", m.Key(), m.Value, m.DefaultTypes)
	case *ulog.AddSubscription:
		fmt.Fprintf(w, "ADD_SUBSCRIPTION %d %s[%d]\n", m.MsgID, m.FormatName, m.MultiID)
	case *ulog.LoggedData:
		name := m.FormatName
		if m.HasMultiID {
			name = fmt.Sprintf("%s[%d]", name, m.MultiID)
		}
		if m.HasTimestamp {
			fmt.Fprintf(w, "DATA %d %s %s\n", m.Timestamp, name, m.Data)
		} else {
			fmt.Fprintf(w, "DATA - %s %s\n", name, m.Data)
		}
	case *ulog.LoggedString:
		fmt.Fprintf(w, "LOGGING %d %s %s\n", m.Timestamp, m.Level, m.Text)
	case *ulog.TaggedLoggedString:
		fmt.Fprintf(w, "LOGGING_TAGGED %d %s tag=%d %s\n", m.Timestamp, m.Level, m.Tag, m.Text)
	case *ulog.Ignored:
		if d, ok := m.DropoutDuration(); ok {
			fmt.Fprintf(w, "DROPOUT %s\n", d)
		} else {
			fmt.Fprintf(w, "%s (%d bytes skipped)\n", m.Type(), len(m.Payload))
		}
	case *ulog.Unhandled:
		fmt.Fprintf(w, "%s (%d bytes unhandled)\n", m.Type(), len(m.Payload))
	}
}

func infoValue(v ulog.Value) string {
	if v.Kind() == ulog.KindChar {
		return fmt.Sprintf("%q", v.Text())
	}
	return v.String()
}
