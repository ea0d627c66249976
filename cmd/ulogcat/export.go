// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v3"
	"go.uber.org/multierr"

	"go.e43.eu/ulog"
)

// createOutput opens the file named by the out flag, or the command's
// writer if it is unset
func createOutput(cmd *cli.Command) (io.Writer, func() error, error) {
	path := cmd.String("out")
	if path == "" || path == "-" {
		return cmd.Root().Writer, func() error { return nil }, nil
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "create %s", path)
	}
	return f, f.Close, nil
}

var outFlag = &cli.StringFlag{
	Name:    "out",
	Aliases: []string{"o"},
	Usage:   "write to this file instead of stdout",
}

// csvColumns expands primitive arrays into one column per element. Char
// arrays stay whole as strings.
func csvColumns(fields []ulog.FlatField) []string {
	var cols []string
	for _, f := range fields {
		if f.ArrayLen == 0 || f.Kind == ulog.KindChar {
			cols = append(cols, f.Path)
			continue
		}
		for i := 0; i < f.ArrayLen; i++ {
			cols = append(cols, f.Path+"["+strconv.Itoa(i)+"]")
		}
	}
	return cols
}

func csvRow(d *ulog.LoggedData, fields []ulog.FlatField) []string {
	var row []string
	for _, f := range fields {
		v, ok := d.Lookup(f.Path)
		switch {
		case f.ArrayLen == 0 || f.Kind == ulog.KindChar:
			if !ok {
				row = append(row, "")
			} else {
				row = append(row, v.String())
			}
		default:
			for i := 0; i < f.ArrayLen; i++ {
				if ok && i < v.Len() {
					row = append(row, v.Index(i).String())
				} else {
					row = append(row, "")
				}
			}
		}
	}
	return row
}

func csvCmd() *cli.Command {
	return &cli.Command{
		Name:      "csv",
		Usage:     "export the logged data of one format as CSV",
		ArgsUsage: "FILE",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "format",
				Aliases:  []string{"f"},
				Usage:    "format to export",
				Required: true,
			},
			&cli.IntFlag{
				Name:  "multi-id",
				Usage: "only export this instance",
				Value: -1,
			},
			outFlag,
		},
		Action: func(ctx context.Context, cmd *cli.Command) (err error) {
			name := cmd.String("format")
			instance := cmd.Int("multi-id")

			out, closeOut, err := createOutput(cmd)
			if err != nil {
				return err
			}
			defer func() {
				err = multierr.Append(err, closeOut())
			}()

			w := csv.NewWriter(out)
			err = withLog(cmd, func(p *ulog.Parser) error {
				var fields []ulog.FlatField
				for msg, err := range p.All() {
					if err != nil {
						if ulog.IsFatal(err) {
							return err
						}
						continue
					}

					d, ok := msg.(*ulog.LoggedData)
					if !ok || d.FormatName != name || (instance >= 0 && int(d.MultiID) != instance) {
						continue
					}

					if fields == nil {
						if fields, err = p.Fields(name); err != nil {
							return err
						}
						if err := w.Write(csvColumns(fields)); err != nil {
							return err
						}
					}
					if err := w.Write(csvRow(d, fields)); err != nil {
						return err
					}
				}

				if fields == nil {
					if _, ok := p.Registry().Format(name); !ok {
						return errors.Errorf("format %s is not defined in this log", name)
					}
				}
				return nil
			}, ulog.WithTimestamp(), ulog.WithSubscriptions(name))

			w.Flush()
			return multierr.Append(err, w.Error())
		},
	}
}

type jsonLine struct {
	Type      string       `json:"type"`
	Format    string       `json:"format,omitempty"`
	MsgID     *uint16      `json:"msg_id,omitempty"`
	MultiID   *uint8       `json:"multi_id,omitempty"`
	Timestamp *uint64      `json:"timestamp,omitempty"`
	Key       string       `json:"key,omitempty"`
	Value     *ulog.Value  `json:"value,omitempty"`
	Level     string       `json:"level,omitempty"`
	Text      string       `json:"text,omitempty"`
	Data      *ulog.Struct `json:"data,omitempty"`
}

func toJSONLine(msg ulog.Message) (jsonLine, bool) {
	l := jsonLine{Type: msg.Type().String()}

	switch m := msg.(type) {
	case *ulog.FormatDefinition:
		l.Format = m.Format.Name
		l.Text = m.Format.Text()
	case *ulog.Info:
		l.Key, l.Value = m.Key(), &m.Value
	case *ulog.MultiInfo:
		l.Key, l.Value = m.Key(), &m.Value
	case *ulog.Parameter:
		l.Key, l.Value = m.Key(), &m.Value
	case *ulog.DefaultParameter:
		l.Key, l.Value = m.Key(), &m.Value
	case *ulog.AddSubscription:
		l.Format, l.MsgID, l.MultiID = m.FormatName, &m.MsgID, &m.MultiID
	case *ulog.LoggedData:
		l.Format, l.MsgID, l.Data = m.FormatName, &m.MsgID, m.Data
		if m.HasMultiID {
			l.MultiID = &m.MultiID
		}
		if m.HasTimestamp {
			l.Timestamp = &m.Timestamp
		}
	case *ulog.LoggedString:
		l.Level, l.Timestamp, l.Text = m.Level.String(), &m.Timestamp, m.Text
	case *ulog.TaggedLoggedString:
		l.Level, l.Timestamp, l.Text = m.Level.String(), &m.Timestamp, m.Text
		l.Key = fmt.Sprintf("tag:%d", m.Tag)
	default:
		return l, false
	}
	return l, true
}

func jsonCmd() *cli.Command {
	return &cli.Command{
		Name:      "json",
		Usage:     "export definitions, values, log messages and logged data as JSON lines",
		ArgsUsage: "FILE",
		Flags:     []cli.Flag{outFlag},
		Action: func(ctx context.Context, cmd *cli.Command) (err error) {
			out, closeOut, err := createOutput(cmd)
			if err != nil {
				return err
			}
			defer func() {
				err = multierr.Append(err, closeOut())
			}()

			enc := json.NewEncoder(out)
			return withLog(cmd, func(p *ulog.Parser) error {
				for msg, err := range p.All() {
					if err != nil {
						if ulog.IsFatal(err) {
							return err
						}
						continue
					}

					if l, ok := toJSONLine(msg); ok {
						if err := enc.Encode(l); err != nil {
							return err
						}
					}
				}
				return nil
			})
		},
	}
}
