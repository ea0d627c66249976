// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

package main

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/urfave/cli/v3"

	"go.e43.eu/ulog"
)

// scan reads the whole log, counting logged data records by message id
func scan(p *ulog.Parser, visit func(ulog.Message)) (map[uint16]int, error) {
	counts := make(map[uint16]int)
	for msg, err := range p.All() {
		if err != nil {
			if ulog.IsFatal(err) {
				return counts, err
			}
			continue
		}

		switch m := msg.(type) {
		case *ulog.LoggedData:
			counts[m.MsgID]++
		case *ulog.Ignored:
			if id, ok := m.MsgID(); ok {
				counts[id]++
			}
		}
		if visit != nil {
			visit(msg)
		}
	}
	return counts, nil
}

func subscriptionsCmd() *cli.Command {
	return &cli.Command{
		Name:      "subscriptions",
		Usage:     "list the subscriptions of a log with their formats and record counts",
		ArgsUsage: "FILE",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withLog(cmd, func(p *ulog.Parser) error {
				counts, err := scan(p, nil)
				if err != nil {
					return err
				}

				t := table.NewWriter()
				t.AppendHeader(table.Row{"ID", "Format", "Instance", "Fields", "Size", "Records"})
				for _, sub := range p.Registry().Subscriptions() {
					fields, size := "-", "-"
					if l, err := p.Layout(sub.FormatName); err == nil {
						flat, _ := p.Fields(sub.FormatName)
						fields, size = fmt.Sprint(len(flat)), fmt.Sprint(l.Size)
					}
					t.AppendRow(table.Row{sub.MsgID, sub.FormatName, sub.MultiID, fields, size, counts[sub.MsgID]})
				}
				fmt.Fprintln(cmd.Root().Writer, t.Render())
				return nil
			})
		},
	}
}

func multiIDCmd() *cli.Command {
	return &cli.Command{
		Name:      "multi-id",
		Usage:     "list formats logged by more than one instance",
		ArgsUsage: "FILE",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withLog(cmd, func(p *ulog.Parser) error {
				instances := make(map[string][]uint8)
				_, err := scan(p, func(msg ulog.Message) {
					if a, ok := msg.(*ulog.AddSubscription); ok && !slices.Contains(instances[a.FormatName], a.MultiID) {
						instances[a.FormatName] = append(instances[a.FormatName], a.MultiID)
					}
				})
				if err != nil {
					return err
				}

				t := table.NewWriter()
				t.AppendHeader(table.Row{"Format", "Instances"})
				for _, f := range p.Registry().Formats() {
					if !p.Registry().HasMultiID(f.Name) {
						continue
					}
					ids := instances[f.Name]
					slices.Sort(ids)
					strs := make([]string, len(ids))
					for i, id := range ids {
						strs[i] = fmt.Sprint(id)
					}
					t.AppendRow(table.Row{f.Name, strings.Join(strs, ",")})
				}
				fmt.Fprintln(cmd.Root().Writer, t.Render())
				return nil
			})
		},
	}
}

func paramsCmd() *cli.Command {
	return &cli.Command{
		Name:      "params",
		Usage:     "list info values and parameters",
		ArgsUsage: "FILE",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withLog(cmd, func(p *ulog.Parser) error {
				t := table.NewWriter()
				t.AppendHeader(table.Row{"Kind", "Name", "Type", "Value"})

				_, err := scan(p, func(msg ulog.Message) {
					switch m := msg.(type) {
					case *ulog.Info:
						t.AppendRow(table.Row{"info", m.Key(), m.Field.TypeString(), infoValue(m.Value)})
					case *ulog.MultiInfo:
						t.AppendRow(table.Row{"info", m.Key(), m.Field.TypeString(), infoValue(m.Value)})
					case *ulog.Parameter:
						t.AppendRow(table.Row{"param", m.Key(), m.Field.TypeString(), m.Value.String()})
					case *ulog.DefaultParameter:
						t.AppendRow(table.Row{"default", m.Key(), m.Field.TypeString(), m.Value.String()})
					}
				})
				if err != nil {
					return err
				}

				fmt.Fprintln(cmd.Root().Writer, t.Render())
				return nil
			})
		},
	}
}
