// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

package main

import (
	"os"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"go.e43.eu/ulog"
)

func parserFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "config",
			Usage: "YAML file of parser settings (include_header, subscriptions, ...)",
		},
		&cli.StringSliceFlag{
			Name:    "subscription",
			Aliases: []string{"s"},
			Usage:   "only decode logged data of this format (repeatable)",
		},
		&cli.BoolFlag{
			Name:  "padding",
			Usage: "show padding fields",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "log parser debug events to stderr",
		},
	}
}

// loadConfig reads parser settings from a YAML file
func loadConfig(path string) (ulog.Config, error) {
	var cfg ulog.Config
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "read config %s", path)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse config %s", path)
	}
	return cfg, nil
}

func newLogger(cmd *cli.Command) (*zap.Logger, error) {
	if !cmd.Bool("verbose") {
		return zap.NewNop(), nil
	}
	return zap.NewDevelopment()
}

// openLog opens the file named by the first argument with the parser
// settings given by flags. Extra options are applied last.
func openLog(cmd *cli.Command, extra ...ulog.Option) (*ulog.Parser, error) {
	path := cmd.Args().First()
	if path == "" {
		return nil, errors.New("no log file given")
	}

	var opts []ulog.Option
	if cfgPath := cmd.String("config"); cfgPath != "" {
		cfg, err := loadConfig(cfgPath)
		if err != nil {
			return nil, err
		}
		opts = append(opts, ulog.WithConfig(cfg))
	}

	if subs := cmd.StringSlice("subscription"); len(subs) > 0 {
		opts = append(opts, ulog.WithSubscriptions(subs...))
	}
	if cmd.Bool("padding") {
		opts = append(opts, ulog.WithPadding())
	}

	logger, err := newLogger(cmd)
	if err != nil {
		return nil, errors.Wrap(err, "create logger")
	}
	opts = append(opts, ulog.WithLogger(logger))
	opts = append(opts, extra...)

	return ulog.OpenFile(path, opts...)
}

// withLog runs fn over the log named on the command line, closing it
// afterwards
func withLog(cmd *cli.Command, fn func(*ulog.Parser) error, extra ...ulog.Option) (err error) {
	p, err := openLog(cmd, extra...)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, p.Close())
	}()
	return fn(p)
}
