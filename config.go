// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

package ulog

import (
	"go.uber.org/zap"
)

// Config controls what a Parser yields. It never changes how records are
// decoded, and the registry observes every definition regardless of it.
type Config struct {
	// IncludeHeader surfaces the file header as the first message
	IncludeHeader bool `yaml:"include_header"`

	// IncludeTimestamp keeps the top level "timestamp" field in
	// LoggedData.Data. It is always available as LoggedData.Timestamp.
	IncludeTimestamp bool `yaml:"include_timestamp"`

	// IncludePadding keeps `_padding*` fields in LoggedData.Data
	IncludePadding bool `yaml:"include_padding"`

	// Subscriptions restricts logged data decoding to the named formats.
	// Records of other formats are yielded as *Ignored.
	Subscriptions []string `yaml:"subscriptions"`

	// SubscriptionIDs restricts logged data decoding to the listed message
	// ids. Combined with Subscriptions, a record passes if it matches either.
	SubscriptionIDs []uint16 `yaml:"subscription_ids"`

	Logger *zap.Logger `yaml:"-"`
}

// Option modifies a Config
type Option func(*Config)

func WithHeader() Option {
	return func(c *Config) { c.IncludeHeader = true }
}

func WithTimestamp() Option {
	return func(c *Config) { c.IncludeTimestamp = true }
}

func WithPadding() Option {
	return func(c *Config) { c.IncludePadding = true }
}

// WithRoundTrip yields everything needed to re-encode the stream and see
// every field: the header, timestamps and padding
func WithRoundTrip() Option {
	return func(c *Config) {
		c.IncludeHeader = true
		c.IncludeTimestamp = true
		c.IncludePadding = true
	}
}

// WithSubscriptions adds format names to the allow list
func WithSubscriptions(names ...string) Option {
	return func(c *Config) { c.Subscriptions = append(c.Subscriptions, names...) }
}

// WithSubscriptionIDs adds message ids to the allow list
func WithSubscriptionIDs(ids ...uint16) Option {
	return func(c *Config) { c.SubscriptionIDs = append(c.SubscriptionIDs, ids...) }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithConfig replaces the whole configuration. Options after it still apply.
func WithConfig(cfg Config) Option {
	return func(c *Config) {
		*c = cfg
		c.Subscriptions = append([]string(nil), cfg.Subscriptions...)
		c.SubscriptionIDs = append([]uint16(nil), cfg.SubscriptionIDs...)
	}
}

func newConfig(opts []Option) Config {
	var c Config
	for _, o := range opts {
		o(&c)
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

func (c *Config) filtering() bool {
	return len(c.Subscriptions) > 0 || len(c.SubscriptionIDs) > 0
}
