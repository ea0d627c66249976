// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

package ulog

import (
	"bytes"
	"io"

	"go.uber.org/multierr"

	"go.e43.eu/ulog/internal/schema"
)

// Marshal returns the complete record (or, for a *Header, the file header)
// for m. Logged data which does not carry a layout can not be marshalled on
// its own; use an Encoder.
func Marshal(m Message) ([]byte, error) {
	var buf bytes.Buffer
	if err := NewEncoder(&buf).Encode(m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MarshalPayload returns the record payload of m, without the envelope
func MarshalPayload(m Message) ([]byte, error) {
	return m.appendPayload(nil, schema.NewRegistry())
}

// Copy writes every remaining message of p to w, writing the file header
// first unless p yields it itself. Records which fail to decode are skipped
// and their errors collected; the copy stops at the first fatal error or
// write failure.
func Copy(w io.Writer, p *Parser) error {
	enc := NewEncoder(w)
	if !p.cfg.IncludeHeader {
		if err := enc.Encode(p.Header()); err != nil {
			return err
		}
	}

	var errs error
	for msg, err := range p.All() {
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if err := enc.Encode(msg); err != nil {
			return multierr.Append(errs, err)
		}
	}
	return errs
}
