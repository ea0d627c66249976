// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

package ulog

import (
	"io"
	"iter"

	"go.e43.eu/ulog/internal/framing"
	"go.e43.eu/ulog/internal/schema"
)

// Encoder writes messages as ULog records. Messages decoded by a Parser are
// written back exactly as they were read; modified or constructed messages
// are written in canonical form.
//
// The encoder tracks the format definitions and subscriptions it writes, so
// that constructed LoggedData messages need only name their format.
type Encoder struct {
	w   *framing.Writer
	reg *schema.Registry
	buf []byte
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{
		w:   framing.NewWriter(w),
		reg: schema.NewRegistry(),
	}
}

// Encode writes one message. A *Header writes the 16 byte file header and
// must come first.
func (e *Encoder) Encode(m Message) error {
	switch m := m.(type) {
	case *Header:
		return e.w.WriteHeader(framing.Header{Version: m.Version, Timestamp: m.Timestamp})

	case *FormatDefinition:
		if err := e.reg.DefineFormat(m.Format); err != nil {
			return err
		}

	case *AddSubscription:
		e.reg.Subscribe(m.Subscription)
	}

	payload, err := m.appendPayload(e.buf[:0], e.reg)
	if err != nil {
		return err
	}
	e.buf = payload
	return e.w.WriteRecord(byte(m.Type()), payload)
}

// EncodeAll writes every message of seq, stopping at the first error either
// yielded by seq or returned by Encode
func (e *Encoder) EncodeAll(seq iter.Seq2[Message, error]) error {
	for m, err := range seq {
		if err != nil {
			return err
		}
		if err := e.Encode(m); err != nil {
			return err
		}
	}
	return nil
}
