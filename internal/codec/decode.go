// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

package codec

import (
	"bytes"
	"fmt"

	"go.e43.eu/ulog/internal/errors"
	"go.e43.eu/ulog/internal/schema"
)

// Decode decodes payload according to l. The payload must hold at least
// l.RequiredSize bytes; trailing padding may be absent. Padding fields are
// only included in the result if padding is set, and only the bytes
// actually present are kept.
func Decode(l *schema.Layout, payload []byte, padding bool) (*Struct, error) {
	if len(payload) < l.RequiredSize {
		return nil, errors.PayloadError{Need: l.RequiredSize, Have: len(payload)}
	}
	return decodeStruct(l, payload, 0, padding), nil
}

func decodeStruct(l *schema.Layout, b []byte, base int, padding bool) *Struct {
	s := &Struct{
		Name:   l.Name,
		Fields: make([]NamedValue, 0, len(l.Fields)),
	}

	for i := range l.Fields {
		f := &l.Fields[i]
		start := base + f.Offset

		if f.IsPadding() {
			if !padding || start >= len(b) {
				continue
			}
			end := min(start+f.Size, len(b))
			s.Fields = append(s.Fields, NamedValue{f.Name, RawArray(schema.Uint8, b[start:end])})
			continue
		}

		s.Fields = append(s.Fields, NamedValue{f.Name, decodeField(f, b, start, padding)})
	}
	return s
}

func decodeField(f *schema.LayoutField, b []byte, start int, padding bool) Value {
	switch {
	case f.Kind == schema.Nested && f.ArrayLen == 0:
		return StructValue(decodeStruct(f.Nested, b, start, padding))

	case f.Kind == schema.Nested:
		elems := make([]*Struct, f.ArrayLen)
		for i := range elems {
			elems[i] = decodeStruct(f.Nested, b, start+i*f.Nested.Size, padding)
		}
		return StructArray(elems...)

	case f.ArrayLen > 0:
		return RawArray(f.Kind, b[start:start+f.Size])

	default:
		return Value{kind: f.Kind, bits: readBits(f.Kind, b[start:])}
	}
}

// DecodeField decodes a standalone value of a primitive field declaration,
// as carried by info and parameter records. It returns the number of bytes
// consumed.
func DecodeField(f schema.Field, b []byte) (Value, int, error) {
	if !f.Kind.IsPrimitive() {
		return Value{}, 0, errors.MalformedError{Reason: fmt.Sprintf("'%s' is not a primitive type", f.Type)}
	}

	size := f.Kind.Size() * max(1, f.ArrayLen)
	if len(b) < size {
		return Value{}, 0, errors.PayloadError{Need: size, Have: len(b)}
	}

	if f.ArrayLen > 0 {
		return Value{kind: f.Kind, array: true, elems: bytes.Clone(b[:size])}, size, nil
	}
	return Value{kind: f.Kind, bits: readBits(f.Kind, b)}, size, nil
}
