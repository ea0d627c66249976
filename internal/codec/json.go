// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

package codec

import (
	"math"
	"strconv"

	"github.com/goccy/go-json"

	"go.e43.eu/ulog/internal/schema"
)

// MarshalJSON renders scalars as JSON numbers or booleans, char data as
// strings, arrays as JSON arrays and nested formats as objects. Non-finite
// floats have no JSON form and become null.
func (v Value) MarshalJSON() ([]byte, error) {
	return v.appendJSON(nil)
}

func (v Value) appendJSON(b []byte) ([]byte, error) {
	switch {
	case v.kind == schema.Char:
		s, err := json.Marshal(v.Text())
		return append(b, s...), err

	case v.array:
		b = append(b, '[')
		for i, e := range v.Elems() {
			if i > 0 {
				b = append(b, ',')
			}
			var err error
			if b, err = e.appendJSON(b); err != nil {
				return b, err
			}
		}
		return append(b, ']'), nil

	case v.kind == schema.Nested:
		return v.Struct().appendJSON(b)

	case v.kind.IsFloat():
		f := v.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return append(b, "null"...), nil
		}
		bitSize := 64
		if v.kind == schema.Float32 {
			bitSize = 32
		}
		return strconv.AppendFloat(b, f, 'g', -1, bitSize), nil

	case v.kind == schema.Bool:
		return strconv.AppendBool(b, v.Bool()), nil

	case v.kind.IsSigned():
		return strconv.AppendInt(b, v.Int(), 10), nil

	default:
		return strconv.AppendUint(b, v.bits, 10), nil
	}
}

// MarshalJSON renders the structure as an object with fields in declaration
// order
func (s *Struct) MarshalJSON() ([]byte, error) {
	return s.appendJSON(nil)
}

func (s *Struct) appendJSON(b []byte) ([]byte, error) {
	if s == nil {
		return append(b, "null"...), nil
	}

	// Written by hand: a map would lose declaration order
	b = append(b, '{')
	for i, f := range s.Fields {
		if i > 0 {
			b = append(b, ',')
		}
		name, err := json.Marshal(f.Name)
		if err != nil {
			return b, err
		}
		b = append(append(b, name...), ':')
		if b, err = f.Value.appendJSON(b); err != nil {
			return b, err
		}
	}
	return append(b, '}'), nil
}
