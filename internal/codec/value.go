// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

// Package codec converts between payload bytes and decoded values, driven
// by resolved layouts. All values are little-endian on the wire.
package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"iter"
	"math"
	"strconv"
	"strings"

	"go.e43.eu/ulog/internal/schema"
)

var le = binary.LittleEndian

// Value is a decoded field value: a primitive scalar, a fixed array of
// primitives, a nested structure or an array of nested structures.
//
// Primitive arrays are held in their wire form and decoded element by
// element on access.
type Value struct {
	kind  schema.Kind
	array bool
	bits  uint64
	elems []byte
	sub   []*Struct
}

func Uint8(v uint8) Value   { return Value{kind: schema.Uint8, bits: uint64(v)} }
func Uint16(v uint16) Value { return Value{kind: schema.Uint16, bits: uint64(v)} }
func Uint32(v uint32) Value { return Value{kind: schema.Uint32, bits: uint64(v)} }
func Uint64(v uint64) Value { return Value{kind: schema.Uint64, bits: v} }
func Int8(v int8) Value     { return Value{kind: schema.Int8, bits: uint64(uint8(v))} }
func Int16(v int16) Value   { return Value{kind: schema.Int16, bits: uint64(uint16(v))} }
func Int32(v int32) Value   { return Value{kind: schema.Int32, bits: uint64(uint32(v))} }
func Int64(v int64) Value   { return Value{kind: schema.Int64, bits: uint64(v)} }
func Char(v byte) Value     { return Value{kind: schema.Char, bits: uint64(v)} }

func Float32(v float32) Value {
	return Value{kind: schema.Float32, bits: uint64(math.Float32bits(v))}
}

func Float64(v float64) Value {
	return Value{kind: schema.Float64, bits: math.Float64bits(v)}
}

func Bool(v bool) Value {
	if v {
		return Value{kind: schema.Bool, bits: 1}
	}
	return Value{kind: schema.Bool}
}

// Array builds an array from scalar values of a single primitive kind
func Array(elems ...Value) (Value, error) {
	if len(elems) == 0 {
		return Value{}, fmt.Errorf("Empty array")
	}

	k := elems[0].kind
	if !k.IsPrimitive() {
		return Value{}, fmt.Errorf("Array elements must be primitive, not %s", k)
	}

	v := Value{kind: k, array: true, elems: make([]byte, 0, len(elems)*k.Size())}
	for i, e := range elems {
		if e.kind != k || e.array {
			return Value{}, fmt.Errorf("Element %d is %s, expected %s", i, e.kind, k)
		}
		v.elems = appendBits(v.elems, k, e.bits)
	}
	return v, nil
}

// Chars builds a char array holding s
func Chars(s string) Value {
	return Value{kind: schema.Char, array: true, elems: []byte(s)}
}

// RawArray builds an array of kind k from its little-endian wire form
func RawArray(k schema.Kind, b []byte) Value {
	return Value{kind: k, array: true, elems: bytes.Clone(b)}
}

// StructValue wraps a nested structure
func StructValue(s *Struct) Value {
	return Value{kind: schema.Nested, sub: []*Struct{s}}
}

// StructArray builds an array of nested structures
func StructArray(s ...*Struct) Value {
	return Value{kind: schema.Nested, array: true, sub: s}
}

func (v Value) Kind() schema.Kind { return v.kind }
func (v Value) IsArray() bool     { return v.array }
func (v Value) IsValid() bool     { return v.kind != schema.Invalid }

// Len returns the number of elements of an array, or 1 for a scalar
func (v Value) Len() int {
	switch {
	case !v.array:
		return 1
	case v.kind == schema.Nested:
		return len(v.sub)
	default:
		return len(v.elems) / v.kind.Size()
	}
}

// Index returns element i of an array
func (v Value) Index(i int) Value {
	if !v.array {
		panic("codec: Index of scalar value")
	}
	if v.kind == schema.Nested {
		return StructValue(v.sub[i])
	}
	sz := v.kind.Size()
	return Value{kind: v.kind, bits: readBits(v.kind, v.elems[i*sz:])}
}

// Elems iterates over the elements of an array
func (v Value) Elems() iter.Seq2[int, Value] {
	return func(yield func(int, Value) bool) {
		for i, n := 0, v.Len(); i < n; i++ {
			if !yield(i, v.Index(i)) {
				return
			}
		}
	}
}

// Uint returns the value of an unsigned, bool or char scalar
func (v Value) Uint() uint64 {
	return v.bits
}

// Int returns the value of an integer scalar, sign extended
func (v Value) Int() int64 {
	switch v.kind {
	case schema.Int8:
		return int64(int8(v.bits))
	case schema.Int16:
		return int64(int16(v.bits))
	case schema.Int32:
		return int64(int32(v.bits))
	default:
		return int64(v.bits)
	}
}

// Float returns the value of a numeric scalar as a float64
func (v Value) Float() float64 {
	switch {
	case v.kind == schema.Float32:
		return float64(math.Float32frombits(uint32(v.bits)))
	case v.kind == schema.Float64:
		return math.Float64frombits(v.bits)
	case v.kind.IsSigned():
		return float64(v.Int())
	default:
		return float64(v.bits)
	}
}

func (v Value) Bool() bool {
	return v.bits != 0
}

// Bytes returns the wire form of a primitive array. It must not be modified.
func (v Value) Bytes() []byte {
	return v.elems
}

// Text returns the contents of a char array or char scalar. Strings are not
// NUL terminated on the wire; trailing NULs are treated as fill.
func (v Value) Text() string {
	if !v.array {
		return string([]byte{byte(v.bits)})
	}
	return string(bytes.TrimRight(v.elems, "\x00"))
}

// Struct returns the nested structure of a scalar nested value
func (v Value) Struct() *Struct {
	if v.kind != schema.Nested || v.array || len(v.sub) == 0 {
		return nil
	}
	return v.sub[0]
}

// Structs returns the elements of an array of nested structures
func (v Value) Structs() []*Struct {
	if v.kind != schema.Nested || !v.array {
		return nil
	}
	return v.sub
}

// Interface returns the value as a native Go value: the matching sized
// integer, float or bool type for scalars, a slice of those for arrays, a
// string for char data and *Struct / []*Struct for nested formats.
func (v Value) Interface() any {
	if v.array {
		return v.arrayInterface()
	}

	switch v.kind {
	case schema.Uint8:
		return uint8(v.bits)
	case schema.Uint16:
		return uint16(v.bits)
	case schema.Uint32:
		return uint32(v.bits)
	case schema.Uint64:
		return v.bits
	case schema.Int8:
		return int8(v.bits)
	case schema.Int16:
		return int16(v.bits)
	case schema.Int32:
		return int32(v.bits)
	case schema.Int64:
		return int64(v.bits)
	case schema.Float32:
		return math.Float32frombits(uint32(v.bits))
	case schema.Float64:
		return math.Float64frombits(v.bits)
	case schema.Bool:
		return v.bits != 0
	case schema.Char:
		return v.Text()
	case schema.Nested:
		return v.Struct()
	default:
		return nil
	}
}

func (v Value) arrayInterface() any {
	switch v.kind {
	case schema.Char:
		return v.Text()
	case schema.Nested:
		return v.sub
	case schema.Uint8:
		return bytes.Clone(v.elems)
	case schema.Uint16:
		return collect[uint16](v)
	case schema.Uint32:
		return collect[uint32](v)
	case schema.Uint64:
		return collect[uint64](v)
	case schema.Int8:
		return collect[int8](v)
	case schema.Int16:
		return collect[int16](v)
	case schema.Int32:
		return collect[int32](v)
	case schema.Int64:
		return collect[int64](v)
	case schema.Float32:
		return collect[float32](v)
	case schema.Float64:
		return collect[float64](v)
	case schema.Bool:
		return collect[bool](v)
	default:
		return nil
	}
}

func collect[T any](v Value) []T {
	out := make([]T, 0, v.Len())
	for _, e := range v.Elems() {
		out = append(out, e.Interface().(T))
	}
	return out
}

func (v Value) String() string {
	switch {
	case v.kind == schema.Char:
		return v.Text()
	case v.array:
		parts := make([]string, 0, v.Len())
		for _, e := range v.Elems() {
			parts = append(parts, e.String())
		}
		return "[" + strings.Join(parts, " ") + "]"
	case v.kind == schema.Nested:
		return v.Struct().String()
	case v.kind == schema.Float32:
		return strconv.FormatFloat(v.Float(), 'g', -1, 32)
	case v.kind == schema.Float64:
		return strconv.FormatFloat(v.Float(), 'g', -1, 64)
	case v.kind == schema.Bool:
		return strconv.FormatBool(v.Bool())
	case v.kind.IsSigned():
		return strconv.FormatInt(v.Int(), 10)
	case v.kind.IsUnsigned():
		return strconv.FormatUint(v.bits, 10)
	default:
		return "<invalid>"
	}
}

// Equal reports whether two values hold the same kind and the same bits
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind || v.array != o.array || v.bits != o.bits || !bytes.Equal(v.elems, o.elems) {
		return false
	}
	if len(v.sub) != len(o.sub) {
		return false
	}
	for i := range v.sub {
		if !v.sub[i].Equal(o.sub[i]) {
			return false
		}
	}
	return true
}

func readBits(k schema.Kind, b []byte) uint64 {
	switch k.Size() {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(le.Uint16(b))
	case 4:
		return uint64(le.Uint32(b))
	default:
		return le.Uint64(b)
	}
}

func appendBits(b []byte, k schema.Kind, bits uint64) []byte {
	switch k.Size() {
	case 1:
		return append(b, byte(bits))
	case 2:
		return le.AppendUint16(b, uint16(bits))
	case 4:
		return le.AppendUint32(b, uint32(bits))
	default:
		return le.AppendUint64(b, bits)
	}
}
