// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

package schema

// Kind is the primitive kind of a field, or Nested for references to other
// formats
type Kind uint8

const (
	Invalid Kind = iota
	Uint8
	Uint16
	Uint32
	Uint64
	Int8
	Int16
	Int32
	Int64
	Float32
	Float64
	Bool
	Char
	Nested
)

var kindNames = [...]string{
	Invalid: "invalid",
	Uint8:   "uint8_t",
	Uint16:  "uint16_t",
	Uint32:  "uint32_t",
	Uint64:  "uint64_t",
	Int8:    "int8_t",
	Int16:   "int16_t",
	Int32:   "int32_t",
	Int64:   "int64_t",
	Float32: "float",
	Float64: "double",
	Bool:    "bool",
	Char:    "char",
	Nested:  "nested",
}

var kindSizes = [...]int{
	Uint8:   1,
	Uint16:  2,
	Uint32:  4,
	Uint64:  8,
	Int8:    1,
	Int16:   2,
	Int32:   4,
	Int64:   8,
	Float32: 4,
	Float64: 8,
	Bool:    1,
	Char:    1,
	Nested:  0,
}

// Primitive type names as they appear in format definitions. The short forms
// are accepted as aliases.
var primitiveNames = map[string]Kind{
	"uint8_t":  Uint8,
	"uint16_t": Uint16,
	"uint32_t": Uint32,
	"uint64_t": Uint64,
	"int8_t":   Int8,
	"int16_t":  Int16,
	"int32_t":  Int32,
	"int64_t":  Int64,
	"float":    Float32,
	"double":   Float64,
	"bool":     Bool,
	"char":     Char,

	"u8":  Uint8,
	"u16": Uint16,
	"u32": Uint32,
	"u64": Uint64,
	"i8":  Int8,
	"i16": Int16,
	"i32": Int32,
	"i64": Int64,
	"f32": Float32,
	"f64": Float64,
}

// KindOf returns the primitive kind named by typ, or Nested if typ does not
// name a primitive
func KindOf(typ string) Kind {
	if k, ok := primitiveNames[typ]; ok {
		return k
	}
	return Nested
}

// Size returns the encoded size of a single value of this kind. Nested kinds
// have no intrinsic size.
func (k Kind) Size() int {
	if int(k) < len(kindSizes) {
		return kindSizes[k]
	}
	return 0
}

func (k Kind) IsPrimitive() bool {
	return k > Invalid && k < Nested
}

func (k Kind) IsSigned() bool {
	return k >= Int8 && k <= Int64
}

func (k Kind) IsUnsigned() bool {
	return k >= Uint8 && k <= Uint64
}

func (k Kind) IsFloat() bool {
	return k == Float32 || k == Float64
}

// String returns the canonical C type name of the kind
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "invalid"
}
