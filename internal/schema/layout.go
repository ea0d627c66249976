// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

package schema

import (
	"strconv"
)

// LayoutField is a field of a resolved layout, positioned at a byte offset
// relative to the start of its enclosing layout
type LayoutField struct {
	Name     string
	Type     string
	Kind     Kind
	ArrayLen int
	Offset   int
	// Size is the total size of the field, across all array elements
	Size int
	// Nested is the layout of the referenced format when Kind is Nested
	Nested *Layout
}

// ElemSize returns the size of one element of the field
func (f *LayoutField) ElemSize() int {
	if f.ArrayLen > 0 {
		return f.Size / f.ArrayLen
	}
	return f.Size
}

func (f *LayoutField) IsArray() bool {
	return f.ArrayLen > 0
}

func (f *LayoutField) IsPadding() bool {
	return Field{Name: f.Name}.IsPadding()
}

// Layout is the expansion of a format into positioned fields. Layouts are
// shared between all users of a registry and must not be modified.
type Layout struct {
	Name   string
	Fields []LayoutField
	// Size is the full size of an instance of the format
	Size int
	// RequiredSize is the end of the last byte which is not padding. Payloads
	// may omit any trailing padding beyond it.
	RequiredSize int
}

// Field returns the named top level field
func (l *Layout) Field(name string) (*LayoutField, bool) {
	for i := range l.Fields {
		if l.Fields[i].Name == name {
			return &l.Fields[i], true
		}
	}
	return nil, false
}

// FlatField is a leaf of a flattened layout
type FlatField struct {
	// Path of the field, e.g. "q", "pos.x" or "esc[2].rpm"
	Path     string
	Kind     Kind
	ArrayLen int
	Offset   int
	Size     int
	Padding  bool
}

// Flatten expands nested formats in place, depth first in declaration order.
// Arrays of nested formats produce one group of entries per element; arrays of
// primitives remain a single entry.
func (l *Layout) Flatten() []FlatField {
	return l.appendFlat(nil, "", 0)
}

func (l *Layout) appendFlat(out []FlatField, prefix string, base int) []FlatField {
	for i := range l.Fields {
		f := &l.Fields[i]
		path := prefix + f.Name
		off := base + f.Offset

		switch {
		case f.Kind != Nested:
			out = append(out, FlatField{
				Path:     path,
				Kind:     f.Kind,
				ArrayLen: f.ArrayLen,
				Offset:   off,
				Size:     f.Size,
				Padding:  f.IsPadding(),
			})

		case f.ArrayLen == 0:
			out = f.Nested.appendFlat(out, path+".", off)

		default:
			for j := 0; j < f.ArrayLen; j++ {
				elemPath := path + "[" + strconv.Itoa(j) + "]."
				out = f.Nested.appendFlat(out, elemPath, off+j*f.Nested.Size)
			}
		}
	}
	return out
}
