// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

package schema

import (
	"fmt"
	"strconv"
	"strings"

	"go.e43.eu/ulog/internal/errors"
)

// Field is a single field declaration: `type name` or `type[N] name`
type Field struct {
	// Type name as written, e.g. "float", "f32" or the name of another format
	Type     string
	Kind     Kind
	ArrayLen int
	Name     string
}

func (f Field) IsArray() bool {
	return f.ArrayLen > 0
}

// IsPadding reports whether the field only exists to align its successors
func (f Field) IsPadding() bool {
	return strings.HasPrefix(f.Name, "_padding")
}

// TypeString renders the type part of the declaration
func (f Field) TypeString() string {
	if f.ArrayLen > 0 {
		return f.Type + "[" + strconv.Itoa(f.ArrayLen) + "]"
	}
	return f.Type
}

func (f Field) String() string {
	return f.TypeString() + " " + f.Name
}

// ParseField parses a `type name` or `type[N] name` declaration
func ParseField(decl string) (Field, error) {
	parts := strings.Fields(decl)
	if len(parts) != 2 {
		return Field{}, fmt.Errorf("Declaration '%s' is not of the form 'type name'", decl)
	}

	typ, name := parts[0], parts[1]
	if !validIdent(name) {
		return Field{}, fmt.Errorf("Invalid field name '%s'", name)
	}

	f := Field{Name: name}
	if i := strings.IndexByte(typ, '['); i >= 0 {
		if !strings.HasSuffix(typ, "]") {
			return Field{}, fmt.Errorf("Unterminated array length in '%s'", typ)
		}

		n, err := strconv.Atoi(typ[i+1 : len(typ)-1])
		if err != nil || n <= 0 {
			return Field{}, fmt.Errorf("Invalid array length in '%s'", typ)
		}

		f.ArrayLen = n
		typ = typ[:i]
	}

	if !validIdent(typ) {
		return Field{}, fmt.Errorf("Invalid type name '%s'", typ)
	}

	f.Type = typ
	f.Kind = KindOf(typ)
	return f, nil
}

func validIdent(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		default:
			return false
		}
	}
	return true
}

// Format is a named, ordered field schema
type Format struct {
	Name   string
	Fields []Field

	// Raw holds the definition text exactly as it was read, if it was read
	// from a stream
	Raw string
}

// ParseFormat parses a `name:type field;type[N] field;...` definition. The
// trailing semicolon is optional.
func ParseFormat(text string) (*Format, error) {
	i := strings.IndexByte(text, ':')
	if i < 0 {
		return nil, errors.SchemaError{Reason: fmt.Sprintf("definition '%s' lacks a ':'", text)}
	}

	name := strings.TrimSpace(text[:i])
	if !validIdent(name) {
		return nil, errors.SchemaError{Reason: fmt.Sprintf("invalid format name '%s'", name)}
	}

	f := &Format{Name: name, Raw: text}
	for _, decl := range strings.Split(text[i+1:], ";") {
		if strings.TrimSpace(decl) == "" {
			continue
		}

		field, err := ParseField(decl)
		if err != nil {
			return nil, errors.SchemaError{Format: name, Reason: err.Error()}
		}
		if _, dup := f.Field(field.Name); dup {
			return nil, errors.SchemaError{Format: name, Reason: fmt.Sprintf("field '%s' declared twice", field.Name)}
		}
		f.Fields = append(f.Fields, field)
	}

	return f, nil
}

// String renders the canonical definition text
func (f *Format) String() string {
	var sb strings.Builder
	sb.WriteString(f.Name)
	sb.WriteByte(':')
	for _, field := range f.Fields {
		sb.WriteString(field.String())
		sb.WriteByte(';')
	}
	return sb.String()
}

// Text returns the definition text to write for f: the text it was read from
// if that still describes it, or the canonical rendering otherwise
func (f *Format) Text() string {
	if f.Raw != "" {
		if orig, err := ParseFormat(f.Raw); err == nil && orig.Equal(f) {
			return f.Raw
		}
	}
	return f.String()
}

// Equal reports whether two formats declare the same name and fields,
// regardless of how they were written
func (f *Format) Equal(o *Format) bool {
	if f.Name != o.Name || len(f.Fields) != len(o.Fields) {
		return false
	}
	for i := range f.Fields {
		if f.Fields[i] != o.Fields[i] {
			return false
		}
	}
	return true
}

// Field returns the declaration of the named field
func (f *Format) Field(name string) (Field, bool) {
	for _, field := range f.Fields {
		if field.Name == name {
			return field, true
		}
	}
	return Field{}, false
}
