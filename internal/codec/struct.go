// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

package codec

import (
	"iter"
	"strconv"
	"strings"

	"go.e43.eu/ulog/internal/schema"
)

// NamedValue is one field of a Struct
type NamedValue struct {
	Name  string
	Value Value
}

// Struct is an ordered mapping from field names to values
type Struct struct {
	Name   string
	Fields []NamedValue
}

// Get returns the value of the named field
func (s *Struct) Get(name string) (Value, bool) {
	for i := range s.Fields {
		if s.Fields[i].Name == name {
			return s.Fields[i].Value, true
		}
	}
	return Value{}, false
}

// Set replaces the value of the named field, or appends it
func (s *Struct) Set(name string, v Value) {
	for i := range s.Fields {
		if s.Fields[i].Name == name {
			s.Fields[i].Value = v
			return
		}
	}
	s.Fields = append(s.Fields, NamedValue{name, v})
}

// Remove deletes the named field, reporting whether it was present
func (s *Struct) Remove(name string) bool {
	for i := range s.Fields {
		if s.Fields[i].Name == name {
			s.Fields = append(s.Fields[:i], s.Fields[i+1:]...)
			return true
		}
	}
	return false
}

// Lookup resolves a path such as "esc[1].rpm" or "q[2]"
func (s *Struct) Lookup(path string) (Value, bool) {
	cur := StructValue(s)
	for _, part := range strings.Split(path, ".") {
		st := cur.Struct()
		if st == nil {
			return Value{}, false
		}

		name, idx := part, -1
		if i := strings.IndexByte(part, '['); i >= 0 && strings.HasSuffix(part, "]") {
			n, err := strconv.Atoi(part[i+1 : len(part)-1])
			if err != nil {
				return Value{}, false
			}
			name, idx = part[:i], n
		}

		v, ok := st.Get(name)
		if !ok {
			return Value{}, false
		}

		if idx >= 0 {
			if !v.IsArray() || idx >= v.Len() || idx < 0 {
				return Value{}, false
			}
			v = v.Index(idx)
		}
		cur = v
	}
	return cur, true
}

// Leaves iterates over every primitive value (scalar or array) in
// declaration order, depth first, with paths matching schema.Layout.Flatten
func (s *Struct) Leaves() iter.Seq2[string, Value] {
	return func(yield func(string, Value) bool) {
		s.walk("", yield)
	}
}

func (s *Struct) walk(prefix string, yield func(string, Value) bool) bool {
	for _, f := range s.Fields {
		path := prefix + f.Name
		v := f.Value

		switch {
		case v.kind != schema.Nested:
			if !yield(path, v) {
				return false
			}
		case !v.array:
			if !v.Struct().walk(path+".", yield) {
				return false
			}
		default:
			for i, sub := range v.sub {
				if !sub.walk(path+"["+strconv.Itoa(i)+"].", yield) {
					return false
				}
			}
		}
	}
	return true
}

func (s *Struct) String() string {
	if s == nil {
		return "{}"
	}

	var sb strings.Builder
	sb.WriteByte('{')
	for i, f := range s.Fields {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(f.Name)
		sb.WriteByte(':')
		sb.WriteString(f.Value.String())
	}
	sb.WriteByte('}')
	return sb.String()
}

func (s *Struct) Equal(o *Struct) bool {
	if s == nil || o == nil {
		return s == o
	}
	if s.Name != o.Name || len(s.Fields) != len(o.Fields) {
		return false
	}
	for i := range s.Fields {
		if s.Fields[i].Name != o.Fields[i].Name || !s.Fields[i].Value.Equal(o.Fields[i].Value) {
			return false
		}
	}
	return true
}
