// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

package ulog

import (
	"fmt"
	"math"
	"reflect"
	"strings"
	"sync"

	"github.com/go-viper/mapstructure/v2"

	"go.e43.eu/ulog/internal/codec"
	"go.e43.eu/ulog/internal/errors"
	"go.e43.eu/ulog/internal/schema"
	"go.e43.eu/ulog/internal/tags"
)

type binding struct {
	index    int
	goName   string
	name     string
	optional bool
}

type bindPlan struct {
	name   string
	fields []binding
	err    error
}

var knownPlans sync.Map // map[reflect.Type]*bindPlan

func planFor(t reflect.Type) *bindPlan {
	if p, ok := knownPlans.Load(t); ok {
		return p.(*bindPlan)
	}

	p := makePlan(t)
	actual, _ := knownPlans.LoadOrStore(t, p)
	return actual.(*bindPlan)
}

func makePlan(t reflect.Type) *bindPlan {
	p := &bindPlan{
		name:   t.Name(),
		fields: make([]binding, 0, t.NumField()),
	}

	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}

		tag, err := tags.ParseStructTag(f)
		if err != nil {
			p.err = fmt.Errorf("Parsing tag of field '%s' of '%s': %v", f.Name, t, err)
			return p
		}
		if tag.Kind == tags.Skip {
			continue
		}

		p.fields = append(p.fields, binding{
			index:    i,
			goName:   f.Name,
			name:     tag.Name,
			optional: tag.Optional,
		})
	}
	return p
}

// field finds the binding mapstructure reported under key, which is either
// the tag name or the Go field name
func (p *bindPlan) field(key string) (binding, bool) {
	for _, b := range p.fields {
		if b.name == key || b.goName == key {
			return b, true
		}
	}
	return binding{}, false
}

// checkPlans validates the tags of t and every struct type reachable from it
func checkPlans(t reflect.Type, seen map[reflect.Type]bool) error {
	t = elemType(t)
	if t.Kind() != reflect.Struct || seen[t] {
		return nil
	}
	seen[t] = true

	p := planFor(t)
	if p.err != nil {
		return p.err
	}
	for _, b := range p.fields {
		if err := checkPlans(t.Field(b.index).Type, seen); err != nil {
			return err
		}
	}
	return nil
}

func elemType(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Pointer || t.Kind() == reflect.Slice || t.Kind() == reflect.Array {
		t = t.Elem()
	}
	return t
}

func structTarget(dst any) (reflect.Value, error) {
	v := reflect.ValueOf(dst)
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return reflect.Value{}, fmt.Errorf("%w (have %T)", errors.ErrNotPointer, dst)
	}
	return v.Elem(), nil
}

// Bind copies the fields of d into the struct pointed to by dst. Struct
// fields are matched to format fields by name (see the package
// documentation); nested formats bind to nested structs, and arrays of
// them to slices or arrays of structs.
//
// A bound field absent from the record fails with ErrMissingField unless it
// is tagged optional, in which case it is left untouched. The record
// timestamp is available for binding even when the parser split it out of
// d.Data.
func Bind(d *LoggedData, dst any) error {
	v, err := structTarget(dst)
	if err != nil {
		return err
	}
	if err := checkPlans(v.Type(), map[reflect.Type]bool{}); err != nil {
		return err
	}

	var md mapstructure.Metadata
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:    "ulog",
		Result:     dst,
		Metadata:   &md,
		DecodeHook: mapstructure.DecodeHookFuncValue(bindHook),
		MatchName:  matchName,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(bindInput(d.fields())); err != nil {
		return err
	}

	for _, key := range md.Unset {
		if err := requireSet(v.Type(), key); err != nil {
			return err
		}
	}
	return nil
}

// bindInput converts s into the nested maps mapstructure decodes from
func bindInput(s *codec.Struct) map[string]any {
	m := make(map[string]any, len(s.Fields))
	for _, f := range s.Fields {
		v := f.Value
		switch {
		case v.Kind() == schema.Nested && v.IsArray():
			elems := make([]any, 0, v.Len())
			for _, sub := range v.Structs() {
				elems = append(elems, bindInput(sub))
			}
			m[f.Name] = elems
		case v.Kind() == schema.Nested:
			m[f.Name] = bindInput(v.Struct())
		default:
			m[f.Name] = v.Interface()
		}
	}
	return m
}

func matchName(key, field string) bool {
	return key == field || key == tags.SnakeCase(field)
}

// requireSet fails if the field mapstructure reported unset under key is
// bound and not optional. Keys are dotted paths with slice indices, such as
// "esc[1].esc_rpm".
func requireSet(t reflect.Type, key string) error {
	var path []string
	for _, part := range strings.Split(key, ".") {
		if i := strings.IndexByte(part, '['); i >= 0 {
			part = part[:i]
		}

		t = elemType(t)
		if t.Kind() != reflect.Struct {
			return nil
		}
		p := planFor(t)
		b, ok := p.field(part)
		if !ok {
			return nil
		}
		path = append(path, b.name)
		if b.optional {
			return nil
		}
		t = t.Field(b.index).Type
	}
	return errors.WithFieldError(errors.ErrMissingField, path...)
}

// bindHook enforces the conversions Bind permits. Integers must fit their
// destination, floats never bind to integers, char data binds to strings
// (or byte slices) and nested formats bind only to structs.
func bindHook(from, to reflect.Value) (any, error) {
	if !from.IsValid() {
		return nil, nil
	}
	data := from.Interface()
	fk, tt := from.Kind(), to.Type()

	switch tt.Kind() {
	case reflect.Interface:
		return data, nil

	case reflect.Bool:
		if fk != reflect.Bool {
			return nil, mismatch(from, tt)
		}

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		var i int64
		switch {
		case isInt(fk):
			i = from.Int()
		case isUint(fk):
			u := from.Uint()
			if u > math.MaxInt64 {
				return nil, overflow(from, tt)
			}
			i = int64(u)
		default:
			return nil, mismatch(from, tt)
		}
		if reflect.Zero(tt).OverflowInt(i) {
			return nil, overflow(from, tt)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		var u uint64
		switch {
		case isUint(fk):
			u = from.Uint()
		case isInt(fk):
			i := from.Int()
			if i < 0 {
				return nil, overflow(from, tt)
			}
			u = uint64(i)
		default:
			return nil, mismatch(from, tt)
		}
		if reflect.Zero(tt).OverflowUint(u) {
			return nil, overflow(from, tt)
		}

	case reflect.Float32, reflect.Float64:
		if !isInt(fk) && !isUint(fk) && fk != reflect.Float32 && fk != reflect.Float64 {
			return nil, mismatch(from, tt)
		}

	case reflect.String:
		if fk != reflect.String {
			return nil, mismatch(from, tt)
		}

	case reflect.Struct:
		if fk != reflect.Map {
			return nil, mismatch(from, tt)
		}

	case reflect.Slice:
		if fk == reflect.String && tt.Elem().Kind() == reflect.Uint8 {
			return []byte(from.String()), nil
		}
		if fk != reflect.Slice {
			return nil, mismatch(from, tt)
		}

	case reflect.Array:
		if fk != reflect.Slice {
			return nil, mismatch(from, tt)
		}
		if from.Len() != tt.Len() {
			return nil, fmt.Errorf("%w (%d elements into %s)", errors.ErrInvalidValue, from.Len(), tt)
		}
	}
	return data, nil
}

func isInt(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Int64
}

func isUint(k reflect.Kind) bool {
	return k >= reflect.Uint && k <= reflect.Uintptr
}

func mismatch(from reflect.Value, t reflect.Type) error {
	kind := "nested format"
	if from.Kind() != reflect.Map {
		kind = from.Type().String()
	}
	return fmt.Errorf("%w (%s into %s)", errors.ErrInvalidValue, kind, t)
}

func overflow(from reflect.Value, t reflect.Type) error {
	return fmt.Errorf("%w (%v overflows %s)", errors.ErrInvalidValue, from.Interface(), t)
}

// CheckBinding reports whether the struct pointed to by dst can be bound to
// records with the given fields, as returned by Parser.Fields. Every bound
// struct field which is not tagged optional must be present with a
// compatible type.
func CheckBinding(fields []FlatField, dst any) error {
	v, err := structTarget(dst)
	if err != nil {
		return err
	}

	byPath := make(map[string]FlatField, len(fields))
	for _, f := range fields {
		byPath[f.Path] = f
	}
	return checkStruct(byPath, "", v.Type())
}

func checkStruct(byPath map[string]FlatField, prefix string, t reflect.Type) error {
	p := planFor(t)
	if p.err != nil {
		return p.err
	}

	for _, b := range p.fields {
		if err := checkField(byPath, prefix+b.name, t.Field(b.index).Type); err != nil {
			if b.optional && err == errors.ErrMissingField {
				continue
			}
			return errors.WithFieldError(err, p.name, b.name)
		}
	}
	return nil
}

func checkField(byPath map[string]FlatField, path string, t reflect.Type) error {
	if f, ok := byPath[path]; ok {
		return checkLeaf(f, t)
	}

	// Not a leaf; a nested format or an array of them
	switch {
	case t.Kind() == reflect.Struct && hasPrefix(byPath, path+"."):
		return checkStruct(byPath, path+".", t)

	case (t.Kind() == reflect.Slice || t.Kind() == reflect.Array) &&
		t.Elem().Kind() == reflect.Struct && hasPrefix(byPath, path+"[0]."):
		return checkStruct(byPath, path+"[0].", t.Elem())

	case hasPrefix(byPath, path+".") || hasPrefix(byPath, path+"[0]."):
		return fmt.Errorf("%w (nested format into %s)", errors.ErrInvalidValue, t)
	}
	return errors.ErrMissingField
}

func checkLeaf(f FlatField, t reflect.Type) error {
	if f.ArrayLen == 0 {
		if !scalarCompatible(f.Kind, t) {
			return fmt.Errorf("%w (%s into %s)", errors.ErrInvalidValue, f.Kind, t)
		}
		return nil
	}

	switch {
	case f.Kind == schema.Char && (t.Kind() == reflect.String ||
		t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8):
		return nil
	case t.Kind() == reflect.Array && t.Len() != f.ArrayLen:
		return fmt.Errorf("%w (%d elements into %s)", errors.ErrInvalidValue, f.ArrayLen, t)
	case (t.Kind() == reflect.Array || t.Kind() == reflect.Slice) && scalarCompatible(f.Kind, t.Elem()):
		return nil
	}
	return fmt.Errorf("%w (%s[%d] into %s)", errors.ErrInvalidValue, f.Kind, f.ArrayLen, t)
}

// scalarCompatible mirrors the conversions bindHook accepts
func scalarCompatible(k schema.Kind, t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Bool:
		return k == schema.Bool
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return k.IsSigned() || k.IsUnsigned()
	case reflect.Float32, reflect.Float64:
		return k.IsFloat() || k.IsSigned() || k.IsUnsigned()
	case reflect.String:
		return k == schema.Char
	case reflect.Interface:
		return t.NumMethod() == 0
	}
	return false
}

func hasPrefix(byPath map[string]FlatField, prefix string) bool {
	for p := range byPath {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}
