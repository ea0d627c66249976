// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

// Package schema holds the format definitions and subscriptions observed in
// a stream, and expands formats into positioned layouts.
package schema

import (
	"cmp"
	"maps"
	"slices"

	"go.e43.eu/ulog/internal/errors"
)

// Subscription binds a message id to a format and an instance index
type Subscription struct {
	MultiID    uint8
	MsgID      uint16
	FormatName string
}

// Registry accumulates formats and subscriptions. Entries are overwritten,
// never removed. A Registry is not safe for concurrent use.
type Registry struct {
	formats   map[string]*Format
	subs      map[uint16]Subscription
	multi     map[string]struct{}
	layouts   map[string]*Layout
	resolving map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		formats:   make(map[string]*Format),
		subs:      make(map[uint16]Subscription),
		multi:     make(map[string]struct{}),
		layouts:   make(map[string]*Layout),
		resolving: make(map[string]struct{}),
	}
}

// DefineFormat inserts or replaces a format. Replacing a format whose layout
// has already been resolved is only permitted if the definition is unchanged.
func (r *Registry) DefineFormat(f *Format) error {
	existing, ok := r.formats[f.Name]
	if ok && existing.Equal(f) {
		return nil
	}

	if _, resolved := r.layouts[f.Name]; resolved {
		return errors.SchemaError{
			Format: f.Name,
			Reason: "redefinition conflicts with resolved layout",
		}
	}

	r.formats[f.Name] = f
	return nil
}

// Subscribe inserts or replaces the binding for s.MsgID
func (r *Registry) Subscribe(s Subscription) {
	r.subs[s.MsgID] = s
	if s.MultiID > 0 {
		r.multi[s.FormatName] = struct{}{}
	}
}

// Resolve returns the subscription bound to id and its format
func (r *Registry) Resolve(id uint16) (Subscription, *Format, error) {
	s, ok := r.subs[id]
	if !ok {
		return s, nil, errors.UnknownSubscriptionError{ID: id}
	}

	f, ok := r.formats[s.FormatName]
	if !ok {
		return s, nil, errors.SchemaError{Format: s.FormatName, Reason: "subscribed format is not defined"}
	}
	return s, f, nil
}

func (r *Registry) Format(name string) (*Format, bool) {
	f, ok := r.formats[name]
	return f, ok
}

func (r *Registry) Subscription(id uint16) (Subscription, bool) {
	s, ok := r.subs[id]
	return s, ok
}

// Formats returns all formats, ordered by name
func (r *Registry) Formats() []*Format {
	return slices.SortedFunc(maps.Values(r.formats), func(a, b *Format) int {
		return cmp.Compare(a.Name, b.Name)
	})
}

// Subscriptions returns all current bindings, ordered by id
func (r *Registry) Subscriptions() []Subscription {
	return slices.SortedFunc(maps.Values(r.subs), func(a, b Subscription) int {
		return cmp.Compare(a.MsgID, b.MsgID)
	})
}

// HasMultiID reports whether any subscription to the named format so far has
// used a non-zero instance index
func (r *Registry) HasMultiID(name string) bool {
	_, ok := r.multi[name]
	return ok
}

// Layout returns the resolved layout of the named format, resolving and
// caching it (and any formats it references) on first use
func (r *Registry) Layout(name string) (*Layout, error) {
	if l, ok := r.layouts[name]; ok {
		return l, nil
	}

	if _, busy := r.resolving[name]; busy {
		return nil, errors.SchemaError{Format: name, Reason: "format references itself"}
	}

	f, ok := r.formats[name]
	if !ok {
		return nil, errors.SchemaError{Format: name, Reason: "format is not defined"}
	}

	r.resolving[name] = struct{}{}
	defer delete(r.resolving, name)

	l := &Layout{
		Name:   name,
		Fields: make([]LayoutField, 0, len(f.Fields)),
	}

	for _, fd := range f.Fields {
		lf := LayoutField{
			Name:     fd.Name,
			Type:     fd.Type,
			Kind:     fd.Kind,
			ArrayLen: fd.ArrayLen,
			Offset:   l.Size,
		}

		elemSize := fd.Kind.Size()
		if fd.Kind == Nested {
			nested, err := r.Layout(fd.Type)
			if err != nil {
				return nil, errors.WithFieldError(err, name, fd.Name)
			}
			lf.Nested = nested
			elemSize = nested.Size
		}

		count := max(1, fd.ArrayLen)
		lf.Size = elemSize * count
		l.Size += lf.Size

		if !fd.IsPadding() {
			switch {
			case lf.Nested == nil:
				l.RequiredSize = l.Size
			case lf.Nested.RequiredSize > 0:
				l.RequiredSize = lf.Offset + (count-1)*elemSize + lf.Nested.RequiredSize
			}
		}

		l.Fields = append(l.Fields, lf)
	}

	r.layouts[name] = l
	return l, nil
}
