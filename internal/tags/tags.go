// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

// Package tags parses the `ulog:"..."` struct tags used to bind Go structs
// to logged formats.
//
// A tag is a comma separated list. The first entry, if non-empty, names the
// format field; the remaining entries are options:
//
//	Rpm      int32     `ulog:"rpm"`           // bound to field "rpm"
//	Airspeed float32   `ulog:",optional"`     // bound to "airspeed" if present
//	Cache    []float32 `ulog:"-"`             // never bound
//
// Untagged fields are bound to the snake_case form of the Go field name.
package tags

import (
	"fmt"
	"reflect"
	"strings"
	"unicode"
)

type Kind byte

const (
	// Bind this field
	Bind Kind = iota
	// Skip this field; Go struct tag `ulog:"-"`
	Skip
)

// Tag is a parsed struct tag
type Tag struct {
	Kind Kind
	// Name of the format field to bind
	Name string
	// Optional fields are left untouched when the format lacks them
	Optional bool
}

// ParseStructTag parses the `ulog` tag of struct field f
func ParseStructTag(f reflect.StructField) (Tag, error) {
	return ParseTag(f.Name, f.Tag.Get("ulog"))
}

// ParseTag parses the body of a tag on the Go field goName
func ParseTag(goName string, stag string) (Tag, error) {
	stag = strings.TrimSpace(stag)
	if stag == "-" {
		return Tag{Kind: Skip}, nil
	}

	parts := strings.Split(stag, ",")
	t := Tag{Kind: Bind, Name: strings.TrimSpace(parts[0])}
	if t.Name == "" {
		t.Name = SnakeCase(goName)
	}

	for _, p := range parts[1:] {
		switch p = strings.TrimSpace(p); p {
		case "optional":
			t.Optional = true
		case "":
		default:
			return t, fmt.Errorf("Unknown ulog tag option '%s'", p)
		}
	}
	return t, nil
}

// SnakeCase converts a Go identifier to snake_case. Runs of capitals are
// treated as one word, so "GPSFix" becomes "gps_fix" and "AccelX" becomes
// "accel_x".
func SnakeCase(s string) string {
	runes := []rune(s)
	var sb strings.Builder
	sb.Grow(len(s) + 4)

	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					sb.WriteByte('_')
				}
			}
			r = unicode.ToLower(r)
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
