// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

package tags

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTag(t *testing.T) {
	testcases := []struct {
		GoName string
		Tag    string
		Want   Tag
	}{
		{"Rpm", "", Tag{Name: "rpm"}},
		{"Rpm", "rpm_actual", Tag{Name: "rpm_actual"}},
		{"Rpm", ",optional", Tag{Name: "rpm", Optional: true}},
		{"Rpm", " x , optional ", Tag{Name: "x", Optional: true}},
		{"Rpm", "-", Tag{Kind: Skip}},
	}

	for _, tc := range testcases {
		t.Run(tc.Tag, func(t *testing.T) {
			got, err := ParseTag(tc.GoName, tc.Tag)
			require.NoError(t, err)
			assert.Equal(t, tc.Want, got)
		})
	}

	_, err := ParseTag("Rpm", "rpm,required")
	assert.Error(t, err)
}

func TestParseStructTag(t *testing.T) {
	type sample struct {
		AccelX float32 `ulog:"ax,optional"`
	}

	f := reflect.TypeOf(sample{}).Field(0)
	got, err := ParseStructTag(f)
	require.NoError(t, err)
	assert.Equal(t, Tag{Name: "ax", Optional: true}, got)
}

func TestSnakeCase(t *testing.T) {
	for in, want := range map[string]string{
		"Timestamp":     "timestamp",
		"AccelX":        "accel_x",
		"GPSFix":        "gps_fix",
		"Q":             "q",
		"Pos2D":         "pos2_d",
		"already_snake": "already_snake",
		"EscRPM":        "esc_rpm",
	} {
		assert.Equal(t, want, SnakeCase(in), in)
	}
}
