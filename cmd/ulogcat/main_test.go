// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.e43.eu/ulog"
)

func mustFormat(t *testing.T, text string) *ulog.Format {
	t.Helper()
	f, err := ulog.ParseFormat(text)
	require.NoError(t, err)
	return f
}

func mustField(t *testing.T, decl string) ulog.Field {
	t.Helper()
	f, err := ulog.ParseField(decl)
	require.NoError(t, err)
	return f
}

func accel(ts uint64, x, y, z float32) *ulog.Struct {
	return &ulog.Struct{Name: "accel", Fields: []ulog.NamedValue{
		{Name: "timestamp", Value: ulog.Uint64(ts)},
		{Name: "xyz", Value: must(ulog.Array(ulog.Float32(x), ulog.Float32(y), ulog.Float32(z)))},
		{Name: "device", Value: ulog.Chars("imu0")},
	}}
}

func must(v ulog.Value, err error) ulog.Value {
	if err != nil {
		panic(err)
	}
	return v
}

// writeLog writes a small log with two instances of one format
func writeLog(t *testing.T) string {
	t.Helper()

	var buf bytes.Buffer
	enc := ulog.NewEncoder(&buf)
	for _, m := range []ulog.Message{
		&ulog.Header{Version: 1, Timestamp: 100},
		&ulog.Info{Field: mustField(t, "char[3] sys_name"), Value: ulog.Chars("PX4")},
		&ulog.Parameter{Field: mustField(t, "int32_t SYS_AUTOSTART"), Value: ulog.Int32(4001)},
		&ulog.FormatDefinition{Format: mustFormat(t, "accel:uint64_t timestamp;float[3] xyz;char[4] device;")},
		&ulog.AddSubscription{Subscription: ulog.Subscription{MultiID: 0, MsgID: 0, FormatName: "accel"}},
		&ulog.AddSubscription{Subscription: ulog.Subscription{MultiID: 1, MsgID: 1, FormatName: "accel"}},
		&ulog.LoggedData{MsgID: 0, FormatName: "accel", Data: accel(1000, 1, 2, 3)},
		&ulog.LoggedData{MsgID: 1, FormatName: "accel", Data: accel(1001, 4, 5, 6)},
		&ulog.LoggedString{Level: ulog.LevelInfo, Timestamp: 1002, Text: "armed"},
		&ulog.LoggedData{MsgID: 0, FormatName: "accel", Data: accel(2000, 0.5, 0, -1)},
	} {
		require.NoError(t, enc.Encode(m))
	}

	path := filepath.Join(t.TempDir(), "test.ulg")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	err := app.Run(context.Background(), append([]string{"ulogcat"}, args...))
	return out.String(), err
}

func TestCat(t *testing.T) {
	out, err := run(t, "cat", writeLog(t))
	require.NoError(t, err)

	assert.Contains(t, out, `INFO sys_name = "PX4"`)
	assert.Contains(t, out, "PARAMETER SYS_AUTOSTART = 4001")
	assert.Contains(t, out, "DATA 1001 accel[1] {xyz:[4 5 6] device:imu0}")
	assert.Contains(t, out, "LOGGING 1002 INFO armed")
}

func TestCatFiltered(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "ulogcat.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("include_header: true\nsubscription_ids: [1]\n"), 0o644))

	out, err := run(t, "cat", "--config", cfg, writeLog(t))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Equal(t, "HEADER version=1 start=100µs", lines[0])
	assert.Equal(t, 2, strings.Count(out, "DATA (26 bytes skipped)"))
	assert.Contains(t, out, "DATA 1001 accel[1]")
	assert.NotContains(t, out, "DATA 1000")
}

func TestSubscriptions(t *testing.T) {
	out, err := run(t, "subscriptions", writeLog(t))
	require.NoError(t, err)

	assert.Contains(t, out, "FORMAT")
	assert.Regexp(t, `\|\s+0\s+\|\s+accel\s+\|\s+0\s+\|\s+3\s+\|\s+24\s+\|\s+2\s+\|`, out)
	assert.Regexp(t, `\|\s+1\s+\|\s+accel\s+\|\s+1\s+\|\s+3\s+\|\s+24\s+\|\s+1\s+\|`, out)
}

func TestMultiID(t *testing.T) {
	out, err := run(t, "multi-id", writeLog(t))
	require.NoError(t, err)
	assert.Regexp(t, `accel\s+\|\s+0,1`, out)
}

func TestParams(t *testing.T) {
	out, err := run(t, "params", writeLog(t))
	require.NoError(t, err)
	assert.Regexp(t, `param\s+\|\s+SYS_AUTOSTART\s+\|\s+int32_t\s+\|\s+4001`, out)
	assert.Regexp(t, `info\s+\|\s+sys_name\s+\|\s+char\[3\]\s+\|\s+"PX4"`, out)
}

func TestCSV(t *testing.T) {
	out, err := run(t, "csv", "-f", "accel", "--multi-id", "0", writeLog(t))
	require.NoError(t, err)

	assert.Equal(t, "timestamp,xyz[0],xyz[1],xyz[2],device\n"+
		"1000,1,2,3,imu0\n"+
		"2000,0.5,0,-1,imu0\n", out)

	_, err = run(t, "csv", "-f", "gyro", writeLog(t))
	assert.Error(t, err)
}

func TestJSON(t *testing.T) {
	out, err := run(t, "json", writeLog(t))
	require.NoError(t, err)

	var data []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		var l map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &l))
		if l["type"] == "DATA" {
			data = append(data, l)
		}
	}

	require.Len(t, data, 3)
	assert.Equal(t, float64(1001), data[1]["timestamp"])
	assert.Equal(t, float64(1), data[1]["multi_id"])
	assert.Equal(t, map[string]any{
		"xyz":    []any{float64(4), float64(5), float64(6)},
		"device": "imu0",
	}, data[1]["data"])
}

func TestRoundtrip(t *testing.T) {
	in := writeLog(t)
	outPath := filepath.Join(t.TempDir(), "out.ulg")

	out, err := run(t, "roundtrip", "--verify", in, outPath)
	require.NoError(t, err)
	assert.Contains(t, out, "identical")

	a, err := os.ReadFile(in)
	require.NoError(t, err)
	b, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestMissingFile(t *testing.T) {
	_, err := run(t, "cat", filepath.Join(t.TempDir(), "nope.ulg"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = run(t, "cat")
	assert.Error(t, err)
}
