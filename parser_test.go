// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

package ulog

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func posStream() *stream {
	return newStream(1, 0).
		format("Pos:f32 x;f32 y;f32 z").
		subscribe(0, 3, "Pos").
		data(3, f32(1, 2, 3))
}

func TestPos(t *testing.T) {
	s := posStream()
	p, err := Open(bytes.NewReader(s.bytes()))
	require.NoError(t, err)
	assert.Equal(t, &Header{Version: 1, Timestamp: 0}, p.Header())

	msgs := collect(t, p)
	require.Len(t, msgs, 3)

	d, ok := msgs[2].(*LoggedData)
	require.True(t, ok)
	assert.Equal(t, uint16(3), d.MsgID)
	assert.Equal(t, "Pos", d.FormatName)
	assert.False(t, d.HasTimestamp)
	assert.False(t, d.HasMultiID)

	for i, name := range []string{"x", "y", "z"} {
		v, ok := d.Lookup(name)
		require.True(t, ok, name)
		assert.Equal(t, float32(i+1), v.Interface())
	}

	// Every record re-encodes to its original bytes
	for i, m := range msgs {
		b, err := Marshal(m)
		require.NoError(t, err)
		assert.Equal(t, s.recordBytes(i), b, "record %d", i)
	}
}

func TestHeaderErrors(t *testing.T) {
	good := newStream(1, 0).bytes()

	testcases := []struct {
		Name    string
		Bytes   []byte
		ErrorIs error
	}{
		{"empty", nil, ErrTruncated},
		{"short", good[:10], ErrTruncated},
		{"bad magic", append([]byte("ULoh"), good[4:]...), ErrHeaderInvalid},
		{"short bad magic", []byte("XLo"), ErrHeaderInvalid},
		{"future version", newStream(2, 0).bytes(), ErrHeaderInvalid},
	}

	for _, tc := range testcases {
		t.Run(tc.Name, func(t *testing.T) {
			_, err := Open(bytes.NewReader(tc.Bytes))
			require.ErrorIs(t, err, tc.ErrorIs)
			assert.True(t, IsFatal(err))
		})
	}
}

func TestUnknownSubscriptionContinues(t *testing.T) {
	s := posStream().data(9, f32(4, 5, 6)).data(3, f32(7, 8, 9))
	p, err := Open(bytes.NewReader(s.bytes()))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := p.Next()
		require.NoError(t, err)
	}

	_, err = p.Next()
	require.ErrorIs(t, err, ErrUnknownSubscription)
	assert.False(t, IsFatal(err))

	var rerr *RecordError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, int64(s.records[3]), rerr.Offset)
	assert.Equal(t, byte('D'), rerr.Type)

	msg, err := p.Next()
	require.NoError(t, err)
	x, _ := msg.(*LoggedData).Lookup("x")
	assert.Equal(t, float64(7), x.Float())

	_, err = p.Next()
	assert.Equal(t, io.EOF, err)
}

func TestUndefinedFormatContinues(t *testing.T) {
	s := posStream().
		subscribe(0, 4, "Missing").
		data(4, f32(1)).
		data(3, f32(4, 5, 6))
	p, err := Open(bytes.NewReader(s.bytes()))
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		_, err := p.Next()
		require.NoError(t, err)
	}

	_, err = p.Next()
	require.ErrorIs(t, err, ErrMalformed)
	assert.False(t, IsFatal(err))
	assert.Contains(t, err.Error(), "Missing")

	msg, err := p.Next()
	require.NoError(t, err)
	d := msg.(*LoggedData)
	assert.Equal(t, uint16(3), d.MsgID)
	z, _ := d.Lookup("z")
	assert.Equal(t, float64(6), z.Float())

	_, err = p.Next()
	assert.Equal(t, io.EOF, err)
}

func TestTruncatedRecordIsSticky(t *testing.T) {
	b := posStream().bytes()
	b = b[:len(b)-2]

	p, err := Open(bytes.NewReader(b))
	require.NoError(t, err)

	var errs []error
	for _, err := range p.All() {
		if err != nil {
			errs = append(errs, err)
		}
	}
	require.Len(t, errs, 1)
	require.ErrorIs(t, errs[0], ErrTruncated)
	assert.True(t, IsFatal(errs[0]))

	_, err = p.Next()
	assert.Equal(t, errs[0], err)
}

func TestSchemaErrorIsSticky(t *testing.T) {
	s := newStream(1, 0).
		format("outer:inner a;").
		subscribe(0, 1, "outer").
		data(1, []byte{1, 2, 3, 4}).
		data(1, []byte{1, 2, 3, 4})

	p, err := Open(bytes.NewReader(s.bytes()))
	require.NoError(t, err)

	_, err = p.Next()
	require.NoError(t, err)
	_, err = p.Next()
	require.NoError(t, err)

	_, err = p.Next()
	require.ErrorIs(t, err, ErrSchema)
	assert.True(t, IsFatal(err))

	_, err2 := p.Next()
	assert.Equal(t, err, err2)
}

func TestAllowListDoesNotFilterSchema(t *testing.T) {
	s := posStream().
		format("Vel:f32 vx;f32 vy").
		subscribe(0, 5, "Vel").
		data(5, f32(0.5, 0.25)).
		data(3, f32(4, 5, 6))

	p, err := Open(bytes.NewReader(s.bytes()), WithSubscriptions("Pos"))
	require.NoError(t, err)

	msgs := collect(t, p)
	require.Len(t, msgs, 7)

	ign, ok := msgs[5].(*Ignored)
	require.True(t, ok)
	id, ok := ign.MsgID()
	require.True(t, ok)
	assert.Equal(t, uint16(5), id)

	_, ok = msgs[6].(*LoggedData)
	assert.True(t, ok)

	sub, f, err := p.Registry().Resolve(5)
	require.NoError(t, err)
	assert.Equal(t, "Vel", sub.FormatName)
	assert.Equal(t, "Vel", f.Name)

	l, err := p.Layout("Vel")
	require.NoError(t, err)
	assert.Equal(t, 8, l.Size)

	// Filtering is lossless
	var out bytes.Buffer
	enc := NewEncoder(&out)
	require.NoError(t, enc.Encode(p.Header()))
	for _, m := range msgs {
		require.NoError(t, enc.Encode(m))
	}
	assert.Equal(t, s.bytes(), out.Bytes())
}

func TestAllowListByID(t *testing.T) {
	s := posStream().subscribe(1, 4, "Pos").data(4, f32(4, 5, 6))

	p, err := Open(bytes.NewReader(s.bytes()), WithSubscriptionIDs(4))
	require.NoError(t, err)

	msgs := collect(t, p)
	require.Len(t, msgs, 5)
	assert.IsType(t, &Ignored{}, msgs[2])

	d := msgs[4].(*LoggedData)
	assert.Equal(t, uint8(1), d.MultiID)
	assert.True(t, d.HasMultiID)
}

func TestRegistryFollowsLatestBinding(t *testing.T) {
	s := posStream().
		format("Vel:f32 vx;f32 vy").
		subscribe(0, 3, "Vel").
		data(3, f32(0.5, 0.25))

	p, err := Open(bytes.NewReader(s.bytes()))
	require.NoError(t, err)

	msgs := collect(t, p)
	require.Len(t, msgs, 6)
	assert.Equal(t, "Pos", msgs[2].(*LoggedData).FormatName)
	assert.Equal(t, "Vel", msgs[5].(*LoggedData).FormatName)

	sub, ok := p.Registry().Subscription(3)
	require.True(t, ok)
	assert.Equal(t, "Vel", sub.FormatName)
}

const sensorFormat = "sensor:uint64_t timestamp;int16_t[3] acc;uint8_t[2] _padding0;"

func sensorStream() *stream {
	return newStream(1, 0).
		format(sensorFormat).
		subscribe(0, 1, "sensor").
		data(1, u64(5000), u16(1), u16(0xFFFF), u16(3))
}

func TestTimestamp(t *testing.T) {
	s := sensorStream()

	p, err := Open(bytes.NewReader(s.bytes()))
	require.NoError(t, err)
	msgs := collect(t, p)
	d := msgs[2].(*LoggedData)

	assert.True(t, d.HasTimestamp)
	assert.Equal(t, uint64(5000), d.Timestamp)
	_, ok := d.Data.Get("timestamp")
	assert.False(t, ok)
	ts, ok := d.Lookup("timestamp")
	require.True(t, ok)
	assert.Equal(t, uint64(5000), ts.Uint())

	acc, _ := d.Data.Get("acc")
	assert.Equal(t, []int16{1, -1, 3}, acc.Interface())

	b, err := Marshal(d)
	require.NoError(t, err)
	assert.Equal(t, s.recordBytes(2), b)

	p, err = Open(bytes.NewReader(s.bytes()), WithTimestamp())
	require.NoError(t, err)
	msgs = collect(t, p)
	ts, ok = msgs[2].(*LoggedData).Data.Get("timestamp")
	require.True(t, ok)
	assert.Equal(t, uint64(5000), ts.Uint())
}

func TestPadding(t *testing.T) {
	s := newStream(1, 0).
		format(sensorFormat).
		subscribe(0, 1, "sensor").
		data(1, u64(1), u16(1), u16(2), u16(3), []byte{0xEE, 0xFF})

	p, err := Open(bytes.NewReader(s.bytes()), WithPadding())
	require.NoError(t, err)
	msgs := collect(t, p)
	d := msgs[2].(*LoggedData)

	pad, ok := d.Data.Get("_padding0")
	require.True(t, ok)
	assert.Equal(t, []byte{0xEE, 0xFF}, pad.Bytes())

	fields, err := p.Fields("sensor")
	require.NoError(t, err)
	require.Len(t, fields, 3)
	assert.True(t, fields[2].Padding)

	// Padding bytes survive even when not surfaced
	p, err = Open(bytes.NewReader(s.bytes()))
	require.NoError(t, err)
	msgs = collect(t, p)
	_, ok = msgs[2].(*LoggedData).Data.Get("_padding0")
	assert.False(t, ok)

	b, err := Marshal(msgs[2])
	require.NoError(t, err)
	assert.Equal(t, s.recordBytes(2), b)

	fields, err = p.Fields("sensor")
	require.NoError(t, err)
	assert.Len(t, fields, 2)
}

func TestAppendedData(t *testing.T) {
	s := newStream(1, 0).
		record('B', flagBits(0, 1, 0)).
		format("Pos:f32 x;f32 y;f32 z")
	cutoff := len(s.b)

	// Patch the first appended data offset
	le64.PutUint64(s.b[s.records[0]+3+16:], uint64(cutoff))
	b := append(s.bytes(), 0xFF, 0xFF, 'D', 1, 2, 3)

	p, err := Open(bytes.NewReader(b))
	require.NoError(t, err)
	msgs := collect(t, p)
	require.Len(t, msgs, 2)

	fb := msgs[0].(*FlagBits)
	off, ok := fb.AppendedDataOffset()
	require.True(t, ok)
	assert.Equal(t, uint64(cutoff), off)
	assert.Equal(t, int64(cutoff), p.Offset())
}

func TestIncludeHeader(t *testing.T) {
	p, err := Open(bytes.NewReader(posStream().bytes()), WithHeader())
	require.NoError(t, err)

	msgs := collect(t, p)
	require.Len(t, msgs, 4)
	assert.Equal(t, TypeHeader, msgs[0].Type())
}

func TestDebugLogging(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	s := posStream().record('X', []byte{1})

	p, err := Open(bytes.NewReader(s.bytes()), WithLogger(zap.New(core)))
	require.NoError(t, err)
	collect(t, p)

	assert.Equal(t, 1, logs.FilterMessage("read header").Len())
	assert.Equal(t, 1, logs.FilterMessage("entering data section").Len())
	assert.Equal(t, 1, logs.FilterMessage("unhandled record").Len())
	assert.Equal(t, 1, logs.FilterMessage("end of stream").Len())
}

func TestWithConfig(t *testing.T) {
	cfg := Config{IncludeTimestamp: true, Subscriptions: []string{"Pos"}}
	c := newConfig([]Option{WithConfig(cfg), WithSubscriptions("Vel"), WithPadding()})

	assert.True(t, c.IncludeTimestamp)
	assert.True(t, c.IncludePadding)
	assert.Equal(t, []string{"Pos", "Vel"}, c.Subscriptions)
	assert.Equal(t, []string{"Pos"}, cfg.Subscriptions)
	assert.NotNil(t, c.Logger)
}

func TestCopy(t *testing.T) {
	s := newStream(1, 42).
		record('B', flagBits(1, 0)).
		record('I', keyed("char[3] sys_name", []byte("PX4"))).
		record('P', keyed("float MC_ROLL_P", f32(6.5))).
		record('Q', []byte{1}, keyed("float MC_ROLL_P", f32(7))).
		format(sensorFormat).
		subscribe(0, 1, "sensor").
		record('L', []byte{'6'}, u64(1), []byte("hello")).
		data(1, u64(5000), u16(1), u16(2), u16(3)).
		record('O', u16(100)).
		data(1, u64(6000), u16(4), u16(5), u16(6), []byte{9, 9}).
		record('S', syncMagic[:])

	for _, opts := range [][]Option{nil, {WithRoundTrip()}, {WithSubscriptions("other")}} {
		p, err := Open(&singleByteReader{bytes.NewReader(s.bytes())}, opts...)
		require.NoError(t, err)

		w := newComparingWriter(t, s.bytes())
		require.NoError(t, Copy(w, p))
		w.Assert()
	}
}

func TestCopyCollectsRecordErrors(t *testing.T) {
	s := posStream().data(9, f32(1)).data(3, f32(4, 5, 6))
	p, err := Open(bytes.NewReader(s.bytes()))
	require.NoError(t, err)

	var out bytes.Buffer
	err = Copy(&out, p)
	require.ErrorIs(t, err, ErrUnknownSubscription)

	want := append(posStream().bytes(), s.recordBytes(4)...)
	assert.Equal(t, want, out.Bytes())
}

func TestEncodeConstructed(t *testing.T) {
	f, err := ParseFormat("Pos:float x;float y;float z;")
	require.NoError(t, err)
	f.Raw = ""

	data := &Struct{Name: "Pos", Fields: []NamedValue{
		{Name: "x", Value: Float32(1)},
		{Name: "y", Value: Float32(2)},
		{Name: "z", Value: Float32(3)},
	}}

	var out bytes.Buffer
	enc := NewEncoder(&out)
	require.NoError(t, enc.EncodeAll(func(yield func(Message, error) bool) {
		for _, m := range []Message{
			&Header{Version: 1},
			&FormatDefinition{Format: f},
			&AddSubscription{Subscription{MsgID: 3, FormatName: "Pos"}},
			&LoggedData{MsgID: 3, FormatName: "Pos", Data: data},
		} {
			if !yield(m, nil) {
				return
			}
		}
	}))

	want := newStream(1, 0).
		format("Pos:float x;float y;float z;").
		subscribe(0, 3, "Pos").
		data(3, f32(1, 2, 3))
	assert.Equal(t, want.bytes(), out.Bytes())

	// Missing fields can't be invented
	data.Remove("y")
	err = enc.Encode(&LoggedData{MsgID: 3, FormatName: "Pos", Data: data})
	assert.ErrorIs(t, err, ErrMissingField)
}
