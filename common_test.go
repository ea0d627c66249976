// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

package ulog

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// comparingWriter is an io.Writer which immediately compares every byte
// written to it against the values read from the passed reader. This
// enables capturing the call stack at the time any discrepancy in the
// written data occurs
//
// It captures the written data so that a final comparison (which may sometimes
// be more informative) can also be made
type comparingWriter struct {
	T *testing.T

	// The reader
	R io.Reader

	// Error returned by reader
	Rerr error

	// Bytes written
	B []byte

	// Bytes expected
	X []byte
}

func newComparingWriter(t *testing.T, expected []byte) *comparingWriter {
	return &comparingWriter{
		T: t,
		R: bytes.NewReader(expected),
	}
}

func (w *comparingWriter) Write(buf []byte) (int, error) {
	w.T.Helper()

	w.B = append(w.B, buf...)

	var expected []byte
	if w.Rerr == nil {
		expected = make([]byte, len(buf))
		nr, err := io.ReadFull(w.R, expected)
		expected = expected[0:nr]
		w.X = append(w.X, expected...)
		if err == io.ErrUnexpectedEOF {
			err = io.EOF
		}

		if err != nil {
			require.Equal(w.T, io.EOF, err, "comparingWriter: Comparison reader returned non-EOF error")
			assert.Failf(w.T, "Attempt to write after end", "Attempt to write %d bytes after end of expected data", len(buf)-nr)
			w.Rerr = err
		}
	}

	if len(expected) != 0 {
		assert.Equalf(w.T, expected, buf[0:len(expected)], "Expected equal value during %d byte write", len(buf))
	}

	return len(buf), nil
}

func (w *comparingWriter) Assert() {
	w.T.Helper()
	rest, err := io.ReadAll(w.R)
	require.NoError(w.T, err)
	w.X = append(w.X, rest...)

	assert.Equalf(w.T, w.X, w.B, "Expected written data to match expected")
}

// singleByteReader is a really annoying io.Reader which returns a single byte at a time
type singleByteReader struct {
	R io.Reader
}

func (r *singleByteReader) Read(buf []byte) (int, error) {
	switch {
	case len(buf) == 0:
		return 0, nil
	default:
		return r.R.Read(buf[0:1])
	}
}

var le64 = binary.LittleEndian

// stream builds ULog files for tests
type stream struct {
	b []byte
	// offsets of each record envelope
	records []int
}

func newStream(version uint8, timestamp uint64) *stream {
	s := &stream{b: []byte{'U', 'L', 'o', 'g', 0x01, 0x12, 0x35, version}}
	s.b = le64.AppendUint64(s.b, timestamp)
	return s
}

func (s *stream) record(typ byte, parts ...[]byte) *stream {
	payload := bytes.Join(parts, nil)
	s.records = append(s.records, len(s.b))
	s.b = le64.AppendUint16(s.b, uint16(len(payload)))
	s.b = append(s.b, typ)
	s.b = append(s.b, payload...)
	return s
}

func (s *stream) format(text string) *stream {
	return s.record('F', []byte(text))
}

func (s *stream) subscribe(multiID uint8, id uint16, name string) *stream {
	return s.record('A', []byte{multiID}, u16(id), []byte(name))
}

func (s *stream) data(id uint16, body ...[]byte) *stream {
	return s.record('D', append([][]byte{u16(id)}, body...)...)
}

func (s *stream) bytes() []byte {
	return bytes.Clone(s.b)
}

// recordBytes returns the envelope and payload of record i
func (s *stream) recordBytes(i int) []byte {
	end := len(s.b)
	if i+1 < len(s.records) {
		end = s.records[i+1]
	}
	return s.b[s.records[i]:end]
}

func u16(v uint16) []byte { return le64.AppendUint16(nil, v) }
func u32(v uint32) []byte { return le64.AppendUint32(nil, v) }
func u64(v uint64) []byte { return le64.AppendUint64(nil, v) }

func f32(vs ...float32) []byte {
	var b []byte
	for _, v := range vs {
		b = le64.AppendUint32(b, math.Float32bits(v))
	}
	return b
}

// keyed builds the key and value of an info or parameter record
func keyed(key string, value []byte) []byte {
	return append(append([]byte{byte(len(key))}, key...), value...)
}

// collect reads every message from p, failing on any error
func collect(t *testing.T, p *Parser) []Message {
	t.Helper()

	var msgs []Message
	for msg, err := range p.All() {
		require.NoError(t, err)
		msgs = append(msgs, msg)
	}
	return msgs
}

type testcase struct {
	// Name of this test case
	Name string

	// Setup adds any records the tested record depends upon
	Setup func(*stream)

	// The tested record
	Type    byte
	Payload []byte

	// Check inspects the decoded message
	Check func(t *testing.T, m Message)

	// Error expected on decode, and whether it should end the stream
	DecErrorIs error
	Fatal      bool
}

// RunTestcases decodes each test record, checks the message, then checks
// that encoding every message reproduces the stream. Each case is run with
// an ordinary reader and with a single byte reader.
func RunTestcases(t *testing.T, tcs []testcase) {
	readers := map[string]func([]byte) io.Reader{
		"Buffer": func(b []byte) io.Reader { return bytes.NewReader(b) },
		"SingleByte": func(b []byte) io.Reader {
			return &singleByteReader{bytes.NewReader(b)}
		},
	}

	for _, tc := range tcs {
		tc := tc

		s := newStream(1, 1000)
		if tc.Setup != nil {
			tc.Setup(s)
		}
		s.record(tc.Type, tc.Payload)
		buf := s.bytes()

		for rname, rf := range readers {
			t.Run(tc.Name+"/"+rname, func(t *testing.T) {
				p, err := Open(rf(buf), WithRoundTrip())
				require.NoError(t, err)

				var (
					msgs    []Message
					lastErr error
				)
				for msg, err := range p.All() {
					if err != nil {
						lastErr = err
						continue
					}
					msgs = append(msgs, msg)
				}

				if tc.DecErrorIs != nil {
					require.ErrorIs(t, lastErr, tc.DecErrorIs)
					assert.Equal(t, tc.Fatal, IsFatal(lastErr), "fatality of %v", lastErr)

					var rerr *RecordError
					require.ErrorAs(t, lastErr, &rerr)
					assert.Equal(t, int64(s.records[len(s.records)-1]), rerr.Offset)
					assert.Equal(t, tc.Type, rerr.Type)
					return
				}
				require.NoError(t, lastErr)
				require.NotEmpty(t, msgs)

				last := msgs[len(msgs)-1]
				assert.Equal(t, MessageType(tc.Type), last.Type())
				if tc.Check != nil {
					tc.Check(t, last)
				}

				w := newComparingWriter(t, buf)
				enc := NewEncoder(w)
				for _, m := range msgs {
					require.NoError(t, enc.Encode(m))
				}
				w.Assert()
			})
		}
	}
}

func bytesReader(b []byte) io.Reader {
	return bytes.NewReader(b)
}
