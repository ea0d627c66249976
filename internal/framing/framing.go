// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

// Package framing reads and writes the outer structure of a ULog stream: the
// fixed file header followed by length-prefixed, type-tagged records. It has
// no knowledge of what the records contain.
package framing

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"go.e43.eu/ulog/internal/errors"
)

const (
	// HeaderSize is the size of the file header in bytes
	HeaderSize = 16
	// EnvelopeSize is the size of the record envelope preceding each payload
	EnvelopeSize = 3
	// MaxPayload is the largest payload expressible by the length prefix
	MaxPayload = 0xFFFF
	// MaxVersion is the newest file version this package understands
	MaxVersion = 1
)

// Magic identifies a ULog file
var Magic = [7]byte{'U', 'L', 'o', 'g', 0x01, 0x12, 0x35}

// Header is the fixed file header
type Header struct {
	Version   uint8
	Timestamp uint64
}

// AppendTo appends the 16 byte wire form of h to b
func (h Header) AppendTo(b []byte) []byte {
	b = append(b, Magic[:]...)
	b = append(b, h.Version)
	return binary.LittleEndian.AppendUint64(b, h.Timestamp)
}

// ParseHeader decodes a header from the first HeaderSize bytes of b
func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, errors.TruncatedError{Need: HeaderSize, Have: len(b)}
	}

	if [7]byte(b[0:7]) != Magic {
		return Header{}, errors.HeaderError{Reason: fmt.Sprintf("bad magic % x", b[0:7])}
	}

	h := Header{
		Version:   b[7],
		Timestamp: binary.LittleEndian.Uint64(b[8:16]),
	}
	if h.Version > MaxVersion {
		return h, errors.HeaderError{Reason: fmt.Sprintf("unsupported version %d", h.Version)}
	}
	return h, nil
}

// Record is a single framed record. Its payload is owned by the receiver.
type Record struct {
	// Offset of the record envelope from the start of the stream
	Offset  int64
	Type    byte
	Payload []byte
}

// Reader pulls records from a byte source one at a time
type Reader struct {
	r      *bufio.Reader
	offset int64
	limit  int64
	env    [EnvelopeSize]byte
}

func NewReader(r io.Reader) *Reader {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReaderSize(r, 64*1024)
	}
	return &Reader{r: br}
}

// Offset returns the number of bytes consumed so far
func (r *Reader) Offset() int64 {
	return r.offset
}

// SetLimit makes the reader report end of stream once Offset reaches limit.
// A limit of zero removes any previous limit.
func (r *Reader) SetLimit(limit int64) {
	r.limit = limit
}

func (r *Reader) fill(b []byte) (int, error) {
	n, err := io.ReadFull(r.r, b)
	r.offset += int64(n)
	return n, err
}

// ReadHeader reads and validates the file header. It must be called exactly
// once, before Next.
func (r *Reader) ReadHeader() (Header, error) {
	var b [HeaderSize]byte
	start := r.offset
	n, err := r.fill(b[:])
	switch {
	case err == io.EOF || err == io.ErrUnexpectedEOF:
		// Say the magic is wrong if we've seen enough of it to know
		m := min(n, len(Magic))
		for i := 0; i < m; i++ {
			if b[i] != Magic[i] {
				return Header{}, errors.HeaderError{Reason: fmt.Sprintf("bad magic % x", b[0:m])}
			}
		}
		return Header{}, errors.TruncatedError{Offset: start, Need: HeaderSize, Have: n}

	case err != nil:
		return Header{}, errors.IOError{Err: err}
	}

	return ParseHeader(b[:])
}

// Next returns the next record, or io.EOF at a clean record boundary
func (r *Reader) Next() (Record, error) {
	if r.limit > 0 && r.offset >= r.limit {
		return Record{}, io.EOF
	}

	start := r.offset
	n, err := r.fill(r.env[:])
	switch {
	case err == io.EOF:
		return Record{}, io.EOF
	case err == io.ErrUnexpectedEOF:
		return Record{}, errors.TruncatedError{Offset: start, Need: EnvelopeSize, Have: n}
	case err != nil:
		return Record{}, errors.IOError{Err: err}
	}

	size := int(binary.LittleEndian.Uint16(r.env[0:2]))
	rec := Record{
		Offset:  start,
		Type:    r.env[2],
		Payload: make([]byte, size),
	}

	n, err = r.fill(rec.Payload)
	switch {
	case err == io.EOF || err == io.ErrUnexpectedEOF:
		return Record{}, errors.TruncatedError{Offset: start + EnvelopeSize, Need: size, Have: n}
	case err != nil:
		return Record{}, errors.IOError{Err: err}
	}

	return rec, nil
}

// Writer writes a header and records to an io.Writer. Each record is
// written with a single call to the underlying writer.
type Writer struct {
	w   io.Writer
	buf []byte
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (w *Writer) WriteHeader(h Header) error {
	w.buf = h.AppendTo(w.buf[:0])
	_, err := w.w.Write(w.buf)
	return err
}

func (w *Writer) WriteRecord(typ byte, payload []byte) error {
	if len(payload) > MaxPayload {
		return fmt.Errorf("%w (%d bytes, type '%c')", errors.ErrRecordTooLarge, len(payload), typ)
	}

	w.buf = append(w.buf[:0], byte(len(payload)), byte(len(payload)>>8), typ)
	w.buf = append(w.buf, payload...)
	_, err := w.w.Write(w.buf)
	return err
}
