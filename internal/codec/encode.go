// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

package codec

import (
	"fmt"

	"go.e43.eu/ulog/internal/errors"
	"go.e43.eu/ulog/internal/schema"
)

// Encode is the inverse of Decode. The result is appended to dst.
//
// If raw (the payload s was decoded from) is supplied, it provides the
// output length and the bytes of any field absent from s, such as filtered
// padding; values in s then overwrite their own byte ranges. Without raw,
// every non-padding field must be present in s and padding is zero filled.
func Encode(dst []byte, l *schema.Layout, s *Struct, raw []byte) ([]byte, error) {
	if raw != nil && len(raw) < l.RequiredSize {
		return dst, errors.PayloadError{Need: l.RequiredSize, Have: len(raw)}
	}

	start := len(dst)
	if raw != nil {
		dst = append(dst, raw...)
	} else {
		dst = append(dst, make([]byte, l.Size)...)
	}

	if err := encodeStruct(l, s, dst[start:], 0, raw != nil); err != nil {
		return dst[:start], err
	}
	return dst, nil
}

func encodeStruct(l *schema.Layout, s *Struct, out []byte, base int, haveRaw bool) error {
	if s == nil {
		return errors.WithFieldError(errors.ErrMissingField, l.Name)
	}

	for i := range l.Fields {
		f := &l.Fields[i]
		v, ok := s.Get(f.Name)
		if !ok {
			if haveRaw || f.IsPadding() {
				continue
			}
			return errors.WithFieldError(errors.ErrMissingField, l.Name, f.Name)
		}

		if err := encodeField(f, v, out, base+f.Offset, haveRaw); err != nil {
			return errors.WithFieldError(err, l.Name, f.Name)
		}
	}
	return nil
}

func encodeField(f *schema.LayoutField, v Value, out []byte, off int, haveRaw bool) error {
	if f.IsPadding() {
		if !v.array {
			return errors.ErrInvalidValue
		}
		put(out, off, v.elems[:min(len(v.elems), f.Size)])
		return nil
	}

	if v.kind != f.Kind || v.array != f.IsArray() {
		return fmt.Errorf("%w (have %s, field is %s)", errors.ErrInvalidValue, describe(v), describeField(f))
	}

	switch {
	case f.Kind == schema.Nested && f.ArrayLen == 0:
		return encodeStruct(f.Nested, v.Struct(), out, off, haveRaw)

	case f.Kind == schema.Nested:
		if len(v.sub) != f.ArrayLen {
			return fmt.Errorf("%w (%d elements, expected %d)", errors.ErrInvalidValue, len(v.sub), f.ArrayLen)
		}
		for i, sub := range v.sub {
			if err := encodeStruct(f.Nested, sub, out, off+i*f.Nested.Size, haveRaw); err != nil {
				return err
			}
		}
		return nil

	case f.ArrayLen > 0:
		if len(v.elems) != f.Size {
			return fmt.Errorf("%w (%d elements, expected %d)", errors.ErrInvalidValue, v.Len(), f.ArrayLen)
		}
		put(out, off, v.elems)
		return nil

	default:
		var scratch [8]byte
		put(out, off, appendBits(scratch[:0], f.Kind, v.bits))
		return nil
	}
}

// put copies b to out at off, clipped to the length of out
func put(out []byte, off int, b []byte) {
	if off < len(out) {
		copy(out[off:], b)
	}
}

func describe(v Value) string {
	if v.array {
		return v.kind.String() + "[]"
	}
	return v.kind.String()
}

func describeField(f *schema.LayoutField) string {
	if f.ArrayLen > 0 {
		return fmt.Sprintf("%s[%d]", f.Type, f.ArrayLen)
	}
	return f.Type
}

// AppendField appends the wire form of a standalone primitive value. If raw
// (the bytes v was decoded from) is longer than the declared size, its tail
// is preserved.
func AppendField(dst []byte, f schema.Field, v Value, raw []byte) ([]byte, error) {
	if !f.Kind.IsPrimitive() || v.kind != f.Kind || v.array != f.IsArray() {
		return dst, fmt.Errorf("%w (have %s, declared %s)", errors.ErrInvalidValue, describe(v), f.TypeString())
	}

	size := f.Kind.Size() * max(1, f.ArrayLen)
	if v.array {
		if len(v.elems) != size {
			return dst, fmt.Errorf("%w (%d elements, declared %d)", errors.ErrInvalidValue, v.Len(), f.ArrayLen)
		}
		dst = append(dst, v.elems...)
	} else {
		dst = appendBits(dst, f.Kind, v.bits)
	}

	if len(raw) > size {
		dst = append(dst, raw[size:]...)
	}
	return dst, nil
}
