// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

// Package ulog implements streaming decoding and encoding of ULog, the
// self-describing binary log format written by PX4 flight controllers.
//
// A ULog file is a 16 byte header followed by records. Each record is a
// 2 byte little-endian payload length, a 1 byte ASCII type tag and the
// payload:
//
//	 tag | record            | message
//	-----+-------------------+-----------------------------------------
//	   B | flag bits         | *FlagBits
//	   F | format definition | *FormatDefinition
//	   I | info              | *Info
//	   M | multi info        | *MultiInfo
//	   P | parameter         | *Parameter
//	   Q | default parameter | *DefaultParameter
//	   A | add subscription  | *AddSubscription
//	   D | logged data       | *LoggedData (or *Ignored, if filtered)
//	   L | logged string     | *LoggedString
//	   C | tagged string     | *TaggedLoggedString
//	O, S | dropout, sync     | *Ignored
//	 R,? | anything else     | *Unhandled
//
// Format definitions and subscriptions are accumulated in a registry as the
// stream is read, and logged data is decoded against them. The Parser pulls
// one record at a time from the underlying reader:
//
//	p, err := ulog.Open(f, ulog.WithSubscriptions("vehicle_attitude"))
//	if err != nil {
//		return err
//	}
//	for msg, err := range p.All() {
//		if err != nil {
//			// Per record errors leave the parser usable; fatal ones end
//			// the sequence
//			log.Print(err)
//			continue
//		}
//		if d, ok := msg.(*ulog.LoggedData); ok {
//			q, _ := d.Data.Get("q")
//			...
//		}
//	}
//
// Every message retains what it needs to be written back unchanged: feeding
// the messages of a parser opened with WithRoundTrip to an Encoder
// reproduces the input byte for byte.
//
// Logged data can be bound to Go structs with Bind. Struct fields bind to
// the snake_case form of their names unless overridden with a tag:
//
//	type Attitude struct {
//		Timestamp uint64
//		Q         [4]float32
//		Rollspeed float32 `ulog:"rollspeed_integ,optional"`
//	}
package ulog

import (
	"go.e43.eu/ulog/internal/codec"
	"go.e43.eu/ulog/internal/errors"
	"go.e43.eu/ulog/internal/schema"
)

// Value is a decoded field value
type Value = codec.Value

// Struct is a decoded instance of a format, with fields in declaration order
type Struct = codec.Struct

// NamedValue is a field of a Struct
type NamedValue = codec.NamedValue

// Format is a format definition: a name and its field declarations
type Format = schema.Format

// Field is a single field declaration within a format
type Field = schema.Field

// Kind is the primitive kind of a field
type Kind = schema.Kind

// Layout is a format resolved to byte offsets, with nested formats expanded
type Layout = schema.Layout

// LayoutField is a positioned field of a Layout
type LayoutField = schema.LayoutField

// FlatField is a leaf of a flattened Layout
type FlatField = schema.FlatField

// Subscription binds a message id to a format and an instance index
type Subscription = schema.Subscription

// Registry holds the formats and subscriptions seen in a stream
type Registry = schema.Registry

// RecordError identifies the record a per record error was raised for
type RecordError = errors.RecordError

const (
	ErrHeaderInvalid       = errors.ErrHeaderInvalid
	ErrTruncated           = errors.ErrTruncated
	ErrUnknownSubscription = errors.ErrUnknownSubscription
	ErrSchema              = errors.ErrSchema
	ErrPayloadTooShort     = errors.ErrPayloadTooShort
	ErrIO                  = errors.ErrIO
	ErrIncompatibleFlags   = errors.ErrIncompatibleFlags
	ErrMalformed           = errors.ErrMalformed
	ErrInvalidValue        = errors.ErrInvalidValue
	ErrMissingField        = errors.ErrMissingField
	ErrRecordTooLarge      = errors.ErrRecordTooLarge
	ErrNotPointer          = errors.ErrNotPointer
)

// IsFatal reports whether err ends a parse. Errors which are not fatal
// apply to a single record; the parser continues with the next one.
func IsFatal(err error) bool {
	return errors.IsFatal(err)
}

// Field kinds
const (
	KindUint8   = schema.Uint8
	KindUint16  = schema.Uint16
	KindUint32  = schema.Uint32
	KindUint64  = schema.Uint64
	KindInt8    = schema.Int8
	KindInt16   = schema.Int16
	KindInt32   = schema.Int32
	KindInt64   = schema.Int64
	KindFloat32 = schema.Float32
	KindFloat64 = schema.Float64
	KindBool    = schema.Bool
	KindChar    = schema.Char
	KindNested  = schema.Nested
)

// Constructors for values, for use when building messages to encode
var (
	Uint8       = codec.Uint8
	Uint16      = codec.Uint16
	Uint32      = codec.Uint32
	Uint64      = codec.Uint64
	Int8        = codec.Int8
	Int16       = codec.Int16
	Int32       = codec.Int32
	Int64       = codec.Int64
	Float32     = codec.Float32
	Float64     = codec.Float64
	Bool        = codec.Bool
	Char        = codec.Char
	Chars       = codec.Chars
	Array       = codec.Array
	StructValue = codec.StructValue
	StructArray = codec.StructArray
)

// ParseFormat parses a `name:type field;type[N] field;...` definition
func ParseFormat(text string) (*Format, error) {
	return schema.ParseFormat(text)
}

// ParseField parses a `type name` declaration, as used by info and
// parameter keys
func ParseField(decl string) (Field, error) {
	return schema.ParseField(decl)
}
