// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

type ulogError string

func (e ulogError) Error() string {
	return string(e)
}

const (
	// File header missing, carrying the wrong magic, or an unsupported version
	ErrHeaderInvalid = ulogError("ulog: Invalid file header")

	// The byte source ended before a header or a declared record length was
	// satisfied
	ErrTruncated = ulogError("ulog: Truncated input")

	// A data record referenced a subscription id which was never bound
	ErrUnknownSubscription = ulogError("ulog: Unknown subscription")

	// A format definition could not be parsed or resolved, or conflicts with an
	// already resolved layout
	ErrSchema = ulogError("ulog: Schema error")

	// A payload held fewer bytes than its layout requires
	ErrPayloadTooShort = ulogError("ulog: Payload too short")

	// Opaque failure of the underlying byte source
	ErrIO = ulogError("ulog: I/O failure")

	// FLAG_BITS announced incompatible features this package does not know
	ErrIncompatibleFlags = ulogError("ulog: Unknown incompatible flag bits")

	// A record's fixed fields could not be decoded (bad key, bad level, ...)
	ErrMalformed = ulogError("ulog: Malformed record")

	// A value could not be bound to or encoded from the supplied Go value
	ErrInvalidValue = ulogError("ulog: Invalid value for field")

	// A field required by a binding or an encode is absent
	ErrMissingField = ulogError("ulog: Field missing")

	// Bind expected a pointer to a struct
	ErrNotPointer = ulogError("ulog: Expected pointer to struct")

	// A record payload exceeds what the 16-bit length prefix can express
	ErrRecordTooLarge = ulogError("ulog: Record payload exceeds 65535 bytes")
)

type HeaderError struct {
	Reason string
}

func (e HeaderError) Is(target error) bool {
	return target == ErrHeaderInvalid
}

func (e HeaderError) Error() string {
	return fmt.Sprintf("%s (%s)", ErrHeaderInvalid, e.Reason)
}

// TruncatedError reports how many bytes were needed at Offset, and how many
// the source could supply
type TruncatedError struct {
	Offset     int64
	Need, Have int
}

func (e TruncatedError) Is(target error) bool {
	return target == ErrTruncated
}

func (e TruncatedError) Error() string {
	return fmt.Sprintf("%s (needed %d bytes at offset %d, have %d)", ErrTruncated, e.Need, e.Offset, e.Have)
}

type UnknownSubscriptionError struct {
	ID uint16
}

func (e UnknownSubscriptionError) Is(target error) bool {
	return target == ErrUnknownSubscription
}

func (e UnknownSubscriptionError) Error() string {
	return fmt.Sprintf("%s (msg_id %d)", ErrUnknownSubscription, e.ID)
}

type SchemaError struct {
	Format string
	Reason string
}

func (e SchemaError) Is(target error) bool {
	return target == ErrSchema
}

func (e SchemaError) Error() string {
	if e.Format == "" {
		return fmt.Sprintf("%s (%s)", ErrSchema, e.Reason)
	}
	return fmt.Sprintf("%s (format '%s': %s)", ErrSchema, e.Format, e.Reason)
}

type PayloadError struct {
	Need, Have int
}

func (e PayloadError) Is(target error) bool {
	return target == ErrPayloadTooShort
}

func (e PayloadError) Error() string {
	return fmt.Sprintf("%s (%d < %d)", ErrPayloadTooShort, e.Have, e.Need)
}

type MalformedError struct {
	Reason string
}

func (e MalformedError) Is(target error) bool {
	return target == ErrMalformed
}

func (e MalformedError) Error() string {
	return fmt.Sprintf("%s (%s)", ErrMalformed, e.Reason)
}

// IOError wraps a failure returned by the byte source
type IOError struct {
	Err error
}

func (e IOError) Is(target error) bool {
	return target == ErrIO
}

func (e IOError) Unwrap() error {
	return e.Err
}

func (e IOError) Error() string {
	return fmt.Sprintf("%s: %v", ErrIO, e.Err)
}

// RecordError ties an error to the record it was raised for
type RecordError struct {
	Offset int64
	Type   byte
	Err    error
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

func (e *RecordError) Error() string {
	uerr := strings.TrimPrefix(e.Err.Error(), "ulog: ")
	return fmt.Sprintf("ulog: %s (record '%c' at offset %d)", uerr, e.Type, e.Offset)
}

// IsFatal reports whether err leaves the stream in a state from which no
// further records can be read reliably
func IsFatal(err error) bool {
	switch {
	case err == nil:
		return false
	case stderrors.Is(err, ErrHeaderInvalid),
		stderrors.Is(err, ErrTruncated),
		stderrors.Is(err, ErrIO),
		stderrors.Is(err, ErrSchema),
		stderrors.Is(err, ErrIncompatibleFlags):
		return true
	default:
		return false
	}
}

type FieldError struct {
	Underlying error
	Path       string
}

func (err FieldError) Unwrap() error {
	return err.Underlying
}

func (err FieldError) Error() string {
	uerr := strings.TrimPrefix(err.Underlying.Error(), "ulog: ")
	return fmt.Sprintf("ulog: %s (at %s)", uerr, err.Path)
}

// WithFieldError prefixes the path of err with parts, joined by dots
func WithFieldError(err error, parts ...string) error {
	if err == nil {
		return nil
	}

	if parts[0] == "" {
		parts[0] = "<anonymous>"
	}
	combined := strings.Join(parts, ".")

	switch err := err.(type) {
	case FieldError:
		err.Path = fmt.Sprintf("%s.%s", combined, err.Path)
		return err
	default:
		return FieldError{err, combined}
	}
}
