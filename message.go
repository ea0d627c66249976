// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

package ulog

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"go.e43.eu/ulog/internal/codec"
	"go.e43.eu/ulog/internal/errors"
	"go.e43.eu/ulog/internal/framing"
	"go.e43.eu/ulog/internal/schema"
)

var le = binary.LittleEndian

// MessageType is the type tag of a record
type MessageType byte

const (
	// TypeHeader is not a record type; it identifies the file header when it
	// is surfaced as a message
	TypeHeader MessageType = 0

	TypeFlagBits           MessageType = 'B'
	TypeFormat             MessageType = 'F'
	TypeInfo               MessageType = 'I'
	TypeInfoMultiple       MessageType = 'M'
	TypeParameter          MessageType = 'P'
	TypeParameterDefault   MessageType = 'Q'
	TypeAddSubscription    MessageType = 'A'
	TypeRemoveSubscription MessageType = 'R'
	TypeData               MessageType = 'D'
	TypeLogging            MessageType = 'L'
	TypeLoggingTagged      MessageType = 'C'
	TypeSync               MessageType = 'S'
	TypeDropout            MessageType = 'O'
)

var typeNames = map[MessageType]string{
	TypeHeader:             "HEADER",
	TypeFlagBits:           "FLAG_BITS",
	TypeFormat:             "FORMAT",
	TypeInfo:               "INFO",
	TypeInfoMultiple:       "INFO_MULTIPLE",
	TypeParameter:          "PARAMETER",
	TypeParameterDefault:   "PARAMETER_DEFAULT",
	TypeAddSubscription:    "ADD_SUBSCRIPTION",
	TypeRemoveSubscription: "REMOVE_SUBSCRIPTION",
	TypeData:               "DATA",
	TypeLogging:            "LOGGING",
	TypeLoggingTagged:      "LOGGING_TAGGED",
	TypeSync:               "SYNC",
	TypeDropout:            "DROPOUT",
}

func (t MessageType) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("UNKNOWN(0x%02x)", byte(t))
}

// Message is a decoded record. The set of implementations is closed; see
// the package documentation for the mapping from record types.
type Message interface {
	Type() MessageType

	// appendPayload appends the record payload. The registry supplies
	// layouts for logged data which does not carry its own.
	appendPayload(dst []byte, reg *schema.Registry) ([]byte, error)
}

// Header is the file header
type Header struct {
	Version   uint8
	Timestamp uint64
}

func (*Header) Type() MessageType { return TypeHeader }

// StartTime returns the header timestamp, which counts microseconds since
// the logging system booted
func (m *Header) StartTime() time.Duration {
	return time.Duration(m.Timestamp) * time.Microsecond
}

func (m *Header) appendPayload(dst []byte, _ *schema.Registry) ([]byte, error) {
	return framing.Header{Version: m.Version, Timestamp: m.Timestamp}.AppendTo(dst), nil
}

const (
	flagBitsSize = 40

	compatDefaultParameters = 0x01
	incompatDataAppended    = 0x01
)

// FlagBits declares optional (compat) and mandatory (incompat) features used
// by the file
type FlagBits struct {
	Compat          [8]byte
	Incompat        [8]byte
	AppendedOffsets [3]uint64

	extra []byte
}

func (*FlagBits) Type() MessageType { return TypeFlagBits }

// HasDefaultParameters reports whether the file contains default parameter
// records
func (m *FlagBits) HasDefaultParameters() bool {
	return m.Compat[0]&compatDefaultParameters != 0
}

// HasDataAppended reports whether data not in record form (such as a crash
// dump) follows the records
func (m *FlagBits) HasDataAppended() bool {
	return m.Incompat[0]&incompatDataAppended != 0
}

// AppendedDataOffset returns the file offset at which appended data starts
func (m *FlagBits) AppendedDataOffset() (uint64, bool) {
	if !m.HasDataAppended() {
		return 0, false
	}
	for _, off := range m.AppendedOffsets {
		if off > 0 {
			return off, true
		}
	}
	return 0, false
}

func decodeFlagBits(b []byte) (*FlagBits, error) {
	if len(b) < flagBitsSize {
		return nil, errors.PayloadError{Need: flagBitsSize, Have: len(b)}
	}

	m := &FlagBits{
		Compat:   [8]byte(b[0:8]),
		Incompat: [8]byte(b[8:16]),
	}
	for i := range m.AppendedOffsets {
		m.AppendedOffsets[i] = le.Uint64(b[16+8*i:])
	}
	if len(b) > flagBitsSize {
		m.extra = bytes.Clone(b[flagBitsSize:])
	}

	if m.Incompat[0]&^incompatDataAppended != 0 || !allZero(m.Incompat[1:]) {
		return nil, fmt.Errorf("%w (% x)", errors.ErrIncompatibleFlags, m.Incompat)
	}
	return m, nil
}

func allZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

func (m *FlagBits) appendPayload(dst []byte, _ *schema.Registry) ([]byte, error) {
	dst = append(dst, m.Compat[:]...)
	dst = append(dst, m.Incompat[:]...)
	for _, off := range m.AppendedOffsets {
		dst = le.AppendUint64(dst, off)
	}
	return append(dst, m.extra...), nil
}

// FormatDefinition declares a format
type FormatDefinition struct {
	Format *Format
}

func (*FormatDefinition) Type() MessageType { return TypeFormat }

func (m *FormatDefinition) appendPayload(dst []byte, _ *schema.Registry) ([]byte, error) {
	return append(dst, m.Format.Text()...), nil
}

// keyed is the `key_len, "type name", value` body shared by info and
// parameter records
type keyed struct {
	field    Field
	value    Value
	rawKey   string
	rawValue []byte
}

func decodeKeyed(b []byte) (keyed, error) {
	if len(b) < 1 {
		return keyed{}, errors.PayloadError{Need: 1, Have: 0}
	}

	n := int(b[0])
	if len(b) < 1+n {
		return keyed{}, errors.PayloadError{Need: 1 + n, Have: len(b)}
	}

	k := keyed{rawKey: string(b[1 : 1+n])}
	f, err := schema.ParseField(k.rawKey)
	if err != nil {
		return k, errors.MalformedError{Reason: err.Error()}
	}
	k.field = f
	k.rawValue = b[1+n:]

	k.value, _, err = codec.DecodeField(f, k.rawValue)
	if err != nil {
		return k, errors.WithFieldError(err, f.Name)
	}
	return k, nil
}

func appendKeyed(dst []byte, f Field, v Value, rawKey string, rawValue []byte) ([]byte, error) {
	key := rawKey
	if orig, err := schema.ParseField(rawKey); rawKey == "" || err != nil || orig != f {
		key = f.String()
		rawValue = nil
	}
	if len(key) > 0xFF {
		return dst, fmt.Errorf("%w (key '%s' too long)", errors.ErrInvalidValue, key)
	}

	dst = append(dst, byte(len(key)))
	dst = append(dst, key...)
	return codec.AppendField(dst, f, v, rawValue)
}

// Info is a key/value pair describing the log, such as "sys_name"
type Info struct {
	Field Field
	Value Value

	rawKey   string
	rawValue []byte
}

func (*Info) Type() MessageType { return TypeInfo }

func (m *Info) Key() string { return m.Field.Name }

func (m *Info) appendPayload(dst []byte, _ *schema.Registry) ([]byte, error) {
	return appendKeyed(dst, m.Field, m.Value, m.rawKey, m.rawValue)
}

func decodeInfo(b []byte) (*Info, error) {
	k, err := decodeKeyed(b)
	if err != nil {
		return nil, err
	}
	return &Info{Field: k.field, Value: k.value, rawKey: k.rawKey, rawValue: k.rawValue}, nil
}

// MultiInfo is an info value which may be split across several records.
// Continued is set on every record after the first of a value.
type MultiInfo struct {
	Continued bool
	Field     Field
	Value     Value

	rawContinued byte
	rawKey       string
	rawValue     []byte
}

func (*MultiInfo) Type() MessageType { return TypeInfoMultiple }

func (m *MultiInfo) Key() string { return m.Field.Name }

func (m *MultiInfo) appendPayload(dst []byte, _ *schema.Registry) ([]byte, error) {
	c := m.rawContinued
	if (c != 0) != m.Continued {
		c = 0
		if m.Continued {
			c = 1
		}
	}
	return appendKeyed(append(dst, c), m.Field, m.Value, m.rawKey, m.rawValue)
}

func decodeMultiInfo(b []byte) (*MultiInfo, error) {
	if len(b) < 1 {
		return nil, errors.PayloadError{Need: 1, Have: 0}
	}
	k, err := decodeKeyed(b[1:])
	if err != nil {
		return nil, err
	}
	return &MultiInfo{
		Continued:    b[0] != 0,
		Field:        k.field,
		Value:        k.value,
		rawContinued: b[0],
		rawKey:       k.rawKey,
		rawValue:     k.rawValue,
	}, nil
}

// Parameter is a parameter value, normally int32_t or float
type Parameter struct {
	Field Field
	Value Value

	rawKey   string
	rawValue []byte
}

func (*Parameter) Type() MessageType { return TypeParameter }

func (m *Parameter) Key() string { return m.Field.Name }

func (m *Parameter) appendPayload(dst []byte, _ *schema.Registry) ([]byte, error) {
	return appendKeyed(dst, m.Field, m.Value, m.rawKey, m.rawValue)
}

func decodeParameterKey(b []byte) (keyed, error) {
	k, err := decodeKeyed(b)
	if err == nil && k.field.IsArray() {
		err = errors.MalformedError{Reason: fmt.Sprintf("array parameter '%s'", k.rawKey)}
	}
	return k, err
}

func decodeParameter(b []byte) (*Parameter, error) {
	k, err := decodeParameterKey(b)
	if err != nil {
		return nil, err
	}
	return &Parameter{Field: k.field, Value: k.value, rawKey: k.rawKey, rawValue: k.rawValue}, nil
}

const (
	defaultTypeSystemWide    = 0x01
	defaultTypeConfiguration = 0x02
)

// DefaultParameter is the default value of a parameter
type DefaultParameter struct {
	// DefaultTypes is a bit field of the kinds of default this value is
	DefaultTypes uint8
	Field        Field
	Value        Value

	rawKey   string
	rawValue []byte
}

func (*DefaultParameter) Type() MessageType { return TypeParameterDefault }

func (m *DefaultParameter) Key() string { return m.Field.Name }

// SystemWide reports whether this is the system wide default
func (m *DefaultParameter) SystemWide() bool {
	return m.DefaultTypes&defaultTypeSystemWide != 0
}

// Configuration reports whether this is the default for the current
// configuration (airframe)
func (m *DefaultParameter) Configuration() bool {
	return m.DefaultTypes&defaultTypeConfiguration != 0
}

func (m *DefaultParameter) appendPayload(dst []byte, _ *schema.Registry) ([]byte, error) {
	return appendKeyed(append(dst, m.DefaultTypes), m.Field, m.Value, m.rawKey, m.rawValue)
}

func decodeDefaultParameter(b []byte) (*DefaultParameter, error) {
	if len(b) < 1 {
		return nil, errors.PayloadError{Need: 1, Have: 0}
	}
	k, err := decodeParameterKey(b[1:])
	if err != nil {
		return nil, err
	}
	return &DefaultParameter{
		DefaultTypes: b[0],
		Field:        k.field,
		Value:        k.value,
		rawKey:       k.rawKey,
		rawValue:     k.rawValue,
	}, nil
}

// AddSubscription binds a message id to a format
type AddSubscription struct {
	Subscription
}

func (*AddSubscription) Type() MessageType { return TypeAddSubscription }

func (m *AddSubscription) appendPayload(dst []byte, _ *schema.Registry) ([]byte, error) {
	dst = append(dst, m.MultiID)
	dst = le.AppendUint16(dst, m.MsgID)
	return append(dst, m.FormatName...), nil
}

func decodeAddSubscription(b []byte) (*AddSubscription, error) {
	if len(b) < 3 {
		return nil, errors.PayloadError{Need: 3, Have: len(b)}
	}
	return &AddSubscription{Subscription{
		MultiID:    b[0],
		MsgID:      le.Uint16(b[1:3]),
		FormatName: string(b[3:]),
	}}, nil
}

// LoggedData is a decoded data record
type LoggedData struct {
	MsgID   uint16
	MultiID uint8
	// HasMultiID is set when some subscription to the same format seen so far
	// used a non-zero instance, so that MultiID distinguishes producers
	HasMultiID bool
	FormatName string

	// Timestamp is the value of the top level "timestamp" field, if the
	// format has one
	Timestamp    uint64
	HasTimestamp bool

	// Data holds the decoded fields. The top level timestamp and padding
	// are present only if the parser was configured to keep them.
	Data *Struct

	layout *Layout
	raw    []byte
}

func (*LoggedData) Type() MessageType { return TypeData }

// Layout returns the layout the record was decoded with
func (m *LoggedData) Layout() *Layout {
	return m.layout
}

// Lookup resolves a field path, such as "q[0]" or "esc[1].rpm"
func (m *LoggedData) Lookup(path string) (Value, bool) {
	if v, ok := m.Data.Lookup(path); ok {
		return v, true
	}
	if path == "timestamp" && m.HasTimestamp {
		return Uint64(m.Timestamp), true
	}
	return Value{}, false
}

// fields returns Data with the timestamp restored if it was split out
func (m *LoggedData) fields() *Struct {
	s := m.Data
	if s == nil || !m.HasTimestamp {
		return s
	}
	if _, ok := s.Get("timestamp"); ok {
		return s
	}

	withTs := &Struct{
		Name:   s.Name,
		Fields: make([]NamedValue, 0, len(s.Fields)+1),
	}
	withTs.Fields = append(withTs.Fields, NamedValue{Name: "timestamp", Value: Uint64(m.Timestamp)})
	withTs.Fields = append(withTs.Fields, s.Fields...)
	return withTs
}

func (m *LoggedData) appendPayload(dst []byte, reg *schema.Registry) ([]byte, error) {
	l := m.layout
	if l == nil {
		var err error
		if l, err = reg.Layout(m.FormatName); err != nil {
			return dst, err
		}
	}

	dst = le.AppendUint16(dst, m.MsgID)
	return codec.Encode(dst, l, m.fields(), m.raw)
}

// LogLevel is the severity of a logged string
type LogLevel byte

const (
	LevelEmergency LogLevel = '0'
	LevelAlert     LogLevel = '1'
	LevelCritical  LogLevel = '2'
	LevelError     LogLevel = '3'
	LevelWarning   LogLevel = '4'
	LevelNotice    LogLevel = '5'
	LevelInfo      LogLevel = '6'
	LevelDebug     LogLevel = '7'
)

var levelNames = [...]string{"EMERGENCY", "ALERT", "CRITICAL", "ERROR", "WARNING", "NOTICE", "INFO", "DEBUG"}

func (l LogLevel) Valid() bool {
	return l >= LevelEmergency && l <= LevelDebug
}

func (l LogLevel) String() string {
	if l.Valid() {
		return levelNames[l-LevelEmergency]
	}
	return fmt.Sprintf("LogLevel(0x%02x)", byte(l))
}

func decodeLevel(b byte) (LogLevel, error) {
	l := LogLevel(b)
	if !l.Valid() {
		return l, errors.MalformedError{Reason: fmt.Sprintf("invalid log level 0x%02x", b)}
	}
	return l, nil
}

// LoggedString is a log message printed by the logging system
type LoggedString struct {
	Level     LogLevel
	Timestamp uint64
	Text      string
}

func (*LoggedString) Type() MessageType { return TypeLogging }

func (m *LoggedString) appendPayload(dst []byte, _ *schema.Registry) ([]byte, error) {
	dst = append(dst, byte(m.Level))
	dst = le.AppendUint64(dst, m.Timestamp)
	return append(dst, m.Text...), nil
}

func decodeLoggedString(b []byte) (*LoggedString, error) {
	if len(b) < 9 {
		return nil, errors.PayloadError{Need: 9, Have: len(b)}
	}
	l, err := decodeLevel(b[0])
	if err != nil {
		return nil, err
	}
	return &LoggedString{
		Level:     l,
		Timestamp: le.Uint64(b[1:9]),
		Text:      string(b[9:]),
	}, nil
}

// TaggedLoggedString is a log message carrying a tag identifying its source
type TaggedLoggedString struct {
	Level     LogLevel
	Tag       uint16
	Timestamp uint64
	Text      string
}

func (*TaggedLoggedString) Type() MessageType { return TypeLoggingTagged }

func (m *TaggedLoggedString) appendPayload(dst []byte, _ *schema.Registry) ([]byte, error) {
	dst = append(dst, byte(m.Level))
	dst = le.AppendUint16(dst, m.Tag)
	dst = le.AppendUint64(dst, m.Timestamp)
	return append(dst, m.Text...), nil
}

func decodeTaggedLoggedString(b []byte) (*TaggedLoggedString, error) {
	if len(b) < 11 {
		return nil, errors.PayloadError{Need: 11, Have: len(b)}
	}
	l, err := decodeLevel(b[0])
	if err != nil {
		return nil, err
	}
	return &TaggedLoggedString{
		Level:     l,
		Tag:       le.Uint16(b[1:3]),
		Timestamp: le.Uint64(b[3:11]),
		Text:      string(b[11:]),
	}, nil
}

// Unhandled is a record of a type this package does not decode
type Unhandled struct {
	Tag     MessageType
	Payload []byte
}

func (m *Unhandled) Type() MessageType { return m.Tag }

func (m *Unhandled) appendPayload(dst []byte, _ *schema.Registry) ([]byte, error) {
	return append(dst, m.Payload...), nil
}

var syncMagic = [8]byte{0x2F, 0x73, 0x13, 0x20, 0x25, 0x0C, 0xBB, 0x12}

// Ignored is a record which may be skipped: a dropout or sync marker, or
// logged data excluded by the subscription allow list
type Ignored struct {
	Tag     MessageType
	Payload []byte
}

func (m *Ignored) Type() MessageType { return m.Tag }

func (m *Ignored) appendPayload(dst []byte, _ *schema.Registry) ([]byte, error) {
	return append(dst, m.Payload...), nil
}

// DropoutDuration returns the length of the gap a dropout marker reports
func (m *Ignored) DropoutDuration() (time.Duration, bool) {
	if m.Tag != TypeDropout || len(m.Payload) < 2 {
		return 0, false
	}
	return time.Duration(le.Uint16(m.Payload)) * time.Millisecond, true
}

// IsSync reports whether this is a sync marker carrying the sync magic
func (m *Ignored) IsSync() bool {
	return m.Tag == TypeSync && len(m.Payload) >= len(syncMagic) && [8]byte(m.Payload[:8]) == syncMagic
}

// MsgID returns the subscription id of a filtered data record
func (m *Ignored) MsgID() (uint16, bool) {
	if m.Tag != TypeData || len(m.Payload) < 2 {
		return 0, false
	}
	return le.Uint16(m.Payload), true
}
