// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

package ulog

import (
	"fmt"
	"io"
	"iter"
	"slices"

	"go.uber.org/zap"

	"go.e43.eu/ulog/internal/codec"
	"go.e43.eu/ulog/internal/errors"
	"go.e43.eu/ulog/internal/framing"
	"go.e43.eu/ulog/internal/schema"
)

// Parser pulls messages from a ULog stream one record at a time. A Parser
// is not safe for concurrent use.
type Parser struct {
	cfg Config
	log *zap.SugaredLogger

	r      *framing.Reader
	reg    *schema.Registry
	header Header
	closer io.Closer

	headerPending bool
	dataPhase     bool
	names         map[string]struct{}
	ids           map[uint16]struct{}

	// Sticky; set once the stream can not be read any further
	err error
}

// Open reads the header of the ULog stream r and returns a parser for the
// records which follow it
func Open(r io.Reader, opts ...Option) (*Parser, error) {
	cfg := newConfig(opts)
	p := &Parser{
		cfg:   cfg,
		log:   cfg.Logger.Sugar(),
		r:     framing.NewReader(r),
		reg:   schema.NewRegistry(),
		names: make(map[string]struct{}),
		ids:   make(map[uint16]struct{}),
	}
	for _, n := range cfg.Subscriptions {
		p.names[n] = struct{}{}
	}
	for _, id := range cfg.SubscriptionIDs {
		p.ids[id] = struct{}{}
	}

	h, err := p.r.ReadHeader()
	if err != nil {
		return nil, err
	}
	p.header = Header{Version: h.Version, Timestamp: h.Timestamp}
	p.headerPending = cfg.IncludeHeader
	p.log.Debugw("read header", "version", h.Version, "timestamp", h.Timestamp)
	return p, nil
}

// Header returns the file header
func (p *Parser) Header() *Header {
	h := p.header
	return &h
}

// Registry returns the formats and subscriptions seen so far. It must not be
// modified.
func (p *Parser) Registry() *Registry {
	return p.reg
}

// Layout returns the resolved layout of the named format
func (p *Parser) Layout(name string) (*Layout, error) {
	return p.reg.Layout(name)
}

// Fields returns the leaf fields of the named format in declaration order.
// Padding is included only if the parser was configured to yield it.
func (p *Parser) Fields(name string) ([]FlatField, error) {
	l, err := p.reg.Layout(name)
	if err != nil {
		return nil, err
	}

	flat := l.Flatten()
	if !p.cfg.IncludePadding {
		flat = slices.DeleteFunc(flat, func(f FlatField) bool { return f.Padding })
	}
	return flat, nil
}

// Offset returns the number of bytes consumed from the stream
func (p *Parser) Offset() int64 {
	return p.r.Offset()
}

// Close releases the source opened by OpenFile. For parsers created by
// Open it does nothing; the caller owns the reader.
func (p *Parser) Close() error {
	if p.closer == nil {
		return nil
	}
	c := p.closer
	p.closer = nil
	return c.Close()
}

// Next returns the next message. At the end of the stream it returns
// io.EOF.
//
// Errors concerning a single record are returned as a *RecordError and the
// following call continues with the next record. Fatal errors (see IsFatal)
// are returned again by every later call.
func (p *Parser) Next() (Message, error) {
	if p.err != nil {
		return nil, p.err
	}

	if p.headerPending {
		p.headerPending = false
		return p.Header(), nil
	}

	rec, err := p.r.Next()
	if err != nil {
		if err == io.EOF {
			p.log.Debugw("end of stream", "offset", p.r.Offset())
		}
		p.err = err
		return nil, err
	}

	msg, err := p.dispatch(rec)
	if err != nil {
		rerr := &errors.RecordError{Offset: rec.Offset, Type: rec.Type, Err: err}
		if errors.IsFatal(err) {
			p.err = rerr
		}
		return nil, rerr
	}
	return msg, nil
}

// All returns an iterator over the remaining messages. Per record errors
// are yielded alongside a nil message; iteration ends at the end of the
// stream or after yielding a fatal error.
func (p *Parser) All() iter.Seq2[Message, error] {
	return func(yield func(Message, error) bool) {
		for {
			msg, err := p.Next()
			if err == io.EOF {
				return
			}
			if !yield(msg, err) || IsFatal(err) {
				return
			}
		}
	}
}

func (p *Parser) dispatch(rec framing.Record) (Message, error) {
	b := rec.Payload

	switch MessageType(rec.Type) {
	case TypeFlagBits:
		m, err := decodeFlagBits(b)
		if err != nil {
			return nil, err
		}
		if off, ok := m.AppendedDataOffset(); ok {
			p.log.Debugw("appended data present", "offset", off)
			p.r.SetLimit(int64(off))
		}
		return m, nil

	case TypeFormat:
		f, err := schema.ParseFormat(string(b))
		if err != nil {
			return nil, err
		}
		if err := p.reg.DefineFormat(f); err != nil {
			return nil, err
		}
		return &FormatDefinition{Format: f}, nil

	case TypeInfo:
		return decodeInfo(b)

	case TypeInfoMultiple:
		return decodeMultiInfo(b)

	case TypeParameter:
		return decodeParameter(b)

	case TypeParameterDefault:
		return decodeDefaultParameter(b)

	case TypeAddSubscription:
		m, err := decodeAddSubscription(b)
		if err != nil {
			return nil, err
		}
		if !p.dataPhase {
			p.dataPhase = true
			p.log.Debugw("entering data section", "offset", rec.Offset)
		}
		p.reg.Subscribe(m.Subscription)
		return m, nil

	case TypeData:
		return p.decodeData(rec)

	case TypeLogging:
		return decodeLoggedString(b)

	case TypeLoggingTagged:
		return decodeTaggedLoggedString(b)

	case TypeDropout, TypeSync:
		return &Ignored{Tag: MessageType(rec.Type), Payload: b}, nil

	default:
		p.log.Debugw("unhandled record", "type", MessageType(rec.Type).String(), "offset", rec.Offset, "size", len(b))
		return &Unhandled{Tag: MessageType(rec.Type), Payload: b}, nil
	}
}

func (p *Parser) allowed(s Subscription) bool {
	if !p.cfg.filtering() {
		return true
	}
	if _, ok := p.names[s.FormatName]; ok {
		return true
	}
	_, ok := p.ids[s.MsgID]
	return ok
}

func (p *Parser) decodeData(rec framing.Record) (Message, error) {
	b := rec.Payload
	if len(b) < 2 {
		return nil, errors.PayloadError{Need: 2, Have: len(b)}
	}

	id := le.Uint16(b)
	sub, ok := p.reg.Subscription(id)
	if !ok {
		return nil, errors.UnknownSubscriptionError{ID: id}
	}
	if !p.allowed(sub) {
		return &Ignored{Tag: TypeData, Payload: b}, nil
	}
	if !p.dataPhase {
		p.log.Debugw("logged data before the first subscription", "offset", rec.Offset, "msg_id", id)
	}

	if _, ok := p.reg.Format(sub.FormatName); !ok {
		return nil, errors.MalformedError{
			Reason: fmt.Sprintf("msg_id %d is bound to undefined format '%s'", id, sub.FormatName),
		}
	}
	l, err := p.reg.Layout(sub.FormatName)
	if err != nil {
		return nil, err
	}

	body := b[2:]
	s, err := codec.Decode(l, body, p.cfg.IncludePadding)
	if err != nil {
		return nil, errors.WithFieldError(err, sub.FormatName)
	}
	if extra := len(body) - l.Size; extra > 0 {
		p.log.Debugw("logged data longer than its format", "format", sub.FormatName, "extra", extra)
	}

	d := &LoggedData{
		MsgID:      id,
		MultiID:    sub.MultiID,
		HasMultiID: p.reg.HasMultiID(sub.FormatName),
		FormatName: sub.FormatName,
		Data:       s,
		layout:     l,
		raw:        body,
	}

	if f, ok := l.Field("timestamp"); ok && f.Kind == schema.Uint64 && !f.IsArray() {
		ts, _ := s.Get("timestamp")
		d.Timestamp, d.HasTimestamp = ts.Uint(), true
		if !p.cfg.IncludeTimestamp {
			s.Remove("timestamp")
		}
	}
	return d, nil
}
