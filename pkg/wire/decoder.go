// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"encoding/binary"

	"github.com/absmach/mongoproxy/pkg/bson"
	"github.com/absmach/mongoproxy/pkg/buffer"
)

const headerSize = 16

// Callbacks is the capability set a decoder delivers decoded messages
// through. Any field may be left nil; a message of a type with no callback
// wired is decoded (so the byte stream stays in sync) and then dropped.
type Callbacks struct {
	OnQuery       func(*Query)
	OnGetMore     func(*GetMore)
	OnInsert      func(*Insert)
	OnKillCursors func(*KillCursors)
	OnReply       func(*Reply)
}

type decodeState int

const (
	stateNeedHeader decodeState = iota
	stateNeedBody
)

// Decoder is a push-style state machine: Feed is handed a watermark buffer
// and drains as many complete messages as are available, invoking the
// matching callback for each. It disambiguates direction only by which
// callbacks the caller wired up; one instance decodes either a request
// stream or a reply stream, never both.
type Decoder struct {
	cb     Callbacks
	maxLen int32

	state      decodeState
	header     Header
	bodyLength int
}

// NewDecoder returns a decoder that delivers messages through cb and treats
// any message whose declared length exceeds maxLen (0 means unbounded) as a
// fatal decode error.
func NewDecoder(cb Callbacks, maxLen int32) *Decoder {
	return &Decoder{cb: cb, maxLen: maxLen}
}

// Feed drains as many complete messages as buf currently holds. It returns
// nil if it stops only because buf ran out of bytes for the current state,
// and a non-nil *DecodeError on any structural problem. Once it returns an
// error, the decoder's internal state is no longer advanced by further
// calls; callers are expected to stop feeding it, per the sticky
// decoding_error policy.
func (d *Decoder) Feed(buf *buffer.Watermark) error {
	for {
		switch d.state {
		case stateNeedHeader:
			if buf.Len() < headerSize {
				return nil
			}
			h := buf.Bytes()[:headerSize]
			length := int32(binary.LittleEndian.Uint32(h[12:16]))
			if length < headerSize {
				return errShortHeader(length)
			}
			if d.maxLen > 0 && length > d.maxLen {
				return errOverBudget(length, d.maxLen)
			}
			d.header = Header{
				RequestID:  int32(binary.LittleEndian.Uint32(h[0:4])),
				ResponseTo: int32(binary.LittleEndian.Uint32(h[4:8])),
				OpCode:     OpCode(int32(binary.LittleEndian.Uint32(h[8:12]))),
			}
			d.bodyLength = int(length) - headerSize
			buf.Drain(headerSize)
			d.state = stateNeedBody

		case stateNeedBody:
			if buf.Len() < d.bodyLength {
				return nil
			}
			body := buf.Bytes()[:d.bodyLength]
			if err := d.decodeBody(d.header, body); err != nil {
				return err
			}
			buf.Drain(d.bodyLength)
			d.state = stateNeedHeader
		}
	}
}

func (d *Decoder) decodeBody(h Header, body []byte) error {
	switch h.OpCode {
	case OpQuery:
		m, err := decodeQuery(h, body)
		if err != nil {
			return errMalformedBody(h.OpCode, err)
		}
		if d.cb.OnQuery != nil {
			d.cb.OnQuery(m)
		}
	case OpGetMore:
		m, err := decodeGetMore(h, body)
		if err != nil {
			return errMalformedBody(h.OpCode, err)
		}
		if d.cb.OnGetMore != nil {
			d.cb.OnGetMore(m)
		}
	case OpInsert:
		m, err := decodeInsert(h, body)
		if err != nil {
			return errMalformedBody(h.OpCode, err)
		}
		if d.cb.OnInsert != nil {
			d.cb.OnInsert(m)
		}
	case OpKillCursors:
		m, err := decodeKillCursors(h, body)
		if err != nil {
			return errMalformedBody(h.OpCode, err)
		}
		if d.cb.OnKillCursors != nil {
			d.cb.OnKillCursors(m)
		}
	case OpReply:
		m, err := decodeReply(h, body)
		if err != nil {
			return errMalformedBody(h.OpCode, err)
		}
		if d.cb.OnReply != nil {
			d.cb.OnReply(m)
		}
	default:
		return errUnknownOpCode(h.OpCode)
	}
	return nil
}

func readCString(b []byte) (string, int, error) {
	for i, c := range b {
		if c == 0x00 {
			return string(b[:i]), i + 1, nil
		}
	}
	return "", 0, &DecodeError{Reason: "unterminated cstring"}
}

func decodeQuery(h Header, body []byte) (*Query, error) {
	if len(body) < 4 {
		return nil, &DecodeError{Reason: "query body too short for flags"}
	}
	flags := binary.LittleEndian.Uint32(body[0:4])
	pos := 4

	name, n, err := readCString(body[pos:])
	if err != nil {
		return nil, err
	}
	pos += n

	if len(body) < pos+8 {
		return nil, &DecodeError{Reason: "query body too short for skip/return counts"}
	}
	numberToSkip := int32(binary.LittleEndian.Uint32(body[pos : pos+4]))
	pos += 4
	numberToReturn := int32(binary.LittleEndian.Uint32(body[pos : pos+4]))
	pos += 4

	query, n, err := bson.Decode(body[pos:])
	if err != nil {
		return nil, err
	}
	pos += n

	m := &Query{
		Header:             h,
		Flags:              flags,
		FullCollectionName: name,
		NumberToSkip:       numberToSkip,
		NumberToReturn:     numberToReturn,
		Query:              query,
	}
	if pos < len(body) {
		selector, n, err := bson.Decode(body[pos:])
		if err != nil {
			return nil, err
		}
		pos += n
		m.ReturnFieldsSelector = selector
	}
	return m, nil
}

func decodeGetMore(h Header, body []byte) (*GetMore, error) {
	if len(body) < 4 {
		return nil, &DecodeError{Reason: "get_more body too short for reserved field"}
	}
	pos := 4 // reserved, must be zero; not validated

	name, n, err := readCString(body[pos:])
	if err != nil {
		return nil, err
	}
	pos += n

	if len(body) < pos+12 {
		return nil, &DecodeError{Reason: "get_more body too short for return count/cursor id"}
	}
	numberToReturn := int32(binary.LittleEndian.Uint32(body[pos : pos+4]))
	pos += 4
	cursorID := int64(binary.LittleEndian.Uint64(body[pos : pos+8]))

	return &GetMore{
		Header:             h,
		FullCollectionName: name,
		NumberToReturn:     numberToReturn,
		CursorID:           cursorID,
	}, nil
}

func decodeInsert(h Header, body []byte) (*Insert, error) {
	if len(body) < 4 {
		return nil, &DecodeError{Reason: "insert body too short for flags"}
	}
	flags := int32(binary.LittleEndian.Uint32(body[0:4]))
	pos := 4

	name, n, err := readCString(body[pos:])
	if err != nil {
		return nil, err
	}
	pos += n

	var docs []*bson.Document
	for pos < len(body) {
		doc, n, err := bson.Decode(body[pos:])
		if err != nil {
			return nil, err
		}
		pos += n
		docs = append(docs, doc)
	}
	if len(docs) == 0 {
		return nil, &DecodeError{Reason: "insert carries no documents"}
	}

	return &Insert{
		Header:             h,
		Flags:              flags,
		FullCollectionName: name,
		Documents:          docs,
	}, nil
}

func decodeKillCursors(h Header, body []byte) (*KillCursors, error) {
	if len(body) < 8 {
		return nil, &DecodeError{Reason: "kill_cursors body too short for counts"}
	}
	// body[0:4] is the reserved field, not validated.
	count := int32(binary.LittleEndian.Uint32(body[4:8]))
	pos := 8
	if count < 0 || len(body) < pos+int(count)*8 {
		return nil, &DecodeError{Reason: "kill_cursors count disagrees with body length"}
	}

	ids := make([]int64, count)
	for i := 0; i < int(count); i++ {
		ids[i] = int64(binary.LittleEndian.Uint64(body[pos : pos+8]))
		pos += 8
	}
	return &KillCursors{Header: h, CursorIDs: ids}, nil
}

func decodeReply(h Header, body []byte) (*Reply, error) {
	if len(body) < 20 {
		return nil, &DecodeError{Reason: "reply body too short for fixed fields"}
	}
	flags := binary.LittleEndian.Uint32(body[0:4])
	cursorID := int64(binary.LittleEndian.Uint64(body[4:12]))
	startingFrom := int32(binary.LittleEndian.Uint32(body[12:16]))
	numberReturned := int32(binary.LittleEndian.Uint32(body[16:20]))
	pos := 20

	var docs []*bson.Document
	for pos < len(body) {
		doc, n, err := bson.Decode(body[pos:])
		if err != nil {
			return nil, err
		}
		pos += n
		docs = append(docs, doc)
	}

	return &Reply{
		Header:         h,
		ResponseFlags:  flags,
		CursorID:       cursorID,
		StartingFrom:   startingFrom,
		NumberReturned: numberReturned,
		Documents:      docs,
	}, nil
}
