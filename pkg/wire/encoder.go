// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"encoding/binary"

	"github.com/absmach/mongoproxy/pkg/bson"
)

func appendHeader(out []byte, h Header) []byte {
	var buf [16]byte
	binary.LittleEndian.PutUint32(buf[0:4], uint32(h.RequestID))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(h.ResponseTo))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(h.OpCode))
	// length patched in by the caller once the body size is known.
	return append(out, buf[:]...)
}

func appendCString(out []byte, s string) []byte {
	out = append(out, s...)
	return append(out, 0x00)
}

func finalize(out []byte) []byte {
	binary.LittleEndian.PutUint32(out[12:16], uint32(len(out)))
	return out
}

// Encode serializes m (one of *Query, *GetMore, *Insert, *KillCursors,
// *Reply) into a complete wire message, header included.
func Encode(m any) []byte {
	switch v := m.(type) {
	case *Query:
		return EncodeQuery(v)
	case *GetMore:
		return EncodeGetMore(v)
	case *Insert:
		return EncodeInsert(v)
	case *KillCursors:
		return EncodeKillCursors(v)
	case *Reply:
		return EncodeReply(v)
	default:
		panic("wire: Encode: unsupported message type")
	}
}

// EncodeQuery serializes an OP_QUERY message.
func EncodeQuery(m *Query) []byte {
	h := m.Header
	h.OpCode = OpQuery
	out := appendHeader(make([]byte, 0, 64), h)

	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], m.Flags)
	out = append(out, buf[:]...)

	out = appendCString(out, m.FullCollectionName)

	binary.LittleEndian.PutUint32(buf[:], uint32(m.NumberToSkip))
	out = append(out, buf[:]...)
	binary.LittleEndian.PutUint32(buf[:], uint32(m.NumberToReturn))
	out = append(out, buf[:]...)

	out = append(out, bson.Encode(m.Query)...)
	if m.ReturnFieldsSelector != nil {
		out = append(out, bson.Encode(m.ReturnFieldsSelector)...)
	}
	return finalize(out)
}

// EncodeGetMore serializes an OP_GET_MORE message.
func EncodeGetMore(m *GetMore) []byte {
	h := m.Header
	h.OpCode = OpGetMore
	out := appendHeader(make([]byte, 0, 48), h)

	var buf4 [4]byte
	out = append(out, buf4[:]...) // reserved
	out = appendCString(out, m.FullCollectionName)

	binary.LittleEndian.PutUint32(buf4[:], uint32(m.NumberToReturn))
	out = append(out, buf4[:]...)

	var buf8 [8]byte
	binary.LittleEndian.PutUint64(buf8[:], uint64(m.CursorID))
	out = append(out, buf8[:]...)

	return finalize(out)
}

// EncodeInsert serializes an OP_INSERT message.
func EncodeInsert(m *Insert) []byte {
	h := m.Header
	h.OpCode = OpInsert
	out := appendHeader(make([]byte, 0, 64), h)

	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(m.Flags))
	out = append(out, buf[:]...)

	out = appendCString(out, m.FullCollectionName)
	for _, doc := range m.Documents {
		out = append(out, bson.Encode(doc)...)
	}
	return finalize(out)
}

// EncodeKillCursors serializes an OP_KILL_CURSORS message.
func EncodeKillCursors(m *KillCursors) []byte {
	h := m.Header
	h.OpCode = OpKillCursors
	out := appendHeader(make([]byte, 0, 32), h)

	var buf4 [4]byte
	out = append(out, buf4[:]...) // reserved
	binary.LittleEndian.PutUint32(buf4[:], uint32(len(m.CursorIDs)))
	out = append(out, buf4[:]...)

	var buf8 [8]byte
	for _, id := range m.CursorIDs {
		binary.LittleEndian.PutUint64(buf8[:], uint64(id))
		out = append(out, buf8[:]...)
	}
	return finalize(out)
}

// EncodeReply serializes an OP_REPLY message.
func EncodeReply(m *Reply) []byte {
	h := m.Header
	h.OpCode = OpReply
	out := appendHeader(make([]byte, 0, 64), h)

	var buf4 [4]byte
	binary.LittleEndian.PutUint32(buf4[:], m.ResponseFlags)
	out = append(out, buf4[:]...)

	var buf8 [8]byte
	binary.LittleEndian.PutUint64(buf8[:], uint64(m.CursorID))
	out = append(out, buf8[:]...)

	binary.LittleEndian.PutUint32(buf4[:], uint32(m.StartingFrom))
	out = append(out, buf4[:]...)
	binary.LittleEndian.PutUint32(buf4[:], uint32(m.NumberReturned))
	out = append(out, buf4[:]...)

	for _, doc := range m.Documents {
		out = append(out, bson.Encode(doc)...)
	}
	return finalize(out)
}
