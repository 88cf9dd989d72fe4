// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package wire

import "github.com/absmach/mongoproxy/pkg/bson"

// OpCode identifies the shape of a message body.
type OpCode int32

const (
	OpReply       OpCode = 1
	OpInsert      OpCode = 2002
	OpQuery       OpCode = 2004
	OpGetMore     OpCode = 2005
	OpKillCursors OpCode = 2007
)

func (c OpCode) String() string {
	switch c {
	case OpReply:
		return "reply"
	case OpInsert:
		return "insert"
	case OpQuery:
		return "query"
	case OpGetMore:
		return "get_more"
	case OpKillCursors:
		return "kill_cursors"
	default:
		return "unknown"
	}
}

// Header is the fixed preamble shared by every message, request_id before
// response_to before op_code before length, length little-endian and
// inclusive of the header itself.
type Header struct {
	RequestID  int32
	ResponseTo int32
	OpCode     OpCode
}

// Query flag bits, per spec section 4.5.
const (
	QueryFlagTailableCursor uint32 = 1 << 1
	QueryFlagNoCursorTimeout uint32 = 1 << 4
	QueryFlagAwaitData      uint32 = 1 << 5
	QueryFlagExhaust        uint32 = 1 << 6
)

// Query is an OP_QUERY message.
type Query struct {
	Header               Header
	Flags                uint32
	FullCollectionName   string
	NumberToSkip         int32
	NumberToReturn       int32
	Query                *bson.Document
	ReturnFieldsSelector *bson.Document
}

// GetMore is an OP_GET_MORE message.
type GetMore struct {
	Header             Header
	FullCollectionName string
	NumberToReturn     int32
	CursorID           int64
}

// Insert is an OP_INSERT message.
type Insert struct {
	Header             Header
	Flags              int32
	FullCollectionName string
	Documents          []*bson.Document
}

// KillCursors is an OP_KILL_CURSORS message.
type KillCursors struct {
	Header    Header
	CursorIDs []int64
}

// Reply flag bits, per spec section 4.5.
const (
	ReplyFlagCursorNotFound uint32 = 1 << 0
	ReplyFlagQueryFailure   uint32 = 1 << 1
)

// Reply is an OP_REPLY message.
type Reply struct {
	Header         Header
	ResponseFlags  uint32
	CursorID       int64
	StartingFrom   int32
	NumberReturned int32
	Documents      []*bson.Document
}
