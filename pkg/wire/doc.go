// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package wire frames the MongoDB legacy wire protocol on top of the bson
// codec: OP_QUERY, OP_GET_MORE, OP_INSERT, OP_KILL_CURSORS and OP_REPLY
// messages, plus a push-style decoder that drains a watermark-buffered
// connection byte stream and delivers one message at a time.
package wire
