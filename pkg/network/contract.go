// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package network

import "github.com/absmach/mongoproxy/pkg/buffer"

// FilterStatus is returned by onData/onWrite/onNewConnection to tell the
// host whether to keep pulling bytes off the connection.
type FilterStatus int

const (
	// Continue lets the host keep reading.
	Continue FilterStatus = iota
	// StopIteration pauses the read side until the filter calls
	// ContinueReading on its ReadFilterCallbacks handle.
	StopIteration
)

// ConnectionEvent is raised by the host at connection lifecycle
// transitions.
type ConnectionEvent int

const (
	// Connected fires once, right after the filter is installed.
	Connected ConnectionEvent = iota
	// RemoteClose fires when the peer closed its side.
	RemoteClose
	// LocalClose fires when this process closed the connection.
	LocalClose
)

// ReadFilterCallbacks is the handle a filter receives at
// InitializeReadFilterCallbacks; it is the only way the filter can resume a
// connection it previously paused with StopIteration.
type ReadFilterCallbacks interface {
	// ContinueReading resumes pulling bytes off the downstream socket.
	ContinueReading()
	// ConnectionID identifies the connection for logging.
	ConnectionID() string
}

// ReadFilter is the contract a protocol filter implements to sit inline on
// a connection.
type ReadFilter interface {
	// InitializeReadFilterCallbacks is called once, before any data flows.
	InitializeReadFilterCallbacks(cb ReadFilterCallbacks)
	// OnNewConnection is called once per connection.
	OnNewConnection() FilterStatus
	// OnData delivers bytes read from downstream, already appended to buf.
	OnData(buf *buffer.Watermark) FilterStatus
	// OnWrite delivers bytes read from upstream, already appended to buf.
	OnWrite(buf *buffer.Watermark) FilterStatus
	// OnEvent delivers a connection lifecycle transition.
	OnEvent(event ConnectionEvent)
}
