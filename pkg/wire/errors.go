// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package wire

import "fmt"

// DecodeError is fatal for the stream it came from: the header or body did
// not parse into a well-formed message. Callers stop feeding the decoder.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("wire: decode error: %s", e.Reason)
}

func errShortHeader(length int32) error {
	return &DecodeError{Reason: fmt.Sprintf("message length %d below minimum header size 16", length)}
}

func errOverBudget(length, max int32) error {
	return &DecodeError{Reason: fmt.Sprintf("message length %d exceeds configured maximum %d", length, max)}
}

func errUnknownOpCode(op OpCode) error {
	return &DecodeError{Reason: fmt.Sprintf("unrecognized op_code %d", int32(op))}
}

func errMalformedBody(op OpCode, cause error) error {
	return &DecodeError{Reason: fmt.Sprintf("malformed %s body: %v", op, cause)}
}
