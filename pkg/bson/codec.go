// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package bson

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrShortBuffer means the supplied bytes are not a complete document yet;
// the caller should ask for more data and retry the decode.
var ErrShortBuffer = errors.New("bson: short buffer")

// BadTypeError means an unrecognized element type byte was encountered.
// It is fatal for the stream it came from.
type BadTypeError struct{ Type byte }

func (e *BadTypeError) Error() string {
	return fmt.Sprintf("bson: bad element type 0x%02x", e.Type)
}

// BadStringError means a cstring was missing its NUL terminator within the
// bounds of its enclosing document. It is fatal for the stream it came from.
type BadStringError struct{ Key string }

func (e *BadStringError) Error() string {
	return fmt.Sprintf("bson: unterminated string reading %q", e.Key)
}

// Decode parses one BSON document from the front of b, returning the
// document and the number of bytes it consumed. It returns ErrShortBuffer
// if b does not yet hold a complete document.
func Decode(b []byte) (*Document, int, error) {
	if len(b) < 4 {
		return nil, 0, ErrShortBuffer
	}
	total := int(int32(binary.LittleEndian.Uint32(b)))
	if total < 5 {
		return nil, 0, &BadTypeError{Type: 0}
	}
	if len(b) < total {
		return nil, 0, ErrShortBuffer
	}

	doc := NewDocument()
	pos := 4
	end := total - 1 // trailing 0x00 terminator
	for pos < end {
		typ := Type(b[pos])
		pos++

		key, n, err := readCString(b[pos:end])
		if err != nil {
			return nil, 0, &BadStringError{Key: string(b[pos:end])}
		}
		pos += n

		var elem Element
		elem.Key = key
		elem.Type = typ

		consumed, err := decodeValue(&elem, b[pos:end])
		if err != nil {
			return nil, 0, err
		}
		pos += consumed

		doc.Elements = append(doc.Elements, elem)
	}
	if b[end] != 0x00 {
		return nil, 0, &BadTypeError{Type: b[end]}
	}
	return doc, total, nil
}

func decodeValue(elem *Element, b []byte) (int, error) {
	switch elem.Type {
	case TypeDouble:
		if len(b) < 8 {
			return 0, ErrShortBuffer
		}
		elem.Double = math.Float64frombits(binary.LittleEndian.Uint64(b))
		return 8, nil

	case TypeString, TypeSymbol, TypeRegex:
		return decodeStringLike(elem, b)

	case TypeDocument, TypeArray:
		sub, n, err := Decode(b)
		if err != nil {
			return 0, err
		}
		if elem.Type == TypeDocument {
			elem.Doc = sub
		} else {
			elem.Arr = sub
		}
		return n, nil

	case TypeBinary:
		if len(b) < 5 {
			return 0, ErrShortBuffer
		}
		length := int(int32(binary.LittleEndian.Uint32(b)))
		if length < 0 || len(b) < 5+length {
			return 0, ErrShortBuffer
		}
		elem.BinarySubtye = b[4]
		elem.Binary = append([]byte(nil), b[5:5+length]...)
		return 5 + length, nil

	case TypeObjectID:
		if len(b) < 12 {
			return 0, ErrShortBuffer
		}
		copy(elem.ObjectID[:], b[:12])
		return 12, nil

	case TypeBool:
		if len(b) < 1 {
			return 0, ErrShortBuffer
		}
		elem.Bool = b[0] != 0
		return 1, nil

	case TypeDateTime:
		if len(b) < 8 {
			return 0, ErrShortBuffer
		}
		elem.DateTimeMS = int64(binary.LittleEndian.Uint64(b))
		return 8, nil

	case TypeNull, TypeMinKey, TypeMaxKey:
		return 0, nil

	case TypeInt32:
		if len(b) < 4 {
			return 0, ErrShortBuffer
		}
		elem.Int32 = int32(binary.LittleEndian.Uint32(b))
		return 4, nil

	case TypeInt64:
		if len(b) < 8 {
			return 0, ErrShortBuffer
		}
		elem.Int64 = int64(binary.LittleEndian.Uint64(b))
		return 8, nil

	case TypeTimestamp:
		if len(b) < 8 {
			return 0, ErrShortBuffer
		}
		elem.TimestampVal = binary.LittleEndian.Uint64(b)
		return 8, nil

	default:
		return 0, &BadTypeError{Type: byte(elem.Type)}
	}
}

// decodeStringLike handles String, Symbol (both length-prefixed cstrings)
// and Regex (two back-to-back bare cstrings, no length prefix).
func decodeStringLike(elem *Element, b []byte) (int, error) {
	if elem.Type == TypeRegex {
		pattern, n1, err := readCString(b)
		if err != nil {
			return 0, &BadStringError{Key: elem.Key}
		}
		options, n2, err := readCString(b[n1:])
		if err != nil {
			return 0, &BadStringError{Key: elem.Key}
		}
		elem.RegexPattern = pattern
		elem.RegexOptions = options
		return n1 + n2, nil
	}

	if len(b) < 4 {
		return 0, ErrShortBuffer
	}
	length := int(int32(binary.LittleEndian.Uint32(b)))
	if length < 1 || len(b) < 4+length {
		return 0, ErrShortBuffer
	}
	if b[4+length-1] != 0x00 {
		return 0, &BadStringError{Key: elem.Key}
	}
	s := string(b[4 : 4+length-1])
	switch elem.Type {
	case TypeSymbol:
		elem.Symbol = s
	default:
		elem.Str = s
	}
	return 4 + length, nil
}

func readCString(b []byte) (string, int, error) {
	for i, c := range b {
		if c == 0x00 {
			return string(b[:i]), i + 1, nil
		}
	}
	return "", 0, ErrShortBuffer
}

// Encode serializes doc into its canonical BSON byte representation.
func Encode(doc *Document) []byte {
	out := make([]byte, 4)
	for _, e := range doc.Elements {
		out = append(out, byte(e.Type))
		out = appendCString(out, e.Key)
		out = encodeValue(out, &e)
	}
	out = append(out, 0x00)
	binary.LittleEndian.PutUint32(out, uint32(len(out)))
	return out
}

func encodeValue(out []byte, e *Element) []byte {
	switch e.Type {
	case TypeDouble:
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(e.Double))
		return append(out, buf[:]...)

	case TypeString, TypeSymbol:
		s := e.Str
		if e.Type == TypeSymbol {
			s = e.Symbol
		}
		var lenBuf [4]byte
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(s)+1))
		out = append(out, lenBuf[:]...)
		out = append(out, s...)
		return append(out, 0x00)

	case TypeDocument:
		return append(out, Encode(e.Doc)...)

	case TypeArray:
		return append(out, Encode(e.Arr)...)

	case TypeBinary:
		var lenBuf [4]byte
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(e.Binary)))
		out = append(out, lenBuf[:]...)
		out = append(out, e.BinarySubtye)
		return append(out, e.Binary...)

	case TypeObjectID:
		return append(out, e.ObjectID[:]...)

	case TypeBool:
		if e.Bool {
			return append(out, 0x01)
		}
		return append(out, 0x00)

	case TypeDateTime:
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], uint64(e.DateTimeMS))
		return append(out, buf[:]...)

	case TypeNull, TypeMinKey, TypeMaxKey:
		return out

	case TypeRegex:
		out = appendCString(out, e.RegexPattern)
		return appendCString(out, e.RegexOptions)

	case TypeInt32:
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], uint32(e.Int32))
		return append(out, buf[:]...)

	case TypeInt64:
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], uint64(e.Int64))
		return append(out, buf[:]...)

	case TypeTimestamp:
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], e.TimestampVal)
		return append(out, buf[:]...)

	default:
		return out
	}
}

func appendCString(out []byte, s string) []byte {
	out = append(out, s...)
	return append(out, 0x00)
}
