// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package bson

// Type is a BSON element type tag, as laid out on the wire.
type Type byte

const (
	TypeDouble    Type = 0x01
	TypeString    Type = 0x02
	TypeDocument  Type = 0x03
	TypeArray     Type = 0x04
	TypeBinary    Type = 0x05
	TypeObjectID  Type = 0x07
	TypeBool      Type = 0x08
	TypeDateTime  Type = 0x09
	TypeNull      Type = 0x0A
	TypeRegex     Type = 0x0B
	TypeSymbol    Type = 0x0E
	TypeInt32     Type = 0x10
	TypeTimestamp Type = 0x11
	TypeInt64     Type = 0x12
	TypeMinKey    Type = 0xFF
	TypeMaxKey    Type = 0x7F
)

// Element is a single (key, tagged value) pair inside a Document. Only the
// field matching Type is meaningful; the rest are zero.
type Element struct {
	Key  string
	Type Type

	Double       float64
	Str          string
	Doc          *Document
	Arr          *Document
	Binary       []byte
	BinarySubtye byte
	ObjectID     [12]byte
	Bool         bool
	DateTimeMS   int64
	RegexPattern string
	RegexOptions string
	Symbol       string
	Int32        int32
	Int64        int64
	TimestampVal uint64
}

// Document is an ordered sequence of elements, the BSON analogue of an
// object. An array is represented the same way, with keys "0", "1", ...
type Document struct {
	Elements []Element
}

// NewDocument returns an empty document, ready for chained Add* calls.
func NewDocument() *Document {
	return &Document{}
}

// Len returns the number of top-level elements.
func (d *Document) Len() int {
	return len(d.Elements)
}

// Get returns the element with the given key, if present.
func (d *Document) Get(key string) (*Element, bool) {
	for i := range d.Elements {
		if d.Elements[i].Key == key {
			return &d.Elements[i], true
		}
	}
	return nil, false
}

// First returns the key of the first element, or "" for an empty document.
// Used to resolve a $cmd query's command name.
func (d *Document) First() string {
	if len(d.Elements) == 0 {
		return ""
	}
	return d.Elements[0].Key
}

// GetString returns the string value at key, if present and of type string.
func (d *Document) GetString(key string) (string, bool) {
	e, ok := d.Get(key)
	if !ok || e.Type != TypeString {
		return "", false
	}
	return e.Str, true
}

// GetDocument returns the sub-document at key, if present and embedded.
func (d *Document) GetDocument(key string) (*Document, bool) {
	e, ok := d.Get(key)
	if !ok || e.Type != TypeDocument {
		return nil, false
	}
	return e.Doc, true
}

// GetArray returns the array at key, if present.
func (d *Document) GetArray(key string) (*Document, bool) {
	e, ok := d.Get(key)
	if !ok || e.Type != TypeArray {
		return nil, false
	}
	return e.Arr, true
}

func (d *Document) add(e Element) *Document {
	d.Elements = append(d.Elements, e)
	return d
}

// AddDouble appends a double-valued element and returns d for chaining.
func (d *Document) AddDouble(key string, v float64) *Document {
	return d.add(Element{Key: key, Type: TypeDouble, Double: v})
}

// AddString appends a string-valued element and returns d for chaining.
func (d *Document) AddString(key, v string) *Document {
	return d.add(Element{Key: key, Type: TypeString, Str: v})
}

// AddDocument appends a sub-document element and returns d for chaining.
func (d *Document) AddDocument(key string, v *Document) *Document {
	return d.add(Element{Key: key, Type: TypeDocument, Doc: v})
}

// AddArray appends an array element and returns d for chaining.
func (d *Document) AddArray(key string, v *Document) *Document {
	return d.add(Element{Key: key, Type: TypeArray, Arr: v})
}

// AddBinary appends a binary element and returns d for chaining.
func (d *Document) AddBinary(key string, subtype byte, v []byte) *Document {
	return d.add(Element{Key: key, Type: TypeBinary, BinarySubtye: subtype, Binary: v})
}

// AddObjectID appends an ObjectId element and returns d for chaining.
func (d *Document) AddObjectID(key string, v [12]byte) *Document {
	return d.add(Element{Key: key, Type: TypeObjectID, ObjectID: v})
}

// AddBool appends a boolean element and returns d for chaining.
func (d *Document) AddBool(key string, v bool) *Document {
	return d.add(Element{Key: key, Type: TypeBool, Bool: v})
}

// AddDateTime appends a UTC datetime element (milliseconds since the Unix
// epoch) and returns d for chaining.
func (d *Document) AddDateTime(key string, ms int64) *Document {
	return d.add(Element{Key: key, Type: TypeDateTime, DateTimeMS: ms})
}

// AddNull appends a null element and returns d for chaining.
func (d *Document) AddNull(key string) *Document {
	return d.add(Element{Key: key, Type: TypeNull})
}

// AddRegex appends a regular-expression element and returns d for chaining.
func (d *Document) AddRegex(key, pattern, options string) *Document {
	return d.add(Element{Key: key, Type: TypeRegex, RegexPattern: pattern, RegexOptions: options})
}

// AddSymbol appends a symbol element and returns d for chaining.
func (d *Document) AddSymbol(key, v string) *Document {
	return d.add(Element{Key: key, Type: TypeSymbol, Symbol: v})
}

// AddInt32 appends a 32-bit integer element and returns d for chaining.
func (d *Document) AddInt32(key string, v int32) *Document {
	return d.add(Element{Key: key, Type: TypeInt32, Int32: v})
}

// AddInt64 appends a 64-bit integer element and returns d for chaining.
func (d *Document) AddInt64(key string, v int64) *Document {
	return d.add(Element{Key: key, Type: TypeInt64, Int64: v})
}

// AddTimestamp appends an internal MongoDB timestamp element and returns d
// for chaining.
func (d *Document) AddTimestamp(key string, v uint64) *Document {
	return d.add(Element{Key: key, Type: TypeTimestamp, TimestampVal: v})
}

// AddMinKey appends a MinKey sentinel element and returns d for chaining.
func (d *Document) AddMinKey(key string) *Document {
	return d.add(Element{Key: key, Type: TypeMinKey})
}

// AddMaxKey appends a MaxKey sentinel element and returns d for chaining.
func (d *Document) AddMaxKey(key string) *Document {
	return d.add(Element{Key: key, Type: TypeMaxKey})
}
