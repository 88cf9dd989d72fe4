// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"reflect"
	"testing"

	"github.com/absmach/mongoproxy/pkg/bson"
	"github.com/absmach/mongoproxy/pkg/buffer"
)

func sampleQuery() *Query {
	return &Query{
		Header:             Header{RequestID: 1, ResponseTo: 0, OpCode: OpQuery},
		Flags:              QueryFlagTailableCursor | QueryFlagAwaitData,
		FullCollectionName: "db.test",
		NumberToSkip:       0,
		NumberToReturn:     100,
		Query:              bson.NewDocument().AddString("name", "alice"),
	}
}

func sampleReply() *Reply {
	return &Reply{
		Header:         Header{RequestID: 2, ResponseTo: 1, OpCode: OpReply},
		ResponseFlags:  0,
		CursorID:       0,
		StartingFrom:   0,
		NumberReturned: 1,
		Documents:      []*bson.Document{bson.NewDocument().AddString("hello", "world")},
	}
}

func TestDecodeEncodeRoundTripQuery(t *testing.T) {
	want := sampleQuery()
	encoded := EncodeQuery(want)

	var got *Query
	d := NewDecoder(Callbacks{OnQuery: func(m *Query) { got = m }}, 0)
	buf := buffer.New(nil, nil)
	buf.Add(encoded)
	if err := d.Feed(buf); err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("OnQuery never called")
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
	if buf.Len() != 0 {
		t.Fatalf("leftover bytes: %d", buf.Len())
	}
}

func TestDecodeEncodeRoundTripReply(t *testing.T) {
	want := sampleReply()
	encoded := EncodeReply(want)

	var got *Reply
	d := NewDecoder(Callbacks{OnReply: func(m *Reply) { got = m }}, 0)
	buf := buffer.New(nil, nil)
	buf.Add(encoded)
	if err := d.Feed(buf); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestDecodeByteByByteMatchesSingleCall(t *testing.T) {
	encoded := EncodeQuery(sampleQuery())
	encoded = append(encoded, EncodeReply(sampleReply())...)

	var oneShotSeq []string
	oneShot := NewDecoder(Callbacks{
		OnQuery: func(*Query) { oneShotSeq = append(oneShotSeq, "query") },
		OnReply: func(*Reply) { oneShotSeq = append(oneShotSeq, "reply") },
	}, 0)
	bufOne := buffer.New(nil, nil)
	bufOne.Add(encoded)
	if err := oneShot.Feed(bufOne); err != nil {
		t.Fatal(err)
	}

	var byteSeq []string
	byByte := NewDecoder(Callbacks{
		OnQuery: func(*Query) { byteSeq = append(byteSeq, "query") },
		OnReply: func(*Reply) { byteSeq = append(byteSeq, "reply") },
	}, 0)
	bufByte := buffer.New(nil, nil)
	for _, b := range encoded {
		bufByte.Add([]byte{b})
		if err := byByte.Feed(bufByte); err != nil {
			t.Fatal(err)
		}
	}

	if !reflect.DeepEqual(oneShotSeq, byteSeq) {
		t.Fatalf("sequences differ: one-shot=%v byte-by-byte=%v", oneShotSeq, byteSeq)
	}
	if !reflect.DeepEqual(oneShotSeq, []string{"query", "reply"}) {
		t.Fatalf("unexpected sequence: %v", oneShotSeq)
	}
}

func TestDecodeInsertAndGetMoreAndKillCursors(t *testing.T) {
	insert := &Insert{
		Header:             Header{RequestID: 3, OpCode: OpInsert},
		FullCollectionName: "db.test",
		Documents: []*bson.Document{
			bson.NewDocument().AddInt32("n", 1),
			bson.NewDocument().AddInt32("n", 2),
		},
	}
	getMore := &GetMore{
		Header:             Header{RequestID: 4, OpCode: OpGetMore},
		FullCollectionName: "db.test",
		NumberToReturn:     10,
		CursorID:           123456789,
	}
	killCursors := &KillCursors{
		Header:    Header{RequestID: 5, OpCode: OpKillCursors},
		CursorIDs: []int64{1, 2, 3},
	}

	var buf []byte
	buf = append(buf, EncodeInsert(insert)...)
	buf = append(buf, EncodeGetMore(getMore)...)
	buf = append(buf, EncodeKillCursors(killCursors)...)

	var gotInsert *Insert
	var gotGetMore *GetMore
	var gotKillCursors *KillCursors
	d := NewDecoder(Callbacks{
		OnInsert:      func(m *Insert) { gotInsert = m },
		OnGetMore:     func(m *GetMore) { gotGetMore = m },
		OnKillCursors: func(m *KillCursors) { gotKillCursors = m },
	}, 0)
	b := buffer.New(nil, nil)
	b.Add(buf)
	if err := d.Feed(b); err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(gotInsert, insert) {
		t.Fatalf("insert: got %+v, want %+v", gotInsert, insert)
	}
	if !reflect.DeepEqual(gotGetMore, getMore) {
		t.Fatalf("get_more: got %+v, want %+v", gotGetMore, getMore)
	}
	if !reflect.DeepEqual(gotKillCursors, killCursors) {
		t.Fatalf("kill_cursors: got %+v, want %+v", gotKillCursors, killCursors)
	}
}

func TestDecodeWaitsForMoreBytesWithoutConsuming(t *testing.T) {
	encoded := EncodeQuery(sampleQuery())

	called := false
	d := NewDecoder(Callbacks{OnQuery: func(*Query) { called = true }}, 0)
	buf := buffer.New(nil, nil)
	buf.Add(encoded[:10]) // less than the 16-byte header

	if err := d.Feed(buf); err != nil {
		t.Fatal(err)
	}
	if called {
		t.Fatal("OnQuery fired before a full message arrived")
	}
	if buf.Len() != 10 {
		t.Fatalf("decoder consumed bytes while short on header: len=%d", buf.Len())
	}

	buf.Add(encoded[10:])
	if err := d.Feed(buf); err != nil {
		t.Fatal(err)
	}
	if !called {
		t.Fatal("OnQuery never fired once the full message arrived")
	}
}

func TestDecodeRejectsUnderweightLength(t *testing.T) {
	encoded := EncodeQuery(sampleQuery())
	// Corrupt the length field to something below the minimum header size.
	encoded[12], encoded[13], encoded[14], encoded[15] = 4, 0, 0, 0

	d := NewDecoder(Callbacks{}, 0)
	buf := buffer.New(nil, nil)
	buf.Add(encoded)
	err := d.Feed(buf)
	if err == nil {
		t.Fatal("expected a decode error for length < 16")
	}
}

func TestDecodeRejectsUnknownOpCode(t *testing.T) {
	encoded := EncodeQuery(sampleQuery())
	encoded[8], encoded[9], encoded[10], encoded[11] = 99, 0, 0, 0

	d := NewDecoder(Callbacks{}, 0)
	buf := buffer.New(nil, nil)
	buf.Add(encoded)
	if err := d.Feed(buf); err == nil {
		t.Fatal("expected a decode error for an unrecognized op_code")
	}
}

func TestDecodeRejectsOverBudgetLength(t *testing.T) {
	encoded := EncodeQuery(sampleQuery())

	d := NewDecoder(Callbacks{}, int32(len(encoded)-1))
	buf := buffer.New(nil, nil)
	buf.Add(encoded)
	if err := d.Feed(buf); err == nil {
		t.Fatal("expected a decode error for a message over the configured cap")
	}
}

func TestDecodeQueryWithoutReturnFieldsSelector(t *testing.T) {
	m := sampleQuery()
	m.ReturnFieldsSelector = nil
	encoded := EncodeQuery(m)

	var got *Query
	d := NewDecoder(Callbacks{OnQuery: func(q *Query) { got = q }}, 0)
	buf := buffer.New(nil, nil)
	buf.Add(encoded)
	if err := d.Feed(buf); err != nil {
		t.Fatal(err)
	}
	if got.ReturnFieldsSelector != nil {
		t.Fatalf("ReturnFieldsSelector = %+v, want nil", got.ReturnFieldsSelector)
	}
}
