// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package accesslog

import (
	"strings"
	"testing"
	"time"
)

type fakeSink struct {
	lines []string
}

func (f *fakeSink) Write(line string) {
	f.lines = append(f.lines, line)
}

func TestLogRequestFormatsCollectionRecord(t *testing.T) {
	sink := &fakeSink{}
	al := New(sink)
	al.LogRequest(Record{
		Collection: "test",
		Caller:     "getByMongoId",
		Flags:      0x32,
		Latency:    5 * time.Millisecond,
		MatchedAt:  time.Unix(0, 0),
	})
	if len(sink.lines) != 1 {
		t.Fatalf("lines = %v", sink.lines)
	}
	line := sink.lines[0]
	if !strings.Contains(line, "collection=test") || !strings.Contains(line, "caller=getByMongoId") {
		t.Fatalf("line = %q", line)
	}
}

func TestLogRequestFormatsCommandRecord(t *testing.T) {
	sink := &fakeSink{}
	al := New(sink)
	al.LogRequest(Record{Command: "foo", MatchedAt: time.Unix(0, 0)})
	if !strings.Contains(sink.lines[0], "cmd=foo") {
		t.Fatalf("line = %q", sink.lines[0])
	}
	if strings.Contains(sink.lines[0], "collection=") {
		t.Fatalf("line = %q, should not mention a collection", sink.lines[0])
	}
}

func TestLogRequestToleratesNilSink(t *testing.T) {
	al := New(nil)
	al.LogRequest(Record{Collection: "test"})
}
