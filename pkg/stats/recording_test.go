// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package stats

import (
	"testing"
	"time"
)

func TestRecordingAccumulatesCounters(t *testing.T) {
	r := NewRecording()
	r.Counter("op_query")
	r.Counter("op_query")
	r.CounterBy("op_query", 3)
	if v := r.CounterValue("op_query"); v != 5 {
		t.Fatalf("v = %d, want 5", v)
	}
	if v := r.CounterValue("never_touched"); v != 0 {
		t.Fatalf("v = %d, want 0", v)
	}
}

func TestRecordingGauge(t *testing.T) {
	r := NewRecording()
	r.GaugeAdd("op_query_active", 1)
	r.GaugeAdd("op_query_active", 1)
	r.GaugeAdd("op_query_active", -1)
	if v := r.GaugeValue("op_query_active"); v != 1 {
		t.Fatalf("v = %f, want 1", v)
	}
	r.Gauge("op_query_active", 0)
	if v := r.GaugeValue("op_query_active"); v != 0 {
		t.Fatalf("v = %f, want 0", v)
	}
}

func TestRecordingHistogramAndTiming(t *testing.T) {
	r := NewRecording()
	r.DeliverHistogramToSinks("collection.test.reply_size", 22)
	r.DeliverHistogramToSinks("collection.test.reply_size", 48)
	if got := r.HistogramValues("collection.test.reply_size"); len(got) != 2 || got[0] != 22 || got[1] != 48 {
		t.Fatalf("got %v", got)
	}

	r.DeliverTimingToSinks("collection.test.reply_time_ms", 5*time.Millisecond)
	if got := r.TimingValues("collection.test.reply_time_ms"); len(got) != 1 || got[0] != 5*time.Millisecond {
		t.Fatalf("got %v", got)
	}
}
