// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package buffer

import (
	"io"
	"testing"
)

func newPipe(t *testing.T) (*io.PipeReader, *io.PipeWriter) {
	t.Helper()
	r, w := io.Pipe()
	return r, w
}

const tenBytes = "0123456789"

func newTestBuffer() (*Watermark, *int, *int) {
	var lowCalled, highCalled int
	b := New(func() { lowCalled++ }, func() { highCalled++ })
	if err := b.SetWatermarks(5, 10); err != nil {
		panic(err)
	}
	return b, &lowCalled, &highCalled
}

func TestAdd(t *testing.T) {
	b, _, high := newTestBuffer()

	b.Add([]byte(tenBytes))
	if *high != 0 {
		t.Fatalf("high called %d times, want 0", *high)
	}

	b.Add([]byte("a"))
	if *high != 1 {
		t.Fatalf("high called %d times, want 1", *high)
	}
	if b.Len() != 11 {
		t.Fatalf("len = %d, want 11", b.Len())
	}
}

func TestCommit(t *testing.T) {
	b, _, high := newTestBuffer()

	reserved := b.Reserve(10)
	copy(reserved, tenBytes)
	b.Commit(reserved)

	if *high != 1 {
		t.Fatalf("high called %d times, want 1", *high)
	}
	if b.Len() != 10 {
		t.Fatalf("len = %d, want 10", b.Len())
	}
}

func TestDrain(t *testing.T) {
	b, low, high := newTestBuffer()

	// Draining from above to below the low watermark does nothing if the
	// high watermark never got hit.
	b.Add([]byte(tenBytes))
	b.Drain(10)
	if *high != 0 || *low != 0 {
		t.Fatalf("high=%d low=%d, want 0 0", *high, *low)
	}

	// Go above the high watermark then drain down to just at the low
	// watermark: draining to exactly L must not fire low.
	b.Add([]byte(tenBytes[:10]))
	b.Add([]byte("a"))
	b.Drain(6)
	if b.Len() != 5 {
		t.Fatalf("len = %d, want 5", b.Len())
	}
	if *low != 0 {
		t.Fatalf("low called %d times, want 0", *low)
	}

	// Now drain below.
	b.Drain(1)
	if *low != 1 {
		t.Fatalf("low called %d times, want 1", *low)
	}

	// Going back above should trigger the high again.
	b.Add([]byte(tenBytes))
	if *high != 2 {
		t.Fatalf("high called %d times, want 2", *high)
	}
}

func TestMoveFullBuffer(t *testing.T) {
	b, _, high := newTestBuffer()
	b.Add([]byte(tenBytes))

	other, _, _ := newTestBuffer()
	other.Add([]byte("a"))

	if *high != 0 {
		t.Fatalf("high called %d times, want 0", *high)
	}
	b.Move(other)
	if *high != 1 {
		t.Fatalf("high called %d times, want 1", *high)
	}
	if b.Len() != 11 {
		t.Fatalf("len = %d, want 11", b.Len())
	}
}

func TestMoveOneByte(t *testing.T) {
	b, _, high := newTestBuffer()
	b.Add([]byte(tenBytes[:9]))

	src, _, _ := newTestBuffer()
	src.Add([]byte("ab"))

	b.MoveN(src, 1)
	if *high != 0 {
		t.Fatalf("high called %d times, want 0", *high)
	}
	if b.Len() != 10 {
		t.Fatalf("len = %d, want 10", b.Len())
	}

	b.MoveN(src, 1)
	if *high != 1 {
		t.Fatalf("high called %d times, want 1", *high)
	}
	if b.Len() != 11 {
		t.Fatalf("len = %d, want 11", b.Len())
	}
}

func TestSetWatermarksReconfiguration(t *testing.T) {
	b, low, high := newTestBuffer()
	b.Add([]byte(tenBytes[:9]))
	if *high != 0 {
		t.Fatalf("high called %d times, want 0", *high)
	}

	if err := b.SetWatermarks(1, 9); err != nil {
		t.Fatal(err)
	}
	if *high != 0 {
		t.Fatalf("high called %d times, want 0", *high)
	}

	if err := b.SetWatermarks(1, 8); err != nil {
		t.Fatal(err)
	}
	if *high != 1 {
		t.Fatalf("high called %d times, want 1", *high)
	}

	if err := b.SetWatermarks(9, 20); err != nil {
		t.Fatal(err)
	}
	if *low != 0 {
		t.Fatalf("low called %d times, want 0", *low)
	}

	if err := b.SetWatermarks(10, 20); err != nil {
		t.Fatal(err)
	}
	if *low != 1 {
		t.Fatalf("low called %d times, want 1", *low)
	}

	if err := b.SetWatermarks(8, 20); err != nil {
		t.Fatal(err)
	}
	if err := b.SetWatermarks(10, 20); err != nil {
		t.Fatal(err)
	}
	if *low != 1 {
		t.Fatalf("low called %d times, want 1", *low)
	}
}

func TestSetWatermarksRejectsInverted(t *testing.T) {
	b, _, _ := newTestBuffer()
	if err := b.SetWatermarks(10, 5); err == nil {
		t.Fatal("expected error for low > high")
	}
}

func TestGetRawSlicesAndSearch(t *testing.T) {
	b, _, _ := newTestBuffer()
	b.Add([]byte(tenBytes))

	if got := string(b.Bytes()); got != tenBytes {
		t.Fatalf("Bytes() = %q, want %q", got, tenBytes)
	}

	if idx := b.Search([]byte(tenBytes[1:3]), 0); idx != 1 {
		t.Fatalf("Search = %d, want 1", idx)
	}
	if idx := b.Search([]byte(tenBytes[1:3]), 5); idx != -1 {
		t.Fatalf("Search = %d, want -1", idx)
	}
}

func TestMoveBackWithWatermarks(t *testing.T) {
	b, lowB, highB := newTestBuffer()
	buffer1, low1, high1 := newTestBuffer()

	// Stick 20 bytes in b and expect the high watermark is hit.
	b.Add([]byte(tenBytes))
	b.Add([]byte(tenBytes))
	if *highB != 1 {
		t.Fatalf("highB = %d, want 1", *highB)
	}

	// Move 10 bytes to the new buffer. Nothing should happen.
	buffer1.MoveN(b, 10)
	if *high1 != 0 {
		t.Fatalf("high1 = %d, want 0", *high1)
	}

	// Move 10 more bytes. Both buffers should hit watermark callbacks.
	buffer1.MoveN(b, 10)
	if *high1 != 1 {
		t.Fatalf("high1 = %d, want 1", *high1)
	}
	if *lowB != 1 {
		t.Fatalf("lowB = %d, want 1", *lowB)
	}

	// Move all the data back to the original buffer. Watermarks should
	// trigger immediately.
	b.Move(buffer1)
	if *highB != 2 {
		t.Fatalf("highB = %d, want 2", *highB)
	}
	if *low1 != 1 {
		t.Fatalf("low1 = %d, want 1", *low1)
	}
}

func TestReadFromWriteTo(t *testing.T) {
	b, low, high := newTestBuffer()

	pr, pw := newPipe(t)
	defer pr.Close()
	defer pw.Close()

	go func() {
		pw.Write([]byte(tenBytes))
		pw.Write([]byte(tenBytes))
		pw.Close()
	}()

	total := 0
	for total < 20 {
		n, err := b.ReadFrom(pr, 20)
		total += n
		if err != nil {
			break
		}
		if *high > 0 {
			break
		}
	}
	if *high == 0 {
		t.Fatal("expected high watermark to fire while reading")
	}

	out, wr := newPipe(t)
	defer out.Close()
	defer wr.Close()
	done := make(chan struct{})
	go func() {
		buf := make([]byte, 64)
		for {
			if _, err := out.Read(buf); err != nil {
				close(done)
				return
			}
		}
	}()

	for b.Len() > 0 {
		if _, err := b.WriteTo(wr); err != nil {
			break
		}
	}
	wr.Close()
	<-done
	if *low == 0 {
		t.Fatal("expected low watermark to fire while draining")
	}
}
