// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package breaker

import (
	"errors"
	"testing"
	"time"
)

func TestOpensAfterMaxFailures(t *testing.T) {
	cb := New(Config{MaxFailures: 2, ResetTimeout: 50 * time.Millisecond, SuccessThreshold: 1})

	boom := errors.New("dial refused")
	cb.Call(func() error { return boom })
	if cb.State() != StateClosed {
		t.Fatalf("state = %v, want closed after 1 failure", cb.State())
	}
	cb.Call(func() error { return boom })
	if cb.State() != StateOpen {
		t.Fatalf("state = %v, want open after 2 failures", cb.State())
	}

	if err := cb.Call(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
}

func TestHalfOpenClosesAfterSuccessThreshold(t *testing.T) {
	cb := New(Config{MaxFailures: 1, ResetTimeout: 10 * time.Millisecond, SuccessThreshold: 2})

	cb.Call(func() error { return errors.New("boom") })
	if cb.State() != StateOpen {
		t.Fatalf("state = %v, want open", cb.State())
	}

	time.Sleep(20 * time.Millisecond)

	cb.Call(func() error { return nil })
	if cb.State() != StateHalfOpen {
		t.Fatalf("state = %v, want half_open after 1 success", cb.State())
	}
	cb.Call(func() error { return nil })
	if cb.State() != StateClosed {
		t.Fatalf("state = %v, want closed after success threshold", cb.State())
	}
}

func TestHalfOpenFailureReopens(t *testing.T) {
	cb := New(Config{MaxFailures: 1, ResetTimeout: 10 * time.Millisecond, SuccessThreshold: 2})

	cb.Call(func() error { return errors.New("boom") })
	time.Sleep(20 * time.Millisecond)

	cb.Call(func() error { return errors.New("still down") })
	if cb.State() != StateOpen {
		t.Fatalf("state = %v, want open after half-open failure", cb.State())
	}
}
