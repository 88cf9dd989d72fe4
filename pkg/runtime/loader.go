// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package runtime

import "math/rand"

// Loader is the runtime configuration service contract the proxy filter
// depends on. A lookup failure is never surfaced as an error; it is treated
// as "use the default" at the call site.
type Loader interface {
	// FeatureEnabled samples key against defaultPercent (or an overridden
	// percent, if one is set) and reports whether this call is selected.
	FeatureEnabled(key string, defaultPercent uint32) bool
	// GetInteger returns the overridden value for key, or def if none is set.
	GetInteger(key string, def int64) int64
}

// Static is a process-local Loader backed by an in-memory overlay, suitable
// for standalone operation and for tests that want deterministic gates.
type Static struct {
	percents map[string]uint32
	integers map[string]int64
}

// NewStatic returns a Loader with an empty overlay; every key falls back to
// its caller-supplied default until SetPercent/SetInteger override it.
func NewStatic() *Static {
	return &Static{
		percents: make(map[string]uint32),
		integers: make(map[string]int64),
	}
}

// SetPercent overrides the effective percent for key.
func (s *Static) SetPercent(key string, percent uint32) {
	s.percents[key] = percent
}

// SetInteger overrides the effective integer value for key.
func (s *Static) SetInteger(key string, value int64) {
	s.integers[key] = value
}

// FeatureEnabled draws a uniform sample in [0, 100) and selects if it falls
// below the effective percent; a percent of 0 never selects, 100 always
// does.
func (s *Static) FeatureEnabled(key string, defaultPercent uint32) bool {
	percent := defaultPercent
	if p, ok := s.percents[key]; ok {
		percent = p
	}
	if percent == 0 {
		return false
	}
	if percent >= 100 {
		return true
	}
	return uint32(rand.Intn(100)) < percent
}

// GetInteger returns the overridden value for key, or def.
func (s *Static) GetInteger(key string, def int64) int64 {
	if v, ok := s.integers[key]; ok {
		return v
	}
	return def
}
