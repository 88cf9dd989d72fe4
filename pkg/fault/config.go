// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package fault

import (
	"encoding/json"
	"fmt"
)

// Config is the immutable, parsed form of a fixed-delay fault rule. A zero
// Config (Enabled false) means no delay is ever injected.
type Config struct {
	Enabled          bool
	DelayPercent     uint32
	DelayDurationMS  uint64
}

type document struct {
	FixedDelay *fixedDelay `json:"fixed_delay"`
}

type fixedDelay struct {
	Percent     *uint32 `json:"percent"`
	DurationMS  *uint64 `json:"duration_ms"`
}

// Parse decodes the fixed_delay fault schema. A document with no
// fixed_delay key parses to a disabled Config, not an error. Both fields are
// required when fixed_delay is present.
func Parse(raw []byte) (Config, error) {
	if len(raw) == 0 {
		return Config{}, nil
	}
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Config{}, fmt.Errorf("fault: bad config: %w", err)
	}
	if doc.FixedDelay == nil {
		return Config{}, nil
	}
	if doc.FixedDelay.Percent == nil || doc.FixedDelay.DurationMS == nil {
		return Config{}, fmt.Errorf("fault: fixed_delay requires both percent and duration_ms")
	}
	if *doc.FixedDelay.Percent > 100 {
		return Config{}, fmt.Errorf("fault: percent %d out of range 0..100", *doc.FixedDelay.Percent)
	}
	return Config{
		Enabled:         true,
		DelayPercent:    *doc.FixedDelay.Percent,
		DelayDurationMS: *doc.FixedDelay.DurationMS,
	}, nil
}
