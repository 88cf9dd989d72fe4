// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package stats

import "time"

// Noop discards everything. Useful when a proxy is run without a configured
// backend, or in benchmarks that want to exclude the sink from the profile.
type Noop struct{}

func (Noop) Counter(string)                                  {}
func (Noop) CounterBy(string, uint64)                         {}
func (Noop) Gauge(string, float64)                            {}
func (Noop) GaugeAdd(string, float64)                         {}
func (Noop) DeliverHistogramToSinks(string, float64)          {}
func (Noop) DeliverTimingToSinks(string, time.Duration)       {}
