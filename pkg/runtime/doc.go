// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package runtime is the narrow runtime-configuration-service interface the
// proxy filter consults for feature gates and scalar overrides: a
// probabilistic percent gate and an integer lookup, both falling back to a
// caller-supplied default rather than erroring.
package runtime
