// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package accesslog formats one line per completed request/reply pair and
// hands it to an external, fire-and-forget file sink.
package accesslog
