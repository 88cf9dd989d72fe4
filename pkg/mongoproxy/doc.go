// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package mongoproxy implements the per-connection proxy filter: it owns a
// request decoder and a reply decoder, derives statistics and access-log
// entries from decoded messages, matches replies to active requests, and
// applies fixed-delay fault injection by gating the read side of the
// connection.
package mongoproxy
