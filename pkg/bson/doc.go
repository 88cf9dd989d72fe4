// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package bson implements the subset of the BSON document format used
// inside MongoDB wire-protocol messages: typed key/value documents, arrays,
// and the primitive element types a proxy needs to inspect query and reply
// payloads without a full client driver.
package bson
