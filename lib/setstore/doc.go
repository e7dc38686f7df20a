// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package setstore persists serialized nested-set envelopes in a local
// content-addressed store.
//
// A blob's identity is the domain-keyed BLAKE3 hash of its uncompressed
// envelope bytes, so storing the same envelope twice is a no-op. Blobs
// are compressed on the way in (zstd or lz4 block, with a fallback to
// uncompressed storage when the data does not shrink) and laid out in
// sharded directories alongside a CBOR metadata record per blob. All
// writes go through a temp file and an atomic rename.
package setstore
