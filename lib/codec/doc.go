// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the repository's standard CBOR encoding
// configuration.
//
// CBOR appears in two places: as the payload encoding behind
// depset.CBORCodec, and as the format of the blob store's metadata
// records. Both demand byte-for-byte determinism, because content
// digests are computed over encoded bytes and a nondeterministic
// encoding would silently break structural sharing.
//
// This package provides the shared encoding and decoding modes so that
// every package encodes identically without duplicating configuration.
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2): sorted
// map keys, smallest integer encoding, no indefinite-length items.
// Same logical data always produces identical bytes.
//
// For buffer-oriented operations:
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For stream-oriented operations:
//
//	encoder := codec.NewEncoder(w)
//	decoder := codec.NewDecoder(r)
//
// Internal-only types use `cbor` struct tags. Types that also surface
// in CLI --json output use `json` tags alone; fxamacker/cbor reads
// them as fallback, so one tag controls field naming and omitempty for
// both formats. Never put both tags on the same field.
package codec
