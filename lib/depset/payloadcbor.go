// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package depset

import (
	"fmt"
	"io"

	"github.com/bureau-foundation/depset/lib/codec"
)

// CBORCodec is a payload codec for arbitrary Go values, encoded with
// the repo's deterministic CBOR configuration and length-prefixed on
// the wire. Deterministic encoding matters here: node digests are
// computed over payload bytes, so the same logical payload must
// always produce the same bytes or sharing silently breaks.
type CBORCodec[T any] struct{}

// Encode marshals the payload to deterministic CBOR and writes it
// length-prefixed.
func (CBORCodec[T]) Encode(w io.Writer, payload T) error {
	data, err := codec.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling payload: %w", err)
	}
	return writeLengthPrefixed(w, data)
}

// Decode reads a length-prefixed CBOR item and unmarshals it.
func (CBORCodec[T]) Decode(r PayloadReader) (T, error) {
	var payload T
	data, err := readLengthPrefixed(r)
	if err != nil {
		return payload, err
	}
	if err := codec.Unmarshal(data, &payload); err != nil {
		return payload, fmt.Errorf("unmarshaling payload: %w", err)
	}
	return payload, nil
}
