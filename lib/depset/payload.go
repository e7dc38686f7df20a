// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package depset

import (
	"encoding/binary"
	"fmt"
	"io"

	"google.golang.org/protobuf/encoding/protowire"
)

// PayloadReader is what a payload codec decodes from: the in-memory
// body of the frame in flight. Payload encodings must be
// self-delimiting — the codec reads exactly its own bytes and leaves
// the rest of the body untouched.
type PayloadReader interface {
	io.Reader
	io.ByteReader
}

// PayloadCodec serializes the element type carried by nested sets.
// The nested-set codec makes no assumptions about payload equality,
// hashability, or size; it only requires that Encode writes a
// self-delimiting, deterministic byte form (determinism is what keeps
// node digests stable) and that Decode is its exact inverse. Payload
// errors propagate to the caller unchanged, tagged with the frame
// that was in flight.
type PayloadCodec[T any] interface {
	Encode(w io.Writer, payload T) error
	Decode(r PayloadReader) (T, error)
}

// StringCodec encodes string payloads as a varint byte length
// followed by the raw bytes.
type StringCodec struct{}

// Encode writes the length-prefixed string.
func (StringCodec) Encode(w io.Writer, payload string) error {
	return writeLengthPrefixed(w, []byte(payload))
}

// Decode reads a length-prefixed string.
func (StringCodec) Decode(r PayloadReader) (string, error) {
	data, err := readLengthPrefixed(r)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// BytesCodec encodes raw byte payloads as a varint byte length
// followed by the bytes. Decode always returns an owned copy.
type BytesCodec struct{}

// Encode writes the length-prefixed bytes.
func (BytesCodec) Encode(w io.Writer, payload []byte) error {
	return writeLengthPrefixed(w, payload)
}

// Decode reads length-prefixed bytes.
func (BytesCodec) Decode(r PayloadReader) ([]byte, error) {
	return readLengthPrefixed(r)
}

// writeLengthPrefixed emits a varint length followed by data. The
// varint is protobuf wire format in shortest form — the canonical
// encoding every digest depends on.
func writeLengthPrefixed(w io.Writer, data []byte) error {
	var scratch [binary.MaxVarintLen64]byte
	if _, err := w.Write(protowire.AppendVarint(scratch[:0], uint64(len(data)))); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

// readLengthPrefixed reads a varint length and that many bytes. The
// length is validated against the remaining input when the reader can
// report it, so a corrupt length fails cleanly instead of allocating
// gigabytes.
func readLengthPrefixed(r PayloadReader) ([]byte, error) {
	length, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("reading length prefix: %w", err)
	}
	if remaining, ok := r.(interface{ Len() int }); ok && length > uint64(remaining.Len()) {
		return nil, fmt.Errorf("length prefix %d exceeds remaining %d bytes", length, remaining.Len())
	}
	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("reading %d payload bytes: %w", length, err)
	}
	return data, nil
}
