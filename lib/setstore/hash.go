// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package setstore

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// Hash is a 32-byte BLAKE3 digest identifying a stored blob.
type Hash [32]byte

// blobDomainKey is the 32-byte key for BLAKE3 keyed hashing of
// envelope bytes. It is a fixed constant — changing it invalidates
// every existing store. The byte values are the ASCII encoding of the
// domain name, zero-padded to 32 bytes, so the key is recognizable in
// hex dumps without sacrificing any cryptographic property.
var blobDomainKey = [32]byte{
	'd', 'e', 'p', 's', 'e', 't', '.', 'b', 'l', 'o', 'b',
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// HashBlob computes the blob-domain BLAKE3 keyed hash of uncompressed
// envelope bytes. This is the blob's identity: it keys the on-disk
// layout, the metadata record, and deduplication.
func HashBlob(data []byte) Hash {
	// NewKeyed only fails for a wrong key length, which the fixed-size
	// array rules out.
	hasher, err := blake3.NewKeyed(blobDomainKey[:])
	if err != nil {
		panic("setstore: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(data)
	var hash Hash
	copy(hash[:], hasher.Sum(nil))
	return hash
}

// String returns the hex-encoded form of the hash, the canonical
// format for metadata, logs, and CLI output.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// MarshalText implements encoding.TextMarshaler. Hashes serialize as
// their hex form in CBOR and JSON.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := ParseHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// ParseHash parses a 64-character hex string into a Hash.
func ParseHash(hexString string) (Hash, error) {
	var hash Hash
	decoded, err := hex.DecodeString(hexString)
	if err != nil {
		return hash, fmt.Errorf("parsing blob hash: %w", err)
	}
	if len(decoded) != len(hash) {
		return hash, fmt.Errorf("blob hash is %d bytes, want %d", len(decoded), len(hash))
	}
	copy(hash[:], decoded)
	return hash, nil
}
