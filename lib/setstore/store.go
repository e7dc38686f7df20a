// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package setstore

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/bureau-foundation/depset/lib/codec"
	"github.com/bureau-foundation/depset/lib/depset"
)

// Directory names within the store root.
const (
	blobDir = "blobs"
	metaDir = "meta"
	tmpDir  = "tmp"
)

// RecordVersion is the current metadata record format version.
const RecordVersion = 1

// Store manages a local directory of serialized nested-set blobs.
//
// The store is safe for concurrent reads. Concurrent Puts of the same
// envelope are harmless (both produce identical files and the rename
// is atomic), but Put and Delete of the same hash must be serialized
// by the caller.
type Store struct {
	root string
}

// NewStore creates a Store rooted at the given directory. The
// directory structure is created if it does not exist.
func NewStore(root string) (*Store, error) {
	for _, dir := range []string{
		root,
		filepath.Join(root, blobDir),
		filepath.Join(root, metaDir),
		filepath.Join(root, tmpDir),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating store directory %s: %w", dir, err)
		}
	}
	return &Store{root: root}, nil
}

// Record is the CBOR metadata record stored next to each blob.
type Record struct {
	// Version is the record format version.
	Version int `cbor:"version"`

	// BlobHash is the blob-domain hash of the uncompressed envelope.
	BlobHash Hash `cbor:"blob_hash"`

	// UncompressedSize is the envelope length in bytes.
	UncompressedSize int64 `cbor:"uncompressed_size"`

	// CompressedSize is the on-disk blob length in bytes.
	CompressedSize int64 `cbor:"compressed_size"`

	// Compression is the algorithm the blob is stored with.
	Compression CompressionTag `cbor:"compression"`

	// FrameCount is the envelope's frame count, taken from its header.
	FrameCount int `cbor:"frame_count"`

	// Order is the wire ordinal of the envelope's order kind.
	Order uint8 `cbor:"order"`
}

// PutResult is returned by [Store.Put] with metadata about the stored
// blob.
type PutResult struct {
	// Hash is the blob identity.
	Hash Hash

	// UncompressedSize is the envelope length in bytes.
	UncompressedSize int64

	// CompressedSize is the on-disk blob length in bytes.
	CompressedSize int64

	// Compression is the algorithm the blob was stored with.
	Compression CompressionTag

	// FrameCount is the envelope's frame count.
	FrameCount int

	// Order is the envelope's order kind.
	Order depset.Order

	// Deduplicated reports whether an identical blob was already
	// stored, in which case nothing was written.
	Deduplicated bool
}

// Put stores a serialized envelope. The envelope header is parsed to
// record the frame count and order, but frames are not decoded. If
// compressionOverride is non-nil it overrides the probe-based
// algorithm selection; either way an incompressible envelope falls
// back to uncompressed storage.
//
// Storing an envelope that is already present is a no-op reported via
// [PutResult.Deduplicated].
func (s *Store) Put(envelope []byte, compressionOverride *CompressionTag) (*PutResult, error) {
	frameCount, order, err := depset.ReadEnvelopeHeader(envelope)
	if err != nil {
		return nil, fmt.Errorf("parsing envelope header: %w", err)
	}

	hash := HashBlob(envelope)

	// Dedup: an existing record means an identical blob is already on
	// disk (the hash covers the full envelope).
	if record, err := s.readRecord(hash); err == nil {
		return &PutResult{
			Hash:             hash,
			UncompressedSize: record.UncompressedSize,
			CompressedSize:   record.CompressedSize,
			Compression:      record.Compression,
			FrameCount:       record.FrameCount,
			Order:            depset.Order(record.Order),
			Deduplicated:     true,
		}, nil
	}

	var compression CompressionTag
	if compressionOverride != nil {
		compression = *compressionOverride
	} else {
		compression = SelectCompression(envelope)
	}

	compressed, actualTag, err := compressWithFallback(envelope, compression)
	if err != nil {
		return nil, fmt.Errorf("compressing blob %s: %w", hash, err)
	}

	if err := s.writeAtomic(s.BlobPath(hash), "blob-*.bin", compressed); err != nil {
		return nil, err
	}

	record := &Record{
		Version:          RecordVersion,
		BlobHash:         hash,
		UncompressedSize: int64(len(envelope)),
		CompressedSize:   int64(len(compressed)),
		Compression:      actualTag,
		FrameCount:       frameCount,
		Order:            uint8(order),
	}
	data, err := codec.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("marshaling record for %s: %w", hash, err)
	}
	if err := s.writeAtomic(s.recordPath(hash), "meta-*.cbor", data); err != nil {
		return nil, err
	}

	return &PutResult{
		Hash:             hash,
		UncompressedSize: record.UncompressedSize,
		CompressedSize:   record.CompressedSize,
		Compression:      actualTag,
		FrameCount:       frameCount,
		Order:            order,
	}, nil
}

// Get returns the uncompressed envelope bytes for a stored blob. The
// decompressed size and blob hash are both re-checked against the
// metadata record, so on-disk corruption surfaces here rather than as
// a codec failure downstream.
func (s *Store) Get(hash Hash) ([]byte, error) {
	record, err := s.readRecord(hash)
	if err != nil {
		return nil, err
	}

	compressed, err := os.ReadFile(s.BlobPath(hash))
	if err != nil {
		return nil, fmt.Errorf("reading blob %s: %w", hash, err)
	}
	if int64(len(compressed)) != record.CompressedSize {
		return nil, fmt.Errorf("blob %s is %d bytes on disk, record says %d",
			hash, len(compressed), record.CompressedSize)
	}

	envelope, err := DecompressBlob(compressed, record.Compression, int(record.UncompressedSize))
	if err != nil {
		return nil, fmt.Errorf("decompressing blob %s: %w", hash, err)
	}

	if computed := HashBlob(envelope); computed != hash {
		return nil, fmt.Errorf("blob %s hash verification failed: computed %s", hash, computed)
	}
	return envelope, nil
}

// Stat returns the metadata record for a stored blob without reading
// its content. The error wraps os.ErrNotExist when the blob is not
// stored.
func (s *Store) Stat(hash Hash) (*Record, error) {
	return s.readRecord(hash)
}

// Exists checks whether a blob's metadata record exists on disk.
func (s *Store) Exists(hash Hash) bool {
	_, err := os.Stat(s.recordPath(hash))
	return err == nil
}

// Delete removes a blob and its metadata record. Deleting a blob that
// is not stored is an error.
func (s *Store) Delete(hash Hash) error {
	if err := os.Remove(s.recordPath(hash)); err != nil {
		return fmt.Errorf("removing record for %s: %w", hash, err)
	}
	if err := os.Remove(s.BlobPath(hash)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing blob %s: %w", hash, err)
	}
	return nil
}

// BlobPath returns the sharded filesystem path for a blob. Blobs are
// sharded by the first two bytes of the hash hex:
// blobs/a3/f9/a3f9b2c1e7d4...
func (s *Store) BlobPath(hash Hash) string {
	hex := hash.String()
	return filepath.Join(s.root, blobDir, hex[:2], hex[2:4], hex)
}

// recordPath returns the sharded filesystem path for a metadata
// record.
func (s *Store) recordPath(hash Hash) string {
	hex := hash.String()
	return filepath.Join(s.root, metaDir, hex[:2], hex[2:4], hex+".cbor")
}

// readRecord reads and validates a blob's metadata record.
func (s *Store) readRecord(hash Hash) (*Record, error) {
	data, err := os.ReadFile(s.recordPath(hash))
	if err != nil {
		return nil, fmt.Errorf("reading record for %s: %w", hash, err)
	}
	var record Record
	if err := codec.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("unmarshaling record for %s: %w", hash, err)
	}
	if record.Version != RecordVersion {
		return nil, fmt.Errorf("record for %s has version %d, want %d", hash, record.Version, RecordVersion)
	}
	if record.BlobHash != hash {
		return nil, fmt.Errorf("record for %s names blob hash %s", hash, record.BlobHash)
	}
	return &record, nil
}

// writeAtomic writes data to path via a temp file and an atomic
// rename, creating the shard directory as needed.
func (s *Store) writeAtomic(path, tmpPattern string, data []byte) error {
	tmpFile, err := os.CreateTemp(filepath.Join(s.root, tmpDir), tmpPattern)
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("writing %s: %w", tmpPath, err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", tmpPath, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating shard directory for %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming to %s: %w", path, err)
	}
	success = true
	return nil
}

// compressWithFallback attempts to compress data with the given
// algorithm, falling back to CompressionNone when the data is
// incompressible.
func compressWithFallback(data []byte, tag CompressionTag) ([]byte, CompressionTag, error) {
	if tag == CompressionNone {
		return data, CompressionNone, nil
	}

	compressed, err := CompressBlob(data, tag)
	if err != nil {
		if IsIncompressible(err) {
			return data, CompressionNone, nil
		}
		return nil, 0, err
	}
	return compressed, tag, nil
}
