// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package setstore

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/bureau-foundation/depset/lib/depset"
)

// testEnvelope serializes a small nested set with repetitive string
// payloads (compressible, like real path sets).
func testEnvelope(t *testing.T, order depset.Order, payloads ...string) []byte {
	t.Helper()
	builder := depset.NewBuilder[string](order)
	builder.Add(payloads...)

	var buffer bytes.Buffer
	writer := depset.NewCodec[string](depset.StringCodec{})
	if err := writer.Write(&buffer, builder.Build()); err != nil {
		t.Fatalf("serializing test set: %v", err)
	}
	return buffer.Bytes()
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store
}

func TestPutGetRoundTrip(t *testing.T) {
	store := newTestStore(t)
	envelope := testEnvelope(t, depset.OrderCompile,
		"bazel-out/k8-fastbuild/bin/server/main.o",
		"bazel-out/k8-fastbuild/bin/server/handler.o",
		"bazel-out/k8-fastbuild/bin/lib/util.o",
	)

	result, err := store.Put(envelope, nil)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if result.Deduplicated {
		t.Error("first Put reported deduplication")
	}
	if result.UncompressedSize != int64(len(envelope)) {
		t.Errorf("uncompressed size = %d, want %d", result.UncompressedSize, len(envelope))
	}
	if result.FrameCount != 1 || result.Order != depset.OrderCompile {
		t.Errorf("header metadata = (%d frames, %v), want (1, compile)", result.FrameCount, result.Order)
	}

	got, err := store.Get(result.Hash)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, envelope) {
		t.Error("Get returned different bytes than Put stored")
	}
}

func TestPutDeduplicates(t *testing.T) {
	store := newTestStore(t)
	envelope := testEnvelope(t, depset.OrderStable, "dedup/a", "dedup/b")

	first, err := store.Put(envelope, nil)
	if err != nil {
		t.Fatalf("first Put: %v", err)
	}
	second, err := store.Put(envelope, nil)
	if err != nil {
		t.Fatalf("second Put: %v", err)
	}
	if !second.Deduplicated {
		t.Error("second Put of identical envelope did not deduplicate")
	}
	if second.Hash != first.Hash || second.Compression != first.Compression {
		t.Errorf("dedup result %+v differs from first %+v", second, first)
	}
}

func TestPutCompressionTags(t *testing.T) {
	store := newTestStore(t)

	for _, tag := range []CompressionTag{CompressionZstd, CompressionLZ4} {
		// Repetitive text compresses under every algorithm. The tag
		// name keeps the two envelopes distinct so the second Put is
		// not a dedup hit.
		compressible := testEnvelope(t, depset.OrderStable,
			strings.Repeat("path/to/generated/"+tag.String(), 40),
			strings.Repeat("path/to/generated/other", 40),
		)

		result, err := store.Put(compressible, &tag)
		if err != nil {
			t.Fatalf("Put(%v): %v", tag, err)
		}
		if result.Compression != tag {
			t.Errorf("compression = %v, want %v", result.Compression, tag)
		}
		if result.CompressedSize >= result.UncompressedSize {
			t.Errorf("%v did not shrink the blob: %d >= %d", tag, result.CompressedSize, result.UncompressedSize)
		}
		if got, err := store.Get(result.Hash); err != nil || !bytes.Equal(got, compressible) {
			t.Errorf("Get after %v Put = (%d bytes, %v)", tag, len(got), err)
		}
	}
}

func TestPutFallsBackOnIncompressibleData(t *testing.T) {
	store := newTestStore(t)

	// High-entropy payloads defeat block compression; the store must
	// fall back to storing the envelope as-is.
	payload := make([]byte, 4096)
	state := uint64(0x9e3779b97f4a7c15)
	for i := range payload {
		state ^= state << 13
		state ^= state >> 7
		state ^= state << 17
		payload[i] = byte(state)
	}
	envelope := testEnvelope(t, depset.OrderStable, string(payload), "second")

	tag := CompressionLZ4
	result, err := store.Put(envelope, &tag)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if result.Compression != CompressionNone {
		t.Errorf("compression = %v, want fallback to none", result.Compression)
	}
	if result.CompressedSize != result.UncompressedSize {
		t.Errorf("fallback sizes differ: %d != %d", result.CompressedSize, result.UncompressedSize)
	}

	got, err := store.Get(result.Hash)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, envelope) {
		t.Error("Get returned different bytes than Put stored")
	}
}

func TestPutRejectsGarbage(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Put([]byte{0x00}, nil); err == nil {
		t.Error("Put accepted bytes that are not an envelope")
	}
}

func TestStatAndExists(t *testing.T) {
	store := newTestStore(t)
	envelope := testEnvelope(t, depset.OrderLink, "stat/a", "stat/b", "stat/c")

	result, err := store.Put(envelope, nil)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	record, err := store.Stat(result.Hash)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if record.Version != RecordVersion {
		t.Errorf("record version = %d, want %d", record.Version, RecordVersion)
	}
	if record.BlobHash != result.Hash {
		t.Errorf("record blob hash = %s, want %s", record.BlobHash, result.Hash)
	}
	if record.FrameCount != 1 || depset.Order(record.Order) != depset.OrderLink {
		t.Errorf("record header = (%d frames, ordinal %d), want (1, link)", record.FrameCount, record.Order)
	}

	if !store.Exists(result.Hash) {
		t.Error("Exists = false for a stored blob")
	}
	if store.Exists(HashBlob([]byte("absent"))) {
		t.Error("Exists = true for an absent blob")
	}

	var absent Hash
	if _, err := store.Stat(absent); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Stat(absent) = %v, want wrapped not-exist", err)
	}
}

func TestDelete(t *testing.T) {
	store := newTestStore(t)
	envelope := testEnvelope(t, depset.OrderStable, "del/a", "del/b")

	result, err := store.Put(envelope, nil)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := store.Delete(result.Hash); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if store.Exists(result.Hash) {
		t.Error("blob still exists after Delete")
	}
	if _, err := store.Get(result.Hash); err == nil {
		t.Error("Get succeeded after Delete")
	}
	if err := store.Delete(result.Hash); err == nil {
		t.Error("second Delete of the same blob succeeded")
	}
}

func TestGetDetectsCorruptedBlob(t *testing.T) {
	store := newTestStore(t)
	envelope := testEnvelope(t, depset.OrderStable, "corrupt/a", "corrupt/b")

	// Store uncompressed so flipping a byte is a pure content change
	// rather than a decompression failure.
	tag := CompressionNone
	result, err := store.Put(envelope, &tag)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	path := store.BlobPath(result.Hash)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading blob file: %v", err)
	}
	data[len(data)-1] ^= 0x01
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("writing corrupted blob: %v", err)
	}

	if _, err := store.Get(result.Hash); err == nil {
		t.Error("Get accepted a corrupted blob")
	}
}

func TestRoundTripThroughCodec(t *testing.T) {
	// Full path: build, serialize, store, fetch, deserialize.
	store := newTestStore(t)
	stringCodec := depset.NewCodec[string](depset.StringCodec{})

	inner := depset.NewBuilder[string](depset.OrderStable).Add("lib.a", "lib.b").Build()
	root := depset.NewBuilder[string](depset.OrderStable).AddTransitive(inner).Add("main.o").Build()

	var buffer bytes.Buffer
	if err := stringCodec.Write(&buffer, root); err != nil {
		t.Fatalf("Write: %v", err)
	}

	result, err := store.Put(buffer.Bytes(), nil)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if result.FrameCount != 2 {
		t.Errorf("frame count = %d, want 2", result.FrameCount)
	}

	fetched, err := store.Get(result.Hash)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	set, err := stringCodec.Read(bytes.NewReader(fetched))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got := set.Flatten(); len(got) != 3 || got[0] != "lib.a" || got[2] != "main.o" {
		t.Errorf("Flatten() = %v, want [lib.a lib.b main.o]", got)
	}
}
