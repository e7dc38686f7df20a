// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package depset

import (
	"bytes"
	"crypto/md5"
	"encoding/binary"
	"io"
	"math"
	"sync/atomic"

	"google.golang.org/protobuf/encoding/protowire"
)

// Codec serializes and deserializes nested sets over a caller-supplied
// payload codec. A codec is stateless apart from its configuration and
// is safe for concurrent use; per-call tables live on the stack of
// each Write/Read.
//
// Wire layout of a blob:
//
//	envelope := count:varint order:varint frame{count}
//	frame    := digest:bytes(16, length-prefixed) body:bytes(length-prefixed)
//	body     := k:varint payload            -- k == 1, leaf
//	          | k:varint entry{k}           -- k >= 2, branch
//	          | k:varint                    -- k == 0, empty (never top-level)
//	entry    := 0x00 payload | 0x01 digest:bytes(16, length-prefixed)
//
// Varints are protobuf wire format in shortest form; booleans are a
// single 0x00 or 0x01 byte. This canonical form is what digests are
// computed over — any deviation changes digests and silently breaks
// sharing, so it is normative.
type Codec[T any] struct {
	payloads PayloadCodec[T]
	verify   bool
}

// Option configures a Codec.
type Option func(*codecConfig)

type codecConfig struct {
	verify bool
}

// WithVerifyDigests makes Read recompute the MD5 of every frame body
// and fail with a malformed error when it differs from the declared
// digest. The default is to trust the sender's digest as the interning
// key without recomputing, matching the producing side of the build:
// verification doubles the hashing cost and the digest is a content
// address, not an authenticator.
func WithVerifyDigests() Option {
	return func(c *codecConfig) { c.verify = true }
}

// NewCodec returns a codec over the given payload codec.
func NewCodec[T any](payloads PayloadCodec[T], opts ...Option) *Codec[T] {
	var config codecConfig
	for _, opt := range opts {
		opt(&config)
	}
	return &Codec[T]{payloads: payloads, verify: config.verify}
}

// serializationDisabled gates all encoding and decoding. Set only in
// test environments that construct codecs without exercising their
// semantics.
var serializationDisabled atomic.Bool

// SetSerializationEnabled toggles nested-set serialization
// process-wide and returns the previous setting. When disabled, Write
// emits nothing and Read consumes nothing and returns the
// stable-order empty set. This discards data — it exists for unit
// tests only.
func SetSerializationEnabled(enabled bool) bool {
	return !serializationDisabled.Swap(!enabled)
}

// maxFrameBody caps a single frame's declared body length. Real
// frames are small (a frame holds one node, not a sub-graph); a
// declared length beyond this is corruption, not data.
const maxFrameBody = 1 << 30

// Write serializes set to w: a varint node count, the order ordinal,
// then one frame per distinct children node in topological order, so
// every reference a frame contains names an already-written frame.
//
// Empty sets are refused with an [KindEmptySet] error: the envelope
// guarantees at least one frame, and callers represent emptiness
// out-of-band.
//
// On error the stream is not rewound; callers must discard partially
// written output.
func (c *Codec[T]) Write(w io.Writer, set Set[T]) error {
	if serializationDisabled.Load() {
		return nil
	}
	if set.IsEmpty() {
		return codecError(KindEmptySet, "empty sets are represented out of band by the caller")
	}

	nodes, err := topoSort(set.children)
	if err != nil {
		return err
	}

	var scratch [2 * binary.MaxVarintLen64]byte
	header := protowire.AppendVarint(scratch[:0], uint64(len(nodes)))
	header = protowire.AppendVarint(header, uint64(set.order))
	if _, err := w.Write(header); err != nil {
		return err
	}

	digests := make(map[*Node[T]]Digest, len(nodes))
	var body bytes.Buffer
	for i, node := range nodes {
		body.Reset()
		if err := c.writeFrame(w, &body, node, digests, i); err != nil {
			return err
		}
	}
	return nil
}

// writeFrame encodes one node: the body is streamed simultaneously
// into body and the digest engine, then emitted as
// [digest][length][body]. The node's digest is recorded for the
// frames above it.
func (c *Codec[T]) writeFrame(w io.Writer, body *bytes.Buffer, node *Node[T], digests map[*Node[T]]Digest, index int) error {
	hashed := newDigestWriter(body)
	if err := c.writeBody(hashed, node, digests, index); err != nil {
		return err
	}
	digest := hashed.Sum()

	var scratch [DigestSize + 2*binary.MaxVarintLen64]byte
	header := protowire.AppendBytes(scratch[:0], digest[:])
	header = protowire.AppendVarint(header, uint64(body.Len()))
	if _, err := w.Write(header); err != nil {
		return err
	}
	if _, err := w.Write(body.Bytes()); err != nil {
		return err
	}

	digests[node] = digest
	return nil
}

// writeBody emits a node's canonical body encoding: the entry count,
// then for branches each entry as a boolean byte followed by a child
// digest or a payload.
func (c *Codec[T]) writeBody(w io.Writer, node *Node[T], digests map[*Node[T]]Digest, index int) error {
	var scratch [DigestSize + binary.MaxVarintLen64]byte

	if node.leaf {
		if _, err := w.Write(protowire.AppendVarint(scratch[:0], 1)); err != nil {
			return err
		}
		if err := c.payloads.Encode(w, node.payload); err != nil {
			return frameError(KindPayload, index, "encoding payload: %w", err)
		}
		return nil
	}

	if _, err := w.Write(protowire.AppendVarint(scratch[:0], uint64(len(node.entries)))); err != nil {
		return err
	}
	for _, entry := range node.entries {
		if entry.IsRef() {
			digest, ok := digests[entry.node]
			if !ok {
				return codecError(KindOrderingViolation, "child digest not yet computed")
			}
			field := append(scratch[:0], 0x01)
			field = protowire.AppendBytes(field, digest[:])
			if _, err := w.Write(field); err != nil {
				return err
			}
			continue
		}
		if _, err := w.Write([]byte{0x00}); err != nil {
			return err
		}
		if err := c.payloads.Encode(w, entry.payload); err != nil {
			return frameError(KindPayload, index, "encoding payload: %w", err)
		}
	}
	return nil
}

// Read deserializes one nested set from r. Frames are read in the
// order the writer emitted them; references resolve against the
// frames already read in this call, and every completed node is
// passed through the process-wide interner so equal sub-graphs across
// blobs collapse to a single node. The last frame is the root.
func (c *Codec[T]) Read(r io.Reader) (Set[T], error) {
	if serializationDisabled.Load() {
		return Empty[T](OrderStable), nil
	}

	in := asPayloadReader(r)

	count, err := binary.ReadUvarint(in)
	if err != nil {
		return Set[T]{}, codecError(KindMalformed, "reading frame count: %w", err)
	}
	if count == 0 {
		return Set[T]{}, codecError(KindMalformed, "envelope contains no frames")
	}
	if count > math.MaxInt32 {
		return Set[T]{}, codecError(KindMalformed, "impossible frame count %d", count)
	}

	ordinal, err := binary.ReadUvarint(in)
	if err != nil {
		return Set[T]{}, codecError(KindMalformed, "reading order: %w", err)
	}
	order, err := orderFromOrdinal(ordinal)
	if err != nil {
		return Set[T]{}, codecError(KindMalformed, "%w", err)
	}

	tableSize := int(count)
	if tableSize > 1024 {
		tableSize = 1024
	}
	local := make(map[Digest]*Node[T], tableSize)

	// The root is whatever the final frame produced.
	var root *Node[T]
	for i := 0; i < int(count); i++ {
		root, err = c.readFrame(in, local, i)
		if err != nil {
			return Set[T]{}, err
		}
	}
	return NewSet(order, root), nil
}

// readFrame reads one frame, resolves its references against local,
// and returns the interned node. The frame's digest is copied into an
// owned value before any table uses it.
func (c *Codec[T]) readFrame(in PayloadReader, local map[Digest]*Node[T], index int) (*Node[T], error) {
	digestLen, err := binary.ReadUvarint(in)
	if err != nil {
		return nil, frameError(KindMalformed, index, "reading digest length: %w", err)
	}
	if digestLen != DigestSize {
		return nil, frameError(KindMalformed, index, "digest length %d, want %d", digestLen, DigestSize)
	}
	var digest Digest
	if _, err := io.ReadFull(in, digest[:]); err != nil {
		return nil, frameError(KindMalformed, index, "reading digest: %w", err)
	}

	bodyLen, err := binary.ReadUvarint(in)
	if err != nil {
		return nil, frameError(KindMalformed, index, "reading body length: %w", err)
	}
	if bodyLen > maxFrameBody {
		return nil, frameError(KindMalformed, index, "impossible body length %d", bodyLen)
	}
	bodyBytes := make([]byte, bodyLen)
	if _, err := io.ReadFull(in, bodyBytes); err != nil {
		return nil, frameError(KindMalformed, index, "reading %d body bytes: %w", bodyLen, err)
	}

	if c.verify {
		if computed := Digest(md5.Sum(bodyBytes)); computed != digest {
			return nil, frameError(KindMalformed, index,
				"declared digest %s does not match body digest %s", digest, computed)
		}
	}

	body := bytes.NewReader(bodyBytes)
	node, err := c.readBody(body, local, index)
	if err != nil {
		return nil, err
	}
	if body.Len() != 0 {
		return nil, frameError(KindMalformed, index, "%d trailing bytes after body", body.Len())
	}

	// Empty children are the nil sentinel: never interned, never
	// referenced by digest.
	if node != nil {
		node = internGetOrInsert(&globalInterner, digest, node)
	}
	local[digest] = node
	return node, nil
}

// readBody parses a frame body into a children node.
func (c *Codec[T]) readBody(body *bytes.Reader, local map[Digest]*Node[T], index int) (*Node[T], error) {
	entryCount, err := binary.ReadUvarint(body)
	if err != nil {
		return nil, frameError(KindMalformed, index, "reading entry count: %w", err)
	}

	switch {
	case entryCount == 0:
		return nil, nil

	case entryCount == 1:
		payload, err := c.payloads.Decode(body)
		if err != nil {
			return nil, frameError(KindPayload, index, "decoding payload: %w", err)
		}
		return NewLeaf(payload), nil

	default:
		// Every entry takes at least one byte, so an entry count
		// beyond the remaining body is corruption.
		if entryCount > uint64(body.Len()) {
			return nil, frameError(KindMalformed, index,
				"entry count %d exceeds %d remaining body bytes", entryCount, body.Len())
		}
		entries := make([]Entry[T], entryCount)
		for i := range entries {
			marker, err := body.ReadByte()
			if err != nil {
				return nil, frameError(KindMalformed, index, "reading entry marker: %w", err)
			}
			switch marker {
			case 0x00:
				payload, err := c.payloads.Decode(body)
				if err != nil {
					return nil, frameError(KindPayload, index, "decoding payload: %w", err)
				}
				entries[i] = PayloadEntry(payload)

			case 0x01:
				child, err := c.readReference(body, local, index)
				if err != nil {
					return nil, err
				}
				entries[i] = RefEntry(child)

			default:
				return nil, frameError(KindMalformed, index, "entry marker byte 0x%02x", marker)
			}
		}
		return NewBranch(entries), nil
	}
}

// readReference reads a length-prefixed digest and resolves it
// against the frames already read in this call.
func (c *Codec[T]) readReference(body *bytes.Reader, local map[Digest]*Node[T], index int) (*Node[T], error) {
	refLen, err := binary.ReadUvarint(body)
	if err != nil {
		return nil, frameError(KindMalformed, index, "reading reference length: %w", err)
	}
	if refLen != DigestSize {
		return nil, frameError(KindMalformed, index, "reference length %d, want %d", refLen, DigestSize)
	}
	var ref Digest
	if _, err := io.ReadFull(body, ref[:]); err != nil {
		return nil, frameError(KindMalformed, index, "reading reference digest: %w", err)
	}
	child, ok := local[ref]
	if !ok {
		return nil, frameError(KindMissingReference, index, "digest %s", ref)
	}
	if child == nil {
		return nil, frameError(KindMalformed, index, "reference to empty frame %s", ref)
	}
	return child, nil
}

// byteReader adapts a plain io.Reader. It never reads ahead, so the
// codec consumes exactly the envelope's bytes and leaves anything
// following it on the stream.
type byteReader struct {
	r       io.Reader
	scratch [1]byte
}

func (b *byteReader) Read(p []byte) (int, error) { return b.r.Read(p) }

func (b *byteReader) ReadByte() (byte, error) {
	if _, err := io.ReadFull(b.r, b.scratch[:]); err != nil {
		return 0, err
	}
	return b.scratch[0], nil
}

func asPayloadReader(r io.Reader) PayloadReader {
	if pr, ok := r.(PayloadReader); ok {
		return pr
	}
	return &byteReader{r: r}
}
