// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package depset

import (
	"bytes"
	"crypto/md5"
	"encoding/binary"
	"io"
	"math"
)

// EnvelopeInfo describes a serialized blob without materializing
// nodes or touching the interner. Payloads are not decoded —
// inspection is payload-codec-agnostic, so payloads are carried as raw
// bytes for the caller to interpret.
type EnvelopeInfo struct {
	// FrameCount is the number of frames in the envelope.
	FrameCount int

	// Order is the nested set's order kind.
	Order Order

	// Frames holds one entry per frame, in wire order. The last
	// frame is the root.
	Frames []FrameInfo
}

// FrameKind classifies a frame body.
type FrameKind int

const (
	FrameEmpty FrameKind = iota
	FrameLeaf
	FrameBranch
)

// String returns the name of the frame kind.
func (k FrameKind) String() string {
	switch k {
	case FrameEmpty:
		return "empty"
	case FrameLeaf:
		return "leaf"
	case FrameBranch:
		return "branch"
	default:
		return "invalid"
	}
}

// FrameInfo describes one frame of a serialized blob.
type FrameInfo struct {
	// Digest is the frame's declared digest.
	Digest Digest

	// BodySize is the body length in bytes.
	BodySize int

	// Kind is the body's node kind.
	Kind FrameKind

	// Entries describes the branch entries, nil for empty and leaf
	// frames.
	Entries []EntryInfo

	// Payload is the raw payload bytes of a leaf frame.
	Payload []byte
}

// EntryInfo describes one branch entry.
type EntryInfo struct {
	// IsRef reports whether the entry references another frame.
	IsRef bool

	// Ref is the referenced digest when IsRef is set.
	Ref Digest

	// Payload is the raw payload bytes when IsRef is not set.
	Payload []byte
}

// ReadEnvelopeHeader parses the frame count and order from the head of
// a serialized blob without touching the frames. Stores record these
// two fields without paying for a full structural parse.
func ReadEnvelopeHeader(data []byte) (frameCount int, order Order, err error) {
	in := bytes.NewReader(data)

	count, err := binary.ReadUvarint(in)
	if err != nil {
		return 0, 0, codecError(KindMalformed, "reading frame count: %w", err)
	}
	if count == 0 {
		return 0, 0, codecError(KindMalformed, "envelope contains no frames")
	}
	if count > math.MaxInt32 {
		return 0, 0, codecError(KindMalformed, "impossible frame count %d", count)
	}

	ordinal, err := binary.ReadUvarint(in)
	if err != nil {
		return 0, 0, codecError(KindMalformed, "reading order: %w", err)
	}
	order, err = orderFromOrdinal(ordinal)
	if err != nil {
		return 0, 0, codecError(KindMalformed, "%w", err)
	}
	return int(count), order, nil
}

// InspectEnvelope parses a serialized blob into a structural
// description. When verify is set, each frame's declared digest is
// checked against the recomputed MD5 of its body.
//
// Inspection is independent of any payload codec: payload entries are
// returned as raw bytes (their trailing boundary is known because the
// only payload encodings this tool understands are the
// length-prefixed ones of [StringCodec], [BytesCodec], and
// [CBORCodec], which share a varint-length wire shape).
func InspectEnvelope(data []byte, verify bool) (*EnvelopeInfo, error) {
	in := bytes.NewReader(data)

	count, err := binary.ReadUvarint(in)
	if err != nil {
		return nil, codecError(KindMalformed, "reading frame count: %w", err)
	}
	if count == 0 {
		return nil, codecError(KindMalformed, "envelope contains no frames")
	}
	if count > math.MaxInt32 {
		return nil, codecError(KindMalformed, "impossible frame count %d", count)
	}

	ordinal, err := binary.ReadUvarint(in)
	if err != nil {
		return nil, codecError(KindMalformed, "reading order: %w", err)
	}
	order, err := orderFromOrdinal(ordinal)
	if err != nil {
		return nil, codecError(KindMalformed, "%w", err)
	}

	info := &EnvelopeInfo{
		FrameCount: int(count),
		Order:      order,
		Frames:     make([]FrameInfo, 0, min(int(count), 1024)),
	}
	known := make(map[Digest]struct{})

	for i := 0; i < int(count); i++ {
		frame, err := inspectFrame(in, known, i, verify)
		if err != nil {
			return nil, err
		}
		info.Frames = append(info.Frames, frame)
		known[frame.Digest] = struct{}{}
	}
	if in.Len() != 0 {
		return nil, codecError(KindMalformed, "%d trailing bytes after envelope", in.Len())
	}
	return info, nil
}

func inspectFrame(in *bytes.Reader, known map[Digest]struct{}, index int, verify bool) (FrameInfo, error) {
	var frame FrameInfo

	digestLen, err := binary.ReadUvarint(in)
	if err != nil {
		return frame, frameError(KindMalformed, index, "reading digest length: %w", err)
	}
	if digestLen != DigestSize {
		return frame, frameError(KindMalformed, index, "digest length %d, want %d", digestLen, DigestSize)
	}
	if _, err := io.ReadFull(in, frame.Digest[:]); err != nil {
		return frame, frameError(KindMalformed, index, "reading digest: %w", err)
	}

	bodyLen, err := binary.ReadUvarint(in)
	if err != nil {
		return frame, frameError(KindMalformed, index, "reading body length: %w", err)
	}
	if bodyLen > uint64(in.Len()) {
		return frame, frameError(KindMalformed, index,
			"body length %d exceeds %d remaining bytes", bodyLen, in.Len())
	}
	bodyBytes := make([]byte, bodyLen)
	if _, err := io.ReadFull(in, bodyBytes); err != nil {
		return frame, frameError(KindMalformed, index, "reading body: %w", err)
	}
	frame.BodySize = int(bodyLen)

	if verify {
		if computed := Digest(md5.Sum(bodyBytes)); computed != frame.Digest {
			return frame, frameError(KindMalformed, index,
				"declared digest %s does not match body digest %s", frame.Digest, computed)
		}
	}

	body := bytes.NewReader(bodyBytes)
	entryCount, err := binary.ReadUvarint(body)
	if err != nil {
		return frame, frameError(KindMalformed, index, "reading entry count: %w", err)
	}

	switch {
	case entryCount == 0:
		frame.Kind = FrameEmpty

	case entryCount == 1:
		frame.Kind = FrameLeaf
		payload, err := readLengthPrefixed(body)
		if err != nil {
			return frame, frameError(KindMalformed, index, "reading leaf payload: %w", err)
		}
		frame.Payload = payload

	default:
		frame.Kind = FrameBranch
		if entryCount > uint64(body.Len()) {
			return frame, frameError(KindMalformed, index,
				"entry count %d exceeds %d remaining body bytes", entryCount, body.Len())
		}
		frame.Entries = make([]EntryInfo, entryCount)
		for j := range frame.Entries {
			marker, err := body.ReadByte()
			if err != nil {
				return frame, frameError(KindMalformed, index, "reading entry marker: %w", err)
			}
			switch marker {
			case 0x00:
				payload, err := readLengthPrefixed(body)
				if err != nil {
					return frame, frameError(KindMalformed, index, "reading entry payload: %w", err)
				}
				frame.Entries[j].Payload = payload

			case 0x01:
				refLen, err := binary.ReadUvarint(body)
				if err != nil {
					return frame, frameError(KindMalformed, index, "reading reference length: %w", err)
				}
				if refLen != DigestSize {
					return frame, frameError(KindMalformed, index, "reference length %d, want %d", refLen, DigestSize)
				}
				frame.Entries[j].IsRef = true
				if _, err := io.ReadFull(body, frame.Entries[j].Ref[:]); err != nil {
					return frame, frameError(KindMalformed, index, "reading reference digest: %w", err)
				}
				if _, ok := known[frame.Entries[j].Ref]; !ok {
					return frame, frameError(KindMissingReference, index, "digest %s", frame.Entries[j].Ref)
				}

			default:
				return frame, frameError(KindMalformed, index, "entry marker byte 0x%02x", marker)
			}
		}
	}

	if body.Len() != 0 {
		return frame, frameError(KindMalformed, index, "%d trailing bytes after body", body.Len())
	}
	return frame, nil
}
