// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package depset

import (
	"bytes"
	"testing"
)

func TestInspectLeafEnvelope(t *testing.T) {
	set := NewBuilder[string](OrderCompile).Add("inspect.x").Build()
	blob := mustWrite(t, stringCodec, set)

	info, err := InspectEnvelope(blob, true)
	if err != nil {
		t.Fatalf("InspectEnvelope failed: %v", err)
	}
	if info.FrameCount != 1 || info.Order != OrderCompile {
		t.Fatalf("envelope = %d frames, order %v; want 1 frame, compile", info.FrameCount, info.Order)
	}
	frame := info.Frames[0]
	if frame.Kind != FrameLeaf {
		t.Fatalf("frame kind = %v, want leaf", frame.Kind)
	}
	if string(frame.Payload) != "inspect.x" {
		t.Errorf("payload = %q, want %q", frame.Payload, "inspect.x")
	}
}

func TestInspectRejectsTrailingBytes(t *testing.T) {
	set := NewBuilder[string](OrderStable).Add("inspect.trail").Build()
	blob := mustWrite(t, stringCodec, set)

	_, err := InspectEnvelope(append(bytes.Clone(blob), 0xAA), false)
	if !IsKind(err, KindMalformed) {
		t.Fatalf("InspectEnvelope(trailing byte) = %v, want malformed", err)
	}
}

func TestInspectVerifyCatchesCorruption(t *testing.T) {
	set := NewBuilder[string](OrderStable).Add("inspect.va", "inspect.vb").Build()
	blob := bytes.Clone(mustWrite(t, stringCodec, set))
	blob[len(blob)-1] ^= 0x01 // last payload byte

	if _, err := InspectEnvelope(blob, false); err != nil {
		t.Fatalf("trusting inspection failed: %v", err)
	}
	if _, err := InspectEnvelope(blob, true); !IsKind(err, KindMalformed) {
		t.Fatalf("verifying inspection = %v, want malformed", err)
	}
}

func TestInspectDetectsForwardReference(t *testing.T) {
	// Hand-build an envelope whose only frame references a digest that
	// no earlier frame produced.
	var ref Digest
	body := []byte{0x02, 0x01, 0x10}
	body = append(body, ref[:]...)
	body = append(body, 0x00, 0x01, 'z')

	forged := []byte{0x01, 0x00, 0x10}
	forged = append(forged, make([]byte, DigestSize)...)
	forged = append(forged, byte(len(body)))
	forged = append(forged, body...)

	if _, err := InspectEnvelope(forged, false); !IsKind(err, KindMissingReference) {
		t.Fatalf("InspectEnvelope(forward reference) = %v, want missing reference", err)
	}
}

func TestFrameKindString(t *testing.T) {
	cases := map[FrameKind]string{
		FrameEmpty:    "empty",
		FrameLeaf:     "leaf",
		FrameBranch:   "branch",
		FrameKind(99): "invalid",
	}
	for kind, want := range cases {
		if got := kind.String(); got != want {
			t.Errorf("FrameKind(%d).String() = %q, want %q", int(kind), got, want)
		}
	}
}
