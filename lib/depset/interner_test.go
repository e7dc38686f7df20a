// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package depset

import (
	"bytes"
	"runtime"
	"testing"
	"time"

	"github.com/bureau-foundation/depset/lib/testutil"
)

func TestConcurrentReadsConverge(t *testing.T) {
	// Many goroutines deserializing the same blob must all end up
	// holding the same root node, whichever one wins the intern race.
	set := NewBuilder[string](OrderStable).
		Add(testutil.UniqueID("conv"), testutil.UniqueID("conv")).
		Build()
	blob := mustWrite(t, stringCodec, set)

	const readers = 32
	results := make(chan *Node[string], readers)
	for i := 0; i < readers; i++ {
		go func() {
			result, err := stringCodec.Read(bytes.NewReader(blob))
			if err != nil {
				results <- nil
				return
			}
			results <- result.Children()
		}()
	}

	first := testutil.RequireReceive(t, results, 10*time.Second, "first reader")
	if first == nil {
		t.Fatal("reader failed")
	}
	for i := 1; i < readers; i++ {
		node := testutil.RequireReceive(t, results, 10*time.Second, "reader %d", i)
		if node != first {
			t.Fatalf("reader %d produced a distinct node", i)
		}
	}
}

func TestInternerReleasesUnreferencedNodes(t *testing.T) {
	// The interner holds nodes weakly: once no caller retains a
	// deserialized node, its entry must become collectable rather than
	// pinning the node for the life of the process.
	digest := func() Digest {
		set := NewBuilder[string](OrderStable).
			Add(testutil.UniqueID("weak"), testutil.UniqueID("weak")).
			Build()
		blob := mustWrite(t, stringCodec, set)

		info, err := InspectEnvelope(blob, false)
		if err != nil {
			t.Fatalf("InspectEnvelope failed: %v", err)
		}
		rootDigest := info.Frames[len(info.Frames)-1].Digest

		result := mustRead(t, stringCodec, blob)
		if !globalInterner.internedLive(rootDigest) {
			t.Fatal("freshly read root is not interned")
		}
		runtime.KeepAlive(result)
		return rootDigest
	}()

	deadline := time.Now().Add(10 * time.Second)
	for globalInterner.internedLive(digest) {
		if time.Now().After(deadline) {
			t.Fatal("interner still holds the node after all references dropped")
		}
		runtime.GC()
		time.Sleep(10 * time.Millisecond)
	}
}

func TestInternerSurvivesReinterning(t *testing.T) {
	// Reading a blob again after its nodes were collected must install
	// fresh nodes rather than returning dead entries.
	set := NewBuilder[string](OrderStable).
		Add(testutil.UniqueID("reint"), testutil.UniqueID("reint")).
		Build()
	blob := mustWrite(t, stringCodec, set)

	func() {
		_ = mustRead(t, stringCodec, blob)
	}()
	runtime.GC()
	runtime.GC()

	result := mustRead(t, stringCodec, blob)
	if got := result.Flatten(); len(got) != 2 {
		t.Fatalf("Flatten() = %v, want two payloads", got)
	}
}

func TestCrossTypeDecodeDoesNotShareNodes(t *testing.T) {
	// StringCodec and BytesCodec share a wire shape, so the same blob
	// decodes under both and yields identical digests. The interner
	// must not hand a *Node[string] to the []byte codec or vice versa.
	bytesCodec := NewCodec[[]byte](BytesCodec{})

	payload := testutil.UniqueID("xtype")
	set := NewBuilder[string](OrderStable).Add(payload, payload+"2").Build()
	blob := mustWrite(t, stringCodec, set)

	asStrings := mustRead(t, stringCodec, blob)

	asBytes, err := bytesCodec.Read(bytes.NewReader(blob))
	if err != nil {
		t.Fatalf("bytes Read failed: %v", err)
	}
	if got := asBytes.Flatten(); len(got) != 2 || string(got[0]) != payload {
		t.Fatalf("bytes Flatten() = %q, want [%q %q]", got, payload, payload+"2")
	}
	runtime.KeepAlive(asStrings)
}
