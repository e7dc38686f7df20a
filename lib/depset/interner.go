// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package depset

import (
	"runtime"
	"sync"
	"weak"
)

// interner is the process-wide weak-valued map from digest to
// deserialized children node. It is the sole mechanism restoring
// structural sharing across independent deserializations: any two
// live nodes with the same digest collapse to one through it, and a
// thread reading many blobs never rebuilds a sub-graph it already
// holds.
//
// Values are held weakly, so an entry vanishes (and its node becomes
// collectable) as soon as no caller retains the node. Dead entries
// are purged by a runtime cleanup attached to each interned node and
// opportunistically when a lookup encounters them.
//
// The map is striped by digest prefix to tolerate high
// deserialization concurrency. Node values are stored behind an
// any-typed accessor because the map spans every payload-type
// instantiation of the codec, exactly as the original's object-valued
// map did.
type interner struct {
	shards [internShardCount]internShard
}

const internShardCount = 64

type internShard struct {
	mu sync.Mutex
	// entries maps a digest to an accessor returning a strong
	// reference to the interned node, or nil once it has been
	// collected.
	entries map[Digest]func() any
}

// globalInterner is shared by every codec in the process.
var globalInterner interner

// shard picks the stripe for a digest. The digest is already a
// uniform hash, so the first byte is as good a shard key as any.
func (in *interner) shard(digest Digest) *internShard {
	return &in.shards[digest[0]%internShardCount]
}

// internGetOrInsert returns the live node interned under digest, or
// installs candidate and returns it. The insert is atomic with
// single-winner semantics: of two concurrent calls with the same
// digest, one installs its candidate and the other adopts the
// winner's node, dropping its own.
//
// A live entry holding a node of a different payload-type
// instantiation is left in place and the candidate is returned
// uninterned. The digest is a content address of identical bytes, so
// this only happens when two codecs decode the same bytes as
// different Go types — neither can adopt the other's node.
func internGetOrInsert[T any](in *interner, digest Digest, candidate *Node[T]) *Node[T] {
	shard := in.shard(digest)

	shard.mu.Lock()
	if accessor, ok := shard.entries[digest]; ok {
		if value := accessor(); value != nil {
			shard.mu.Unlock()
			if node, ok := value.(*Node[T]); ok {
				return node
			}
			return candidate
		}
		// Entry is dead: the node was collected. Replace it below.
	}

	pointer := weak.Make(candidate)
	if shard.entries == nil {
		shard.entries = make(map[Digest]func() any)
	}
	shard.entries[digest] = func() any {
		if node := pointer.Value(); node != nil {
			return node
		}
		return nil
	}
	shard.mu.Unlock()

	// Purge the entry when the node is collected. The cleanup
	// receives only the digest, never the node, so it cannot keep the
	// node alive.
	runtime.AddCleanup(candidate, func(d Digest) {
		in.purgeDead(d)
	}, digest)

	return candidate
}

// purgeDead removes the entry for digest if its node has been
// collected. A live entry is left alone: the digest may have been
// re-interned with a new node between the old node's death and this
// cleanup running.
func (in *interner) purgeDead(digest Digest) {
	shard := in.shard(digest)
	shard.mu.Lock()
	if accessor, ok := shard.entries[digest]; ok && accessor() == nil {
		delete(shard.entries, digest)
	}
	shard.mu.Unlock()
}

// internedLive reports whether a live node is currently interned
// under digest. Test hook.
func (in *interner) internedLive(digest Digest) bool {
	shard := in.shard(digest)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	accessor, ok := shard.entries[digest]
	return ok && accessor() != nil
}
