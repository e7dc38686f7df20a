// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package depset

// Node is a children node of a nested set: either a leaf carrying a
// single payload or a branch of two or more entries. The empty
// children sentinel is the nil *Node — nil has exactly one identity
// per process, which is what makes every deserialized empty set share
// the same sentinel.
//
// Nodes are immutable once exposed. Node identity (pointer equality)
// is the equality the rest of the system relies on: the writer keys
// its per-call digest table by node identity, and the interner
// guarantees at most one live node per digest.
type Node[T any] struct {
	payload T
	entries []Entry[T]
	leaf    bool
}

// Entry is one element of a branch: either a payload or a reference
// to another children node. Branch entries preserve the order the
// caller supplied; nothing in this package reorders them.
type Entry[T any] struct {
	node    *Node[T]
	payload T
}

// PayloadEntry returns an entry carrying a payload element.
func PayloadEntry[T any](payload T) Entry[T] {
	return Entry[T]{payload: payload}
}

// RefEntry returns an entry referencing another children node. The
// node must be non-nil: the empty sentinel is never referenced from a
// branch (empty transitive sets contribute nothing to their parents).
func RefEntry[T any](node *Node[T]) Entry[T] {
	if node == nil {
		panic("depset: RefEntry of nil node")
	}
	return Entry[T]{node: node}
}

// IsRef reports whether the entry references another children node.
func (e Entry[T]) IsRef() bool { return e.node != nil }

// Ref returns the referenced children node, or nil for a payload
// entry.
func (e Entry[T]) Ref() *Node[T] { return e.node }

// Payload returns the payload element. Only meaningful when IsRef
// reports false.
func (e Entry[T]) Payload() T { return e.payload }

// NewLeaf returns a children node holding a single payload.
func NewLeaf[T any](payload T) *Node[T] {
	return &Node[T]{payload: payload, leaf: true}
}

// NewBranch returns a children node over the given entries. Branches
// have at least two entries — a single payload is a leaf, a single
// reference is the referenced node itself, and zero entries is the
// empty sentinel. The entries slice is retained; the caller must not
// modify it afterwards.
func NewBranch[T any](entries []Entry[T]) *Node[T] {
	if len(entries) < 2 {
		panic("depset: branch requires at least two entries")
	}
	return &Node[T]{entries: entries}
}

// IsLeaf reports whether the node is a leaf.
func (n *Node[T]) IsLeaf() bool { return n != nil && n.leaf }

// Payload returns the leaf payload. Only meaningful for leaves.
func (n *Node[T]) Payload() T {
	if n == nil || !n.leaf {
		var zero T
		return zero
	}
	return n.payload
}

// Entries returns the branch entries, or nil for leaves and the empty
// sentinel. The returned slice is the node's own storage and must not
// be modified.
func (n *Node[T]) Entries() []Entry[T] {
	if n == nil {
		return nil
	}
	return n.entries
}
