// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package depset implements immutable nested sets — rooted DAGs of
// payload elements with deep structural sharing — and their wire codec.
//
// A nested set pairs an order kind with a children node. A children
// node is empty, a single payload (leaf), or a branch of two or more
// entries, each entry being a payload or a reference to another
// children node. The same node may be referenced from many parents;
// that sharing is what keeps large dependency graphs affordable, and
// preserving it across serialization is the codec's whole job.
//
// On the wire, every distinct node is emitted exactly once per blob:
// the sub-graph is topologically sorted so a child's MD5 digest is
// known before any parent references it, and parents encode edges as
// digests. On read, a process-wide weak-valued interner maps digests
// back to previously materialized nodes, so equal sub-graphs across
// independent blobs collapse to a single node in memory.
//
// Nodes are immutable once exposed. Two sets are equal when their
// order kinds match and their children nodes are the same node.
package depset
