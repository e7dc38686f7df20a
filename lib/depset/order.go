// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package depset

import "fmt"

// Order identifies the traversal ordering a nested set was built for.
// It is metadata only: nothing in this package reorders children. The
// ordinal values are wire constants — they are written into serialized
// envelopes, so new kinds must be appended, never inserted.
type Order uint8

const (
	// OrderStable preserves insertion order.
	OrderStable Order = 0

	// OrderCompile is left-to-right post-order.
	OrderCompile Order = 1

	// OrderLink is topological order, parents before children.
	OrderLink Order = 2

	// OrderNaiveLink is left-to-right pre-order.
	OrderNaiveLink Order = 3
)

// orderCount is the number of defined order kinds. Ordinals at or
// above this value are rejected on read.
const orderCount = 4

// String returns the human-readable name of an order kind.
func (o Order) String() string {
	switch o {
	case OrderStable:
		return "stable"
	case OrderCompile:
		return "compile"
	case OrderLink:
		return "link"
	case OrderNaiveLink:
		return "naive_link"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(o))
	}
}

// ParseOrder parses an order kind from its string representation.
func ParseOrder(name string) (Order, error) {
	switch name {
	case "stable":
		return OrderStable, nil
	case "compile":
		return OrderCompile, nil
	case "link":
		return OrderLink, nil
	case "naive_link":
		return OrderNaiveLink, nil
	default:
		return 0, fmt.Errorf("unknown order kind: %q", name)
	}
}

// orderFromOrdinal converts a wire ordinal into an Order, rejecting
// values outside the defined range.
func orderFromOrdinal(ordinal uint64) (Order, error) {
	if ordinal >= orderCount {
		return 0, fmt.Errorf("order ordinal %d out of range", ordinal)
	}
	return Order(ordinal), nil
}
