// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package depset

import "testing"

func TestOrderStringRoundTrip(t *testing.T) {
	for ordinal := Order(0); ordinal < orderCount; ordinal++ {
		parsed, err := ParseOrder(ordinal.String())
		if err != nil {
			t.Errorf("ParseOrder(%q) failed: %v", ordinal.String(), err)
			continue
		}
		if parsed != ordinal {
			t.Errorf("ParseOrder(%q) = %v, want %v", ordinal.String(), parsed, ordinal)
		}
	}
}

func TestParseOrderRejectsUnknown(t *testing.T) {
	if _, err := ParseOrder("alphabetical"); err == nil {
		t.Error("ParseOrder accepted an unknown name")
	}
}

func TestOrderFromOrdinalRejectsOutOfRange(t *testing.T) {
	if _, err := orderFromOrdinal(orderCount); err == nil {
		t.Error("orderFromOrdinal accepted an out-of-range ordinal")
	}
	if got, err := orderFromOrdinal(2); err != nil || got != OrderLink {
		t.Errorf("orderFromOrdinal(2) = (%v, %v), want link", got, err)
	}
}

func TestDigestParseRoundTrip(t *testing.T) {
	var digest Digest
	for i := range digest {
		digest[i] = byte(i * 7)
	}
	parsed, err := ParseDigest(digest.String())
	if err != nil {
		t.Fatalf("ParseDigest failed: %v", err)
	}
	if parsed != digest {
		t.Errorf("ParseDigest(%s) = %s", digest, parsed)
	}
}

func TestParseDigestRejectsBadInput(t *testing.T) {
	if _, err := ParseDigest("abcd"); err == nil {
		t.Error("ParseDigest accepted a short string")
	}
	if _, err := ParseDigest("zz000000000000000000000000000000"); err == nil {
		t.Error("ParseDigest accepted non-hex characters")
	}
}

func TestErrorMessageNamesKindAndFrame(t *testing.T) {
	err := frameError(KindMissingReference, 3, "digest %s", Digest{})
	want := "depset: missing reference (frame 3): digest 00000000000000000000000000000000"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	if got := codecError(KindEmptySet, "cannot serialize the empty set").Error(); got != "depset: empty set: cannot serialize the empty set" {
		t.Errorf("Error() = %q", got)
	}
}
