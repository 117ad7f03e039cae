package crypto

import (
	"errors"
	"testing"
)

func TestDigest_KeyMatters(t *testing.T) {
	a := NewSigner("a", nil).Digest().Record("x").Sum()
	b := NewSigner("b", nil).Digest().Record("x").Sum()
	if len(a) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(a))
	}
	if a == b {
		t.Fatal("different keys produced the same digest")
	}
}

func TestDigest_VerifyMismatch(t *testing.T) {
	s := NewSigner("key", nil)
	sig := s.Digest().Record("ledger").Sum()

	if err := s.Digest().Record("ledger!").Verify(sig); !errors.Is(err, ErrFingerprintMismatch) {
		t.Fatalf("expected ErrFingerprintMismatch, got %v", err)
	}
	if err := s.Digest().Record("ledger").Verify(""); !errors.Is(err, ErrFingerprintMismatch) {
		t.Fatalf("expected ErrFingerprintMismatch for empty signature, got %v", err)
	}
}

func TestDigest_Deterministic(t *testing.T) {
	s := NewSigner("key", nil)

	first := s.Digest().Record("account", 1, 500).Record("supply", 500).Sum()
	second := s.Digest().Record("account", 1, 500).Record("supply", 500).Sum()
	if first != second {
		t.Fatalf("digests differ: %s vs %s", first, second)
	}

	if err := s.Digest().Record("account", 1, 500).Record("supply", 500).Verify(first); err != nil {
		t.Fatalf("expected digest to verify, got %v", err)
	}
}

func TestDigest_FieldBoundaries(t *testing.T) {
	s := NewSigner("key", nil)

	joined := s.Digest().Record("ab", "c").Sum()
	split := s.Digest().Record("a", "bc").Sum()
	lines := s.Digest().Record("ab").Record("c").Sum()

	if joined == split || joined == lines {
		t.Fatal("field or record boundaries are not part of the digest")
	}
}
