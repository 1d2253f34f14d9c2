package signing

import "testing"

func TestSigner_Digest(t *testing.T) {
	s := NewSigner("secret")

	a := s.Digest("content", "a@example.com", "100", "confirm_subscription")
	b := s.Digest("content", "a@example.com", "100", "confirm_subscription")
	if a != b {
		t.Fatal("Digest() should be deterministic")
	}
	if len(a) != 64 {
		t.Errorf("len(Digest()) = %d, want 64 hex chars", len(a))
	}
}

func TestSigner_DigestSeparatesParts(t *testing.T) {
	s := NewSigner("secret")

	if s.Digest("ab", "c") == s.Digest("a", "bc") {
		t.Error("Digest() should not collide when parts shift")
	}
}

func TestSigner_DifferentSecrets(t *testing.T) {
	if NewSigner("one").Digest("x") == NewSigner("two").Digest("x") {
		t.Error("different secrets should produce different digests")
	}
}

func TestSigner_Verify(t *testing.T) {
	s := NewSigner("secret")
	d := s.Digest("x", "y")

	if !s.Verify(d, "x", "y") {
		t.Error("Verify() = false for matching digest")
	}
	if s.Verify(d, "x", "z") {
		t.Error("Verify() = true for different parts")
	}
}
