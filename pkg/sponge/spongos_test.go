package sponge

import (
	"bytes"
	"testing"
)

func TestKeccakTransformChangesState(t *testing.T) {
	k := NewKeccakF1600()
	before := append([]byte{}, k.Outer()...)

	k.Transform()
	after := append([]byte{}, k.Outer()...)

	if bytes.Equal(before, after) {
		t.Fatal("Transform() left outer state unchanged")
	}

	k2 := NewKeccakF1600()
	k2.Transform()
	if !bytes.Equal(after, k2.Outer()) {
		t.Error("Transform() is not deterministic")
	}
}

func TestKeccakRateCapacitySplit(t *testing.T) {
	k := NewKeccakF1600()

	if k.Rate() != 168 {
		t.Errorf("Rate() = %d, want 168", k.Rate())
	}
	if k.Capacity() != 32 {
		t.Errorf("Capacity() = %d, want 32", k.Capacity())
	}
	if len(k.Outer())+len(k.Inner()) != 200 {
		t.Errorf("outer+inner = %d, want 200", len(k.Outer())+len(k.Inner()))
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	sizes := []int{0, 1, 27, 168, 169, 500}

	for _, n := range sizes {
		plaintext := make([]byte, n)
		for i := range plaintext {
			plaintext[i] = byte(i * 7)
		}

		enc := New()
		enc.Absorb([]byte("key material"))
		enc.Commit()
		ciphertext := make([]byte, n)
		if err := enc.Encrypt(plaintext, ciphertext); err != nil {
			t.Fatalf("Encrypt(n=%d) error = %v", n, err)
		}

		dec := New()
		dec.Absorb([]byte("key material"))
		dec.Commit()
		recovered := make([]byte, n)
		if err := dec.Decrypt(ciphertext, recovered); err != nil {
			t.Fatalf("Decrypt(n=%d) error = %v", n, err)
		}

		if !bytes.Equal(plaintext, recovered) {
			t.Errorf("n=%d: decrypted plaintext does not match", n)
		}
		if !enc.Equal(dec) {
			t.Errorf("n=%d: encrypt and decrypt sponge states diverged", n)
		}
	}
}

func TestEncryptLengthMismatch(t *testing.T) {
	s := New()
	if err := s.Encrypt(make([]byte, 4), make([]byte, 5)); err == nil {
		t.Error("Encrypt() with mismatched lengths should fail")
	}
	if err := s.Decrypt(make([]byte, 5), make([]byte, 4)); err == nil {
		t.Error("Decrypt() with mismatched lengths should fail")
	}
}

func TestSqueezeEq(t *testing.T) {
	a := New()
	a.Absorb([]byte("transcript"))
	a.Commit()
	tag := a.Squeeze(32)

	b := New()
	b.Absorb([]byte("transcript"))
	b.Commit()
	if !b.SqueezeEq(tag) {
		t.Error("SqueezeEq() = false for matching transcript")
	}

	c := New()
	c.Absorb([]byte("transcript"))
	c.Commit()
	tag[0] ^= 0x01
	if c.SqueezeEq(tag) {
		t.Error("SqueezeEq() = true for corrupted tag")
	}

	// state must advance identically either way
	if !b.Equal(c) {
		t.Error("SqueezeEq() advanced state differently on mismatch")
	}
}

func TestCommitIdempotent(t *testing.T) {
	s := New()
	s.Absorb([]byte{1, 2, 3})
	s.Commit()
	snapshot := s.Fork()
	s.Commit()
	if !s.Equal(snapshot) {
		t.Error("Commit() at position 0 must be a no-op")
	}
}

func TestForkIndependence(t *testing.T) {
	parent := New()
	parent.Absorb([]byte("trunk"))
	parent.Commit()

	fork := parent.Fork()
	if !fork.Equal(parent) {
		t.Fatal("Fork() must start equal to parent")
	}

	fork.Absorb([]byte("branch data"))
	fork.Commit()
	if fork.Equal(parent) {
		t.Error("mutating fork must not affect parent")
	}
}

func TestJoinIsOrderSensitive(t *testing.T) {
	mk := func(branch []byte) *Spongos {
		s := New()
		s.Absorb([]byte("base"))
		s.Commit()

		j := New()
		j.Absorb(branch)
		s.Join(j)
		s.Commit()
		return s
	}

	a := mk([]byte("one"))
	b := mk([]byte("one"))
	c := mk([]byte("two"))

	if !a.Equal(b) {
		t.Error("joining identical branches must produce identical states")
	}
	if a.Equal(c) {
		t.Error("joining different branches must produce different states")
	}
}

func TestJoinIsOneDirectional(t *testing.T) {
	joinee := New()
	joinee.Absorb([]byte("referenced message"))
	joinee.Commit()

	ref := joinee.Fork()

	parent := New()
	parent.Join(joinee)

	// joinee was committed+transformed+squeezed, but nothing of parent
	// flowed into it: rejoining from the preserved fork must agree.
	parent2 := New()
	parent2.Join(ref)
	parent.Commit()
	parent2.Commit()
	if !parent.Equal(parent2) {
		t.Error("Join() must depend only on the joinee state")
	}
}

func TestInnerRoundTrip(t *testing.T) {
	s := New()
	s.Absorb([]byte("persist me"))
	s.Commit()

	inner, err := s.Inner()
	if err != nil {
		t.Fatalf("Inner() error = %v", err)
	}
	if len(inner) != KeccakCapacity {
		t.Fatalf("Inner() length = %d, want %d", len(inner), KeccakCapacity)
	}

	restored, err := FromInner(inner)
	if err != nil {
		t.Fatalf("FromInner() error = %v", err)
	}

	// A restored sponge behaves like the original after a join: both
	// must produce the same digest for the same follow-up.
	j1 := New()
	j1.Join(s.Fork())
	j2 := New()
	j2.Join(restored)
	j1.Commit()
	j2.Commit()
	if !bytes.Equal(j1.Squeeze(32), j2.Squeeze(32)) {
		t.Error("restored sponge must join identically to the original")
	}
}

func TestInnerRequiresCommit(t *testing.T) {
	s := New()
	s.Absorb([]byte{0xff})
	if _, err := s.Inner(); err == nil {
		t.Error("Inner() on uncommitted sponge should fail")
	}
}

func TestHashDeterministic(t *testing.T) {
	h1 := Hash([]byte("data"), 32)
	h2 := Hash([]byte("data"), 32)
	h3 := Hash([]byte("datb"), 32)

	if !bytes.Equal(h1, h2) {
		t.Error("Hash() is not deterministic")
	}
	if bytes.Equal(h1, h3) {
		t.Error("Hash() collided on different inputs")
	}
}
