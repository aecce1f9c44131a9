package sponge

import (
	"errors"
	"fmt"
)

var (
	ErrLengthMismatch = errors.New("plaintext and ciphertext length mismatch")
	ErrNotCommitted   = errors.New("spongos not committed, outer position is not 0")
	ErrBadInnerSize   = errors.New("invalid inner state size")
)

// Spongos wraps a PRP with a cursor into the outer state, providing the
// duplex operations the codec is built on: absorb, squeeze, encrypt,
// decrypt, commit, fork and join.
//
// A Spongos has strictly sequential semantics and must never be mutated
// concurrently. Forked copies are fully independent and safe to use from
// separate goroutines.
type Spongos struct {
	prp PRP
	pos int
}

// New creates a Spongos over a zeroed Keccak-f[1600] permutation.
func New() *Spongos {
	return NewWithPRP(NewKeccakF1600())
}

// NewWithPRP creates a Spongos over the supplied permutation.
// It panics if the permutation's state split is inconsistent; such a
// mismatch is a build-time misconfiguration, not a runtime condition.
func NewWithPRP(prp PRP) *Spongos {
	if len(prp.Outer()) != prp.Rate() || len(prp.Inner()) != prp.Capacity() {
		panic(fmt.Sprintf("sponge: rate/capacity split mismatch (outer=%d rate=%d inner=%d capacity=%d)",
			len(prp.Outer()), prp.Rate(), len(prp.Inner()), prp.Capacity()))
	}
	return &Spongos{prp: prp}
}

// Capacity returns the size in bytes of the inner state.
func (s *Spongos) Capacity() int { return s.prp.Capacity() }

// outerChunk returns the outer state slice from the current position,
// at most n bytes long, capped at the rate boundary.
func (s *Spongos) outerChunk(n int) []byte {
	m := s.pos + n
	if m > s.prp.Rate() {
		m = s.prp.Rate()
	}
	return s.prp.Outer()[s.pos:m]
}

// advance moves the cursor and transforms when the outer region fills.
func (s *Spongos) advance(n int) {
	s.pos += n
	if s.pos == s.prp.Rate() {
		s.Commit()
	}
}

// Absorb XORs data into the outer state, transforming at each rate
// boundary. A partial trailing chunk leaves the transform deferred
// until Commit.
func (s *Spongos) Absorb(data []byte) {
	for len(data) > 0 {
		chunk := s.outerChunk(len(data))
		n := len(chunk)
		for i := range chunk {
			chunk[i] ^= data[i]
		}
		data = data[n:]
		s.advance(n)
	}
}

// SqueezeInto fills out with pseudo-random bytes derived from the outer
// state, transforming as needed.
func (s *Spongos) SqueezeInto(out []byte) {
	for len(out) > 0 {
		chunk := s.outerChunk(len(out))
		n := len(chunk)
		copy(out[:n], chunk)
		out = out[n:]
		s.advance(n)
	}
}

// Squeeze returns n freshly squeezed bytes.
func (s *Spongos) Squeeze(n int) []byte {
	out := make([]byte, n)
	s.SqueezeInto(out)
	return out
}

// SqueezeEq squeezes len(expected) bytes and compares them against
// expected. The comparison accumulates over the full length with no
// early exit, and the state advances identically to a plain squeeze.
func (s *Spongos) SqueezeEq(expected []byte) bool {
	var diff byte
	for len(expected) > 0 {
		chunk := s.outerChunk(len(expected))
		n := len(chunk)
		for i := range chunk {
			diff |= chunk[i] ^ expected[i]
		}
		expected = expected[n:]
		s.advance(n)
	}
	return diff == 0
}

// Encrypt XOR-encrypts plaintext into ciphertext, keyed by the evolving
// outer state. The ciphertext is re-absorbed, so encrypt and decrypt
// leave the sponge in the same state for the same ciphertext.
func (s *Spongos) Encrypt(plaintext, ciphertext []byte) error {
	if len(plaintext) != len(ciphertext) {
		return fmt.Errorf("%w (plaintext=%d, ciphertext=%d)", ErrLengthMismatch, len(plaintext), len(ciphertext))
	}
	for len(plaintext) > 0 {
		chunk := s.outerChunk(len(plaintext))
		n := len(chunk)
		for i := range chunk {
			ciphertext[i] = chunk[i] ^ plaintext[i]
			chunk[i] = ciphertext[i]
		}
		plaintext = plaintext[n:]
		ciphertext = ciphertext[n:]
		s.advance(n)
	}
	return nil
}

// EncryptInPlace encrypts buf in place.
func (s *Spongos) EncryptInPlace(buf []byte) {
	for len(buf) > 0 {
		chunk := s.outerChunk(len(buf))
		n := len(chunk)
		for i := range chunk {
			buf[i] ^= chunk[i]
			chunk[i] = buf[i]
		}
		buf = buf[n:]
		s.advance(n)
	}
}

// Decrypt XOR-decrypts ciphertext into plaintext. The ciphertext is
// absorbed into the outer state, mirroring Encrypt.
func (s *Spongos) Decrypt(ciphertext, plaintext []byte) error {
	if len(plaintext) != len(ciphertext) {
		return fmt.Errorf("%w (plaintext=%d, ciphertext=%d)", ErrLengthMismatch, len(plaintext), len(ciphertext))
	}
	for len(ciphertext) > 0 {
		chunk := s.outerChunk(len(ciphertext))
		n := len(chunk)
		for i := range chunk {
			plaintext[i] = chunk[i] ^ ciphertext[i]
			chunk[i] = ciphertext[i]
		}
		ciphertext = ciphertext[n:]
		plaintext = plaintext[n:]
		s.advance(n)
	}
	return nil
}

// DecryptInPlace decrypts buf in place.
func (s *Spongos) DecryptInPlace(buf []byte) {
	for len(buf) > 0 {
		chunk := s.outerChunk(len(buf))
		n := len(chunk)
		for i := range chunk {
			t := buf[i]
			buf[i] ^= chunk[i]
			chunk[i] = t
		}
		buf = buf[n:]
		s.advance(n)
	}
}

// Commit flushes a partially absorbed outer region through one
// transform, zero-filling the unused tail first. Idempotent when the
// cursor is already at 0.
func (s *Spongos) Commit() {
	if s.pos == 0 {
		return
	}
	outer := s.prp.Outer()
	for i := s.pos; i < len(outer); i++ {
		outer[i] = 0
	}
	s.prp.Transform()
	s.pos = 0
}

// IsCommitted reports whether the cursor sits at the start of the outer
// region.
func (s *Spongos) IsCommitted() bool { return s.pos == 0 }

// Fork returns an independent deep copy whose mutations do not affect
// the parent.
func (s *Spongos) Fork() *Spongos {
	return &Spongos{prp: s.prp.Clone(), pos: s.pos}
}

// Join absorbs a capacity-sized digest of joinee's full state into s,
// binding the referenced computation into this transcript without
// re-transmitting its content. The joinee is committed, its outer state
// zeroed and transformed, then squeezed; it is mutated in the process —
// fork it first if that matters. Joining is one-directional: nothing of
// s flows into joinee.
func (s *Spongos) Join(joinee *Spongos) {
	joinee.Commit()
	outer := joinee.prp.Outer()
	for i := range outer {
		outer[i] = 0
	}
	joinee.prp.Transform()
	digest := joinee.Squeeze(joinee.prp.Capacity())
	s.Absorb(digest)
}

// Inner returns a copy of the committed inner state for persistence.
// Only the inner state may be serialized; the caller must have
// committed first.
func (s *Spongos) Inner() ([]byte, error) {
	if !s.IsCommitted() {
		return nil, ErrNotCommitted
	}
	inner := make([]byte, s.prp.Capacity())
	copy(inner, s.prp.Inner())
	return inner, nil
}

// FromInner reconstructs a Spongos from a stored inner state. The outer
// state starts zeroed with the cursor at 0, equivalent to a trimmed
// committed sponge.
func FromInner(inner []byte) (*Spongos, error) {
	s := New()
	if len(inner) != s.prp.Capacity() {
		return nil, fmt.Errorf("%w (expected %d, found %d)", ErrBadInnerSize, s.prp.Capacity(), len(inner))
	}
	copy(s.prp.Inner(), inner)
	return s, nil
}

// Equal reports whether two sponges have byte-identical state and
// position. Intended for tests and invariant checks.
func (s *Spongos) Equal(other *Spongos) bool {
	if s.pos != other.pos {
		return false
	}
	a := append(append([]byte{}, s.prp.Outer()...), s.prp.Inner()...)
	b := append(append([]byte{}, other.prp.Outer()...), other.prp.Inner()...)
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Hash absorbs data into a fresh sponge and squeezes n digest bytes.
func Hash(data []byte, n int) []byte {
	s := New()
	s.Absorb(data)
	s.Commit()
	return s.Squeeze(n)
}
