package ddml

import (
	"crypto/ed25519"
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/curve25519"

	"github.com/saltstream/saltstream/pkg/sponge"
)

// UnwrapContext decodes values from an input buffer while replaying the
// same sponge mutations the wrapper performed. Every read is bounds
// checked; a truncated stream yields ErrStreamExhausted, never a panic.
type UnwrapContext struct {
	spongos *sponge.Spongos
	buf     []byte
	pos     int
	err     error
}

// Unwrap returns an unwrap context over buf with a freshly initialized
// sponge.
func Unwrap(buf []byte) *UnwrapContext {
	return &UnwrapContext{spongos: sponge.New(), buf: buf}
}

// UnwrapWithSpongos returns an unwrap context continuing from an
// existing sponge state.
func UnwrapWithSpongos(buf []byte, s *sponge.Spongos) *UnwrapContext {
	return &UnwrapContext{spongos: s, buf: buf}
}

// Err returns the first error encountered, if any.
func (c *UnwrapContext) Err() error { return c.err }

// Pos returns the current read position.
func (c *UnwrapContext) Pos() int { return c.pos }

// Rest returns the unread remainder of the buffer.
func (c *UnwrapContext) Rest() []byte { return c.buf[c.pos:] }

// Spongos exposes the live sponge state.
func (c *UnwrapContext) Spongos() *sponge.Spongos { return c.spongos }

// Finalize commits the sponge and returns it. Unlike wrapping, trailing
// bytes are allowed: a header parse leaves the content unread.
func (c *UnwrapContext) Finalize() (*sponge.Spongos, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.spongos.Commit()
	return c.spongos, nil
}

// tryRead takes n input bytes, failing on truncation.
func (c *UnwrapContext) tryRead(n int) []byte {
	if n < 0 || c.pos+n > len(c.buf) {
		c.err = fmt.Errorf("%w: need %d bytes, %d remaining", ErrStreamExhausted, n, len(c.buf)-c.pos)
		return nil
	}
	b := c.buf[c.pos : c.pos+n]
	c.pos += n
	return b
}

// absorbRaw reads n bytes and absorbs them.
func (c *UnwrapContext) absorbRaw(n int) []byte {
	if c.err != nil {
		return nil
	}
	b := c.tryRead(n)
	if b == nil {
		return nil
	}
	c.spongos.Absorb(b)
	return b
}

func (c *UnwrapContext) AbsorbUint8(v *byte) *UnwrapContext {
	if b := c.absorbRaw(1); b != nil {
		*v = b[0]
	}
	return c
}

func (c *UnwrapContext) AbsorbUint16(v *uint16) *UnwrapContext {
	if b := c.absorbRaw(2); b != nil {
		*v = binary.BigEndian.Uint16(b)
	}
	return c
}

func (c *UnwrapContext) AbsorbUint32(v *uint32) *UnwrapContext {
	if b := c.absorbRaw(4); b != nil {
		*v = binary.BigEndian.Uint32(b)
	}
	return c
}

func (c *UnwrapContext) AbsorbUint64(v *uint64) *UnwrapContext {
	if b := c.absorbRaw(8); b != nil {
		*v = binary.BigEndian.Uint64(b)
	}
	return c
}

func (c *UnwrapContext) AbsorbSize(n *uint64) *UnwrapContext {
	if c.err != nil {
		return c
	}
	prefix := c.absorbRaw(1)
	if prefix == nil {
		return c
	}
	numBytes := int(prefix[0])
	if numBytes > 8 {
		c.err = fmt.Errorf("%w: size prefix %d exceeds 8 bytes", ErrInvalidSize, numBytes)
		return c
	}
	b := c.absorbRaw(numBytes)
	if b == nil {
		return c
	}
	*n = decodeSizeBytes(b)
	return c
}

// AbsorbBytes fills the fixed-length slice v from the stream.
func (c *UnwrapContext) AbsorbBytes(v []byte) *UnwrapContext {
	if b := c.absorbRaw(len(v)); b != nil {
		copy(v, b)
	}
	return c
}

// AbsorbBlob reads a size-prefixed field into *v.
func (c *UnwrapContext) AbsorbBlob(v *[]byte) *UnwrapContext {
	var n uint64
	c.AbsorbSize(&n)
	if c.err != nil {
		return c
	}
	if n > uint64(len(c.buf)-c.pos) {
		c.err = fmt.Errorf("%w: blob length %d exceeds %d remaining bytes", ErrStreamExhausted, n, len(c.buf)-c.pos)
		return c
	}
	b := c.absorbRaw(int(n))
	if b == nil {
		return c
	}
	*v = make([]byte, n)
	copy(*v, b)
	return c
}

// AbsorbExternal absorbs data known out of band, never read from the
// wire.
func (c *UnwrapContext) AbsorbExternal(b []byte) *UnwrapContext {
	if c.err != nil {
		return c
	}
	c.spongos.Absorb(b)
	return c
}

// maskRaw reads n ciphertext bytes and decrypts them in place of the
// returned slice; the ciphertext ends up absorbed either way.
func (c *UnwrapContext) maskRaw(n int, out []byte) bool {
	if c.err != nil {
		return false
	}
	b := c.tryRead(n)
	if b == nil {
		return false
	}
	if err := c.spongos.Decrypt(b, out); err != nil {
		c.err = err
		return false
	}
	return true
}

func (c *UnwrapContext) MaskUint8(v *byte) *UnwrapContext {
	var b [1]byte
	if c.maskRaw(1, b[:]) {
		*v = b[0]
	}
	return c
}

func (c *UnwrapContext) MaskUint16(v *uint16) *UnwrapContext {
	var b [2]byte
	if c.maskRaw(2, b[:]) {
		*v = binary.BigEndian.Uint16(b[:])
	}
	return c
}

func (c *UnwrapContext) MaskUint32(v *uint32) *UnwrapContext {
	var b [4]byte
	if c.maskRaw(4, b[:]) {
		*v = binary.BigEndian.Uint32(b[:])
	}
	return c
}

func (c *UnwrapContext) MaskUint64(v *uint64) *UnwrapContext {
	var b [8]byte
	if c.maskRaw(8, b[:]) {
		*v = binary.BigEndian.Uint64(b[:])
	}
	return c
}

func (c *UnwrapContext) MaskSize(n *uint64) *UnwrapContext {
	if c.err != nil {
		return c
	}
	var prefix [1]byte
	if !c.maskRaw(1, prefix[:]) {
		return c
	}
	numBytes := int(prefix[0])
	if numBytes > 8 {
		c.err = fmt.Errorf("%w: size prefix %d exceeds 8 bytes", ErrInvalidSize, numBytes)
		return c
	}
	b := make([]byte, numBytes)
	if !c.maskRaw(numBytes, b) {
		return c
	}
	*n = decodeSizeBytes(b)
	return c
}

// MaskBytes decrypts a fixed-length field into v.
func (c *UnwrapContext) MaskBytes(v []byte) *UnwrapContext {
	c.maskRaw(len(v), v)
	return c
}

// MaskBlob decrypts a size-prefixed field into *v.
func (c *UnwrapContext) MaskBlob(v *[]byte) *UnwrapContext {
	var n uint64
	c.MaskSize(&n)
	if c.err != nil {
		return c
	}
	if n > uint64(len(c.buf)-c.pos) {
		c.err = fmt.Errorf("%w: blob length %d exceeds %d remaining bytes", ErrStreamExhausted, n, len(c.buf)-c.pos)
		return c
	}
	out := make([]byte, n)
	if !c.maskRaw(int(n), out) {
		return c
	}
	*v = out
	return c
}

// skipRaw reads bytes without touching the sponge.
func (c *UnwrapContext) skipRaw(n int) []byte {
	if c.err != nil {
		return nil
	}
	return c.tryRead(n)
}

func (c *UnwrapContext) SkipUint8(v *byte) *UnwrapContext {
	if b := c.skipRaw(1); b != nil {
		*v = b[0]
	}
	return c
}

func (c *UnwrapContext) SkipUint16(v *uint16) *UnwrapContext {
	if b := c.skipRaw(2); b != nil {
		*v = binary.BigEndian.Uint16(b)
	}
	return c
}

func (c *UnwrapContext) SkipUint32(v *uint32) *UnwrapContext {
	if b := c.skipRaw(4); b != nil {
		*v = binary.BigEndian.Uint32(b)
	}
	return c
}

func (c *UnwrapContext) SkipUint64(v *uint64) *UnwrapContext {
	if b := c.skipRaw(8); b != nil {
		*v = binary.BigEndian.Uint64(b)
	}
	return c
}

func (c *UnwrapContext) SkipSize(n *uint64) *UnwrapContext {
	if c.err != nil {
		return c
	}
	prefix := c.skipRaw(1)
	if prefix == nil {
		return c
	}
	numBytes := int(prefix[0])
	if numBytes > 8 {
		c.err = fmt.Errorf("%w: size prefix %d exceeds 8 bytes", ErrInvalidSize, numBytes)
		return c
	}
	if b := c.skipRaw(numBytes); b != nil {
		*n = decodeSizeBytes(b)
	}
	return c
}

func (c *UnwrapContext) SkipBytes(v []byte) *UnwrapContext {
	if b := c.skipRaw(len(v)); b != nil {
		copy(v, b)
	}
	return c
}

// SqueezeMac reads an n-byte tag and compares it against the sponge's
// own output in constant order, failing with ErrBadMac on mismatch.
// The sponge advances identically on both outcomes.
func (c *UnwrapContext) SqueezeMac(n int) *UnwrapContext {
	if c.err != nil {
		return c
	}
	b := c.tryRead(n)
	if b == nil {
		return c
	}
	if !c.spongos.SqueezeEq(b) {
		c.err = ErrBadMac
	}
	return c
}

// SqueezeExternal derives sponge output without consuming the wire.
func (c *UnwrapContext) SqueezeExternal(out []byte) *UnwrapContext {
	if c.err != nil {
		return c
	}
	c.spongos.SqueezeInto(out)
	return c
}

// Commit flushes pending absorption through one transform.
func (c *UnwrapContext) Commit() *UnwrapContext {
	if c.err != nil {
		return c
	}
	c.spongos.Commit()
	return c
}

// Join binds a referenced message's stored sponge state into this
// transcript, mirroring the wrapper's join.
func (c *UnwrapContext) Join(joinee *sponge.Spongos) *UnwrapContext {
	if c.err != nil {
		return c
	}
	c.spongos.Join(joinee)
	return c
}

// Guard asserts a semantic invariant on decoded data.
func (c *UnwrapContext) Guard(cond bool, err error) *UnwrapContext {
	if c.err == nil && !cond {
		c.err = err
	}
	return c
}

// Fork runs fn against a sponge snapshot; the stream stays advanced but
// the sponge reverts to the pre-fork state when fn returns.
func (c *UnwrapContext) Fork(fn func(*UnwrapContext) error) *UnwrapContext {
	if c.err != nil {
		return c
	}
	saved := c.spongos
	c.spongos = saved.Fork()
	if err := fn(c); err != nil && c.err == nil {
		c.err = err
	}
	c.spongos = saved
	return c
}

// Ed25519 reads a signature and verifies it against the squeezed
// pre-image, failing with ErrBadSignature on mismatch. The signature
// bytes are not absorbed.
func (c *UnwrapContext) Ed25519(key ed25519.PublicKey, hash []byte) *UnwrapContext {
	if c.err != nil {
		return c
	}
	sig := c.tryRead(ed25519.SignatureSize)
	if sig == nil {
		return c
	}
	if !ed25519.Verify(key, hash, sig) {
		c.err = ErrBadSignature
	}
	return c
}

// X25519 completes the key exchange from the recipient side: the
// ephemeral public key is read and absorbed, the DH output absorbed
// externally, and the session key unmasked after a commit.
func (c *UnwrapContext) X25519(secret []byte, key []byte) *UnwrapContext {
	if c.err != nil {
		return c
	}
	ephemeralPub := make([]byte, 32)
	c.AbsorbBytes(ephemeralPub)
	if c.err != nil {
		return c
	}
	shared, err := curve25519.X25519(secret, ephemeralPub)
	if err != nil {
		c.err = fmt.Errorf("key exchange failed: %w", err)
		return c
	}
	return c.AbsorbExternal(shared).
		Commit().
		MaskBytes(key)
}
