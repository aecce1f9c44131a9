package ddml

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/curve25519"

	"github.com/saltstream/saltstream/pkg/sponge"
)

// WrapContext encodes values into an output buffer while mutating a live
// Spongos identically to how unwrap will. The buffer must be pre-sized
// with the sizeof interpreter; running out of space is a hard error.
//
// The context latches its first error; subsequent commands become no-ops.
type WrapContext struct {
	spongos *sponge.Spongos
	buf     []byte
	pos     int
	err     error
}

// Wrap returns a wrap context over buf with a freshly initialized sponge.
func Wrap(buf []byte) *WrapContext {
	return &WrapContext{spongos: sponge.New(), buf: buf}
}

// WrapWithSpongos returns a wrap context continuing from an existing
// sponge state, for content that follows an already-wrapped header.
func WrapWithSpongos(buf []byte, s *sponge.Spongos) *WrapContext {
	return &WrapContext{spongos: s, buf: buf}
}

// Err returns the first error encountered, if any.
func (c *WrapContext) Err() error { return c.err }

// Pos returns the current write position.
func (c *WrapContext) Pos() int { return c.pos }

// Bytes returns the written portion of the buffer.
func (c *WrapContext) Bytes() []byte { return c.buf[:c.pos] }

// Spongos exposes the live sponge state.
func (c *WrapContext) Spongos() *sponge.Spongos { return c.spongos }

// Finalize commits the sponge and returns it together with the encoded
// bytes. It fails if any command failed or the buffer was not filled
// exactly.
func (c *WrapContext) Finalize() ([]byte, *sponge.Spongos, error) {
	if c.err != nil {
		return nil, nil, c.err
	}
	if c.pos != len(c.buf) {
		return nil, nil, fmt.Errorf("%w: output buffer not fully consumed (%d of %d bytes written)",
			ErrStreamExhausted, c.pos, len(c.buf))
	}
	c.spongos.Commit()
	return c.buf, c.spongos, nil
}

// tryAdvance reserves n output bytes, failing on overflow.
func (c *WrapContext) tryAdvance(n int) []byte {
	if c.pos+n > len(c.buf) {
		c.err = fmt.Errorf("%w: need %d bytes, %d remaining", ErrStreamExhausted, n, len(c.buf)-c.pos)
		return nil
	}
	out := c.buf[c.pos : c.pos+n]
	c.pos += n
	return out
}

// absorbRaw writes bytes and absorbs them.
func (c *WrapContext) absorbRaw(b []byte) *WrapContext {
	if c.err != nil {
		return c
	}
	out := c.tryAdvance(len(b))
	if out == nil {
		return c
	}
	copy(out, b)
	c.spongos.Absorb(b)
	return c
}

func (c *WrapContext) AbsorbUint8(v byte) *WrapContext {
	return c.absorbRaw([]byte{v})
}

func (c *WrapContext) AbsorbUint16(v uint16) *WrapContext {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return c.absorbRaw(b[:])
}

func (c *WrapContext) AbsorbUint32(v uint32) *WrapContext {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return c.absorbRaw(b[:])
}

func (c *WrapContext) AbsorbUint64(v uint64) *WrapContext {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return c.absorbRaw(b[:])
}

func (c *WrapContext) AbsorbSize(n uint64) *WrapContext {
	return c.absorbRaw(encodeSize(nil, n))
}

// AbsorbBytes writes a fixed-length field and absorbs it.
func (c *WrapContext) AbsorbBytes(b []byte) *WrapContext {
	return c.absorbRaw(b)
}

// AbsorbBlob writes a size-prefixed field and absorbs it.
func (c *WrapContext) AbsorbBlob(b []byte) *WrapContext {
	return c.AbsorbSize(uint64(len(b))).absorbRaw(b)
}

// AbsorbExternal absorbs data never written to the wire (secrets,
// shared DH output).
func (c *WrapContext) AbsorbExternal(b []byte) *WrapContext {
	if c.err != nil {
		return c
	}
	c.spongos.Absorb(b)
	return c
}

// maskRaw encrypts bytes into the buffer; the ciphertext is absorbed by
// the duplex property.
func (c *WrapContext) maskRaw(b []byte) *WrapContext {
	if c.err != nil {
		return c
	}
	out := c.tryAdvance(len(b))
	if out == nil {
		return c
	}
	if err := c.spongos.Encrypt(b, out); err != nil {
		c.err = err
	}
	return c
}

func (c *WrapContext) MaskUint8(v byte) *WrapContext {
	return c.maskRaw([]byte{v})
}

func (c *WrapContext) MaskUint16(v uint16) *WrapContext {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return c.maskRaw(b[:])
}

func (c *WrapContext) MaskUint32(v uint32) *WrapContext {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return c.maskRaw(b[:])
}

func (c *WrapContext) MaskUint64(v uint64) *WrapContext {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return c.maskRaw(b[:])
}

func (c *WrapContext) MaskSize(n uint64) *WrapContext {
	return c.maskRaw(encodeSize(nil, n))
}

func (c *WrapContext) MaskBytes(b []byte) *WrapContext {
	return c.maskRaw(b)
}

func (c *WrapContext) MaskBlob(b []byte) *WrapContext {
	return c.MaskSize(uint64(len(b))).maskRaw(b)
}

// skipRaw writes bytes without touching the sponge.
func (c *WrapContext) skipRaw(b []byte) *WrapContext {
	if c.err != nil {
		return c
	}
	out := c.tryAdvance(len(b))
	if out == nil {
		return c
	}
	copy(out, b)
	return c
}

func (c *WrapContext) SkipUint8(v byte) *WrapContext {
	return c.skipRaw([]byte{v})
}

func (c *WrapContext) SkipUint16(v uint16) *WrapContext {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return c.skipRaw(b[:])
}

func (c *WrapContext) SkipUint32(v uint32) *WrapContext {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return c.skipRaw(b[:])
}

func (c *WrapContext) SkipUint64(v uint64) *WrapContext {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return c.skipRaw(b[:])
}

func (c *WrapContext) SkipSize(n uint64) *WrapContext {
	return c.skipRaw(encodeSize(nil, n))
}

func (c *WrapContext) SkipBytes(b []byte) *WrapContext {
	return c.skipRaw(b)
}

// SqueezeMac emits an n-byte authentication tag.
func (c *WrapContext) SqueezeMac(n int) *WrapContext {
	if c.err != nil {
		return c
	}
	out := c.tryAdvance(n)
	if out == nil {
		return c
	}
	c.spongos.SqueezeInto(out)
	return c
}

// SqueezeExternal derives sponge output without writing it to the wire,
// typically a signature pre-image.
func (c *WrapContext) SqueezeExternal(out []byte) *WrapContext {
	if c.err != nil {
		return c
	}
	c.spongos.SqueezeInto(out)
	return c
}

// Commit flushes pending absorption through one transform.
func (c *WrapContext) Commit() *WrapContext {
	if c.err != nil {
		return c
	}
	c.spongos.Commit()
	return c
}

// Join binds a referenced message's stored sponge state into this
// transcript. The joinee is mutated; callers pass a fork if the stored
// state must survive.
func (c *WrapContext) Join(joinee *sponge.Spongos) *WrapContext {
	if c.err != nil {
		return c
	}
	c.spongos.Join(joinee)
	return c
}

// Guard asserts a semantic invariant.
func (c *WrapContext) Guard(cond bool, err error) *WrapContext {
	if c.err == nil && !cond {
		c.err = err
	}
	return c
}

// Fork runs fn against a sponge snapshot: commands inside fn advance
// the output stream but their sponge effects are discarded when fn
// returns, restoring the pre-fork state.
func (c *WrapContext) Fork(fn func(*WrapContext) error) *WrapContext {
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

// Ed25519 signs the squeezed pre-image and writes the signature. The
// signature bytes themselves are not absorbed.
func (c *WrapContext) Ed25519(key ed25519.PrivateKey, hash []byte) *WrapContext {
	if c.err != nil {
		return c
	}
	sig := ed25519.Sign(key, hash)
	return c.skipRaw(sig)
}

// X25519 performs an ephemeral key exchange against the recipient's
// public key and masks the session key under the shared secret: the
// ephemeral public key is absorbed onto the wire, the DH output is
// absorbed externally, and the key is masked after a commit.
func (c *WrapContext) X25519(recipient []byte, key []byte) *WrapContext {
	if c.err != nil {
		return c
	}
	var ephemeral [32]byte
	if _, err := rand.Read(ephemeral[:]); err != nil {
		c.err = fmt.Errorf("failed to generate ephemeral key: %w", err)
		return c
	}
	ephemeralPub, err := curve25519.X25519(ephemeral[:], curve25519.Basepoint)
	if err != nil {
		c.err = fmt.Errorf("failed to derive ephemeral public key: %w", err)
		return c
	}
	shared, err := curve25519.X25519(ephemeral[:], recipient)
	if err != nil {
		c.err = fmt.Errorf("key exchange failed: %w", err)
		return c
	}
	return c.AbsorbBytes(ephemeralPub).
		AbsorbExternal(shared).
		Commit().
		MaskBytes(key)
}
