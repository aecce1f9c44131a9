package ddml

import (
	"crypto/ed25519"
	"math"
)

// SizeofContext computes the exact wire footprint of a command sequence
// without touching a sponge or a buffer. It must be run to completion
// before wrap, so the output buffer can be sized exactly.
//
// The context latches its first error; subsequent commands become no-ops.
type SizeofContext struct {
	size uint64
	err  error
}

// Sizeof returns a fresh size-counting context.
func Sizeof() *SizeofContext {
	return &SizeofContext{}
}

// Size returns the accumulated byte count.
func (c *SizeofContext) Size() int { return int(c.size) }

// Err returns the first error encountered, if any.
func (c *SizeofContext) Err() error { return c.err }

func (c *SizeofContext) add(n uint64) *SizeofContext {
	if c.err != nil {
		return c
	}
	if c.size > math.MaxUint64-n {
		c.err = ErrSizeOverflow
		return c
	}
	c.size += n
	return c
}

func (c *SizeofContext) AbsorbUint8(byte) *SizeofContext    { return c.add(1) }
func (c *SizeofContext) AbsorbUint16(uint16) *SizeofContext { return c.add(2) }
func (c *SizeofContext) AbsorbUint32(uint32) *SizeofContext { return c.add(4) }
func (c *SizeofContext) AbsorbUint64(uint64) *SizeofContext { return c.add(8) }

func (c *SizeofContext) AbsorbSize(n uint64) *SizeofContext {
	return c.add(uint64(EncodedSizeLen(n)))
}

// AbsorbBytes accounts for a fixed-length field.
func (c *SizeofContext) AbsorbBytes(b []byte) *SizeofContext {
	return c.add(uint64(len(b)))
}

// AbsorbBlob accounts for a size-prefixed variable-length field.
func (c *SizeofContext) AbsorbBlob(b []byte) *SizeofContext {
	return c.AbsorbSize(uint64(len(b))).add(uint64(len(b)))
}

// AbsorbExternal processes sponge-only data; zero wire footprint.
func (c *SizeofContext) AbsorbExternal([]byte) *SizeofContext { return c }

func (c *SizeofContext) MaskUint8(byte) *SizeofContext    { return c.add(1) }
func (c *SizeofContext) MaskUint16(uint16) *SizeofContext { return c.add(2) }
func (c *SizeofContext) MaskUint32(uint32) *SizeofContext { return c.add(4) }
func (c *SizeofContext) MaskUint64(uint64) *SizeofContext { return c.add(8) }

func (c *SizeofContext) MaskSize(n uint64) *SizeofContext {
	return c.add(uint64(EncodedSizeLen(n)))
}

func (c *SizeofContext) MaskBytes(b []byte) *SizeofContext {
	return c.add(uint64(len(b)))
}

func (c *SizeofContext) MaskBlob(b []byte) *SizeofContext {
	return c.MaskSize(uint64(len(b))).add(uint64(len(b)))
}

func (c *SizeofContext) SkipUint8(byte) *SizeofContext    { return c.add(1) }
func (c *SizeofContext) SkipUint16(uint16) *SizeofContext { return c.add(2) }
func (c *SizeofContext) SkipUint32(uint32) *SizeofContext { return c.add(4) }
func (c *SizeofContext) SkipUint64(uint64) *SizeofContext { return c.add(8) }

func (c *SizeofContext) SkipSize(n uint64) *SizeofContext {
	return c.add(uint64(EncodedSizeLen(n)))
}

func (c *SizeofContext) SkipBytes(b []byte) *SizeofContext {
	return c.add(uint64(len(b)))
}

// SqueezeMac accounts for an n-byte authentication tag.
func (c *SizeofContext) SqueezeMac(n int) *SizeofContext {
	return c.add(uint64(n))
}

// SqueezeExternal derives sponge-only output; zero wire footprint.
func (c *SizeofContext) SqueezeExternal([]byte) *SizeofContext { return c }

// Commit affects only sponge state.
func (c *SizeofContext) Commit() *SizeofContext { return c }

// Join affects only sponge state.
func (c *SizeofContext) Join() *SizeofContext { return c }

// Guard asserts a semantic invariant.
func (c *SizeofContext) Guard(cond bool, err error) *SizeofContext {
	if c.err == nil && !cond {
		c.err = err
	}
	return c
}

// Fork runs fn against the same counter; sizeof has no sponge dimension
// so forking is a plain call.
func (c *SizeofContext) Fork(fn func(*SizeofContext) error) *SizeofContext {
	if c.err != nil {
		return c
	}
	if err := fn(c); err != nil {
		c.err = err
	}
	return c
}

// Ed25519 accounts for a detached signature.
func (c *SizeofContext) Ed25519() *SizeofContext {
	return c.add(ed25519.SignatureSize)
}

// X25519 accounts for an ephemeral public key plus the masked key.
func (c *SizeofContext) X25519(key []byte) *SizeofContext {
	return c.add(32).MaskBytes(key)
}
