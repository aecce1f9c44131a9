// Package sponge implements the duplex sponge state machine ("Spongos")
// that underpins message authentication and encryption. All protocol bytes
// are threaded through a pseudo-random permutation with a fixed rate/capacity
// split; the outer (rate) region is public, the inner (capacity) region never
// leaves the process.
package sponge

// PRP is a pseudo-random permutation over a fixed-size state.
//
// It may be non-bijective; the inverse transform is never used in a sponge
// construction. Implementations must guarantee Rate()+Capacity() equals the
// full state size, and Outer()/Inner() must alias the live state so that
// writes through them are visible to Transform.
type PRP interface {
	// Rate returns the size in bytes of the outer (publicly processed) state.
	Rate() int

	// Capacity returns the size in bytes of the inner (secret) state.
	Capacity() int

	// Transform permutes the full state in place.
	Transform()

	// Outer returns the outer state region for injection/ejection.
	Outer() []byte

	// Inner returns the inner state region. Inner bytes are never written
	// to the wire.
	Inner() []byte

	// Clone returns an independent deep copy of the permutation state.
	Clone() PRP
}
