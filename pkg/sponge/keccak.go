package sponge

import "encoding/binary"

// Keccak-f[1600] parameters. The capacity is 256 bits, leaving
// (1600-256)/8 = 168 bytes of rate. The inner region occupies the last
// four lanes of the state (bytes 168..200), matching the canonical
// little-endian lane layout.
const (
	KeccakRate     = 168
	KeccakCapacity = 32

	keccakStateSize = 200
	keccakRounds    = 24
)

var keccakRoundConstants = [keccakRounds]uint64{
	0x0000000000000001, 0x0000000000008082, 0x800000000000808a,
	0x8000000080008000, 0x000000000000808b, 0x0000000080000001,
	0x8000000080008081, 0x8000000000008009, 0x000000000000008a,
	0x0000000000000088, 0x0000000080008009, 0x000000008000000a,
	0x000000008000808b, 0x800000000000008b, 0x8000000000008089,
	0x8000000000008003, 0x8000000000008002, 0x8000000000000080,
	0x000000000000800a, 0x800000008000000a, 0x8000000080008081,
	0x8000000000008080, 0x0000000080000001, 0x8000000080008008,
}

var keccakRotations = [24]uint{
	1, 3, 6, 10, 15, 21, 28, 36, 45, 55, 2, 14,
	27, 41, 56, 8, 25, 43, 62, 18, 39, 61, 20, 44,
}

// pi lane permutation order, applied together with rho rotations.
var keccakPiLanes = [24]int{
	10, 7, 11, 17, 18, 3, 5, 16, 8, 21, 24, 4,
	15, 23, 19, 13, 12, 2, 20, 14, 22, 9, 6, 1,
}

// KeccakF1600 is the Keccak-f[1600] permutation exposed through the PRP
// interface. State is kept as bytes so the outer and inner regions can be
// aliased directly; lanes are converted on each transform.
type KeccakF1600 struct {
	state [keccakStateSize]byte
}

// NewKeccakF1600 returns a zeroed Keccak-f[1600] permutation.
func NewKeccakF1600() *KeccakF1600 {
	return &KeccakF1600{}
}

// Rate returns the outer state size in bytes.
func (k *KeccakF1600) Rate() int { return KeccakRate }

// Capacity returns the inner state size in bytes.
func (k *KeccakF1600) Capacity() int { return KeccakCapacity }

// Outer returns the outer (rate) region of the state.
func (k *KeccakF1600) Outer() []byte { return k.state[:KeccakRate] }

// Inner returns the inner (capacity) region of the state.
func (k *KeccakF1600) Inner() []byte { return k.state[KeccakRate:] }

// Clone returns an independent copy of the permutation state.
func (k *KeccakF1600) Clone() PRP {
	c := &KeccakF1600{}
	c.state = k.state
	return c
}

// Transform applies the 24-round Keccak-f[1600] permutation in place.
func (k *KeccakF1600) Transform() {
	var a [25]uint64
	for i := range a {
		a[i] = binary.LittleEndian.Uint64(k.state[i*8:])
	}

	keccakF1600(&a)

	for i := range a {
		binary.LittleEndian.PutUint64(k.state[i*8:], a[i])
	}
}

func keccakF1600(a *[25]uint64) {
	var c [5]uint64

	for round := 0; round < keccakRounds; round++ {
		// theta
		for x := 0; x < 5; x++ {
			c[x] = a[x] ^ a[x+5] ^ a[x+10] ^ a[x+15] ^ a[x+20]
		}
		for x := 0; x < 5; x++ {
			d := c[(x+4)%5] ^ rotl64(c[(x+1)%5], 1)
			for y := 0; y < 25; y += 5 {
				a[y+x] ^= d
			}
		}

		// rho and pi
		last := a[1]
		for i := 0; i < 24; i++ {
			j := keccakPiLanes[i]
			last, a[j] = a[j], rotl64(last, keccakRotations[i])
		}

		// chi
		for y := 0; y < 25; y += 5 {
			var row [5]uint64
			copy(row[:], a[y:y+5])
			for x := 0; x < 5; x++ {
				a[y+x] = row[x] ^ (^row[(x+1)%5] & row[(x+2)%5])
			}
		}

		// iota
		a[0] ^= keccakRoundConstants[round]
	}
}

func rotl64(v uint64, n uint) uint64 {
	return (v << n) | (v >> (64 - n))
}
