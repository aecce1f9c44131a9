package ddml

// Variable-length size encoding: a one-byte prefix holding the number of
// significant bytes, followed by that many big-endian bytes. Zero encodes
// as a lone zero prefix with no payload bytes.

// sizeNumBytes returns the number of significant bytes of n.
func sizeNumBytes(n uint64) int {
	d := 0
	for n > 0 {
		n >>= 8
		d++
	}
	return d
}

// EncodedSizeLen returns the total wire footprint of the size encoding
// of n, including the length prefix.
func EncodedSizeLen(n uint64) int {
	return 1 + sizeNumBytes(n)
}

// encodeSize appends the encoding of n to buf and returns the result.
func encodeSize(buf []byte, n uint64) []byte {
	d := sizeNumBytes(n)
	buf = append(buf, byte(d))
	for s := d - 1; s >= 0; s-- {
		buf = append(buf, byte(n>>(uint(s)*8)))
	}
	return buf
}

// decodeSizeBytes reconstructs a size value from its significant bytes.
func decodeSizeBytes(b []byte) uint64 {
	var n uint64
	for _, v := range b {
		n = n<<8 | uint64(v)
	}
	return n
}
