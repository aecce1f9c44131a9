package ddml

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/curve25519"

	"github.com/saltstream/saltstream/pkg/sponge"
)

func TestSizeEncoding(t *testing.T) {
	tests := []struct {
		n    uint64
		want []byte
	}{
		{0, []byte{0x00}},
		{1, []byte{0x01, 0x01}},
		{255, []byte{0x01, 0xff}},
		{256, []byte{0x02, 0x01, 0x00}},
		{65535, []byte{0x02, 0xff, 0xff}},
		{65536, []byte{0x03, 0x01, 0x00, 0x00}},
		{0xffffffffffffffff, []byte{0x08, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}},
	}
	for _, tt := range tests {
		got := encodeSize(nil, tt.n)
		assert.Equal(t, tt.want, got, "encodeSize(%d)", tt.n)
		assert.Equal(t, len(tt.want), EncodedSizeLen(tt.n))
		assert.Equal(t, tt.n, decodeSizeBytes(got[1:]))
	}
}

func TestAbsorbRoundTrip(t *testing.T) {
	payload := []byte("hello duplex")

	size := Sizeof().
		AbsorbUint8(7).
		AbsorbUint16(0x0102).
		AbsorbUint32(0xdeadbeef).
		AbsorbUint64(1 << 40).
		AbsorbSize(300).
		AbsorbBlob(payload).
		Commit()
	require.NoError(t, size.Err())

	buf := make([]byte, size.Size())
	wrapped, wrapSt, err := Wrap(buf).
		AbsorbUint8(7).
		AbsorbUint16(0x0102).
		AbsorbUint32(0xdeadbeef).
		AbsorbUint64(1 << 40).
		AbsorbSize(300).
		AbsorbBlob(payload).
		Finalize()
	require.NoError(t, err)

	var (
		u8   byte
		u16  uint16
		u32  uint32
		u64  uint64
		n    uint64
		blob []byte
	)
	ctx := Unwrap(wrapped).
		AbsorbUint8(&u8).
		AbsorbUint16(&u16).
		AbsorbUint32(&u32).
		AbsorbUint64(&u64).
		AbsorbSize(&n).
		AbsorbBlob(&blob)
	unwrapSt, err := ctx.Finalize()
	require.NoError(t, err)

	assert.Equal(t, byte(7), u8)
	assert.Equal(t, uint16(0x0102), u16)
	assert.Equal(t, uint32(0xdeadbeef), u32)
	assert.Equal(t, uint64(1<<40), u64)
	assert.Equal(t, uint64(300), n)
	assert.Equal(t, payload, blob)
	assert.True(t, wrapSt.Equal(unwrapSt), "wrap and unwrap must converge to the same state")
}

func TestMaskRoundTrip(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i * 3)
	}
	secret := []byte("confidential payload")

	size := Sizeof().
		AbsorbExternal(key).
		Commit().
		MaskUint32(42).
		MaskSize(1000).
		MaskBlob(secret).
		SqueezeMac(16)
	require.NoError(t, size.Err())

	buf := make([]byte, size.Size())
	wrapped, wrapSt, err := Wrap(buf).
		AbsorbExternal(key).
		Commit().
		MaskUint32(42).
		MaskSize(1000).
		MaskBlob(secret).
		SqueezeMac(16).
		Finalize()
	require.NoError(t, err)

	// Ciphertext must not contain the plaintext.
	assert.False(t, bytes.Contains(wrapped, secret))

	var (
		u32  uint32
		n    uint64
		blob []byte
	)
	unwrapSt, err := Unwrap(wrapped).
		AbsorbExternal(key).
		Commit().
		MaskUint32(&u32).
		MaskSize(&n).
		MaskBlob(&blob).
		SqueezeMac(16).
		Finalize()
	require.NoError(t, err)
	assert.Equal(t, uint32(42), u32)
	assert.Equal(t, uint64(1000), n)
	assert.Equal(t, secret, blob)
	assert.True(t, wrapSt.Equal(unwrapSt))
}

func TestMaskWithoutKeyFails(t *testing.T) {
	key := []byte("the right key, 32 bytes of it!!!")
	secret := []byte("payload")

	size := Sizeof().AbsorbExternal(key).Commit().MaskBlob(secret).SqueezeMac(16)
	buf := make([]byte, size.Size())
	wrapped, _, err := Wrap(buf).
		AbsorbExternal(key).Commit().MaskBlob(secret).SqueezeMac(16).Finalize()
	require.NoError(t, err)

	wrong := []byte("the wrong key, 32 bytes of it!!!")
	var blob []byte
	_, err = Unwrap(wrapped).
		AbsorbExternal(wrong).Commit().MaskBlob(&blob).SqueezeMac(16).Finalize()
	assert.ErrorIs(t, err, ErrBadMac)
}

func TestSkipRoundTrip(t *testing.T) {
	size := Sizeof().SkipUint64(99).AbsorbUint8(1).SqueezeMac(8)
	buf := make([]byte, size.Size())
	wrapped, _, err := Wrap(buf).SkipUint64(99).AbsorbUint8(1).SqueezeMac(8).Finalize()
	require.NoError(t, err)

	var (
		skipped uint64
		u8      byte
	)
	_, err = Unwrap(wrapped).SkipUint64(&skipped).AbsorbUint8(&u8).SqueezeMac(8).Finalize()
	require.NoError(t, err)
	assert.Equal(t, uint64(99), skipped)

	// Skipped fields are not authenticated: flipping them leaves the
	// transcript valid.
	wrapped[0] ^= 0xff
	_, err = Unwrap(wrapped).SkipUint64(&skipped).AbsorbUint8(&u8).SqueezeMac(8).Finalize()
	assert.NoError(t, err)

	// Absorbed fields are: flipping one breaks the tag.
	wrapped[8] ^= 0xff
	_, err = Unwrap(wrapped).SkipUint64(&skipped).AbsorbUint8(&u8).SqueezeMac(8).Finalize()
	assert.ErrorIs(t, err, ErrBadMac)
}

func TestSqueezeMacTamperDetection(t *testing.T) {
	size := Sizeof().AbsorbBytes([]byte("data")).Commit().SqueezeMac(32)
	buf := make([]byte, size.Size())
	wrapped, _, err := Wrap(buf).AbsorbBytes([]byte("data")).Commit().SqueezeMac(32).Finalize()
	require.NoError(t, err)

	for _, i := range []int{0, 3, len(wrapped) - 1} {
		tampered := append([]byte(nil), wrapped...)
		tampered[i] ^= 0x01
		got := make([]byte, 4)
		_, err := Unwrap(tampered).AbsorbBytes(got).Commit().SqueezeMac(32).Finalize()
		assert.ErrorIs(t, err, ErrBadMac, "flip at %d", i)
	}
}

func TestTruncatedStream(t *testing.T) {
	size := Sizeof().AbsorbUint64(1).AbsorbBlob([]byte("abcdef")).SqueezeMac(16)
	buf := make([]byte, size.Size())
	wrapped, _, err := Wrap(buf).
		AbsorbUint64(1).AbsorbBlob([]byte("abcdef")).SqueezeMac(16).Finalize()
	require.NoError(t, err)

	for n := 0; n < len(wrapped); n++ {
		var (
			u64  uint64
			blob []byte
		)
		_, err := Unwrap(wrapped[:n]).
			AbsorbUint64(&u64).AbsorbBlob(&blob).SqueezeMac(16).Finalize()
		assert.Error(t, err, "prefix of %d bytes must fail", n)
	}
}

func TestBlobLengthExceedsStream(t *testing.T) {
	// A size prefix claiming more bytes than the stream holds.
	var blob []byte
	_, err := Unwrap([]byte{0x02, 0xff, 0xff, 0x01}).AbsorbBlob(&blob).Finalize()
	assert.ErrorIs(t, err, ErrStreamExhausted)
}

func TestInvalidSizePrefix(t *testing.T) {
	var n uint64
	_, err := Unwrap([]byte{0x09, 1, 2, 3, 4, 5, 6, 7, 8, 9}).AbsorbSize(&n).Finalize()
	assert.ErrorIs(t, err, ErrInvalidSize)
}

func TestWrapOverflow(t *testing.T) {
	buf := make([]byte, 4)
	_, _, err := Wrap(buf).AbsorbUint64(1).Finalize()
	assert.ErrorIs(t, err, ErrStreamExhausted)
}

func TestWrapUnderfill(t *testing.T) {
	buf := make([]byte, 8)
	_, _, err := Wrap(buf).AbsorbUint8(1).Finalize()
	assert.ErrorIs(t, err, ErrStreamExhausted)
}

func TestGuard(t *testing.T) {
	errBadVersion := errors.New("unsupported version")
	assert.NoError(t, Sizeof().Guard(true, errBadVersion).Err())
	assert.ErrorIs(t, Sizeof().Guard(false, errBadVersion).Err(), errBadVersion)

	// The first error latches; later commands do not overwrite it.
	ctx := Unwrap(nil).Guard(false, errBadVersion)
	var u8 byte
	ctx.AbsorbUint8(&u8)
	assert.ErrorIs(t, ctx.Err(), errBadVersion)
}

func TestForkRestoresSpongeState(t *testing.T) {
	build := func() (*sponge.Spongos, []byte) {
		size := Sizeof().
			AbsorbUint8(1).
			Fork(func(s *SizeofContext) error {
				s.AbsorbBytes([]byte("forked")).SqueezeMac(8)
				return nil
			}).
			AbsorbUint8(2).
			SqueezeMac(16)
		buf := make([]byte, size.Size())
		wrapped, st, err := Wrap(buf).
			AbsorbUint8(1).
			Fork(func(w *WrapContext) error {
				w.AbsorbBytes([]byte("forked")).SqueezeMac(8)
				return w.Err()
			}).
			AbsorbUint8(2).
			SqueezeMac(16).
			Finalize()
		require.NoError(t, err)
		return st, wrapped
	}

	st, wrapped := build()

	// The outer transcript must be unaffected by what happened inside
	// the fork: wrapping without the fork yields the same final state.
	sizePlain := Sizeof().AbsorbUint8(1).AbsorbUint8(2).SqueezeMac(16)
	bufPlain := make([]byte, sizePlain.Size())
	_, stPlain, err := Wrap(bufPlain).AbsorbUint8(1).AbsorbUint8(2).SqueezeMac(16).Finalize()
	require.NoError(t, err)
	assert.True(t, st.Equal(stPlain))

	var a, b byte
	forked := make([]byte, 6)
	_, err = Unwrap(wrapped).
		AbsorbUint8(&a).
		Fork(func(u *UnwrapContext) error {
			u.AbsorbBytes(forked).SqueezeMac(8)
			return u.Err()
		}).
		AbsorbUint8(&b).
		SqueezeMac(16).
		Finalize()
	require.NoError(t, err)
	assert.Equal(t, []byte("forked"), forked)
}

func TestJoinBindsLinkedState(t *testing.T) {
	linked := sponge.New()
	linked.Absorb([]byte("previous message"))
	linked.Commit()

	size := Sizeof().Join().AbsorbUint8(5).SqueezeMac(16)
	buf := make([]byte, size.Size())
	wrapped, _, err := Wrap(buf).Join(linked.Fork()).AbsorbUint8(5).SqueezeMac(16).Finalize()
	require.NoError(t, err)

	var u8 byte
	_, err = Unwrap(wrapped).Join(linked.Fork()).AbsorbUint8(&u8).SqueezeMac(16).Finalize()
	require.NoError(t, err)
	assert.Equal(t, byte(5), u8)

	// Joining a different state must break authentication.
	other := sponge.New()
	other.Absorb([]byte("some other message"))
	other.Commit()
	_, err = Unwrap(wrapped).Join(other.Fork()).AbsorbUint8(&u8).SqueezeMac(16).Finalize()
	assert.ErrorIs(t, err, ErrBadMac)
}

func TestEd25519SignVerify(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	size := Sizeof().AbsorbBytes([]byte("signed content")).Commit().Ed25519()
	buf := make([]byte, size.Size())

	hash := make([]byte, 64)
	wrapped, _, err := Wrap(buf).
		AbsorbBytes([]byte("signed content")).
		Commit().
		SqueezeExternal(hash).
		Ed25519(priv, hash).
		Finalize()
	require.NoError(t, err)

	content := make([]byte, 14)
	vhash := make([]byte, 64)
	_, err = Unwrap(wrapped).
		AbsorbBytes(content).
		Commit().
		SqueezeExternal(vhash).
		Ed25519(pub, vhash).
		Finalize()
	require.NoError(t, err)
	assert.Equal(t, hash, vhash)

	// Tampered content changes the squeezed pre-image and fails
	// verification.
	tampered := append([]byte(nil), wrapped...)
	tampered[0] ^= 0x01
	_, err = Unwrap(tampered).
		AbsorbBytes(content).
		Commit().
		SqueezeExternal(vhash).
		Ed25519(pub, vhash).
		Finalize()
	assert.ErrorIs(t, err, ErrBadSignature)

	// A signature from another key fails.
	otherPub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	_, err = Unwrap(wrapped).
		AbsorbBytes(content).
		Commit().
		SqueezeExternal(vhash).
		Ed25519(otherPub, vhash).
		Finalize()
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestX25519KeyTransport(t *testing.T) {
	recipientSecret := make([]byte, 32)
	_, err := rand.Read(recipientSecret)
	require.NoError(t, err)
	recipientPub, err := curve25519.X25519(recipientSecret, curve25519.Basepoint)
	require.NoError(t, err)

	sessionKey := make([]byte, 32)
	for i := range sessionKey {
		sessionKey[i] = byte(i)
	}

	size := Sizeof().X25519(sessionKey).SqueezeMac(16)
	buf := make([]byte, size.Size())
	wrapped, wrapSt, err := Wrap(buf).
		X25519(recipientPub, sessionKey).
		SqueezeMac(16).
		Finalize()
	require.NoError(t, err)

	got := make([]byte, 32)
	unwrapSt, err := Unwrap(wrapped).
		X25519(recipientSecret, got).
		SqueezeMac(16).
		Finalize()
	require.NoError(t, err)
	assert.Equal(t, sessionKey, got)
	assert.True(t, wrapSt.Equal(unwrapSt))

	// A different recipient secret cannot recover the key.
	otherSecret := make([]byte, 32)
	_, err = rand.Read(otherSecret)
	require.NoError(t, err)
	_, err = Unwrap(wrapped).
		X25519(otherSecret, got).
		SqueezeMac(16).
		Finalize()
	assert.ErrorIs(t, err, ErrBadMac)
}

func TestSizeofMatchesWrap(t *testing.T) {
	payload := []byte("payload of odd length 123")
	size := Sizeof().AbsorbUint16(9).MaskBlob(payload).SkipSize(77).Commit().SqueezeMac(32)
	require.NoError(t, size.Err())

	buf := make([]byte, size.Size())
	w := Wrap(buf)
	w.AbsorbUint16(9).MaskBlob(payload).SkipSize(77).Commit().SqueezeMac(32)
	_, _, err := w.Finalize()
	assert.NoError(t, err, "sizeof must predict the exact wrapped length")
}

func TestRepeatedFields(t *testing.T) {
	items := [][]byte{[]byte("one"), []byte("two"), []byte("three")}

	size := Sizeof().AbsorbSize(uint64(len(items)))
	for _, it := range items {
		size.AbsorbBlob(it)
	}
	size.SqueezeMac(16)
	require.NoError(t, size.Err())

	buf := make([]byte, size.Size())
	w := Wrap(buf).AbsorbSize(uint64(len(items)))
	for _, it := range items {
		w.AbsorbBlob(it)
	}
	wrapped, _, err := w.SqueezeMac(16).Finalize()
	require.NoError(t, err)

	var count uint64
	u := Unwrap(wrapped).AbsorbSize(&count)
	require.NoError(t, u.Err())
	got := make([][]byte, count)
	for i := range got {
		u.AbsorbBlob(&got[i])
	}
	_, err = u.SqueezeMac(16).Finalize()
	require.NoError(t, err)
	assert.Equal(t, items, got)
}
