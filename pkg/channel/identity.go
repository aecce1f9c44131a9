// Package channel implements the participant layer of a stream: signing
// identities, the payload schemas exchanged between author and
// subscribers, and the user state machine that wraps, unwraps and links
// messages.
package channel

import (
	"crypto/ed25519"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"

	"github.com/saltstream/saltstream/pkg/ddml"
)

// identifierTagEd25519 is the oneof tag of an ed25519-backed identifier.
const identifierTagEd25519 = 0

var (
	ErrBadIdentifierTag = errors.New("unknown identifier tag")
	ErrBadSeed          = errors.New("identity seed must be 32 bytes")
)

// Identifier is a participant's public identity, an ed25519 public key.
type Identifier [ed25519.PublicKeySize]byte

// Bytes returns the identifier's raw key bytes.
func (id Identifier) Bytes() []byte { return id[:] }

// Equal reports whether two identifiers name the same participant.
func (id Identifier) Equal(other Identifier) bool { return id == other }

// maskSizeof accounts for a masked identifier: oneof tag plus key.
func (id Identifier) maskSizeof(s *ddml.SizeofContext) error {
	return s.MaskUint8(identifierTagEd25519).MaskBytes(id[:]).Err()
}

func (id Identifier) mask(w *ddml.WrapContext) error {
	return w.MaskUint8(identifierTagEd25519).MaskBytes(id[:]).Err()
}

func (id *Identifier) unmask(u *ddml.UnwrapContext) error {
	var tag byte
	return u.MaskUint8(&tag).
		Guard(tag == identifierTagEd25519, fmt.Errorf("%w: %d", ErrBadIdentifierTag, tag)).
		MaskBytes(id[:]).
		Err()
}

// verify consumes and checks a signature over the transcript so far:
// oneof tag, commit, 64-byte squeezed pre-image, ed25519 verify.
func (id Identifier) verify(u *ddml.UnwrapContext) error {
	hash := make([]byte, 64)
	var tag byte
	return u.AbsorbUint8(&tag).
		Guard(tag == identifierTagEd25519, fmt.Errorf("%w: %d", ErrBadIdentifierTag, tag)).
		Commit().
		SqueezeExternal(hash).
		Ed25519(ed25519.PublicKey(id[:]), hash).
		Err()
}

// Identity is a participant's key material: an ed25519 signing key and
// an x25519 exchange keypair, both expanded from one 32-byte seed.
type Identity struct {
	signing        ed25519.PrivateKey
	exchangeSecret []byte
	exchangePublic []byte
}

// NewIdentity expands a 32-byte seed into a full identity via
// HKDF-SHA256. The same seed always yields the same keys.
func NewIdentity(seed []byte) (*Identity, error) {
	if len(seed) != 32 {
		return nil, ErrBadSeed
	}
	hk := hkdf.New(sha256.New, seed, nil, []byte("saltstream identity v1"))
	edSeed := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(hk, edSeed); err != nil {
		return nil, fmt.Errorf("failed to derive signing key: %w", err)
	}
	xSecret := make([]byte, curve25519.ScalarSize)
	if _, err := io.ReadFull(hk, xSecret); err != nil {
		return nil, fmt.Errorf("failed to derive exchange key: %w", err)
	}
	xPublic, err := curve25519.X25519(xSecret, curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("failed to derive exchange public key: %w", err)
	}
	return &Identity{
		signing:        ed25519.NewKeyFromSeed(edSeed),
		exchangeSecret: xSecret,
		exchangePublic: xPublic,
	}, nil
}

// Identifier returns the public identity.
func (id *Identity) Identifier() Identifier {
	var out Identifier
	copy(out[:], id.signing.Public().(ed25519.PublicKey))
	return out
}

// ExchangePublic returns the x25519 public key other participants
// encrypt session keys to.
func (id *Identity) ExchangePublic() []byte { return id.exchangePublic }

// exchangeSecretKey returns the x25519 secret for unwrapping key
// transports addressed to this identity.
func (id *Identity) exchangeSecretKey() []byte { return id.exchangeSecret }

// signSizeof accounts for a signature: oneof tag plus ed25519 signature.
func signSizeof(s *ddml.SizeofContext) error {
	return s.AbsorbUint8(identifierTagEd25519).Commit().Ed25519().Err()
}

// sign appends a signature over the transcript so far.
func (id *Identity) sign(w *ddml.WrapContext) error {
	hash := make([]byte, 64)
	return w.AbsorbUint8(identifierTagEd25519).
		Commit().
		SqueezeExternal(hash).
		Ed25519(id.signing, hash).
		Err()
}
