package channel

import (
	"errors"

	"github.com/saltstream/saltstream/pkg/ddml"
	"github.com/saltstream/saltstream/pkg/sponge"
)

const (
	nonceSize      = 16
	sessionKeySize = 32
	// PskIdSize is the byte length of a pre-shared key identifier.
	PskIdSize = 16
	// PskSize is the byte length of a pre-shared key.
	PskSize = 32
)

var ErrNotARecipient = errors.New("keyload addresses none of our keys")

// Psk is a pre-shared key with its public identifier.
type Psk struct {
	Id     [PskIdSize]byte
	Secret [PskSize]byte
}

// Recipient is a subscriber the session key is transported to.
type Recipient struct {
	Id          Identifier
	ExchangeKey []byte
}

// Keyload distributes a session key to a set of subscribers and
// pre-shared keys. Each recipient gets the key under an ephemeral
// x25519 exchange inside a sponge fork, so recipients cannot read each
// other's slots. The session key itself is absorbed externally and the
// whole frame signed by the author.
type Keyload struct {
	Linked *sponge.Spongos
	Nonce  [nonceSize]byte
	Key    [sessionKeySize]byte

	Recipients []Recipient
	Psks       []Psk

	// Author signs on wrap; AuthorId verifies on unwrap and must come
	// from the stream's announcement.
	Author   *Identity
	AuthorId Identifier

	// Unwrap inputs: the subscriber's own identity and known
	// pre-shared keys. Either may be empty.
	Subscriber *Identity
	KnownPsks  []Psk

	// Found reports whether unwrap recovered the session key.
	Found bool
}

func (k *Keyload) Sizeof(s *ddml.SizeofContext) error {
	s.Join().
		AbsorbBytes(k.Nonce[:]).
		AbsorbSize(uint64(len(k.Recipients)))
	for range k.Recipients {
		s.Fork(func(fs *ddml.SizeofContext) error {
			var id Identifier
			if err := id.maskSizeof(fs); err != nil {
				return err
			}
			return fs.X25519(k.Key[:]).Err()
		})
	}
	s.AbsorbSize(uint64(len(k.Psks)))
	for range k.Psks {
		s.Fork(func(fs *ddml.SizeofContext) error {
			return fs.MaskBytes(make([]byte, PskIdSize)).
				AbsorbExternal(nil).
				Commit().
				MaskBytes(k.Key[:]).
				Err()
		})
	}
	s.AbsorbExternal(k.Key[:])
	return signSizeof(s)
}

func (k *Keyload) Wrap(w *ddml.WrapContext) error {
	if k.Author == nil {
		return ErrMissingIdentity
	}
	w.Join(k.Linked.Fork()).
		AbsorbBytes(k.Nonce[:]).
		AbsorbSize(uint64(len(k.Recipients)))
	for _, r := range k.Recipients {
		r := r
		w.Fork(func(fw *ddml.WrapContext) error {
			if err := r.Id.mask(fw); err != nil {
				return err
			}
			return fw.X25519(r.ExchangeKey, k.Key[:]).Err()
		})
	}
	w.AbsorbSize(uint64(len(k.Psks)))
	for _, p := range k.Psks {
		p := p
		w.Fork(func(fw *ddml.WrapContext) error {
			return fw.MaskBytes(p.Id[:]).
				AbsorbExternal(p.Secret[:]).
				Commit().
				MaskBytes(k.Key[:]).
				Err()
		})
	}
	w.AbsorbExternal(k.Key[:])
	return k.Author.sign(w)
}

func (k *Keyload) Unwrap(u *ddml.UnwrapContext) error {
	var nRecipients, nPsks uint64
	u.Join(k.Linked.Fork()).
		AbsorbBytes(k.Nonce[:]).
		AbsorbSize(&nRecipients)
	if err := u.Err(); err != nil {
		return err
	}

	var ownId Identifier
	if k.Subscriber != nil {
		ownId = k.Subscriber.Identifier()
	}
	k.Recipients = k.Recipients[:0]
	for i := uint64(0); i < nRecipients; i++ {
		u.Fork(func(fu *ddml.UnwrapContext) error {
			var id Identifier
			if err := id.unmask(fu); err != nil {
				return err
			}
			k.Recipients = append(k.Recipients, Recipient{Id: id})
			if k.Subscriber != nil && !k.Found && id.Equal(ownId) {
				if err := fu.X25519(k.Subscriber.exchangeSecretKey(), k.Key[:]).Err(); err != nil {
					return err
				}
				k.Found = true
				return nil
			}
			// Not our slot: consume the ephemeral key and the masked
			// session key without interpreting them. The fork discards
			// all sponge effects either way.
			var slot [32 + sessionKeySize]byte
			return fu.SkipBytes(slot[:]).Err()
		})
	}

	u.AbsorbSize(&nPsks)
	if err := u.Err(); err != nil {
		return err
	}
	for i := uint64(0); i < nPsks; i++ {
		u.Fork(func(fu *ddml.UnwrapContext) error {
			var pskId [PskIdSize]byte
			if err := fu.MaskBytes(pskId[:]).Err(); err != nil {
				return err
			}
			if psk, ok := k.lookupPsk(pskId); ok && !k.Found {
				err := fu.AbsorbExternal(psk.Secret[:]).
					Commit().
					MaskBytes(k.Key[:]).
					Err()
				if err != nil {
					return err
				}
				k.Found = true
				return nil
			}
			var slot [sessionKeySize]byte
			return fu.SkipBytes(slot[:]).Err()
		})
	}
	if err := u.Err(); err != nil {
		return err
	}
	if !k.Found {
		return ErrNotARecipient
	}
	u.AbsorbExternal(k.Key[:])
	return k.AuthorId.verify(u)
}

func (k *Keyload) lookupPsk(id [PskIdSize]byte) (Psk, bool) {
	for _, p := range k.KnownPsks {
		if p.Id == id {
			return p, true
		}
	}
	return Psk{}, false
}
