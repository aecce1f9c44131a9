package channel

import (
	"github.com/saltstream/saltstream/pkg/ddml"
	"github.com/saltstream/saltstream/pkg/sponge"
)

// Subscribe registers a subscriber with the stream's author. The
// subscriber transports an unsubscribe key to the author under x25519
// and signs the request; the author needs that key to honor a later
// unsubscribe.
type Subscribe struct {
	// Linked is the announcement's stored sponge state.
	Linked *sponge.Spongos

	// AuthorExchangeKey encrypts toward the author on wrap;
	// AuthorIdentity decrypts on unwrap.
	AuthorExchangeKey []byte
	AuthorIdentity    *Identity

	UnsubscribeKey [sessionKeySize]byte

	Subscriber   *Identity
	SubscriberId Identifier

	// SubscriberExchangeKey travels absorbed so the author can address
	// later keyloads to this subscriber.
	SubscriberExchangeKey []byte
}

func (s *Subscribe) Sizeof(sz *ddml.SizeofContext) error {
	sz.Join().
		X25519(s.UnsubscribeKey[:]).
		Commit()
	if err := s.SubscriberId.maskSizeof(sz); err != nil {
		return err
	}
	sz.AbsorbBytes(make([]byte, 32))
	return signSizeof(sz)
}

func (s *Subscribe) Wrap(w *ddml.WrapContext) error {
	if s.Subscriber == nil {
		return ErrMissingIdentity
	}
	w.Join(s.Linked.Fork()).
		X25519(s.AuthorExchangeKey, s.UnsubscribeKey[:]).
		Commit()
	if err := s.Subscriber.Identifier().mask(w); err != nil {
		return err
	}
	w.AbsorbBytes(s.Subscriber.ExchangePublic())
	return s.Subscriber.sign(w)
}

func (s *Subscribe) Unwrap(u *ddml.UnwrapContext) error {
	if s.AuthorIdentity == nil {
		return ErrMissingIdentity
	}
	u.Join(s.Linked.Fork()).
		X25519(s.AuthorIdentity.exchangeSecretKey(), s.UnsubscribeKey[:]).
		Commit()
	if err := s.SubscriberId.unmask(u); err != nil {
		return err
	}
	s.SubscriberExchangeKey = make([]byte, 32)
	u.AbsorbBytes(s.SubscriberExchangeKey)
	return s.SubscriberId.verify(u)
}
