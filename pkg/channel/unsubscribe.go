package channel

import (
	"github.com/saltstream/saltstream/pkg/ddml"
	"github.com/saltstream/saltstream/pkg/sponge"
)

// Unsubscribe retracts a subscription. It links to the subscriber's own
// subscribe message, so only the holder of that sponge state can issue
// it; a MAC over the joined transcript is proof enough.
type Unsubscribe struct {
	// Linked is the subscribe message's stored sponge state.
	Linked *sponge.Spongos

	Subscriber   *Identity
	SubscriberId Identifier
}

func (s *Unsubscribe) Sizeof(sz *ddml.SizeofContext) error {
	sz.Join()
	if err := s.SubscriberId.maskSizeof(sz); err != nil {
		return err
	}
	return sz.Commit().SqueezeMac(macSize).Err()
}

func (s *Unsubscribe) Wrap(w *ddml.WrapContext) error {
	if s.Subscriber == nil {
		return ErrMissingIdentity
	}
	w.Join(s.Linked.Fork())
	if err := s.Subscriber.Identifier().mask(w); err != nil {
		return err
	}
	return w.Commit().SqueezeMac(macSize).Err()
}

func (s *Unsubscribe) Unwrap(u *ddml.UnwrapContext) error {
	u.Join(s.Linked.Fork())
	if err := s.SubscriberId.unmask(u); err != nil {
		return err
	}
	return u.Commit().SqueezeMac(macSize).Err()
}
