package channel

import (
	"github.com/saltstream/saltstream/pkg/ddml"
	"github.com/saltstream/saltstream/pkg/sponge"
)

// SignedPacket carries application data under the publisher's ed25519
// signature instead of a MAC, so any reader holding the linked state
// can attribute it.
type SignedPacket struct {
	Linked *sponge.Spongos

	// Publisher signs on wrap; PublisherId is recovered on unwrap.
	Publisher   *Identity
	PublisherId Identifier

	Public []byte
	Masked []byte
}

func (p *SignedPacket) Sizeof(s *ddml.SizeofContext) error {
	s.Join()
	if err := p.PublisherId.maskSizeof(s); err != nil {
		return err
	}
	if err := s.AbsorbBlob(p.Public).MaskBlob(p.Masked).Err(); err != nil {
		return err
	}
	return signSizeof(s)
}

func (p *SignedPacket) Wrap(w *ddml.WrapContext) error {
	if p.Publisher == nil {
		return ErrMissingIdentity
	}
	w.Join(p.Linked.Fork())
	if err := p.Publisher.Identifier().mask(w); err != nil {
		return err
	}
	if err := w.AbsorbBlob(p.Public).MaskBlob(p.Masked).Err(); err != nil {
		return err
	}
	return p.Publisher.sign(w)
}

func (p *SignedPacket) Unwrap(u *ddml.UnwrapContext) error {
	u.Join(p.Linked.Fork())
	if err := p.PublisherId.unmask(u); err != nil {
		return err
	}
	if err := u.AbsorbBlob(&p.Public).MaskBlob(&p.Masked).Err(); err != nil {
		return err
	}
	return p.PublisherId.verify(u)
}
