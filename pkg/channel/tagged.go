package channel

import (
	"github.com/saltstream/saltstream/pkg/ddml"
	"github.com/saltstream/saltstream/pkg/sponge"
)

const macSize = 32

// TaggedPacket carries application data authenticated against the
// linked message's sponge state: a public part in the clear and a
// masked part readable only with the channel state.
type TaggedPacket struct {
	// Linked is the stored sponge state of the message this packet
	// links to. The packet join-binds it, so unforgeable possession of
	// that state is what authenticates the sender.
	Linked *sponge.Spongos

	Public []byte
	Masked []byte
}

func (t *TaggedPacket) Sizeof(s *ddml.SizeofContext) error {
	return s.Join().
		AbsorbBlob(t.Public).
		MaskBlob(t.Masked).
		Commit().
		SqueezeMac(macSize).
		Err()
}

func (t *TaggedPacket) Wrap(w *ddml.WrapContext) error {
	return w.Join(t.Linked.Fork()).
		AbsorbBlob(t.Public).
		MaskBlob(t.Masked).
		Commit().
		SqueezeMac(macSize).
		Err()
}

func (t *TaggedPacket) Unwrap(u *ddml.UnwrapContext) error {
	return u.Join(t.Linked.Fork()).
		AbsorbBlob(&t.Public).
		MaskBlob(&t.Masked).
		Commit().
		SqueezeMac(macSize).
		Err()
}
