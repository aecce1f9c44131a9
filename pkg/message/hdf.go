package message

import (
	"fmt"

	"github.com/saltstream/saltstream/pkg/ddml"
)

// HDF is the header frame of a message: protocol version, payload
// schema selector, addressing, an optional link to a previous message,
// and publisher metadata. Addressing and version travel absorbed, the
// topic and publisher masked, the sequence number skipped so relays can
// read it without the channel secrets. An HDF is immutable once parsed.
type HDF struct {
	Version     byte
	ContentType ContentType
	Address     Address
	Linked      *MsgId
	Topic       Topic
	Publisher   []byte
	SeqNum      uint64
}

// NewHDF builds a header for an outgoing message at the current
// protocol version.
func NewHDF(ct ContentType, addr Address, topic Topic, publisher []byte, seqNum uint64) *HDF {
	return &HDF{
		Version:     Version,
		ContentType: ct,
		Address:     addr,
		Topic:       topic,
		Publisher:   publisher,
		SeqNum:      seqNum,
	}
}

// WithLink records the message this one is linked to.
func (h *HDF) WithLink(id MsgId) *HDF {
	h.Linked = &id
	return h
}

func (h *HDF) linkFlag() byte {
	if h.Linked != nil {
		return 1
	}
	return 0
}

// Sizeof accounts for the header's wire footprint.
func (h *HDF) Sizeof(s *ddml.SizeofContext) error {
	s.AbsorbUint8(h.Version).
		AbsorbUint8(byte(h.ContentType)).
		AbsorbBytes(h.Address.Base[:]).
		AbsorbBytes(h.Address.Relative[:]).
		AbsorbUint8(h.linkFlag())
	if h.Linked != nil {
		s.AbsorbBytes(h.Linked[:])
	}
	return s.MaskBlob(h.Topic.Bytes()).
		MaskBlob(h.Publisher).
		SkipSize(h.SeqNum).
		Commit().
		Err()
}

// Wrap encodes the header and advances the sponge transcript.
func (h *HDF) Wrap(w *ddml.WrapContext) error {
	w.AbsorbUint8(h.Version).
		AbsorbUint8(byte(h.ContentType)).
		AbsorbBytes(h.Address.Base[:]).
		AbsorbBytes(h.Address.Relative[:]).
		AbsorbUint8(h.linkFlag())
	if h.Linked != nil {
		w.AbsorbBytes(h.Linked[:])
	}
	return w.MaskBlob(h.Topic.Bytes()).
		MaskBlob(h.Publisher).
		SkipSize(h.SeqNum).
		Commit().
		Err()
}

// Unwrap decodes a header, guarding the version and content type
// before anything else is trusted.
func (h *HDF) Unwrap(u *ddml.UnwrapContext) error {
	var (
		ct       byte
		linkFlag byte
		topic    []byte
	)
	u.AbsorbUint8(&h.Version).
		Guard(h.Version == Version, fmt.Errorf("%w: got %d, want %d", ErrInvalidVersion, h.Version, Version)).
		AbsorbUint8(&ct)
	h.ContentType = ContentType(ct)
	u.Guard(h.ContentType.Valid(), fmt.Errorf("%w: %d", ErrUnknownContentType, ct)).
		AbsorbBytes(h.Address.Base[:]).
		AbsorbBytes(h.Address.Relative[:]).
		AbsorbUint8(&linkFlag).
		Guard(linkFlag <= 1, fmt.Errorf("%w: bad link flag %d", ErrBadAddress, linkFlag))
	if u.Err() == nil && linkFlag == 1 {
		var id MsgId
		u.AbsorbBytes(id[:])
		h.Linked = &id
	}
	err := u.MaskBlob(&topic).
		MaskBlob(&h.Publisher).
		SkipSize(&h.SeqNum).
		Commit().
		Err()
	if err != nil {
		return err
	}
	h.Topic = Topic(topic)
	return nil
}
