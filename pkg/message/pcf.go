package message

import (
	"encoding/binary"
	"fmt"

	"github.com/saltstream/saltstream/pkg/ddml"
)

// ContentSchema is implemented by every payload schema. The three
// methods must visit the same commands in the same order for the same
// logical value.
type ContentSchema interface {
	Sizeof(*ddml.SizeofContext) error
	Wrap(*ddml.WrapContext) error
	Unwrap(*ddml.UnwrapContext) error
}

// PCF is the payload frame carrying the schema-specific content. The
// frame number travels skipped in three bytes; multi-frame payloads are
// not produced, every frame is final.
type PCF[C ContentSchema] struct {
	FrameNum uint32
	Content  C
}

// NewPCF wraps content in a final payload frame.
func NewPCF[C ContentSchema](content C) *PCF[C] {
	return &PCF[C]{Content: content}
}

func frameNumBytes(n uint32) [3]byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], n)
	return [3]byte{b[1], b[2], b[3]}
}

func (p *PCF[C]) Sizeof(s *ddml.SizeofContext) error {
	fn := frameNumBytes(p.FrameNum)
	if err := s.AbsorbUint8(pcfFrameTypeFinal).SkipBytes(fn[:]).Err(); err != nil {
		return err
	}
	return p.Content.Sizeof(s)
}

func (p *PCF[C]) Wrap(w *ddml.WrapContext) error {
	fn := frameNumBytes(p.FrameNum)
	if err := w.AbsorbUint8(pcfFrameTypeFinal).SkipBytes(fn[:]).Err(); err != nil {
		return err
	}
	return p.Content.Wrap(w)
}

func (p *PCF[C]) Unwrap(u *ddml.UnwrapContext) error {
	var (
		frameType byte
		fn        [3]byte
	)
	err := u.AbsorbUint8(&frameType).
		Guard(frameType == pcfFrameTypeFinal, fmt.Errorf("%w: %d", ErrInvalidFrameType, frameType)).
		SkipBytes(fn[:]).
		Err()
	if err != nil {
		return err
	}
	p.FrameNum = uint32(fn[0])<<16 | uint32(fn[1])<<8 | uint32(fn[2])
	return p.Content.Unwrap(u)
}
