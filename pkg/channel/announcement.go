package channel

import (
	"errors"

	"golang.org/x/crypto/curve25519"

	"github.com/saltstream/saltstream/pkg/ddml"
)

var ErrMissingIdentity = errors.New("operation requires a private identity")

// Announcement is the first message of a stream. It binds the author's
// signing identity and exchange key under the author's signature;
// everything that follows links back to it.
type Announcement struct {
	// Author is required for wrapping, nil on unwrap.
	Author *Identity

	// AuthorId and ExchangeKey are populated by unwrap.
	AuthorId    Identifier
	ExchangeKey [curve25519.PointSize]byte
}

// NewAnnouncement prepares the stream's first message for author.
func NewAnnouncement(author *Identity) *Announcement {
	a := &Announcement{Author: author, AuthorId: author.Identifier()}
	copy(a.ExchangeKey[:], author.ExchangePublic())
	return a
}

func (a *Announcement) Sizeof(s *ddml.SizeofContext) error {
	if err := a.AuthorId.maskSizeof(s); err != nil {
		return err
	}
	if err := s.AbsorbBytes(a.ExchangeKey[:]).Err(); err != nil {
		return err
	}
	if err := signSizeof(s); err != nil {
		return err
	}
	return s.Commit().Err()
}

func (a *Announcement) Wrap(w *ddml.WrapContext) error {
	if a.Author == nil {
		return ErrMissingIdentity
	}
	if err := a.AuthorId.mask(w); err != nil {
		return err
	}
	if err := w.AbsorbBytes(a.ExchangeKey[:]).Err(); err != nil {
		return err
	}
	if err := a.Author.sign(w); err != nil {
		return err
	}
	return w.Commit().Err()
}

func (a *Announcement) Unwrap(u *ddml.UnwrapContext) error {
	if err := a.AuthorId.unmask(u); err != nil {
		return err
	}
	if err := u.AbsorbBytes(a.ExchangeKey[:]).Err(); err != nil {
		return err
	}
	if err := a.AuthorId.verify(u); err != nil {
		return err
	}
	return u.Commit().Err()
}
