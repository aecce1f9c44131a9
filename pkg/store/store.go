// Package store persists the per-message sponge states that link
// messages together. A publisher can only extend a message whose state
// it holds, so the store is the authority on what this participant has
// seen and sent.
package store

import (
	"errors"

	"github.com/saltstream/saltstream/pkg/message"
	"github.com/saltstream/saltstream/pkg/sponge"
)

var ErrLinkNotFound = errors.New("link not found")

// Info is the metadata kept alongside a stored sponge state.
type Info struct {
	ContentType message.ContentType
	Topic       message.Topic
	SeqNum      uint64
}

// Store maps message identifiers to their committed sponge states.
// Lookup returns a private copy; mutating it does not affect the store.
type Store interface {
	Lookup(id message.MsgId) (*sponge.Spongos, Info, error)
	Update(id message.MsgId, st *sponge.Spongos, info Info) error
}
