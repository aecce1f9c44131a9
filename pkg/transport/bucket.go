package transport

import (
	"context"
	"sync"

	"github.com/saltstream/saltstream/pkg/message"
)

// Bucket is an in-memory transport, keyed by message index. It backs
// tests and serves as the storage side of the relay transports.
type Bucket struct {
	mu       sync.RWMutex
	messages map[[32]byte][]message.TransportMessage
}

// NewBucket returns an empty in-memory transport.
func NewBucket() *Bucket {
	return &Bucket{messages: make(map[[32]byte][]message.TransportMessage)}
}

func (b *Bucket) Send(_ context.Context, addr message.Address, msg message.TransportMessage) error {
	cp := append(message.TransportMessage(nil), msg...)
	b.mu.Lock()
	defer b.mu.Unlock()
	idx := addr.MsgIndex()
	b.messages[idx] = append(b.messages[idx], cp)
	return nil
}

func (b *Bucket) Receive(_ context.Context, addr message.Address) ([]message.TransportMessage, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	msgs, ok := b.messages[addr.MsgIndex()]
	if !ok || len(msgs) == 0 {
		return nil, ErrMsgNotFound
	}
	out := make([]message.TransportMessage, len(msgs))
	for i, m := range msgs {
		out[i] = append(message.TransportMessage(nil), m...)
	}
	return out, nil
}

// PutIndex stores a message under a raw index, for relays that only see
// opaque keys.
func (b *Bucket) PutIndex(idx [32]byte, msg message.TransportMessage) {
	cp := append(message.TransportMessage(nil), msg...)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages[idx] = append(b.messages[idx], cp)
}

// GetIndex fetches all messages stored under a raw index.
func (b *Bucket) GetIndex(idx [32]byte) []message.TransportMessage {
	b.mu.RLock()
	defer b.mu.RUnlock()
	msgs := b.messages[idx]
	out := make([]message.TransportMessage, len(msgs))
	for i, m := range msgs {
		out[i] = append(message.TransportMessage(nil), m...)
	}
	return out
}
