package transport

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/klauspost/reedsolomon"

	"github.com/saltstream/saltstream/pkg/message"
)

// shardHeaderSize is [shardIdx:1][dataShards:1][parityShards:1][origSize:4].
const shardHeaderSize = 7

var ErrNotEnoughShards = errors.New("not enough shards to reconstruct message")

// ShardedTransport erasure-codes each wrapped message across a set of
// inner transports. Any dataShards of the dataShards+parityShards
// pieces reconstruct the message, so up to parityShards relays may be
// lost or unreachable.
type ShardedTransport struct {
	encoder      reedsolomon.Encoder
	dataShards   int
	parityShards int
	inners       []Transport
}

// NewShardedTransport shards across inners with the given redundancy.
func NewShardedTransport(inners []Transport, dataShards, parityShards int) (*ShardedTransport, error) {
	if len(inners) == 0 {
		return nil, errors.New("sharded transport needs at least one inner transport")
	}
	enc, err := reedsolomon.New(dataShards, parityShards)
	if err != nil {
		return nil, fmt.Errorf("failed to create Reed-Solomon encoder: %w", err)
	}
	return &ShardedTransport{
		encoder:      enc,
		dataShards:   dataShards,
		parityShards: parityShards,
		inners:       inners,
	}, nil
}

func (t *ShardedTransport) frameShard(idx int, origSize int, shard []byte) message.TransportMessage {
	frame := make([]byte, shardHeaderSize+len(shard))
	frame[0] = byte(idx)
	frame[1] = byte(t.dataShards)
	frame[2] = byte(t.parityShards)
	binary.BigEndian.PutUint32(frame[3:7], uint32(origSize))
	copy(frame[shardHeaderSize:], shard)
	return frame
}

// Send splits msg into data and parity shards and distributes the
// framed shards round-robin over the inner transports. Individual
// transport failures are tolerated as long as enough shards land.
func (t *ShardedTransport) Send(ctx context.Context, addr message.Address, msg message.TransportMessage) error {
	shards, err := t.encoder.Split(msg)
	if err != nil {
		return fmt.Errorf("failed to split message: %w", err)
	}
	if err := t.encoder.Encode(shards); err != nil {
		return fmt.Errorf("failed to encode parity shards: %w", err)
	}

	var failed int
	var lastErr error
	for i, shard := range shards {
		inner := t.inners[i%len(t.inners)]
		if err := inner.Send(ctx, addr, t.frameShard(i, len(msg), shard)); err != nil {
			failed++
			lastErr = err
		}
	}
	if failed > t.parityShards {
		return fmt.Errorf("too many shard sends failed (%d): %w", failed, lastErr)
	}
	return nil
}

// Receive gathers shards from all inner transports and reconstructs the
// original message. Missing shards up to the parity count are repaired.
func (t *ShardedTransport) Receive(ctx context.Context, addr message.Address) ([]message.TransportMessage, error) {
	total := t.dataShards + t.parityShards
	shards := make([][]byte, total)
	var present int
	var origSize uint32

	for _, inner := range t.inners {
		msgs, err := inner.Receive(ctx, addr)
		if err != nil {
			continue
		}
		for _, m := range msgs {
			if len(m) < shardHeaderSize {
				continue
			}
			idx := int(m[0])
			if idx >= total || int(m[1]) != t.dataShards || int(m[2]) != t.parityShards {
				continue
			}
			if shards[idx] != nil {
				continue
			}
			shards[idx] = append([]byte(nil), m[shardHeaderSize:]...)
			origSize = binary.BigEndian.Uint32(m[3:7])
			present++
		}
	}

	if present < t.dataShards {
		return nil, fmt.Errorf("%w: have %d of %d", ErrNotEnoughShards, present, t.dataShards)
	}
	if present < total {
		if err := t.encoder.Reconstruct(shards); err != nil {
			return nil, fmt.Errorf("failed to reconstruct message: %w", err)
		}
	}

	var buf bytes.Buffer
	if err := t.encoder.Join(&buf, shards, int(origSize)); err != nil {
		return nil, fmt.Errorf("failed to join shards: %w", err)
	}
	return []message.TransportMessage{buf.Bytes()}, nil
}
