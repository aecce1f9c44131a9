package transport

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saltstream/saltstream/pkg/message"
)

func testAddr(seed byte) message.Address {
	var a message.Address
	for i := range a.Base {
		a.Base[i] = seed
	}
	for i := range a.Relative {
		a.Relative[i] = seed + 1
	}
	return a
}

func TestBucketRoundTrip(t *testing.T) {
	ctx := context.Background()
	b := NewBucket()
	addr := testAddr(1)

	_, err := b.Receive(ctx, addr)
	assert.ErrorIs(t, err, ErrMsgNotFound)

	msg := message.TransportMessage("wrapped bytes")
	require.NoError(t, b.Send(ctx, addr, msg))
	got, err := b.Receive(ctx, addr)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, msg, got[0])

	// Stored messages must not alias the caller's buffer.
	msg[0] = 'X'
	got, err = b.Receive(ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, byte('w'), got[0][0])
}

func TestHTTPRelayRoundTrip(t *testing.T) {
	ctx := context.Background()
	server := NewRelayServer(NewBucket(), nil)
	ts := httptest.NewServer(server.Router())
	defer ts.Close()

	client := NewHTTPClient(ts.URL)
	addr := testAddr(2)

	_, err := client.Receive(ctx, addr)
	assert.ErrorIs(t, err, ErrMsgNotFound)

	msg := message.TransportMessage("relayed message body")
	require.NoError(t, client.Send(ctx, addr, msg))

	got, err := client.Receive(ctx, addr)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, msg, got[0])
}

func TestHTTPRelayRejectsBadIndex(t *testing.T) {
	server := NewRelayServer(NewBucket(), nil)
	ts := httptest.NewServer(server.Router())
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/api/v1/messages/nothex")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 400, resp.StatusCode)
}

func TestShardedTransportRoundTrip(t *testing.T) {
	ctx := context.Background()
	inners := make([]Transport, 5)
	buckets := make([]*Bucket, 5)
	for i := range inners {
		buckets[i] = NewBucket()
		inners[i] = buckets[i]
	}
	st, err := NewShardedTransport(inners, 3, 2)
	require.NoError(t, err)

	addr := testAddr(3)
	msg := message.TransportMessage("a wrapped message large enough to shard meaningfully")
	require.NoError(t, st.Send(ctx, addr, msg))

	got, err := st.Receive(ctx, addr)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, msg, got[0])
}

func TestShardedTransportSurvivesLosses(t *testing.T) {
	ctx := context.Background()
	inners := make([]Transport, 5)
	buckets := make([]*Bucket, 5)
	for i := range inners {
		buckets[i] = NewBucket()
		inners[i] = buckets[i]
	}
	st, err := NewShardedTransport(inners, 3, 2)
	require.NoError(t, err)

	addr := testAddr(4)
	msg := message.TransportMessage("survives the loss of up to two shards out of five")
	require.NoError(t, st.Send(ctx, addr, msg))

	// Drop two of the five relays entirely.
	lossy := []Transport{buckets[0], buckets[1], buckets[2]}
	st2, err := NewShardedTransport(lossy, 3, 2)
	require.NoError(t, err)
	got, err := st2.Receive(ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, msg, got[0])

	// Three lost relays exceed the parity budget.
	st3, err := NewShardedTransport([]Transport{buckets[0], buckets[1]}, 3, 2)
	require.NoError(t, err)
	_, err = st3.Receive(ctx, addr)
	assert.ErrorIs(t, err, ErrNotEnoughShards)
}

func TestP2PTransportExchange(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	relay, err := NewP2PTransport(ctx, &P2PConfig{ListenAddr: "/ip4/127.0.0.1/tcp/0"})
	require.NoError(t, err)
	defer relay.Close()
	addrs := relay.Addrs()
	require.NotEmpty(t, addrs)

	sender, err := NewP2PTransport(ctx, &P2PConfig{
		ListenAddr: "/ip4/127.0.0.1/tcp/0",
		Peers:      []string{addrs[0]},
	})
	require.NoError(t, err)
	defer sender.Close()

	receiver, err := NewP2PTransport(ctx, &P2PConfig{
		ListenAddr: "/ip4/127.0.0.1/tcp/0",
		Peers:      []string{addrs[0]},
	})
	require.NoError(t, err)
	defer receiver.Close()

	addr := testAddr(5)
	msg := message.TransportMessage("peer to peer wrapped message")
	require.NoError(t, sender.Send(ctx, addr, msg))

	got, err := receiver.Receive(ctx, addr)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, msg, got[0])
}
