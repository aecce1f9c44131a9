package transport

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/libp2p/go-libp2p"
	dht "github.com/libp2p/go-libp2p-kad-dht"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	ma "github.com/multiformats/go-multiaddr"

	"github.com/saltstream/saltstream/pkg/message"
)

// ProtocolID identifies the relay exchange protocol.
const ProtocolID = protocol.ID("/saltstream/relay/1.0.0")

// P2PConfig contains configuration for a peer-to-peer transport node.
type P2PConfig struct {
	ListenAddr string
	Peers      []string // multiaddrs of relay peers, with /p2p/ suffix
	EnableDHT  bool
	PrivateKey crypto.PrivKey // Optional: provide your own key
}

// DefaultP2PConfig returns default p2p transport configuration
func DefaultP2PConfig() *P2PConfig {
	return &P2PConfig{
		ListenAddr: "/ip4/0.0.0.0/tcp/0",
	}
}

// p2pRequest is one relay exchange over a stream.
type p2pRequest struct {
	Op       string   `json:"op"` // "send" or "recv"
	Index    [32]byte `json:"index"`
	Messages [][]byte `json:"messages,omitempty"`
}

type p2pResponse struct {
	Success  bool     `json:"success"`
	Error    string   `json:"error,omitempty"`
	Messages [][]byte `json:"messages,omitempty"`
}

// P2PTransport exchanges wrapped messages with relay peers over
// libp2p streams. Each node also serves its own bucket, so any set of
// interconnected nodes forms a relay mesh.
type P2PTransport struct {
	host   host.Host
	dht    *dht.IpfsDHT
	bucket *Bucket

	mu    sync.RWMutex
	peers []peer.AddrInfo
}

// NewP2PTransport creates a transport node and connects it to the
// configured peers.
func NewP2PTransport(ctx context.Context, config *P2PConfig) (*P2PTransport, error) {
	if config == nil {
		config = DefaultP2PConfig()
	}

	priv := config.PrivateKey
	if priv == nil {
		var err error
		priv, _, err = crypto.GenerateEd25519Key(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("failed to generate key pair: %w", err)
		}
	}

	h, err := libp2p.New(
		libp2p.Identity(priv),
		libp2p.ListenAddrStrings(config.ListenAddr),
		libp2p.DefaultTransports,
		libp2p.DefaultMuxers,
		libp2p.DefaultSecurity,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create libp2p host: %w", err)
	}

	t := &P2PTransport{
		host:   h,
		bucket: NewBucket(),
	}
	h.SetStreamHandler(ProtocolID, t.handleStream)

	if config.EnableDHT {
		dhtInst, err := dht.New(ctx, h, dht.Mode(dht.ModeServer))
		if err != nil {
			h.Close()
			return nil, fmt.Errorf("failed to create DHT: %w", err)
		}
		if err := dhtInst.Bootstrap(ctx); err != nil {
			h.Close()
			return nil, fmt.Errorf("failed to bootstrap DHT: %w", err)
		}
		t.dht = dhtInst
	}

	for _, addr := range config.Peers {
		if err := t.AddPeer(ctx, addr); err != nil {
			t.Close()
			return nil, err
		}
	}
	return t, nil
}

// AddPeer connects to a relay peer given its full multiaddr.
func (t *P2PTransport) AddPeer(ctx context.Context, addr string) error {
	maddr, err := ma.NewMultiaddr(addr)
	if err != nil {
		return fmt.Errorf("invalid peer address %q: %w", addr, err)
	}
	info, err := peer.AddrInfoFromP2pAddr(maddr)
	if err != nil {
		return fmt.Errorf("invalid peer address %q: %w", addr, err)
	}
	if err := t.host.Connect(ctx, *info); err != nil {
		return fmt.Errorf("failed to connect to peer %s: %w", info.ID, err)
	}
	t.mu.Lock()
	t.peers = append(t.peers, *info)
	t.mu.Unlock()
	return nil
}

// Addrs returns the node's reachable multiaddrs, including peer ID.
func (t *P2PTransport) Addrs() []string {
	var out []string
	for _, a := range t.host.Addrs() {
		out = append(out, fmt.Sprintf("%s/p2p/%s", a, t.host.ID()))
	}
	return out
}

// handleStream serves one relay request from a remote peer.
func (t *P2PTransport) handleStream(s network.Stream) {
	defer s.Close()

	var req p2pRequest
	if err := json.NewDecoder(s).Decode(&req); err != nil {
		log.Printf("Failed to decode relay request from %s: %v", s.Conn().RemotePeer(), err)
		return
	}

	var resp p2pResponse
	switch req.Op {
	case "send":
		for _, m := range req.Messages {
			t.bucket.PutIndex(req.Index, m)
		}
		resp.Success = true
	case "recv":
		msgs := t.bucket.GetIndex(req.Index)
		for _, m := range msgs {
			resp.Messages = append(resp.Messages, m)
		}
		resp.Success = true
	default:
		resp.Error = fmt.Sprintf("unknown op %q", req.Op)
	}

	if err := json.NewEncoder(s).Encode(&resp); err != nil {
		log.Printf("Failed to encode relay response: %v", err)
	}
}

// exchange sends one request to a peer and reads the response.
func (t *P2PTransport) exchange(ctx context.Context, p peer.ID, req *p2pRequest) (*p2pResponse, error) {
	stream, err := t.host.NewStream(ctx, p, ProtocolID)
	if err != nil {
		return nil, fmt.Errorf("failed to open stream to %s: %w", p, err)
	}
	defer stream.Close()

	if err := json.NewEncoder(stream).Encode(req); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	var resp p2pResponse
	if err := json.NewDecoder(stream).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("peer %s: %s", p, resp.Error)
	}
	return &resp, nil
}

// Send stores the message locally and fans it out to every connected
// relay peer. Delivery to at least the local bucket always succeeds.
func (t *P2PTransport) Send(ctx context.Context, addr message.Address, msg message.TransportMessage) error {
	idx := addr.MsgIndex()
	t.bucket.PutIndex(idx, msg)

	req := &p2pRequest{Op: "send", Index: idx, Messages: [][]byte{msg}}
	t.mu.RLock()
	peers := append([]peer.AddrInfo(nil), t.peers...)
	t.mu.RUnlock()
	for _, p := range peers {
		if _, err := t.exchange(ctx, p.ID, req); err != nil {
			log.Printf("Failed to relay message to %s: %v", p.ID, err)
		}
	}
	return nil
}

// Receive returns local messages at addr, falling back to relay peers.
func (t *P2PTransport) Receive(ctx context.Context, addr message.Address) ([]message.TransportMessage, error) {
	idx := addr.MsgIndex()
	if msgs := t.bucket.GetIndex(idx); len(msgs) > 0 {
		return msgs, nil
	}

	req := &p2pRequest{Op: "recv", Index: idx}
	t.mu.RLock()
	peers := append([]peer.AddrInfo(nil), t.peers...)
	t.mu.RUnlock()
	for _, p := range peers {
		resp, err := t.exchange(ctx, p.ID, req)
		if err != nil {
			log.Printf("Failed to query peer %s: %v", p.ID, err)
			continue
		}
		if len(resp.Messages) > 0 {
			out := make([]message.TransportMessage, len(resp.Messages))
			for i, m := range resp.Messages {
				out[i] = m
			}
			return out, nil
		}
	}
	return nil, ErrMsgNotFound
}

// Close shuts down the DHT and the libp2p host.
func (t *P2PTransport) Close() error {
	if t.dht != nil {
		if err := t.dht.Close(); err != nil {
			return err
		}
	}
	return t.host.Close()
}
