package message

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/saltstream/saltstream/pkg/sponge"
)

const (
	// AppAddrSize is the byte length of a stream's base address.
	AppAddrSize = 32
	// MsgIdSize is the byte length of a per-message identifier.
	MsgIdSize = 32
)

var ErrBadAddress = errors.New("malformed address")

// AppAddr identifies a stream instance. All messages of one stream
// share it.
type AppAddr [AppAddrSize]byte

// MsgId identifies one message within a stream.
type MsgId [MsgIdSize]byte

// Address locates a message: the stream it belongs to plus its
// per-message identifier.
type Address struct {
	Base     AppAddr
	Relative MsgId
}

// NewAppAddr derives the base address of a stream from the author's
// identifier and the base topic.
func NewAppAddr(identifier []byte, topic Topic) AppAddr {
	s := sponge.New()
	s.Absorb(identifier)
	s.Absorb(topic.Bytes())
	s.Commit()
	var a AppAddr
	s.SqueezeInto(a[:])
	return a
}

// NewMsgId derives a message identifier from the stream address, the
// publisher, the branch topic and the packed sequence number. Distinct
// (publisher, topic, seqnum) triples yield distinct identifiers.
func NewMsgId(base AppAddr, identifier []byte, topic Topic, seqNum uint64) MsgId {
	var seq [8]byte
	binary.BigEndian.PutUint64(seq[:], seqNum)
	s := sponge.New()
	s.Absorb(base[:])
	s.Absorb(identifier)
	s.Absorb(topic.Bytes())
	s.Absorb(seq[:])
	s.Commit()
	var m MsgId
	s.SqueezeInto(m[:])
	return m
}

// MsgIndex is the transport lookup key of the address, a blake2b-256
// digest of base and relative parts.
func (a Address) MsgIndex() [32]byte {
	buf := make([]byte, 0, AppAddrSize+MsgIdSize)
	buf = append(buf, a.Base[:]...)
	buf = append(buf, a.Relative[:]...)
	return blake2b.Sum256(buf)
}

// String renders the address as base:relative in hex.
func (a Address) String() string {
	return hex.EncodeToString(a.Base[:]) + ":" + hex.EncodeToString(a.Relative[:])
}

// ParseAddress parses the base:relative hex form produced by String.
func ParseAddress(s string) (Address, error) {
	var a Address
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return a, fmt.Errorf("%w: expected base:relative, got %q", ErrBadAddress, s)
	}
	base, err := hex.DecodeString(parts[0])
	if err != nil || len(base) != AppAddrSize {
		return a, fmt.Errorf("%w: bad base part", ErrBadAddress)
	}
	rel, err := hex.DecodeString(parts[1])
	if err != nil || len(rel) != MsgIdSize {
		return a, fmt.Errorf("%w: bad relative part", ErrBadAddress)
	}
	copy(a.Base[:], base)
	copy(a.Relative[:], rel)
	return a, nil
}
