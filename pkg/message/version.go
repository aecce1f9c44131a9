// Package message defines the wire envelope of a stream message: the
// header frame carrying addressing and sequencing metadata, the payload
// frame carrying schema-specific content, and the parse lifecycle that
// keeps one sponge transcript running across both.
package message

import "errors"

// Version is the protocol version byte carried by every header.
const Version = 2

// pcfFrameTypeFinal marks a payload frame that terminates the message.
const pcfFrameTypeFinal = 14

// ContentType selects the payload schema of a message.
type ContentType uint8

const (
	ContentAnnouncement ContentType = 1
	ContentKeyload      ContentType = 2
	ContentTaggedPacket ContentType = 3
	ContentSignedPacket ContentType = 4
	ContentSubscribe    ContentType = 5
	ContentUnsubscribe  ContentType = 6
)

var (
	ErrInvalidVersion     = errors.New("unsupported protocol version")
	ErrUnknownContentType = errors.New("unknown content type")
	ErrInvalidFrameType   = errors.New("invalid payload frame type")
)

// Valid reports whether t names a known payload schema.
func (t ContentType) Valid() bool {
	return t >= ContentAnnouncement && t <= ContentUnsubscribe
}

func (t ContentType) String() string {
	switch t {
	case ContentAnnouncement:
		return "announcement"
	case ContentKeyload:
		return "keyload"
	case ContentTaggedPacket:
		return "tagged-packet"
	case ContentSignedPacket:
		return "signed-packet"
	case ContentSubscribe:
		return "subscribe"
	case ContentUnsubscribe:
		return "unsubscribe"
	default:
		return "unknown"
	}
}
