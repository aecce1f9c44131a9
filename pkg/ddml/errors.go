// Package ddml implements the binary data-description command set used to
// build and parse authenticated messages. Three interpreters share one
// command grammar: sizeof counts wire bytes, wrap encodes while folding
// every byte through a Spongos state, unwrap decodes and validates against
// an independently evolved state. Wrap and unwrap are exact inverses:
// identical command order over identical logical content leaves both
// sponges in byte-identical states.
package ddml

import "errors"

var (
	// ErrStreamExhausted is returned when a read or write would run past
	// the end of the message buffer. Truncated input surfaces here.
	ErrStreamExhausted = errors.New("stream exhausted")

	// ErrBadMac is returned when a squeezed tag does not match the wire.
	ErrBadMac = errors.New("integrity violation: bad MAC")

	// ErrBadSignature is returned when an ed25519 signature does not
	// verify against the squeezed pre-image.
	ErrBadSignature = errors.New("signature mismatch")

	// ErrInvalidSize is returned for a malformed size encoding.
	ErrInvalidSize = errors.New("invalid size encoding")

	// ErrSizeOverflow is returned when a sizeof computation would
	// overflow the byte counter.
	ErrSizeOverflow = errors.New("size computation overflow")
)
