// Package transport moves wrapped messages between participants. A
// transport is a dumb pipe keyed by message index; it never sees inside
// the sponge transcript.
package transport

import (
	"context"
	"errors"

	"github.com/saltstream/saltstream/pkg/message"
)

var ErrMsgNotFound = errors.New("no message at address")

// Transport sends and receives wrapped messages by address.
type Transport interface {
	Send(ctx context.Context, addr message.Address, msg message.TransportMessage) error
	Receive(ctx context.Context, addr message.Address) ([]message.TransportMessage, error)
}
