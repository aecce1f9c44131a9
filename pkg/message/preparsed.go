package message

import (
	"fmt"

	"github.com/saltstream/saltstream/pkg/ddml"
	"github.com/saltstream/saltstream/pkg/sponge"
)

// WrapMessage encodes a complete message: the header followed by a
// final payload frame, sharing one sponge transcript. It returns the
// wire bytes and the final committed sponge state for the link store.
func WrapMessage(hdf *HDF, content ContentSchema) (TransportMessage, *sponge.Spongos, error) {
	pcf := &PCF[ContentSchema]{Content: content}

	size := ddml.Sizeof()
	if err := hdf.Sizeof(size); err != nil {
		return nil, nil, fmt.Errorf("failed to size header: %w", err)
	}
	if err := pcf.Sizeof(size); err != nil {
		return nil, nil, fmt.Errorf("failed to size content: %w", err)
	}
	if err := size.Err(); err != nil {
		return nil, nil, err
	}

	w := ddml.Wrap(make([]byte, size.Size()))
	if err := hdf.Wrap(w); err != nil {
		return nil, nil, fmt.Errorf("failed to wrap header: %w", err)
	}
	if err := pcf.Wrap(w); err != nil {
		return nil, nil, fmt.Errorf("failed to wrap content: %w", err)
	}
	body, st, err := w.Finalize()
	if err != nil {
		return nil, nil, err
	}
	return TransportMessage(body), st, nil
}

// PreparsedMessage is a message whose header has been decoded and
// validated but whose payload is still opaque. It holds the sponge
// state reached after the header so content unwrap continues the same
// transcript.
type PreparsedMessage struct {
	Header  HDF
	spongos *sponge.Spongos
	rest    []byte
}

// ParseHeader decodes and validates the header frame of msg. The
// payload remains unread; no state is retained on failure.
func ParseHeader(msg TransportMessage) (*PreparsedMessage, error) {
	u := ddml.Unwrap(msg)
	var hdf HDF
	if err := hdf.Unwrap(u); err != nil {
		return nil, err
	}
	return &PreparsedMessage{
		Header:  hdf,
		spongos: u.Spongos(),
		rest:    u.Rest(),
	}, nil
}

// ContentType reports which payload schema the message carries.
func (p *PreparsedMessage) ContentType() ContentType { return p.Header.ContentType }

// UnwrapContent decodes the payload frame into content, continuing the
// header's sponge transcript. On success it returns the final committed
// sponge state; on failure all partial state is discarded.
func (p *PreparsedMessage) UnwrapContent(content ContentSchema) (*sponge.Spongos, error) {
	pcf := &PCF[ContentSchema]{Content: content}
	u := ddml.UnwrapWithSpongos(p.rest, p.spongos.Fork())
	if err := pcf.Unwrap(u); err != nil {
		return nil, err
	}
	return u.Finalize()
}
