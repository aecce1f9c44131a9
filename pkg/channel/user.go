package channel

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"

	"github.com/saltstream/saltstream/pkg/message"
	"github.com/saltstream/saltstream/pkg/sponge"
	"github.com/saltstream/saltstream/pkg/store"
	"github.com/saltstream/saltstream/pkg/transport"
)

var (
	ErrNoStream       = errors.New("no stream joined")
	ErrAlreadyStream  = errors.New("stream already exists")
	ErrNotAuthor      = errors.New("operation restricted to the stream author")
	ErrUnknownMessage = errors.New("message does not unwrap under any known schema")
	ErrMsgUnavailable = errors.New("no message retrieved")
)

// Received is a successfully unwrapped incoming message.
type Received struct {
	Header  message.HDF
	Content message.ContentSchema
}

// User is one participant of a stream: it wraps outgoing messages,
// unwraps incoming ones, and keeps the link store and cursors that tie
// the stream together. All methods are safe for concurrent use.
type User struct {
	id        *Identity
	transport transport.Transport
	links     store.Store

	mu             sync.Mutex
	base           message.AppAddr
	baseTopic      message.Topic
	announcementId message.MsgId
	authorId       Identifier
	authorXKey     []byte
	isAuthor       bool
	joined         bool

	subscribers     []Recipient
	unsubscribeKeys map[Identifier][sessionKeySize]byte
	subscriptionIds map[Identifier]message.MsgId
	psks            []Psk

	cursors map[cursorKey]message.Cursor
	lastMsg map[message.Topic]message.MsgId
}

// cursorKey tracks positions per publisher and branch.
type cursorKey struct {
	id    Identifier
	topic message.Topic
}

// NewUser creates a participant from its identity, a transport and a
// link store.
func NewUser(id *Identity, tr transport.Transport, links store.Store) *User {
	return &User{
		id:              id,
		transport:       tr,
		links:           links,
		unsubscribeKeys: make(map[Identifier][sessionKeySize]byte),
		subscriptionIds: make(map[Identifier]message.MsgId),
		cursors:         make(map[cursorKey]message.Cursor),
		lastMsg:         make(map[message.Topic]message.MsgId),
	}
}

// Identifier returns the participant's public identity.
func (u *User) Identifier() Identifier { return u.id.Identifier() }

// StreamAddress returns the announcement address of the joined stream.
func (u *User) StreamAddress() (message.Address, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if !u.joined {
		return message.Address{}, ErrNoStream
	}
	return message.Address{Base: u.base, Relative: u.announcementId}, nil
}

// AddPsk registers a pre-shared key for keyload wrapping and unwrapping.
func (u *User) AddPsk(psk Psk) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.psks = append(u.psks, psk)
}

// Subscribers returns the recipients learned from subscribe messages.
func (u *User) Subscribers() []Recipient {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]Recipient(nil), u.subscribers...)
}

// nextMsgId advances the cursor for topic and derives the message id.
// Caller holds u.mu.
func (u *User) nextMsgId(topic message.Topic) (message.MsgId, uint64) {
	key := cursorKey{id: u.id.Identifier(), topic: topic}
	cur := u.cursors[key].NextSeq()
	u.cursors[key] = cur
	seq := cur.SeqNum()
	return message.NewMsgId(u.base, u.id.Identifier().Bytes(), topic, seq), seq
}

// commit sends the wrapped message and stores its final sponge state.
// Nothing is stored if the send fails. Caller holds u.mu.
func (u *User) commit(ctx context.Context, hdf *message.HDF, body message.TransportMessage, st *sponge.Spongos) error {
	addr := hdf.Address
	if err := u.transport.Send(ctx, addr, body); err != nil {
		return fmt.Errorf("failed to send %s: %w", hdf.ContentType, err)
	}
	info := store.Info{ContentType: hdf.ContentType, Topic: hdf.Topic, SeqNum: hdf.SeqNum}
	if err := u.links.Update(addr.Relative, st, info); err != nil {
		return fmt.Errorf("failed to store link state: %w", err)
	}
	u.lastMsg[hdf.Topic] = addr.Relative
	return nil
}

// CreateStream announces a new stream with the given base topic and
// makes this participant its author.
func (u *User) CreateStream(ctx context.Context, baseTopic message.Topic) (message.Address, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.joined {
		return message.Address{}, ErrAlreadyStream
	}

	base := message.NewAppAddr(u.id.Identifier().Bytes(), baseTopic)
	msgId := message.NewMsgId(base, u.id.Identifier().Bytes(), baseTopic, 0)
	addr := message.Address{Base: base, Relative: msgId}

	hdf := message.NewHDF(message.ContentAnnouncement, addr, baseTopic, u.id.Identifier().Bytes(), 0)
	body, st, err := message.WrapMessage(hdf, NewAnnouncement(u.id))
	if err != nil {
		return message.Address{}, fmt.Errorf("failed to wrap announcement: %w", err)
	}

	u.base = base
	u.baseTopic = baseTopic
	u.announcementId = msgId
	u.authorId = u.id.Identifier()
	u.authorXKey = u.id.ExchangePublic()
	u.isAuthor = true
	u.joined = true

	if err := u.commit(ctx, hdf, body, st); err != nil {
		u.joined = false
		return message.Address{}, err
	}
	return addr, nil
}

// JoinStream fetches and verifies the announcement at addr, making this
// participant a reader of the stream.
func (u *User) JoinStream(ctx context.Context, addr message.Address) error {
	msgs, err := u.transport.Receive(ctx, addr)
	if err != nil {
		return fmt.Errorf("failed to fetch announcement: %w", err)
	}

	for _, raw := range msgs {
		pre, err := message.ParseHeader(raw)
		if err != nil || pre.ContentType() != message.ContentAnnouncement {
			continue
		}
		ann := &Announcement{}
		st, err := pre.UnwrapContent(ann)
		if err != nil {
			continue
		}

		u.mu.Lock()
		defer u.mu.Unlock()
		u.base = addr.Base
		u.baseTopic = pre.Header.Topic
		u.announcementId = addr.Relative
		u.authorId = ann.AuthorId
		u.authorXKey = append([]byte(nil), ann.ExchangeKey[:]...)
		u.joined = true
		info := store.Info{ContentType: message.ContentAnnouncement, Topic: pre.Header.Topic}
		if err := u.links.Update(addr.Relative, st, info); err != nil {
			return fmt.Errorf("failed to store announcement state: %w", err)
		}
		u.lastMsg[pre.Header.Topic] = addr.Relative
		return nil
	}
	return fmt.Errorf("%w: no valid announcement at %s", ErrUnknownMessage, addr)
}

// Subscribe wraps and sends a subscription linked to the announcement.
func (u *User) Subscribe(ctx context.Context) (message.Address, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if !u.joined {
		return message.Address{}, ErrNoStream
	}

	linked, _, err := u.links.Lookup(u.announcementId)
	if err != nil {
		return message.Address{}, fmt.Errorf("announcement state missing: %w", err)
	}

	sub := &Subscribe{
		Linked:            linked,
		AuthorExchangeKey: u.authorXKey,
		Subscriber:        u.id,
	}
	if _, err := rand.Read(sub.UnsubscribeKey[:]); err != nil {
		return message.Address{}, fmt.Errorf("failed to generate unsubscribe key: %w", err)
	}

	msgId, seq := u.nextMsgId(u.baseTopic)
	addr := message.Address{Base: u.base, Relative: msgId}
	hdf := message.NewHDF(message.ContentSubscribe, addr, u.baseTopic, u.id.Identifier().Bytes(), seq).
		WithLink(u.announcementId)
	body, st, err := message.WrapMessage(hdf, sub)
	if err != nil {
		return message.Address{}, fmt.Errorf("failed to wrap subscription: %w", err)
	}
	u.subscriptionIds[u.id.Identifier()] = msgId
	if err := u.commit(ctx, hdf, body, st); err != nil {
		return message.Address{}, err
	}
	return addr, nil
}

// Unsubscribe retracts this participant's subscription.
func (u *User) Unsubscribe(ctx context.Context) (message.Address, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if !u.joined {
		return message.Address{}, ErrNoStream
	}
	subId, ok := u.subscriptionIds[u.id.Identifier()]
	if !ok {
		return message.Address{}, fmt.Errorf("%w: not subscribed", store.ErrLinkNotFound)
	}
	linked, _, err := u.links.Lookup(subId)
	if err != nil {
		return message.Address{}, fmt.Errorf("subscription state missing: %w", err)
	}

	unsub := &Unsubscribe{Linked: linked, Subscriber: u.id}
	msgId, seq := u.nextMsgId(u.baseTopic)
	addr := message.Address{Base: u.base, Relative: msgId}
	hdf := message.NewHDF(message.ContentUnsubscribe, addr, u.baseTopic, u.id.Identifier().Bytes(), seq).
		WithLink(subId)
	body, st, err := message.WrapMessage(hdf, unsub)
	if err != nil {
		return message.Address{}, fmt.Errorf("failed to wrap unsubscription: %w", err)
	}
	if err := u.commit(ctx, hdf, body, st); err != nil {
		return message.Address{}, err
	}
	return addr, nil
}

// NewBranch opens a fresh branch for topic, starting its cursor past
// all existing branches.
func (u *User) NewBranch(topic message.Topic) message.Cursor {
	u.mu.Lock()
	defer u.mu.Unlock()
	var maxBranch uint32
	for _, c := range u.cursors {
		if c.BranchNo >= maxBranch {
			maxBranch = c.BranchNo + 1
		}
	}
	cur := message.Cursor{BranchNo: maxBranch}
	u.cursors[cursorKey{id: u.id.Identifier(), topic: topic}] = cur
	return cur
}

// SendKeyload distributes a fresh session key on topic to all known
// subscribers and pre-shared keys, linked to the announcement. Only the
// author may send keyloads.
func (u *User) SendKeyload(ctx context.Context, topic message.Topic) (message.Address, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if !u.joined {
		return message.Address{}, ErrNoStream
	}
	if !u.isAuthor {
		return message.Address{}, ErrNotAuthor
	}
	linked, _, err := u.links.Lookup(u.announcementId)
	if err != nil {
		return message.Address{}, fmt.Errorf("announcement state missing: %w", err)
	}

	kl := &Keyload{
		Linked:     linked,
		Recipients: append([]Recipient(nil), u.subscribers...),
		Psks:       append([]Psk(nil), u.psks...),
		Author:     u.id,
	}
	if _, err := rand.Read(kl.Nonce[:]); err != nil {
		return message.Address{}, fmt.Errorf("failed to generate nonce: %w", err)
	}
	if _, err := rand.Read(kl.Key[:]); err != nil {
		return message.Address{}, fmt.Errorf("failed to generate session key: %w", err)
	}

	msgId, seq := u.nextMsgId(topic)
	addr := message.Address{Base: u.base, Relative: msgId}
	hdf := message.NewHDF(message.ContentKeyload, addr, topic, u.id.Identifier().Bytes(), seq).
		WithLink(u.announcementId)
	body, st, err := message.WrapMessage(hdf, kl)
	if err != nil {
		return message.Address{}, fmt.Errorf("failed to wrap keyload: %w", err)
	}
	if err := u.commit(ctx, hdf, body, st); err != nil {
		return message.Address{}, err
	}
	return addr, nil
}

// linkFor picks the link target for a data packet on topic: the last
// message seen on that branch, falling back to the announcement.
// Caller holds u.mu.
func (u *User) linkFor(topic message.Topic) (message.MsgId, *sponge.Spongos, error) {
	linkId, ok := u.lastMsg[topic]
	if !ok {
		linkId = u.announcementId
	}
	st, _, err := u.links.Lookup(linkId)
	if err != nil {
		return message.MsgId{}, nil, fmt.Errorf("link state missing: %w", err)
	}
	return linkId, st, nil
}

// SendTagged publishes a MAC-authenticated data packet on topic.
func (u *User) SendTagged(ctx context.Context, topic message.Topic, public, masked []byte) (message.Address, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if !u.joined {
		return message.Address{}, ErrNoStream
	}
	linkId, linked, err := u.linkFor(topic)
	if err != nil {
		return message.Address{}, err
	}

	packet := &TaggedPacket{Linked: linked, Public: public, Masked: masked}
	msgId, seq := u.nextMsgId(topic)
	addr := message.Address{Base: u.base, Relative: msgId}
	hdf := message.NewHDF(message.ContentTaggedPacket, addr, topic, u.id.Identifier().Bytes(), seq).
		WithLink(linkId)
	body, st, err := message.WrapMessage(hdf, packet)
	if err != nil {
		return message.Address{}, fmt.Errorf("failed to wrap tagged packet: %w", err)
	}
	if err := u.commit(ctx, hdf, body, st); err != nil {
		return message.Address{}, err
	}
	return addr, nil
}

// SendSigned publishes a signed data packet on topic.
func (u *User) SendSigned(ctx context.Context, topic message.Topic, public, masked []byte) (message.Address, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if !u.joined {
		return message.Address{}, ErrNoStream
	}
	linkId, linked, err := u.linkFor(topic)
	if err != nil {
		return message.Address{}, err
	}

	packet := &SignedPacket{Linked: linked, Publisher: u.id, Public: public, Masked: masked}
	msgId, seq := u.nextMsgId(topic)
	addr := message.Address{Base: u.base, Relative: msgId}
	hdf := message.NewHDF(message.ContentSignedPacket, addr, topic, u.id.Identifier().Bytes(), seq).
		WithLink(linkId)
	body, st, err := message.WrapMessage(hdf, packet)
	if err != nil {
		return message.Address{}, fmt.Errorf("failed to wrap signed packet: %w", err)
	}
	if err := u.commit(ctx, hdf, body, st); err != nil {
		return message.Address{}, err
	}
	return addr, nil
}

// Receive fetches the message at addr and unwraps it according to its
// header. On success the message's sponge state is committed to the
// link store; failed unwraps leave no trace.
func (u *User) Receive(ctx context.Context, addr message.Address) (*Received, error) {
	msgs, err := u.transport.Receive(ctx, addr)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for _, raw := range msgs {
		pre, err := message.ParseHeader(raw)
		if err != nil {
			lastErr = err
			continue
		}
		rcv, err := u.handle(pre)
		if err != nil {
			lastErr = err
			continue
		}
		return rcv, nil
	}
	if lastErr == nil {
		lastErr = ErrMsgUnavailable
	}
	return nil, lastErr
}

// linkedState resolves the header's link against the store.
// Caller holds u.mu.
func (u *User) linkedState(hdf *message.HDF) (*sponge.Spongos, error) {
	if hdf.Linked == nil {
		return nil, fmt.Errorf("%w: %s without link", ErrUnknownMessage, hdf.ContentType)
	}
	st, _, err := u.links.Lookup(*hdf.Linked)
	if err != nil {
		return nil, err
	}
	return st, nil
}

// handle dispatches on the content type and unwraps.
func (u *User) handle(pre *message.PreparsedMessage) (*Received, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	hdf := pre.Header
	var (
		content message.ContentSchema
		after   func()
	)

	switch hdf.ContentType {
	case message.ContentAnnouncement:
		content = &Announcement{}

	case message.ContentKeyload:
		linked, err := u.linkedState(&hdf)
		if err != nil {
			return nil, err
		}
		kl := &Keyload{
			Linked:     linked,
			AuthorId:   u.authorId,
			Subscriber: u.id,
			KnownPsks:  append([]Psk(nil), u.psks...),
		}
		content = kl

	case message.ContentTaggedPacket:
		linked, err := u.linkedState(&hdf)
		if err != nil {
			return nil, err
		}
		content = &TaggedPacket{Linked: linked}

	case message.ContentSignedPacket:
		linked, err := u.linkedState(&hdf)
		if err != nil {
			return nil, err
		}
		content = &SignedPacket{Linked: linked}

	case message.ContentSubscribe:
		linked, err := u.linkedState(&hdf)
		if err != nil {
			return nil, err
		}
		sub := &Subscribe{Linked: linked, AuthorIdentity: u.id}
		content = sub
		after = func() {
			u.subscribers = append(u.subscribers, Recipient{
				Id:          sub.SubscriberId,
				ExchangeKey: sub.SubscriberExchangeKey,
			})
			u.unsubscribeKeys[sub.SubscriberId] = sub.UnsubscribeKey
			u.subscriptionIds[sub.SubscriberId] = hdf.Address.Relative
		}

	case message.ContentUnsubscribe:
		linked, err := u.linkedState(&hdf)
		if err != nil {
			return nil, err
		}
		unsub := &Unsubscribe{Linked: linked}
		content = unsub
		after = func() {
			for i, r := range u.subscribers {
				if r.Id.Equal(unsub.SubscriberId) {
					u.subscribers = append(u.subscribers[:i], u.subscribers[i+1:]...)
					break
				}
			}
			delete(u.unsubscribeKeys, unsub.SubscriberId)
			delete(u.subscriptionIds, unsub.SubscriberId)
		}

	default:
		return nil, fmt.Errorf("%w: %d", message.ErrUnknownContentType, hdf.ContentType)
	}

	st, err := pre.UnwrapContent(content)
	if err != nil {
		return nil, err
	}

	info := store.Info{ContentType: hdf.ContentType, Topic: hdf.Topic, SeqNum: hdf.SeqNum}
	if err := u.links.Update(hdf.Address.Relative, st, info); err != nil {
		return nil, fmt.Errorf("failed to store link state: %w", err)
	}
	u.lastMsg[hdf.Topic] = hdf.Address.Relative
	if after != nil {
		after()
	}
	return &Received{Header: hdf, Content: content}, nil
}

// Sync walks topic forward from this user's cursor, receiving every
// message the publisher has sent since, until no further message is
// found. It returns the messages in order.
func (u *User) Sync(ctx context.Context, topic message.Topic, publisher Identifier) ([]*Received, error) {
	u.mu.Lock()
	if !u.joined {
		u.mu.Unlock()
		return nil, ErrNoStream
	}
	base := u.base
	key := cursorKey{id: publisher, topic: topic}
	cur := u.cursors[key]
	u.mu.Unlock()

	var out []*Received
	for {
		next := cur.NextSeq()
		msgId := message.NewMsgId(base, publisher.Bytes(), topic, next.SeqNum())
		rcv, err := u.Receive(ctx, message.Address{Base: base, Relative: msgId})
		if err != nil {
			if errors.Is(err, transport.ErrMsgNotFound) {
				break
			}
			return out, err
		}
		out = append(out, rcv)
		cur = next
		u.mu.Lock()
		u.cursors[key] = cur
		u.mu.Unlock()
	}
	return out, nil
}
