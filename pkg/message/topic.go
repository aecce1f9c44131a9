package message

// Topic labels a branch of a stream. It travels masked on the wire.
type Topic string

// Bytes returns the wire form of the topic.
func (t Topic) Bytes() []byte { return []byte(t) }

func (t Topic) String() string { return string(t) }
