package message

// TransportMessage is the raw wrapped byte stream as it travels over a
// transport. It carries no structure of its own; ParseHeader gives it
// one.
type TransportMessage []byte
