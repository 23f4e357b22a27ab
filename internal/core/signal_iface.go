package core

// Frame is one encoded signalling message.
type Frame []byte

// SignalConnection is the outbound side of a member's signalling transport.
// TrySend never blocks: a full queue returns an error and the frame is lost,
// which the channel reports as back-pressure. The adapter owns Close.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
