// Package channel provides generic channel interfaces for decoupled
// communication, used to carry camera frames to their consumers.
package channel

// Receiver provides read access to a channel.
type Receiver[T any] interface {
	Receive() <-chan T
	Len() int
}

// Sender provides write access to a channel.
type Sender[T any] interface {
	Send(T) bool
	TrySend(T) bool
}

// Channel combines read and write access. Close is idempotent and sends after
// Close report false instead of panicking.
type Channel[T any] interface {
	Receiver[T]
	Sender[T]
	Close()
}
