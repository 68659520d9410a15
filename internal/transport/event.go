package transport

import "mimo_cam/client/internal/domain"

// Event is the closed set of notifications a Socket emits. Events are
// delivered to the registered sink in receipt order from a single
// dispatch goroutine.
type Event interface {
	isEvent()
}

// Opened fires after a successful dial.
type Opened struct{}

// Closed fires when the connection ends, expectedly or not.
type Closed struct {
	Code   int
	Reason string
}

// Message carries one decoded JSON envelope.
type Message struct {
	Envelope domain.Envelope
}

// Binary carries a raw binary frame. The coordinator ignores these;
// they exist for unrelated concerns sharing the socket.
type Binary struct {
	Data []byte
}

// ErrorEvent carries a transport-level error. Never fatal; the socket
// has already routed the failure into the backoff path.
type ErrorEvent struct {
	Err error
}

func (Opened) isEvent()     {}
func (Closed) isEvent()     {}
func (Message) isEvent()    {}
func (Binary) isEvent()     {}
func (ErrorEvent) isEvent() {}
