// File: api/types.go
// Package api defines the contracts shared by the lifecycle layer and engines.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Handle and enumeration types crossing the engine boundary. Handles are
// opaque identifiers minted by an Engine; the lifecycle layer never
// interprets them.

package api

// CtxHandle identifies a native engine context.
type CtxHandle uint64

// SockHandle identifies a native engine socket.
type SockHandle uint64

// InvalidCtx and InvalidSock are the zero handles; engines never mint them.
const (
	InvalidCtx  CtxHandle  = 0
	InvalidSock SockHandle = 0
)

// SocketKind selects the messaging pattern a socket participates in.
type SocketKind int

const (
	Pair SocketKind = iota
	Pub
	Sub
	Req
	Rep
	Dealer
	Router
	Push
	Pull

	kindCount
)

// Valid reports whether k is inside the enumerated pattern range.
func (k SocketKind) Valid() bool { return k >= Pair && k < kindCount }

// String returns the canonical lower-case pattern name.
func (k SocketKind) String() string {
	names := [...]string{"pair", "pub", "sub", "req", "rep", "dealer", "router", "push", "pull"}
	if !k.Valid() {
		return "invalid"
	}
	return names[k]
}

// EventFlags is the readiness mask used by Poll.
type EventFlags int

const (
	// EventIn signals a pending inbound frame.
	EventIn EventFlags = 1 << iota
	// EventOut signals capacity to send without blocking.
	EventOut
)

// SendFlags modify a single Send call.
type SendFlags int

const (
	// SendMore marks the frame as part of a multipart message, more frames follow.
	SendMore SendFlags = 1 << iota
	// SendDontWait makes the send fail with ErrWouldBlock instead of blocking.
	SendDontWait
)

// CtxOption identifies a context-level tunable.
type CtxOption int

const (
	CtxIOThreads CtxOption = iota + 1
	CtxMaxSockets
)

// OptionID identifies a socket option at the engine boundary.
type OptionID int

const (
	OptRcvTimeo     OptionID = iota + 1 // int32, milliseconds; <=0 blocks forever
	OptLinger                           // int32, milliseconds
	OptSndHWM                           // int32, frames
	OptRcvHWM                           // int32, frames
	OptIdentity                         // []byte, routing identity
	OptSubscribe                        // []byte, topic prefix (write-only)
	OptUnsubscribe                      // []byte, topic prefix (write-only)
	OptRcvMore                          // bool, more frames pending in current message (read-only)
	OptLastEndpoint                     // []byte, last bound endpoint (read-only)
	OptType                             // int32, socket kind (read-only)
)

// PollItem pairs a socket handle with the events of interest.
// REvents is filled by Poll with the subset that is ready.
type PollItem struct {
	Socket  SockHandle
	Events  EventFlags
	REvents EventFlags
}
