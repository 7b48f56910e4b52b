// File: api/engine.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Engine is the native messaging engine boundary: the only surface the
// lifecycle layer calls into. Implementations include the in-process engine
// under engine/inproc and the controllable double under fake.

package api

import "time"

// Engine abstracts the native asynchronous messaging engine.
//
// All methods are safe for concurrent use. Blocking calls (Recv, Proxy, Poll
// and non-DONTWAIT Send) return ErrTerminated once the owning context is
// terminated; Recv returns ErrWouldBlock when the socket's receive timeout
// elapses with no pending frame.
type Engine interface {
	// CtxNew allocates a context with engine defaults.
	CtxNew() (CtxHandle, error)
	// CtxSet applies a context-level tunable; valid only before sockets exist.
	CtxSet(ctx CtxHandle, opt CtxOption, value int) error
	// CtxShutdown signals termination without blocking; blocked calls begin
	// returning ErrTerminated.
	CtxShutdown(ctx CtxHandle) error
	// CtxTerm releases the context, blocking until in-flight calls unwind.
	CtxTerm(ctx CtxHandle) error

	SocketNew(ctx CtxHandle, kind SocketKind) (SockHandle, error)
	SocketClose(s SockHandle) error

	Bind(s SockHandle, endpoint string) error
	Unbind(s SockHandle, endpoint string) error
	Connect(s SockHandle, endpoint string) error
	Disconnect(s SockHandle, endpoint string) error

	// Send transmits one frame. SendMore marks a multipart continuation;
	// routing happens once the final frame of the message arrives.
	Send(s SockHandle, frame []byte, flags SendFlags) error
	// Recv returns the next frame of the current message.
	Recv(s SockHandle) ([]byte, error)

	// SetOpt writes a raw option value. GetOpt copies at most len(buf) bytes
	// into buf and returns the option's full native length, which may exceed
	// len(buf) when the value was truncated.
	SetOpt(s SockHandle, id OptionID, raw []byte) error
	GetOpt(s SockHandle, id OptionID, buf []byte) (int, error)

	// Proxy relays frames between front and back until the owning context
	// terminates (ErrTerminated) or a socket fails.
	Proxy(front, back SockHandle) error

	// Poll blocks until at least one item is ready, the timeout elapses
	// (returning 0), or a watched context terminates. timeout < 0 blocks
	// forever. Returns the number of ready items with REvents filled in.
	Poll(items []PollItem, timeout time.Duration) (int, error)
}

// Relayable is the structural capability a Device demands from externally
// supplied sockets: exposing a live native handle usable for relay.
type Relayable interface {
	NativeHandle() SockHandle
}
