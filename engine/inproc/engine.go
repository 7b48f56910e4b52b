// File: engine/inproc/engine.go
// Package inproc is a pure-Go reference implementation of api.Engine.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// All sockets live in one process and exchange messages through in-memory
// pipes keyed by inproc endpoint names. Connect before bind is supported:
// connectors park on the endpoint until a socket binds it. A single engine
// mutex guards all state; blocking calls wait on an engine-wide broadcast
// channel that is closed and replaced whenever state changes, so every
// sleeper re-checks its condition after any mutation.

package inproc

import (
	"fmt"
	"sync"
	"time"

	"github.com/eapache/queue"

	"github.com/momentics/hioload-mq/api"
)

// Engine is an in-process api.Engine.
type Engine struct {
	mu       sync.Mutex
	wakeCh   chan struct{}
	contexts map[api.CtxHandle]*mqContext
	sockets  map[api.SockHandle]*socket
	bound    map[string]*socket
	pending  map[string][]*socket
	nextCtx  uint64
	nextSock uint64
}

var _ api.Engine = (*Engine)(nil)

// New creates an empty engine.
func New() *Engine {
	return &Engine{
		wakeCh:   make(chan struct{}),
		contexts: make(map[api.CtxHandle]*mqContext),
		sockets:  make(map[api.SockHandle]*socket),
		bound:    make(map[string]*socket),
		pending:  make(map[string][]*socket),
	}
}

type mqContext struct {
	handle     api.CtxHandle
	ioThreads  int
	maxSockets int
	live       int
	terminated bool
}

// signal wakes every blocked call. Caller holds e.mu.
func (e *Engine) signal() {
	close(e.wakeCh)
	e.wakeCh = make(chan struct{})
}

// await releases the mutex until the next signal, the timer fires, or
// forever if timer is nil. Returns with the mutex re-held.
func (e *Engine) await(timer <-chan time.Time) (timedOut bool) {
	ch := e.wakeCh
	e.mu.Unlock()
	select {
	case <-ch:
	case <-timer:
		timedOut = true
	}
	e.mu.Lock()
	return timedOut
}

// CtxNew allocates a context with the engine defaults (1 I/O thread, 1024
// sockets). I/O threads are accepted for parity with the native engine but
// do not map to OS threads here.
func (e *Engine) CtxNew() (api.CtxHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextCtx++
	h := api.CtxHandle(e.nextCtx)
	e.contexts[h] = &mqContext{handle: h, ioThreads: 1, maxSockets: 1024}
	return h, nil
}

// CtxSet applies a context tunable.
func (e *Engine) CtxSet(ctx api.CtxHandle, opt api.CtxOption, value int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, err := e.ctxLocked(ctx, "ctx_set")
	if err != nil {
		return err
	}
	switch opt {
	case api.CtxIOThreads:
		if value < 0 {
			return api.NewEngineError(api.CodeInvalid, "ctx_set", "io threads < 0")
		}
		c.ioThreads = value
	case api.CtxMaxSockets:
		if value < 1 {
			return api.NewEngineError(api.CodeInvalid, "ctx_set", "max sockets < 1")
		}
		c.maxSockets = value
	default:
		return api.NewEngineError(api.CodeInvalid, "ctx_set", fmt.Sprintf("unknown option %d", opt))
	}
	return nil
}

// CtxShutdown marks the context terminated and wakes all blocked calls.
// Sockets stay allocated until CtxTerm or SocketClose.
func (e *Engine) CtxShutdown(ctx api.CtxHandle) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, err := e.ctxLocked(ctx, "ctx_shutdown")
	if err != nil {
		return err
	}
	c.terminated = true
	e.signal()
	return nil
}

// CtxTerm releases the context and force-closes any sockets still attached
// to it.
func (e *Engine) CtxTerm(ctx api.CtxHandle) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.contexts[ctx]
	if !ok {
		return api.NewEngineError(api.CodeInvalid, "ctx_term", "unknown context")
	}
	c.terminated = true
	// Force-close surviving sockets but keep their handles registered so a
	// late Dispose on the wrapper still resolves instead of failing.
	for _, s := range e.sockets {
		if s.ctx == c {
			e.closeSocketLocked(s)
		}
	}
	delete(e.contexts, ctx)
	e.signal()
	return nil
}

// SocketNew creates a socket of the given kind inside ctx.
func (e *Engine) SocketNew(ctx api.CtxHandle, kind api.SocketKind) (api.SockHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, err := e.ctxLocked(ctx, "socket_new")
	if err != nil {
		return api.InvalidSock, err
	}
	if !kind.Valid() {
		return api.InvalidSock, api.NewEngineError(api.CodeInvalid, "socket_new", "invalid socket kind")
	}
	if c.live >= c.maxSockets {
		return api.InvalidSock, api.NewEngineError(api.CodeMaxSockets, "socket_new", "socket limit reached")
	}
	e.nextSock++
	h := api.SockHandle(e.nextSock)
	s := newSocket(h, c, kind)
	e.sockets[h] = s
	c.live++
	return h, nil
}

// SocketClose destroys a socket, detaching it from peers and endpoints.
func (e *Engine) SocketClose(h api.SockHandle) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sockets[h]
	if !ok {
		return api.NewEngineError(api.CodeInvalid, "socket_close", "unknown socket")
	}
	e.closeSocketLocked(s)
	delete(e.sockets, h)
	return nil
}

// closeSocketLocked detaches s everywhere and wakes sleepers. Caller holds
// e.mu and removes s from e.sockets.
func (e *Engine) closeSocketLocked(s *socket) {
	if s.closed {
		return
	}
	s.closed = true
	s.ctx.live--
	for _, ep := range s.boundAt {
		delete(e.bound, ep)
	}
	for ep, waiters := range e.pending {
		e.pending[ep] = removeSocket(waiters, s)
		if len(e.pending[ep]) == 0 {
			delete(e.pending, ep)
		}
	}
	for _, p := range s.peers {
		p.peers = removeSocket(p.peers, s)
	}
	s.peers = nil
	e.signal()
}

// Bind attaches s to an inproc endpoint and completes parked connects.
func (e *Engine) Bind(h api.SockHandle, endpoint string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, err := e.sockLocked(h, "bind")
	if err != nil {
		return err
	}
	if endpoint == "" {
		return api.NewEngineError(api.CodeInvalid, "bind", "empty endpoint")
	}
	if _, taken := e.bound[endpoint]; taken {
		return api.NewEngineError(api.CodeAddrInUse, "bind", "endpoint already bound")
	}
	e.bound[endpoint] = s
	s.boundAt = append(s.boundAt, endpoint)
	s.lastEndpoint = endpoint
	for _, waiter := range e.pending[endpoint] {
		peerUp(s, waiter)
	}
	delete(e.pending, endpoint)
	e.signal()
	return nil
}

// Unbind detaches a bound endpoint. Existing peerings survive; only new
// connects stop resolving.
func (e *Engine) Unbind(h api.SockHandle, endpoint string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, err := e.sockLocked(h, "unbind")
	if err != nil {
		return err
	}
	if e.bound[endpoint] != s {
		return api.NewEngineError(api.CodeNoEndpoint, "unbind", "endpoint not bound by socket")
	}
	delete(e.bound, endpoint)
	s.boundAt = removeString(s.boundAt, endpoint)
	return nil
}

// Connect attaches s to the socket bound at endpoint, or parks s until one
// binds it.
func (e *Engine) Connect(h api.SockHandle, endpoint string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, err := e.sockLocked(h, "connect")
	if err != nil {
		return err
	}
	if endpoint == "" {
		return api.NewEngineError(api.CodeInvalid, "connect", "empty endpoint")
	}
	s.connectedAt = append(s.connectedAt, endpoint)
	if b, ok := e.bound[endpoint]; ok {
		peerUp(b, s)
		e.signal()
		return nil
	}
	e.pending[endpoint] = append(e.pending[endpoint], s)
	return nil
}

// Disconnect reverses Connect for one endpoint.
func (e *Engine) Disconnect(h api.SockHandle, endpoint string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, err := e.sockLocked(h, "disconnect")
	if err != nil {
		return err
	}
	if !containsString(s.connectedAt, endpoint) {
		return api.NewEngineError(api.CodeNoEndpoint, "disconnect", "endpoint not connected")
	}
	s.connectedAt = removeString(s.connectedAt, endpoint)
	if waiters, ok := e.pending[endpoint]; ok {
		e.pending[endpoint] = removeSocket(waiters, s)
		if len(e.pending[endpoint]) == 0 {
			delete(e.pending, endpoint)
		}
		return nil
	}
	if b, ok := e.bound[endpoint]; ok {
		b.peers = removeSocket(b.peers, s)
		s.peers = removeSocket(s.peers, b)
		e.signal()
	}
	return nil
}

func (e *Engine) ctxLocked(h api.CtxHandle, op string) (*mqContext, error) {
	c, ok := e.contexts[h]
	if !ok {
		return nil, api.NewEngineError(api.CodeInvalid, op, "unknown context")
	}
	if c.terminated {
		return nil, api.NewEngineError(api.CodeTerm, op, "context was terminated")
	}
	return c, nil
}

func (e *Engine) sockLocked(h api.SockHandle, op string) (*socket, error) {
	s, ok := e.sockets[h]
	if !ok {
		return nil, api.NewEngineError(api.CodeInvalid, op, "unknown socket")
	}
	if s.ctx.terminated {
		return nil, api.NewEngineError(api.CodeTerm, op, "context was terminated")
	}
	if s.closed {
		return nil, api.NewEngineError(api.CodeInvalid, op, "socket closed")
	}
	return s, nil
}

// peerUp wires a bidirectional pipe between a bound socket and a connector.
func peerUp(bound, connector *socket) {
	bound.peers = append(bound.peers, connector)
	connector.peers = append(connector.peers, bound)
	bound.adoptPeer(connector)
	connector.adoptPeer(bound)
}

func removeSocket(list []*socket, s *socket) []*socket {
	out := list[:0]
	for _, x := range list {
		if x != s {
			out = append(out, x)
		}
	}
	return out
}

func removeString(list []string, v string) []string {
	out := list[:0]
	for _, x := range list {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}

func containsString(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func newInbox() *queue.Queue { return queue.New() }
