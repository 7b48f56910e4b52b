// File: fake/engine.go
// Package fake provides controllable doubles for testing and development.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Engine is a scriptable api.Engine: it records every operation, returns
// injected errors per operation name, and keeps option and frame state in
// plain maps. No routing, no blocking; use engine/inproc when real message
// flow is needed.

package fake

import (
	"sync"
	"time"

	"github.com/momentics/hioload-mq/api"
)

// Engine is a fake implementation of api.Engine for tests.
type Engine struct {
	mu    sync.Mutex
	calls []string
	errs  map[string]error

	nextCtx  uint64
	nextSock uint64
	ctxs     map[api.CtxHandle]bool
	socks    map[api.SockHandle]api.CtxHandle

	opts  map[api.SockHandle]map[api.OptionID][]byte
	recvQ map[api.SockHandle][][]byte
	sent  map[api.SockHandle][]SentFrame
	bound map[api.SockHandle][]string
	conns map[api.SockHandle][]string
}

// SentFrame records one Send call.
type SentFrame struct {
	Frame []byte
	Flags api.SendFlags
}

var _ api.Engine = (*Engine)(nil)

// NewEngine creates a fake engine with no scripted failures.
func NewEngine() *Engine {
	return &Engine{
		errs:  make(map[string]error),
		ctxs:  make(map[api.CtxHandle]bool),
		socks: make(map[api.SockHandle]api.CtxHandle),
		opts:  make(map[api.SockHandle]map[api.OptionID][]byte),
		recvQ: make(map[api.SockHandle][][]byte),
		sent:  make(map[api.SockHandle][]SentFrame),
		bound: make(map[api.SockHandle][]string),
		conns: make(map[api.SockHandle][]string),
	}
}

// FailWith makes the named operation (ctx_new, ctx_set, socket_new, bind,
// send, recv, set_opt, get_opt, proxy, poll, ...) return err.
func (e *Engine) FailWith(op string, err error) {
	e.mu.Lock()
	e.errs[op] = err
	e.mu.Unlock()
}

// CallCount returns how many times op was invoked.
func (e *Engine) CallCount(op string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, c := range e.calls {
		if c == op {
			n++
		}
	}
	return n
}

// Calls returns the recorded operation sequence.
func (e *Engine) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

func (e *Engine) step(op string) error {
	e.calls = append(e.calls, op)
	return e.errs[op]
}

func (e *Engine) CtxNew() (api.CtxHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.step("ctx_new"); err != nil {
		return api.InvalidCtx, err
	}
	e.nextCtx++
	h := api.CtxHandle(e.nextCtx)
	e.ctxs[h] = true
	return h, nil
}

func (e *Engine) CtxSet(ctx api.CtxHandle, opt api.CtxOption, value int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.step("ctx_set")
}

func (e *Engine) CtxShutdown(ctx api.CtxHandle) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.step("ctx_shutdown")
}

func (e *Engine) CtxTerm(ctx api.CtxHandle) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.step("ctx_term"); err != nil {
		return err
	}
	delete(e.ctxs, ctx)
	return nil
}

// CtxLive reports whether the context has not been terminated.
func (e *Engine) CtxLive(ctx api.CtxHandle) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ctxs[ctx]
}

func (e *Engine) SocketNew(ctx api.CtxHandle, kind api.SocketKind) (api.SockHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.step("socket_new"); err != nil {
		return api.InvalidSock, err
	}
	e.nextSock++
	h := api.SockHandle(e.nextSock)
	e.socks[h] = ctx
	e.opts[h] = make(map[api.OptionID][]byte)
	return h, nil
}

func (e *Engine) SocketClose(s api.SockHandle) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.step("socket_close"); err != nil {
		return err
	}
	delete(e.socks, s)
	return nil
}

// SocketLive reports whether the socket has not been closed.
func (e *Engine) SocketLive(s api.SockHandle) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.socks[s]
	return ok
}

func (e *Engine) Bind(s api.SockHandle, endpoint string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.step("bind"); err != nil {
		return err
	}
	e.bound[s] = append(e.bound[s], endpoint)
	return nil
}

func (e *Engine) Unbind(s api.SockHandle, endpoint string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.step("unbind")
}

func (e *Engine) Connect(s api.SockHandle, endpoint string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.step("connect"); err != nil {
		return err
	}
	e.conns[s] = append(e.conns[s], endpoint)
	return nil
}

func (e *Engine) Disconnect(s api.SockHandle, endpoint string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.step("disconnect")
}

// BoundEndpoints returns the endpoints bound by s.
func (e *Engine) BoundEndpoints(s api.SockHandle) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.bound[s]...)
}

// ConnectedEndpoints returns the endpoints connected by s.
func (e *Engine) ConnectedEndpoints(s api.SockHandle) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.conns[s]...)
}

func (e *Engine) Send(s api.SockHandle, frame []byte, flags api.SendFlags) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.step("send"); err != nil {
		return err
	}
	e.sent[s] = append(e.sent[s], SentFrame{Frame: append([]byte(nil), frame...), Flags: flags})
	return nil
}

// SentFrames returns everything sent through s.
func (e *Engine) SentFrames(s api.SockHandle) []SentFrame {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]SentFrame(nil), e.sent[s]...)
}

// PushRecv queues a frame to be returned by the next Recv on s.
func (e *Engine) PushRecv(s api.SockHandle, frame []byte) {
	e.mu.Lock()
	e.recvQ[s] = append(e.recvQ[s], append([]byte(nil), frame...))
	e.mu.Unlock()
}

func (e *Engine) Recv(s api.SockHandle) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.step("recv"); err != nil {
		return nil, err
	}
	q := e.recvQ[s]
	if len(q) == 0 {
		return nil, api.ErrWouldBlock
	}
	frame := q[0]
	e.recvQ[s] = q[1:]
	return frame, nil
}

func (e *Engine) SetOpt(s api.SockHandle, id api.OptionID, raw []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.step("set_opt"); err != nil {
		return err
	}
	if e.opts[s] == nil {
		e.opts[s] = make(map[api.OptionID][]byte)
	}
	e.opts[s][id] = append([]byte(nil), raw...)
	return nil
}

func (e *Engine) GetOpt(s api.SockHandle, id api.OptionID, buf []byte) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.step("get_opt"); err != nil {
		return 0, err
	}
	raw := e.opts[s][id]
	copy(buf, raw)
	return len(raw), nil
}

// OptionRaw returns the stored raw value of an option.
func (e *Engine) OptionRaw(s api.SockHandle, id api.OptionID) []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]byte(nil), e.opts[s][id]...)
}

func (e *Engine) Proxy(front, back api.SockHandle) error {
	e.mu.Lock()
	err := e.step("proxy")
	e.mu.Unlock()
	if err != nil {
		return err
	}
	return api.ErrTerminated
}

func (e *Engine) Poll(items []api.PollItem, timeout time.Duration) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.step("poll"); err != nil {
		return 0, err
	}
	ready := 0
	for i := range items {
		items[i].REvents = 0
		if items[i].Events&api.EventIn != 0 && len(e.recvQ[items[i].Socket]) > 0 {
			items[i].REvents |= api.EventIn
			ready++
		}
	}
	return ready, nil
}
