// File: engine/inproc/socket.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Per-socket state and the routing rules of each messaging pattern.
// Messages are atomic: outbound frames accumulate until the final no-MORE
// frame, then the whole message routes at once. Inbound messages queue on
// the socket's inbox and drain frame by frame through Recv, with OptRcvMore
// reporting the remainder.

package inproc

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/eapache/queue"
	"github.com/google/uuid"

	"github.com/momentics/hioload-mq/api"
)

const defaultHWM = 1000

// message is one complete multipart message plus its origin pipe.
type message struct {
	frames [][]byte
	src    *socket
}

type socket struct {
	handle api.SockHandle
	ctx    *mqContext
	kind   api.SocketKind
	closed bool

	peers []*socket
	rr    int // round-robin cursor over peers

	inbox *queue.Queue // of *message

	// option state
	rcvTimeo time.Duration // <=0 blocks forever
	linger   int32
	sndHWM   int32
	rcvHWM   int32
	identity []byte
	subs     [][]byte

	// router-assigned identities per peer pipe
	peerIDs map[*socket][]byte

	// multipart in flight
	sendBuf [][]byte
	cur     [][]byte // message currently draining through Recv
	curIdx  int

	// reply routing for Rep sockets
	envelope [][]byte
	replyTo  *socket

	boundAt      []string
	connectedAt  []string
	lastEndpoint string
}

func newSocket(h api.SockHandle, c *mqContext, kind api.SocketKind) *socket {
	return &socket{
		handle:  h,
		ctx:     c,
		kind:    kind,
		inbox:   newInbox(),
		sndHWM:  defaultHWM,
		rcvHWM:  defaultHWM,
		peerIDs: make(map[*socket][]byte),
	}
}

// adoptPeer assigns a routing identity to a new peer pipe on Router sockets.
// The peer's explicit identity option wins; otherwise a fresh UUID-derived
// identity with a zero lead byte is minted, matching the native engine.
func (s *socket) adoptPeer(p *socket) {
	if s.kind != api.Router {
		return
	}
	if len(p.identity) > 0 {
		s.peerIDs[p] = append([]byte(nil), p.identity...)
		return
	}
	u := uuid.New()
	id := make([]byte, 1+len(u))
	copy(id[1:], u[:])
	s.peerIDs[p] = id
}

func (s *socket) canSend() bool {
	switch s.kind {
	case api.Sub, api.Pull:
		return false
	}
	return true
}

func (s *socket) canRecv() bool {
	switch s.kind {
	case api.Pub, api.Push:
		return false
	}
	return true
}

func (s *socket) subscribed(frame []byte) bool {
	for _, prefix := range s.subs {
		if bytes.HasPrefix(frame, prefix) {
			return true
		}
	}
	return false
}

// readable reports whether Recv would return without waiting.
func (s *socket) readable() bool {
	return (s.cur != nil && s.curIdx < len(s.cur)) || s.inbox.Length() > 0
}

// writable reports whether a send could route immediately.
func (s *socket) writable() bool {
	if !s.canSend() {
		return false
	}
	switch s.kind {
	case api.Pub, api.Rep, api.Router:
		return true
	}
	return s.eligiblePeer() != nil
}

// eligiblePeer returns the next round-robin peer with inbox capacity.
func (s *socket) eligiblePeer() *socket {
	n := len(s.peers)
	for i := 0; i < n; i++ {
		p := s.peers[(s.rr+i)%n]
		if p.closed || !p.canRecv() {
			continue
		}
		if p.rcvHWM > 0 && p.inbox.Length() >= int(p.rcvHWM) {
			continue
		}
		s.rr = (s.rr + i + 1) % n
		return p
	}
	return nil
}

// deliver enqueues msg on s, prepending the source identity on Router
// inboxes. Caller holds the engine mutex and signals afterwards.
func (s *socket) deliver(frames [][]byte, src *socket) {
	if s.kind == api.Router {
		id, ok := s.peerIDs[src]
		if !ok {
			s.adoptPeer(src)
			id = s.peerIDs[src]
		}
		frames = append([][]byte{id}, frames...)
	}
	s.inbox.Add(&message{frames: frames, src: src})
}

// Send appends one frame to the in-flight message and routes the whole
// message once the final frame arrives.
func (e *Engine) Send(h api.SockHandle, frame []byte, flags api.SendFlags) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, err := e.sockLocked(h, "send")
	if err != nil {
		return err
	}
	if !s.canSend() {
		return api.NewEngineError(api.CodeNotSupported, "send",
			fmt.Sprintf("%s socket cannot send", s.kind))
	}
	s.sendBuf = append(s.sendBuf, append([]byte(nil), frame...))
	if flags&api.SendMore != 0 {
		return nil
	}
	msg := s.sendBuf
	s.sendBuf = nil
	return e.routeLocked(s, msg, flags&api.SendDontWait != 0)
}

// routeLocked dispatches one complete message according to the sender kind.
func (e *Engine) routeLocked(s *socket, msg [][]byte, dontWait bool) error {
	switch s.kind {
	case api.Pub:
		for _, p := range s.peers {
			if p.closed || !p.canRecv() {
				continue
			}
			if p.kind == api.Sub && !p.subscribed(msg[0]) {
				continue
			}
			if p.rcvHWM > 0 && p.inbox.Length() >= int(p.rcvHWM) {
				continue // slow subscriber, drop
			}
			p.deliver(cloneFrames(msg), s)
		}
		e.signal()
		return nil

	case api.Rep:
		if s.replyTo == nil {
			return api.NewEngineError(api.CodeInvalid, "send", "no request pending")
		}
		out := append(cloneFrames(s.envelope), msg...)
		target := s.replyTo
		s.replyTo = nil
		s.envelope = nil
		if target.closed {
			return nil // requester went away, drop
		}
		target.deliver(out, s)
		e.signal()
		return nil

	case api.Router:
		id := msg[0]
		for p, pid := range s.peerIDs {
			if p.closed || !bytes.Equal(pid, id) {
				continue
			}
			p.deliver(msg[1:], s)
			e.signal()
			return nil
		}
		return nil // unroutable identity, drop

	case api.Req:
		msg = append([][]byte{{}}, msg...)
		fallthrough

	default: // Req, Dealer, Push, Pair
		for {
			if p := s.eligiblePeer(); p != nil {
				p.deliver(msg, s)
				e.signal()
				return nil
			}
			if dontWait {
				return api.NewEngineError(api.CodeAgain, "send", "no peer ready")
			}
			e.await(nil)
			if s.ctx.terminated {
				return api.NewEngineError(api.CodeTerm, "send", "context was terminated")
			}
			if s.closed {
				return api.NewEngineError(api.CodeInvalid, "send", "socket closed")
			}
		}
	}
}

// Recv returns the next frame of the current inbound message, popping a new
// message from the inbox when the previous one is fully drained. Honors the
// receive-timeout option; <=0 blocks until a frame or termination.
func (e *Engine) Recv(h api.SockHandle) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, err := e.sockLocked(h, "recv")
	if err != nil {
		return nil, err
	}
	if !s.canRecv() {
		return nil, api.NewEngineError(api.CodeNotSupported, "recv",
			fmt.Sprintf("%s socket cannot receive", s.kind))
	}
	var deadline <-chan time.Time
	if s.rcvTimeo > 0 {
		t := time.NewTimer(s.rcvTimeo)
		defer t.Stop()
		deadline = t.C
	}
	for {
		if s.cur != nil && s.curIdx < len(s.cur) {
			frame := s.cur[s.curIdx]
			s.curIdx++
			if s.curIdx == len(s.cur) {
				s.cur = nil
				s.curIdx = 0
			}
			return frame, nil
		}
		if s.inbox.Length() > 0 {
			m := s.inbox.Remove().(*message)
			s.cur = s.unwrap(m)
			s.curIdx = 0
			continue
		}
		if timedOut := e.await(deadline); timedOut {
			return nil, api.NewEngineError(api.CodeAgain, "recv", "receive timed out")
		}
		if s.ctx.terminated {
			return nil, api.NewEngineError(api.CodeTerm, "recv", "context was terminated")
		}
		if s.closed {
			return nil, api.NewEngineError(api.CodeInvalid, "recv", "socket closed")
		}
	}
}

// unwrap applies kind-specific envelope handling when a message is popped.
func (s *socket) unwrap(m *message) [][]byte {
	frames := m.frames
	switch s.kind {
	case api.Rep:
		// Stash the routing envelope through the first empty delimiter and
		// remember the pipe to answer on.
		for i, f := range frames {
			if len(f) == 0 {
				s.envelope = cloneFrames(frames[:i+1])
				s.replyTo = m.src
				return frames[i+1:]
			}
		}
		s.envelope = nil
		s.replyTo = m.src
		return frames
	case api.Req:
		// Strip the delimiter the Req send path added.
		if len(frames) > 0 && len(frames[0]) == 0 {
			return frames[1:]
		}
		return frames
	default:
		return frames
	}
}

// SetOpt writes a socket option.
func (e *Engine) SetOpt(h api.SockHandle, id api.OptionID, raw []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, err := e.sockLocked(h, "set_opt")
	if err != nil {
		return err
	}
	switch id {
	case api.OptRcvTimeo:
		v, err := int32Opt(raw, "set_opt")
		if err != nil {
			return err
		}
		s.rcvTimeo = time.Duration(v) * time.Millisecond
	case api.OptLinger:
		v, err := int32Opt(raw, "set_opt")
		if err != nil {
			return err
		}
		s.linger = v
	case api.OptSndHWM:
		v, err := int32Opt(raw, "set_opt")
		if err != nil {
			return err
		}
		s.sndHWM = v
	case api.OptRcvHWM:
		v, err := int32Opt(raw, "set_opt")
		if err != nil {
			return err
		}
		s.rcvHWM = v
	case api.OptIdentity:
		s.identity = append([]byte(nil), raw...)
	case api.OptSubscribe:
		if s.kind != api.Sub {
			return api.NewEngineError(api.CodeNotSupported, "set_opt", "subscribe on non-sub socket")
		}
		s.subs = append(s.subs, append([]byte(nil), raw...))
		e.signal()
	case api.OptUnsubscribe:
		if s.kind != api.Sub {
			return api.NewEngineError(api.CodeNotSupported, "set_opt", "unsubscribe on non-sub socket")
		}
		for i, prefix := range s.subs {
			if bytes.Equal(prefix, raw) {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				break
			}
		}
	default:
		return api.NewEngineError(api.CodeInvalid, "set_opt", fmt.Sprintf("option %d not writable", id))
	}
	return nil
}

// GetOpt reads a socket option into buf, returning the full native length.
func (e *Engine) GetOpt(h api.SockHandle, id api.OptionID, buf []byte) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sockets[h]
	if !ok {
		return 0, api.NewEngineError(api.CodeInvalid, "get_opt", "unknown socket")
	}
	switch id {
	case api.OptRcvTimeo:
		return putInt32(buf, int32(s.rcvTimeo/time.Millisecond)), nil
	case api.OptLinger:
		return putInt32(buf, s.linger), nil
	case api.OptSndHWM:
		return putInt32(buf, s.sndHWM), nil
	case api.OptRcvHWM:
		return putInt32(buf, s.rcvHWM), nil
	case api.OptType:
		return putInt32(buf, int32(s.kind)), nil
	case api.OptRcvMore:
		more := int32(0)
		if s.cur != nil && s.curIdx < len(s.cur) {
			more = 1
		}
		return putInt32(buf, more), nil
	case api.OptIdentity:
		copy(buf, s.identity)
		return len(s.identity), nil
	case api.OptLastEndpoint:
		copy(buf, s.lastEndpoint)
		return len(s.lastEndpoint), nil
	default:
		return 0, api.NewEngineError(api.CodeInvalid, "get_opt", fmt.Sprintf("option %d not readable", id))
	}
}

func int32Opt(raw []byte, op string) (int32, error) {
	if len(raw) != 4 {
		return 0, api.NewEngineError(api.CodeInvalid, op, "option value must be 4 bytes")
	}
	return int32(binary.LittleEndian.Uint32(raw)), nil
}

// putInt32 writes v into buf and returns the native length (4).
func putInt32(buf []byte, v int32) int {
	raw := make([]byte, 4)
	binary.LittleEndian.PutUint32(raw, uint32(v))
	copy(buf, raw)
	return 4
}

func cloneFrames(frames [][]byte) [][]byte {
	out := make([][]byte, len(frames))
	for i, f := range frames {
		out[i] = append([]byte(nil), f...)
	}
	return out
}
