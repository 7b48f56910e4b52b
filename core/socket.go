// File: core/socket.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Socket owns one native endpoint bound to a messaging pattern. Single-frame
// operations map 1:1 onto engine calls; multipart sends are serialized under
// the socket's send mutex so concurrent publishers interleave only at message
// boundaries. Disposal follows the same release-once discipline as Context.

package core

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/momentics/hioload-mq/api"
)

// Socket wraps a native socket handle.
//
// A Socket is not safe for unsynchronized concurrent use except where noted:
// Send, SendMessage and Subscribe serialize under an internal mutex, Recv and
// the option calls do not.
type Socket struct {
	eng      api.Engine
	handle   api.SockHandle
	kind     api.SocketKind
	timeout  time.Duration
	sendMu   sync.Mutex
	disposed atomic.Bool
}

var _ api.Relayable = (*Socket)(nil)

// NewSocket creates a socket of the given kind against a live context.
// recvTimeout >= 0; zero keeps receives blocking. An invalid kind, a negative
// timeout or an already-disposed context is a usage error. A non-zero timeout
// is applied as an option right after creation; on failure the new socket is
// closed before the error is returned.
func NewSocket(ctx *Context, kind api.SocketKind, recvTimeout time.Duration) (*Socket, error) {
	if ctx == nil {
		return nil, fmt.Errorf("%w: nil context", api.ErrInvalidArgument)
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: socket kind %d", api.ErrInvalidArgument, int(kind))
	}
	if recvTimeout < 0 {
		return nil, fmt.Errorf("%w: recvTimeout %v < 0", api.ErrInvalidArgument, recvTimeout)
	}
	if ctx.Disposed() {
		return nil, fmt.Errorf("%w: context", api.ErrDisposed)
	}
	h, err := ctx.eng.SocketNew(ctx.handle, kind)
	if err != nil {
		return nil, err
	}
	s := &Socket{eng: ctx.eng, handle: h, kind: kind, timeout: recvTimeout}
	if recvTimeout > 0 {
		raw := MarshalInt32(int32(recvTimeout / time.Millisecond))
		if err := s.SetOption(api.OptRcvTimeo, raw); err != nil {
			s.Dispose()
			return nil, err
		}
	}
	runtime.SetFinalizer(s, (*Socket).Dispose)
	return s, nil
}

// NativeHandle exposes the native handle for relay composition.
func (s *Socket) NativeHandle() api.SockHandle { return s.handle }

// Kind returns the socket's messaging pattern.
func (s *Socket) Kind() api.SocketKind { return s.kind }

// RecvTimeout returns the receive timeout configured at construction.
func (s *Socket) RecvTimeout() time.Duration { return s.timeout }

// Disposed reports whether the native handle has been closed.
func (s *Socket) Disposed() bool { return s.disposed.Load() }

func (s *Socket) endpointOp(op string, endpoint string, call func() error) error {
	if endpoint == "" {
		return fmt.Errorf("%w: %s: empty endpoint", api.ErrInvalidArgument, op)
	}
	return call()
}

// Bind attaches the socket to a local endpoint.
func (s *Socket) Bind(endpoint string) error {
	return s.endpointOp("bind", endpoint, func() error { return s.eng.Bind(s.handle, endpoint) })
}

// Unbind detaches a previously bound endpoint.
func (s *Socket) Unbind(endpoint string) error {
	return s.endpointOp("unbind", endpoint, func() error { return s.eng.Unbind(s.handle, endpoint) })
}

// Connect attaches the socket to a remote endpoint.
func (s *Socket) Connect(endpoint string) error {
	return s.endpointOp("connect", endpoint, func() error { return s.eng.Connect(s.handle, endpoint) })
}

// Disconnect detaches a previously connected endpoint.
func (s *Socket) Disconnect(endpoint string) error {
	return s.endpointOp("disconnect", endpoint, func() error { return s.eng.Disconnect(s.handle, endpoint) })
}

// Send transmits one frame. api.SendMore marks a multipart continuation and
// api.SendDontWait turns a send that would block into ErrWouldBlock.
func (s *Socket) Send(frame []byte, flags api.SendFlags) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	return s.eng.Send(s.handle, frame, flags)
}

// SendMessage transmits frames as one multipart message, holding the send
// mutex across all frames so concurrent senders cannot interleave mid-message.
func (s *Socket) SendMessage(frames ...[]byte) error {
	if len(frames) == 0 {
		return fmt.Errorf("%w: empty message", api.ErrInvalidArgument)
	}
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	for i, frame := range frames {
		flags := api.SendFlags(0)
		if i < len(frames)-1 {
			flags = api.SendMore
		}
		if err := s.eng.Send(s.handle, frame, flags); err != nil {
			return err
		}
	}
	return nil
}

// Recv returns the next frame. Blocking unless a receive timeout is
// configured; an elapsed timeout yields (nil, nil), not an error. Any other
// engine failure is returned as-is.
func (s *Socket) Recv() ([]byte, error) {
	frame, err := s.eng.Recv(s.handle)
	if err != nil {
		if errors.Is(err, api.ErrWouldBlock) {
			return nil, nil
		}
		return nil, err
	}
	return frame, nil
}

// RecvMessage drains one whole multipart message, following OptRcvMore after
// each frame. A timeout on the first frame yields (nil, nil).
func (s *Socket) RecvMessage() ([][]byte, error) {
	first, err := s.Recv()
	if err != nil || first == nil {
		return nil, err
	}
	msg := [][]byte{first}
	for {
		more, err := GetOption[bool](s, api.OptRcvMore)
		if err != nil {
			return msg, err
		}
		if !more {
			return msg, nil
		}
		frame, err := s.eng.Recv(s.handle)
		if err != nil {
			return msg, err
		}
		msg = append(msg, frame)
	}
}

// Subscribe registers a topic prefix filter with the engine. Only meaningful
// on Sub sockets; the engine rejects it elsewhere.
func (s *Socket) Subscribe(topic []byte) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	return s.eng.SetOpt(s.handle, api.OptSubscribe, topic)
}

// Unsubscribe removes a previously registered topic prefix filter.
func (s *Socket) Unsubscribe(topic []byte) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	return s.eng.SetOpt(s.handle, api.OptUnsubscribe, topic)
}

// SetOption writes a raw option value without interpretation.
func (s *Socket) SetOption(id api.OptionID, raw []byte) error {
	return s.eng.SetOpt(s.handle, id, raw)
}

// Dispose closes the native socket. Idempotent; a best-effort linger=0 write
// first discards pending outbound frames so close cannot stall, its failure
// deliberately ignored. Close failures are logged, never returned.
func (s *Socket) Dispose() {
	if !s.disposed.CompareAndSwap(false, true) {
		return
	}
	runtime.SetFinalizer(s, nil)
	_ = s.eng.SetOpt(s.handle, api.OptLinger, MarshalInt32(0))
	if err := s.eng.SocketClose(s.handle); err != nil {
		log.Error().Err(err).Uint64("socket", uint64(s.handle)).
			Stringer("kind", s.kind).Msg("socket close failed")
	}
}
