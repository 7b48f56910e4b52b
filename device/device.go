// File: device/device.go
// Package device composes contexts, sockets and pollers into long-running
// relay and worker topologies.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Device continuously relays frames between a frontend and a backend socket
// on a dedicated goroutine, using the engine's blocking relay primitive.
// Two lifecycles: attach to caller-owned sockets, or own endpoint strings
// and create/bind the sockets on Start. A Device disposes sockets only when
// it owns them.

package device

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/momentics/hioload-mq/api"
	"github.com/momentics/hioload-mq/core"
)

// Device relays frames between two sockets.
type Device struct {
	eng api.Engine
	log zerolog.Logger

	ownSockets bool

	// attach mode
	front, back api.Relayable

	// own-and-bind mode
	ctx           *core.Context
	frontKind     api.SocketKind
	backKind      api.SocketKind
	frontEndpoint string
	backEndpoint  string
	ownedFront    *core.Socket
	ownedBack     *core.Socket

	started  atomic.Bool
	disposed atomic.Bool
	done     chan error
}

// New builds a Device attached to caller-supplied sockets. The caller keeps
// ownership; Dispose never touches them. Both sockets must expose a usable
// native handle (api.Relayable), checked on Start.
func New(eng api.Engine, front, back api.Relayable) *Device {
	return &Device{
		eng:   eng,
		log:   log.With().Str("component", "device").Logger(),
		front: front,
		back:  back,
		done:  make(chan error, 1),
	}
}

// NewBind builds a Device that creates and binds its own sockets on Start
// and destroys them on Dispose.
func NewBind(ctx *core.Context, frontKind, backKind api.SocketKind, frontEndpoint, backEndpoint string) *Device {
	return &Device{
		eng:           ctx.Engine(),
		log:           log.With().Str("component", "device").Logger(),
		ownSockets:    true,
		ctx:           ctx,
		frontKind:     frontKind,
		backKind:      backKind,
		frontEndpoint: frontEndpoint,
		backEndpoint:  backEndpoint,
		done:          make(chan error, 1),
	}
}

// FrontEndpoint returns the owned frontend endpoint, empty in attach mode.
func (d *Device) FrontEndpoint() string { return d.frontEndpoint }

// BackEndpoint returns the owned backend endpoint, empty in attach mode.
func (d *Device) BackEndpoint() string { return d.backEndpoint }

// Front returns the owned frontend socket once started, nil in attach mode.
func (d *Device) Front() *core.Socket { return d.ownedFront }

// Back returns the owned backend socket once started, nil in attach mode.
func (d *Device) Back() *core.Socket { return d.ownedBack }

// Running reports whether the relay goroutine has been launched.
func (d *Device) Running() bool { return d.started.Load() }

// Start launches the relay loop on its own goroutine and returns
// immediately. Starting twice or after Dispose is a usage error.
func (d *Device) Start() error {
	if d.disposed.Load() {
		return fmt.Errorf("%w: device", api.ErrDisposed)
	}
	if !d.started.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: device", api.ErrAlreadyStarted)
	}
	var frontH, backH api.SockHandle
	if d.ownSockets {
		if err := d.bindOwn(); err != nil {
			d.started.Store(false)
			return err
		}
		frontH = d.ownedFront.NativeHandle()
		backH = d.ownedBack.NativeHandle()
	} else {
		if d.front == nil || d.back == nil {
			d.started.Store(false)
			return fmt.Errorf("%w: device needs two relayable sockets", api.ErrInvalidArgument)
		}
		frontH = d.front.NativeHandle()
		backH = d.back.NativeHandle()
		if frontH == api.InvalidSock || backH == api.InvalidSock {
			d.started.Store(false)
			return fmt.Errorf("%w: supplied socket has no usable handle", api.ErrInvalidArgument)
		}
	}
	go d.run(frontH, backH)
	return nil
}

func (d *Device) bindOwn() error {
	if d.frontEndpoint == "" || d.backEndpoint == "" {
		return fmt.Errorf("%w: empty device endpoint", api.ErrInvalidArgument)
	}
	front, err := core.NewSocket(d.ctx, d.frontKind, 0)
	if err != nil {
		return err
	}
	if err := front.Bind(d.frontEndpoint); err != nil {
		front.Dispose()
		return err
	}
	back, err := core.NewSocket(d.ctx, d.backKind, 0)
	if err != nil {
		front.Dispose()
		return err
	}
	if err := back.Bind(d.backEndpoint); err != nil {
		front.Dispose()
		back.Dispose()
		return err
	}
	d.ownedFront = front
	d.ownedBack = back
	return nil
}

// run is the relay loop. Context termination is expected, silent shutdown;
// every other failure is logged and published on the result channel since
// the loop has no caller to propagate to.
func (d *Device) run(front, back api.SockHandle) {
	err := d.eng.Proxy(front, back)
	switch {
	case err == nil || errors.Is(err, api.ErrTerminated):
		d.log.Debug().Msg("relay loop terminated")
	case d.disposed.Load():
		d.log.Debug().Err(err).Msg("relay loop exited during disposal")
	default:
		d.log.Error().Err(err).Msg("relay loop failed")
		d.done <- err
	}
	close(d.done)
}

// Done exposes the relay loop's outcome: closed on clean termination, an
// error first when the loop failed.
func (d *Device) Done() <-chan error { return d.done }

// Dispose releases owned sockets. Idempotent; externally supplied sockets
// are never disposed here.
func (d *Device) Dispose() {
	if !d.disposed.CompareAndSwap(false, true) {
		return
	}
	if d.ownSockets {
		if d.ownedFront != nil {
			d.ownedFront.Dispose()
		}
		if d.ownedBack != nil {
			d.ownedBack.Dispose()
		}
	}
}
