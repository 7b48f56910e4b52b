// File: core/context.go
// Package core implements the managed lifecycle layer over an api.Engine:
// contexts, sockets, option marshalling and readiness polling.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Context owns the engine's top-level resource and acts as the factory for
// Sockets. Disposal is guarded by an atomic release-once flag shared by the
// deterministic path and the finalizer backstop, so the native release effect
// happens at most once no matter how many paths race.

package core

import (
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/momentics/hioload-mq/api"
)

// Engine defaults applied when the caller does not override them.
const (
	DefaultIOThreads  = 1
	DefaultMaxSockets = 1024
)

// Context wraps a native engine context handle.
//
// A Context may be shared across goroutines to create Sockets; socket
// creation is a single atomic engine call. Sockets must not outlive their
// Context: disposing the Context first is a caller error the handle layer
// does not guard against.
type Context struct {
	eng        api.Engine
	handle     api.CtxHandle
	ioThreads  int
	maxSockets int
	disposed   atomic.Bool
}

// NewContext allocates a context with the given I/O thread count and socket
// limit. ioThreads must be >= 0 and maxSockets >= 1; violations are usage
// errors raised before any engine call. Values differing from the defaults
// are applied via CtxSet; if that fails the partially constructed context is
// terminated before the error is returned, so no handle leaks.
func NewContext(eng api.Engine, ioThreads, maxSockets int) (*Context, error) {
	if eng == nil {
		return nil, fmt.Errorf("%w: nil engine", api.ErrInvalidArgument)
	}
	if ioThreads < 0 {
		return nil, fmt.Errorf("%w: ioThreads %d < 0", api.ErrInvalidArgument, ioThreads)
	}
	if maxSockets < 1 {
		return nil, fmt.Errorf("%w: maxSockets %d < 1", api.ErrInvalidArgument, maxSockets)
	}
	h, err := eng.CtxNew()
	if err != nil {
		return nil, err
	}
	c := &Context{eng: eng, handle: h, ioThreads: ioThreads, maxSockets: maxSockets}
	if ioThreads != DefaultIOThreads {
		if err := eng.CtxSet(h, api.CtxIOThreads, ioThreads); err != nil {
			c.Dispose()
			return nil, err
		}
	}
	if maxSockets != DefaultMaxSockets {
		if err := eng.CtxSet(h, api.CtxMaxSockets, maxSockets); err != nil {
			c.Dispose()
			return nil, err
		}
	}
	runtime.SetFinalizer(c, (*Context).Dispose)
	return c, nil
}

// NewDefaultContext allocates a context with DefaultIOThreads and
// DefaultMaxSockets.
func NewDefaultContext(eng api.Engine) (*Context, error) {
	return NewContext(eng, DefaultIOThreads, DefaultMaxSockets)
}

// Handle returns the native context handle, or api.InvalidCtx after disposal.
func (c *Context) Handle() api.CtxHandle {
	if c.disposed.Load() {
		return api.InvalidCtx
	}
	return c.handle
}

// Engine returns the engine this context was created against.
func (c *Context) Engine() api.Engine { return c.eng }

// IOThreads returns the configured I/O thread count.
func (c *Context) IOThreads() int { return c.ioThreads }

// MaxSockets returns the configured socket limit.
func (c *Context) MaxSockets() int { return c.maxSockets }

// Disposed reports whether the native handle has been released.
func (c *Context) Disposed() bool { return c.disposed.Load() }

// Dispose releases the native context: a non-blocking shutdown signal
// followed by a blocking terminate. Idempotent and unconditionally safe;
// engine failures during terminate are logged, never returned, because this
// path also runs from the finalizer backstop.
func (c *Context) Dispose() {
	if !c.disposed.CompareAndSwap(false, true) {
		return
	}
	runtime.SetFinalizer(c, nil)
	if err := c.eng.CtxShutdown(c.handle); err != nil {
		log.Warn().Err(err).Uint64("ctx", uint64(c.handle)).Msg("context shutdown failed")
	}
	if err := c.eng.CtxTerm(c.handle); err != nil {
		log.Error().Err(err).Uint64("ctx", uint64(c.handle)).Msg("context terminate failed")
	}
}
