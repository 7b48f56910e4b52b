// File: device/workerpool.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// WorkerPool spawns N worker goroutines competing for requests relayed by a
// SharedQueueBroker. Each worker owns a Rep socket connected to the backend
// plus a Sub socket watching the pool's internal kill channel, both driven
// by one Poller, so Stop wakes a worker even while it is blocked in an
// unbounded poll. Worker failures surface through the supervising errgroup
// rather than vanishing into a log line.

package device

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/momentics/hioload-mq/api"
	"github.com/momentics/hioload-mq/control"
	"github.com/momentics/hioload-mq/core"
)

// Handler processes one ready worker socket: it must receive the pending
// request and send the reply before returning. A non-nil error terminates
// that worker.
type Handler func(s *core.Socket) error

// WorkerPool is a SharedQueueBroker plus N competing workers.
type WorkerPool struct {
	ctx     *core.Context
	ownCtx  bool
	broker  *SharedQueueBroker
	handler Handler
	log     zerolog.Logger

	frontend string
	backend  string
	workers  int

	killEndpoint string
	killPub      *core.Socket

	running  atomic.Bool
	started  atomic.Bool
	disposed atomic.Bool
	group    *errgroup.Group

	metrics *control.MetricsRegistry
}

// NewWorkerPool builds a pool over an existing context. workers >= 1, a
// non-nil handler and non-empty endpoints are required; violations are
// usage errors.
func NewWorkerPool(ctx *core.Context, frontend, backend string, workers int, handler Handler) (*WorkerPool, error) {
	if ctx == nil || ctx.Disposed() {
		return nil, fmt.Errorf("%w: context", api.ErrDisposed)
	}
	if frontend == "" || backend == "" {
		return nil, fmt.Errorf("%w: empty pool endpoint", api.ErrInvalidArgument)
	}
	if workers < 1 {
		return nil, fmt.Errorf("%w: workers %d < 1", api.ErrInvalidArgument, workers)
	}
	if handler == nil {
		return nil, fmt.Errorf("%w: nil handler", api.ErrInvalidArgument)
	}
	return &WorkerPool{
		ctx:          ctx,
		broker:       NewSharedQueueBroker(ctx, frontend, backend),
		handler:      handler,
		log:          log.With().Str("component", "workerpool").Logger(),
		frontend:     frontend,
		backend:      backend,
		workers:      workers,
		killEndpoint: "inproc://pool-kill-" + uuid.NewString(),
		metrics:      control.NewMetricsRegistry(),
	}, nil
}

// NewWorkerPoolFromConfig creates a context per cfg and a pool owning it;
// Dispose releases the context as well.
func NewWorkerPoolFromConfig(eng api.Engine, cfg *control.PoolConfig, handler Handler) (*WorkerPool, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil config", api.ErrInvalidArgument)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ctx, err := core.NewContext(eng, cfg.IOThreads, cfg.MaxSockets)
	if err != nil {
		return nil, err
	}
	p, err := NewWorkerPool(ctx, cfg.Frontend, cfg.Backend, cfg.Workers, handler)
	if err != nil {
		ctx.Dispose()
		return nil, err
	}
	p.ownCtx = true
	return p, nil
}

// Frontend returns the client-facing endpoint.
func (p *WorkerPool) Frontend() string { return p.frontend }

// Backend returns the worker-facing endpoint.
func (p *WorkerPool) Backend() string { return p.backend }

// Context returns the context the pool operates on.
func (p *WorkerPool) Context() *core.Context { return p.ctx }

// Metrics returns the pool's counter registry.
func (p *WorkerPool) Metrics() *control.MetricsRegistry { return p.metrics }

// Start launches the worker goroutines first, then the broker relay, and
// returns immediately. Starting twice or after Dispose is a usage error.
func (p *WorkerPool) Start() error {
	if p.disposed.Load() {
		return fmt.Errorf("%w: worker pool", api.ErrDisposed)
	}
	if !p.started.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: worker pool", api.ErrAlreadyStarted)
	}
	killPub, err := core.NewSocket(p.ctx, api.Pub, 0)
	if err != nil {
		p.started.Store(false)
		return err
	}
	if err := killPub.Bind(p.killEndpoint); err != nil {
		killPub.Dispose()
		p.started.Store(false)
		return err
	}
	p.killPub = killPub
	p.running.Store(true)
	p.group = new(errgroup.Group)
	for i := 0; i < p.workers; i++ {
		id := i
		p.group.Go(func() error { return p.worker(id) })
	}
	if err := p.broker.Start(); err != nil {
		p.Stop()
		_ = p.group.Wait()
		p.killPub.Dispose()
		p.killPub = nil
		p.group = nil
		p.started.Store(false)
		return err
	}
	return nil
}

// worker owns its sockets and poller for the whole loop; they are created
// and destroyed here, never shared.
func (p *WorkerPool) worker(id int) error {
	wlog := p.log.With().Int("worker", id).Logger()
	rep, err := core.NewSocket(p.ctx, api.Rep, 0)
	if err != nil {
		return fmt.Errorf("worker %d: %w", id, err)
	}
	defer rep.Dispose()
	if err := rep.Connect(p.backend); err != nil {
		return fmt.Errorf("worker %d: %w", id, err)
	}
	kill, err := core.NewSocket(p.ctx, api.Sub, 0)
	if err != nil {
		return fmt.Errorf("worker %d: %w", id, err)
	}
	defer kill.Dispose()
	if err := kill.Connect(p.killEndpoint); err != nil {
		return fmt.Errorf("worker %d: %w", id, err)
	}
	// Stop publishes the kill frame exactly once, so the subscription must be
	// live before the first running check below; a worker that enters the
	// poll loop unsubscribed can miss the frame and block indefinitely.
	if err := kill.Subscribe([]byte{}); err != nil {
		return fmt.Errorf("worker %d: %w", id, err)
	}

	p.metrics.Inc("workers_active")
	defer p.metrics.Add("workers_active", -1)

	var stop bool
	var handlerErr error
	poller := core.NewPoller(p.ctx.Engine())
	err = poller.Add(rep, api.EventIn, func(s *core.Socket, _ api.EventFlags) {
		if err := p.handler(s); err != nil {
			handlerErr = err
			return
		}
		p.metrics.Inc("requests_served")
	})
	if err != nil {
		return fmt.Errorf("worker %d: %w", id, err)
	}
	err = poller.Add(kill, api.EventIn, func(s *core.Socket, _ api.EventFlags) {
		_, _ = s.Recv()
		stop = true
	})
	if err != nil {
		return fmt.Errorf("worker %d: %w", id, err)
	}

	for p.running.Load() {
		if _, err := poller.PollForever(); err != nil {
			if errors.Is(err, api.ErrTerminated) {
				wlog.Debug().Msg("worker observed context termination")
				return nil
			}
			wlog.Error().Err(err).Msg("worker poll failed")
			return fmt.Errorf("worker %d: %w", id, err)
		}
		if handlerErr != nil {
			if errors.Is(handlerErr, api.ErrTerminated) {
				return nil
			}
			wlog.Error().Err(handlerErr).Msg("worker handler failed")
			return fmt.Errorf("worker %d: %w", id, handlerErr)
		}
		if stop {
			return nil
		}
	}
	return nil
}

// Stop flips the running flag and publishes on the kill channel so blocked
// workers wake at their current poll. Best-effort and asynchronous: Stop
// does not join; use Wait for that.
func (p *WorkerPool) Stop() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	if p.killPub != nil {
		if err := p.killPub.Send([]byte("stop"), api.SendDontWait); err != nil {
			p.log.Warn().Err(err).Msg("kill publish failed")
		}
	}
}

// Wait joins the worker group, returning the first worker failure.
func (p *WorkerPool) Wait() error {
	if p.group == nil {
		return nil
	}
	return p.group.Wait()
}

// Running reports whether the pool accepts work.
func (p *WorkerPool) Running() bool { return p.running.Load() }

// Dispose stops the pool and releases the broker, the kill socket and, when
// created via NewWorkerPoolFromConfig, the context. Idempotent and safe to
// call while workers are still draining; each worker disposes its own
// sockets on the way out.
func (p *WorkerPool) Dispose() {
	if !p.disposed.CompareAndSwap(false, true) {
		return
	}
	p.Stop()
	p.broker.Dispose()
	if p.killPub != nil {
		p.killPub.Dispose()
	}
	if p.ownCtx {
		p.ctx.Dispose()
	}
}
