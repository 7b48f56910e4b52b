// File: device/workerpool_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package device_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-mq/api"
	"github.com/momentics/hioload-mq/control"
	"github.com/momentics/hioload-mq/core"
	"github.com/momentics/hioload-mq/device"
	"github.com/momentics/hioload-mq/engine/inproc"
)

func echoHandler(s *core.Socket) error {
	msg, err := s.RecvMessage()
	if err != nil {
		return err
	}
	return s.SendMessage(msg...)
}

func TestWorkerPoolValidation(t *testing.T) {
	eng := inproc.New()
	ctx, err := core.NewDefaultContext(eng)
	require.NoError(t, err)
	defer ctx.Dispose()

	_, err = device.NewWorkerPool(ctx, "", "inproc://b", 4, echoHandler)
	assert.ErrorIs(t, err, api.ErrInvalidArgument)

	_, err = device.NewWorkerPool(ctx, "inproc://f", "inproc://b", 0, echoHandler)
	assert.ErrorIs(t, err, api.ErrInvalidArgument)

	_, err = device.NewWorkerPool(ctx, "inproc://f", "inproc://b", 4, nil)
	assert.ErrorIs(t, err, api.ErrInvalidArgument)

	disposed, err := core.NewDefaultContext(eng)
	require.NoError(t, err)
	disposed.Dispose()
	_, err = device.NewWorkerPool(disposed, "inproc://f", "inproc://b", 4, echoHandler)
	assert.ErrorIs(t, err, api.ErrDisposed)
}

func TestWorkerPoolEchoesConcurrentClients(t *testing.T) {
	eng := inproc.New()
	ctx, err := core.NewDefaultContext(eng)
	require.NoError(t, err)
	defer ctx.Dispose()

	pool, err := device.NewWorkerPool(ctx, "inproc://echo-front", "inproc://echo-back", 4, echoHandler)
	require.NoError(t, err)
	require.NoError(t, pool.Start())
	defer pool.Dispose()

	const clients = 10
	var wg sync.WaitGroup
	results := make([]string, clients)
	errs := make([]error, clients)
	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req, cerr := core.NewSocket(ctx, api.Req, 5*time.Second)
			if cerr != nil {
				errs[i] = cerr
				return
			}
			defer req.Dispose()
			if cerr = req.Connect(pool.Frontend()); cerr != nil {
				errs[i] = cerr
				return
			}
			payload := fmt.Sprintf("request-%02d", i)
			if cerr = req.Send([]byte(payload), 0); cerr != nil {
				errs[i] = cerr
				return
			}
			reply, cerr := req.Recv()
			if cerr != nil {
				errs[i] = cerr
				return
			}
			if reply == nil {
				errs[i] = fmt.Errorf("client %d timed out", i)
				return
			}
			results[i] = string(reply)
		}(i)
	}
	wg.Wait()

	for i := 0; i < clients; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, fmt.Sprintf("request-%02d", i), results[i])
	}
	assert.Equal(t, int64(clients), pool.Metrics().Get("requests_served"))

	pool.Stop()
	require.NoError(t, pool.Wait())
	assert.Equal(t, int64(0), pool.Metrics().Get("workers_active"))
}

func TestWorkerPoolStartRetryAfterBindFailure(t *testing.T) {
	eng := inproc.New()
	ctx, err := core.NewDefaultContext(eng)
	require.NoError(t, err)
	defer ctx.Dispose()

	squatter, err := core.NewSocket(ctx, api.Router, 0)
	require.NoError(t, err)
	require.NoError(t, squatter.Bind("inproc://retry-front"))

	pool, err := device.NewWorkerPool(ctx, "inproc://retry-front", "inproc://retry-back", 2, echoHandler)
	require.NoError(t, err)

	err = pool.Start()
	require.Error(t, err)
	var ee *api.EngineError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, api.CodeAddrInUse, ee.Code)
	assert.False(t, pool.Running())

	// Endpoint freed: the pool must accept a second Start and serve traffic.
	squatter.Dispose()
	require.NoError(t, pool.Start())
	defer pool.Dispose()

	req, err := core.NewSocket(ctx, api.Req, 5*time.Second)
	require.NoError(t, err)
	defer req.Dispose()
	require.NoError(t, req.Connect(pool.Frontend()))
	require.NoError(t, req.Send([]byte("after retry"), 0))
	reply, err := req.Recv()
	require.NoError(t, err)
	assert.Equal(t, []byte("after retry"), reply)
}

func TestWorkerPoolStartTwiceIsUsageError(t *testing.T) {
	eng := inproc.New()
	ctx, err := core.NewDefaultContext(eng)
	require.NoError(t, err)
	defer ctx.Dispose()

	pool, err := device.NewWorkerPool(ctx, "inproc://dup-front", "inproc://dup-back", 2, echoHandler)
	require.NoError(t, err)
	require.NoError(t, pool.Start())
	defer pool.Dispose()

	assert.ErrorIs(t, pool.Start(), api.ErrAlreadyStarted)
}

func TestWorkerPoolStopThenDisposeIsSafe(t *testing.T) {
	eng := inproc.New()
	ctx, err := core.NewDefaultContext(eng)
	require.NoError(t, err)
	defer ctx.Dispose()

	pool, err := device.NewWorkerPool(ctx, "inproc://halt-front", "inproc://halt-back", 4, echoHandler)
	require.NoError(t, err)
	require.NoError(t, pool.Start())

	assert.NotPanics(t, func() {
		pool.Stop()
		pool.Stop()
		pool.Dispose()
		pool.Dispose()
	})
	require.NoError(t, pool.Wait())
	assert.False(t, pool.Running())
}

func TestWorkerPoolHandlerFailureSurfacesViaWait(t *testing.T) {
	eng := inproc.New()
	ctx, err := core.NewDefaultContext(eng)
	require.NoError(t, err)
	defer ctx.Dispose()

	boom := fmt.Errorf("handler exploded")
	pool, err := device.NewWorkerPool(ctx, "inproc://fail-front", "inproc://fail-back", 1,
		func(s *core.Socket) error {
			if _, rerr := s.RecvMessage(); rerr != nil {
				return rerr
			}
			return boom
		})
	require.NoError(t, err)
	require.NoError(t, pool.Start())
	defer pool.Dispose()

	req, err := core.NewSocket(ctx, api.Req, 0)
	require.NoError(t, err)
	defer req.Dispose()
	require.NoError(t, req.Connect(pool.Frontend()))
	require.NoError(t, req.Send([]byte("trigger"), 0))

	assert.ErrorIs(t, pool.Wait(), boom)
}

func TestWorkerPoolFromConfig(t *testing.T) {
	eng := inproc.New()
	cfg := &control.PoolConfig{
		Frontend:   "inproc://cfg-front",
		Backend:    "inproc://cfg-back",
		Workers:    2,
		IOThreads:  1,
		MaxSockets: 64,
	}
	pool, err := device.NewWorkerPoolFromConfig(eng, cfg, echoHandler)
	require.NoError(t, err)
	require.NoError(t, pool.Start())

	req, err := core.NewSocket(pool.Context(), api.Req, 5*time.Second)
	require.NoError(t, err)
	require.NoError(t, req.Connect(cfg.Frontend))
	require.NoError(t, req.Send([]byte("cfg"), 0))
	reply, err := req.Recv()
	require.NoError(t, err)
	assert.Equal(t, []byte("cfg"), reply)

	req.Dispose()
	pool.Stop()
	require.NoError(t, pool.Wait())
	// Dispose also tears down the pool-owned context.
	pool.Dispose()
	assert.True(t, pool.Context().Disposed())

	_, err = device.NewWorkerPoolFromConfig(eng, &control.PoolConfig{Workers: -1}, echoHandler)
	assert.ErrorIs(t, err, api.ErrInvalidArgument)
}
