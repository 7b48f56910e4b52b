// File: core/poller_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package core_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-mq/api"
	"github.com/momentics/hioload-mq/core"
	"github.com/momentics/hioload-mq/engine/inproc"
)

func TestPollerAddValidation(t *testing.T) {
	eng := inproc.New()
	p := core.NewPoller(eng)

	assert.ErrorIs(t, p.Add(nil, api.EventIn, func(*core.Socket, api.EventFlags) {}), api.ErrInvalidArgument)

	_, err := p.Poll(time.Millisecond)
	assert.ErrorIs(t, err, api.ErrInvalidArgument)
}

func TestPollerDispatchesReadyCallback(t *testing.T) {
	eng := inproc.New()
	ctx, err := core.NewDefaultContext(eng)
	require.NoError(t, err)
	defer ctx.Dispose()

	pull, err := core.NewSocket(ctx, api.Pull, 0)
	require.NoError(t, err)
	defer pull.Dispose()
	require.NoError(t, pull.Bind("inproc://poller-test"))

	push, err := core.NewSocket(ctx, api.Push, 0)
	require.NoError(t, err)
	defer push.Dispose()
	require.NoError(t, push.Connect("inproc://poller-test"))

	var got []byte
	p := core.NewPoller(eng)
	require.NoError(t, p.Add(pull, api.EventIn, func(s *core.Socket, ev api.EventFlags) {
		assert.Equal(t, api.EventIn, ev&api.EventIn)
		frame, rerr := s.Recv()
		require.NoError(t, rerr)
		got = frame
	}))

	// Nothing pending yet: bounded poll times out with zero ready sockets.
	n, err := p.Poll(10 * time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Nil(t, got)

	require.NoError(t, push.Send([]byte("work"), 0))

	n, err = p.Poll(time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []byte("work"), got)
}

func TestPollerPollForeverWakesOnSend(t *testing.T) {
	eng := inproc.New()
	ctx, err := core.NewDefaultContext(eng)
	require.NoError(t, err)
	defer ctx.Dispose()

	pair1, err := core.NewSocket(ctx, api.Pair, 0)
	require.NoError(t, err)
	defer pair1.Dispose()
	require.NoError(t, pair1.Bind("inproc://poller-forever"))

	pair2, err := core.NewSocket(ctx, api.Pair, 0)
	require.NoError(t, err)
	defer pair2.Dispose()
	require.NoError(t, pair2.Connect("inproc://poller-forever"))

	fired := make(chan []byte, 1)
	p := core.NewPoller(eng)
	require.NoError(t, p.Add(pair1, api.EventIn, func(s *core.Socket, _ api.EventFlags) {
		frame, rerr := s.Recv()
		require.NoError(t, rerr)
		fired <- frame
	}))

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = pair2.Send([]byte("ping"), 0)
	}()

	n, err := p.PollForever()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	select {
	case frame := <-fired:
		assert.Equal(t, []byte("ping"), frame)
	default:
		t.Fatal("callback did not run")
	}
}
