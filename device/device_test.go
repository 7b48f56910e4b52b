// File: device/device_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package device_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-mq/api"
	"github.com/momentics/hioload-mq/core"
	"github.com/momentics/hioload-mq/device"
	"github.com/momentics/hioload-mq/engine/inproc"
	"github.com/momentics/hioload-mq/fake"
)

func TestBindDeviceCreatesOneSocketPerEndpoint(t *testing.T) {
	eng := fake.NewEngine()
	ctx, err := core.NewDefaultContext(eng)
	require.NoError(t, err)
	defer ctx.Dispose()

	d := device.NewBind(ctx, api.Router, api.Dealer, "inproc://dev-front", "inproc://dev-back")
	require.NoError(t, d.Start())
	defer d.Dispose()

	assert.Equal(t, 2, eng.CallCount("socket_new"))
	assert.Equal(t, 2, eng.CallCount("bind"))
	assert.Equal(t, []string{"inproc://dev-front"}, eng.BoundEndpoints(d.Front().NativeHandle()))
	assert.Equal(t, []string{"inproc://dev-back"}, eng.BoundEndpoints(d.Back().NativeHandle()))
}

func TestBindDeviceDisposesOwnedSockets(t *testing.T) {
	eng := fake.NewEngine()
	ctx, err := core.NewDefaultContext(eng)
	require.NoError(t, err)
	defer ctx.Dispose()

	d := device.NewBind(ctx, api.Router, api.Dealer, "inproc://owned-front", "inproc://owned-back")
	require.NoError(t, d.Start())
	d.Dispose()

	assert.Equal(t, 2, eng.CallCount("socket_close"))
	assert.True(t, d.Front().Disposed())
	assert.True(t, d.Back().Disposed())
}

func TestDeviceStartTwiceIsUsageError(t *testing.T) {
	eng := fake.NewEngine()
	ctx, err := core.NewDefaultContext(eng)
	require.NoError(t, err)
	defer ctx.Dispose()

	d := device.NewBind(ctx, api.Router, api.Dealer, "inproc://twice-front", "inproc://twice-back")
	require.NoError(t, d.Start())
	defer d.Dispose()

	assert.ErrorIs(t, d.Start(), api.ErrAlreadyStarted)
}

func TestDeviceStartAfterDisposeFails(t *testing.T) {
	eng := fake.NewEngine()
	ctx, err := core.NewDefaultContext(eng)
	require.NoError(t, err)
	defer ctx.Dispose()

	d := device.NewBind(ctx, api.Router, api.Dealer, "inproc://gone-front", "inproc://gone-back")
	d.Dispose()
	assert.ErrorIs(t, d.Start(), api.ErrDisposed)
}

func TestAttachDeviceRequiresRelayCapability(t *testing.T) {
	eng := fake.NewEngine()
	d := device.New(eng, nil, nil)
	assert.ErrorIs(t, d.Start(), api.ErrInvalidArgument)
	// A failed start may be retried once real sockets are supplied.
	assert.False(t, d.Running())
}

func TestAttachDeviceNeverDisposesCallerSockets(t *testing.T) {
	eng := fake.NewEngine()
	ctx, err := core.NewDefaultContext(eng)
	require.NoError(t, err)
	defer ctx.Dispose()

	front, err := core.NewSocket(ctx, api.Router, 0)
	require.NoError(t, err)
	defer front.Dispose()
	back, err := core.NewSocket(ctx, api.Dealer, 0)
	require.NoError(t, err)
	defer back.Dispose()

	d := device.New(eng, front, back)
	require.NoError(t, d.Start())
	d.Dispose()

	assert.Equal(t, 0, eng.CallCount("socket_close"))
	assert.False(t, front.Disposed())
	assert.False(t, back.Disposed())
}

func TestDeviceDoneSurfacesRelayFailure(t *testing.T) {
	eng := fake.NewEngine()
	boom := api.NewEngineError(api.CodeInternal, "proxy", "relay fault")
	eng.FailWith("proxy", boom)

	ctx, err := core.NewDefaultContext(eng)
	require.NoError(t, err)
	defer ctx.Dispose()

	d := device.NewBind(ctx, api.Router, api.Dealer, "inproc://bad-front", "inproc://bad-back")
	require.NoError(t, d.Start())
	defer d.Dispose()

	select {
	case got := <-d.Done():
		assert.ErrorIs(t, got, boom)
	case <-time.After(2 * time.Second):
		t.Fatal("relay failure not observed")
	}
}

func TestDeviceDoneClosesOnTermination(t *testing.T) {
	eng := fake.NewEngine()
	ctx, err := core.NewDefaultContext(eng)
	require.NoError(t, err)
	defer ctx.Dispose()

	d := device.NewBind(ctx, api.Router, api.Dealer, "inproc://clean-front", "inproc://clean-back")
	require.NoError(t, d.Start())
	defer d.Dispose()

	// The fake relay reports context termination immediately: the channel
	// closes without an error.
	select {
	case got, ok := <-d.Done():
		assert.NoError(t, got)
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("relay loop did not finish")
	}
}

func TestStreamerDeviceRelaysFrames(t *testing.T) {
	eng := inproc.New()
	ctx, err := core.NewDefaultContext(eng)
	require.NoError(t, err)
	defer ctx.Dispose()

	d := device.NewBind(ctx, api.Pull, api.Push, "inproc://stream-in", "inproc://stream-out")
	require.NoError(t, d.Start())
	defer d.Dispose()

	producer, err := core.NewSocket(ctx, api.Push, 0)
	require.NoError(t, err)
	defer producer.Dispose()
	require.NoError(t, producer.Connect("inproc://stream-in"))

	consumer, err := core.NewSocket(ctx, api.Pull, time.Second)
	require.NoError(t, err)
	defer consumer.Dispose()
	require.NoError(t, consumer.Connect("inproc://stream-out"))

	require.NoError(t, producer.Send([]byte("payload"), 0))

	frame, err := consumer.Recv()
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), frame)
}
