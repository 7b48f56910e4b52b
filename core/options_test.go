// File: core/options_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package core_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-mq/api"
	"github.com/momentics/hioload-mq/core"
	"github.com/momentics/hioload-mq/fake"
)

func newOptionSocket(t *testing.T) (*fake.Engine, *core.Socket) {
	t.Helper()
	eng, ctx := newTestContext(t)
	s, err := core.NewSocket(ctx, api.Dealer, 0)
	require.NoError(t, err)
	t.Cleanup(s.Dispose)
	return eng, s
}

func TestGetOptionInt32RoundTrip(t *testing.T) {
	_, s := newOptionSocket(t)
	require.NoError(t, s.SetOption(api.OptSndHWM, core.MarshalInt32(4096)))

	v, err := core.GetOption[int32](s, api.OptSndHWM)
	require.NoError(t, err)
	assert.Equal(t, int32(4096), v)
}

func TestGetOptionInt64RoundTrip(t *testing.T) {
	_, s := newOptionSocket(t)
	require.NoError(t, s.SetOption(api.OptionID(200), core.MarshalInt64(-7_000_000_000)))

	v, err := core.GetOption[int64](s, api.OptionID(200))
	require.NoError(t, err)
	assert.Equal(t, int64(-7_000_000_000), v)
}

func TestGetOptionBoolRoundTrip(t *testing.T) {
	_, s := newOptionSocket(t)

	require.NoError(t, s.SetOption(api.OptRcvMore, core.MarshalBool(true)))
	v, err := core.GetOption[bool](s, api.OptRcvMore)
	require.NoError(t, err)
	assert.True(t, v)

	require.NoError(t, s.SetOption(api.OptRcvMore, core.MarshalBool(false)))
	v, err = core.GetOption[bool](s, api.OptRcvMore)
	require.NoError(t, err)
	assert.False(t, v)
}

func TestGetOptionBytesTruncatesToScratch(t *testing.T) {
	_, s := newOptionSocket(t)

	long := bytes.Repeat([]byte{0xAB}, 300)
	require.NoError(t, s.SetOption(api.OptIdentity, long))

	v, err := core.GetOption[[]byte](s, api.OptIdentity)
	require.NoError(t, err)
	assert.Len(t, v, core.OptionScratchSize)
	assert.Equal(t, long[:core.OptionScratchSize], v)

	short := []byte("worker-7")
	require.NoError(t, s.SetOption(api.OptIdentity, short))
	v, err = core.GetOption[[]byte](s, api.OptIdentity)
	require.NoError(t, err)
	assert.Equal(t, short, v)
}

func TestGetOptionUnsupportedTypeSkipsEngine(t *testing.T) {
	eng, s := newOptionSocket(t)
	before := eng.CallCount("get_opt")

	_, err := core.GetOption[string](s, api.OptIdentity)
	assert.ErrorIs(t, err, api.ErrNotSupported)

	_, err = core.GetOption[float64](s, api.OptIdentity)
	assert.ErrorIs(t, err, api.ErrNotSupported)

	assert.Equal(t, before, eng.CallCount("get_opt"))
}
