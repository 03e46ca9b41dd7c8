package sim

import (
	"context"
	"testing"
	"time"

	"github.com/eyespy-lab/stimlog/internal/device"
	"github.com/eyespy-lab/stimlog/internal/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openChannel(t *testing.T, opts Options) *device.Channel {
	t.Helper()
	ch, err := device.Open(context.Background(), NewDriver(opts), 0)
	require.NoError(t, err)
	t.Cleanup(func() { ch.Close() })
	return ch
}

func TestSim_DecodesToConfiguredShape(t *testing.T) {
	opts := DefaultOptions()
	opts.SamplingRate = 0
	ch := openChannel(t, opts)
	require.NoError(t, ch.StartAcquisition(false))
	assert.Equal(t, 17, ch.ChannelCount())

	buf, err := ch.PullFrame(1)
	require.NoError(t, err)

	f, err := frame.Decode(buf, 1, ch.ChannelCount())
	require.NoError(t, err)
	assert.Equal(t, 1, f.Len())
	assert.Len(t, f[0], 17)
}

func TestSim_TestSignalIsDeterministic(t *testing.T) {
	opts := Options{Devices: 1, Channels: 2, SamplingRate: 0}
	ch := openChannel(t, opts)
	require.NoError(t, ch.StartAcquisition(true))

	buf, err := ch.PullFrame(1)
	require.NoError(t, err)
	f, err := frame.Decode(buf, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, []float32{10, 20}, f[0])
}

func TestSim_NoDevices(t *testing.T) {
	_, err := device.Open(context.Background(), NewDriver(Options{Devices: 0, Channels: 8}), 0)
	assert.ErrorIs(t, err, device.ErrDeviceUnavailable)
}

func TestSim_NegativeDeviceCount(t *testing.T) {
	ids, err := NewDriver(Options{Devices: -1, Channels: 8}).Devices(context.Background())
	require.Error(t, err)
	assert.Nil(t, ids)

	_, err = device.Open(context.Background(), NewDriver(Options{Devices: -1, Channels: 8}), 0)
	assert.ErrorIs(t, err, device.ErrDeviceUnavailable)
}

func TestSim_FaultInjection(t *testing.T) {
	opts := Options{Devices: 1, Channels: 4, FaultEvery: 2, ShortEvery: 3}
	ch := openChannel(t, opts)
	require.NoError(t, ch.StartAcquisition(false))

	_, err := ch.PullFrame(1) // pull 1: ok
	require.NoError(t, err)

	_, err = ch.PullFrame(1) // pull 2: fault
	var acqErr *device.AcquisitionError
	assert.ErrorAs(t, err, &acqErr)

	buf, err := ch.PullFrame(1) // pull 3: short
	require.NoError(t, err)
	_, err = frame.Decode(buf, 1, 4)
	assert.ErrorIs(t, err, frame.ErrFrameShapeMismatch)
}

func TestSim_PacesToSamplingRate(t *testing.T) {
	opts := Options{Devices: 1, Channels: 1, SamplingRate: 200}
	ch := openChannel(t, opts)
	require.NoError(t, ch.StartAcquisition(false))

	start := time.Now()
	for i := 0; i < 10; i++ {
		_, err := ch.PullFrame(1)
		require.NoError(t, err)
	}
	// 10 samples at 200 Hz take 50ms.
	assert.GreaterOrEqual(t, time.Since(start), 45*time.Millisecond)
}

func TestSim_DiscardSkipsBacklog(t *testing.T) {
	opts := Options{Devices: 1, Channels: 1, SamplingRate: 100}
	ch := openChannel(t, opts)
	require.NoError(t, ch.StartAcquisition(false))

	// 200ms idle leaves about 20 samples due at once.
	time.Sleep(200 * time.Millisecond)
	start := time.Now()
	for i := 0; i < 10; i++ {
		_, err := ch.PullFrame(1)
		require.NoError(t, err)
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond, "backlog is served without pacing")

	time.Sleep(200 * time.Millisecond)
	require.NoError(t, ch.Discard())
	start = time.Now()
	for i := 0; i < 5; i++ {
		_, err := ch.PullFrame(1)
		require.NoError(t, err)
	}
	// After the discard every sample is paced again: 5 samples at 100 Hz.
	assert.GreaterOrEqual(t, time.Since(start), 45*time.Millisecond)
}
