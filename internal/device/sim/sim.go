// Package sim provides a synthetic amplifier for dry runs and tests.
package sim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/eyespy-lab/stimlog/internal/device"
	"github.com/eyespy-lab/stimlog/internal/frame"
)

// Options configures the synthetic amplifier.
type Options struct {
	Devices      int     // number of devices to enumerate
	Channels     int     // acquired channels per sample
	SamplingRate float64 // Hz; 0 disables pacing
	Seed         int64

	// Fault injection, counted in pulls (1-based). Zero disables.
	FaultEvery int // GetData returns an error
	ShortEvery int // GetData returns a truncated buffer
}

// DefaultOptions mirrors an 8-channel EEG headset with motion and status channels.
func DefaultOptions() Options {
	return Options{
		Devices:      1,
		Channels:     17,
		SamplingRate: 250,
		Seed:         1,
	}
}

// Driver enumerates synthetic devices.
type Driver struct {
	opts Options
}

// NewDriver returns a Driver for opts.
func NewDriver(opts Options) *Driver {
	return &Driver{opts: opts}
}

// Name implements device.Driver.
func (d *Driver) Name() string { return "sim" }

// Devices implements device.Driver.
func (d *Driver) Devices(ctx context.Context) ([]string, error) {
	if d.opts.Devices < 0 {
		return nil, fmt.Errorf("sim: invalid device count %d", d.opts.Devices)
	}
	ids := make([]string, d.opts.Devices)
	for i := range ids {
		ids[i] = fmt.Sprintf("SIM-%04d", i+1)
	}
	return ids, nil
}

// Connect implements device.Driver.
func (d *Driver) Connect(ctx context.Context, id string) (device.Handle, error) {
	if d.opts.Channels <= 0 {
		return nil, fmt.Errorf("sim: invalid channel count %d", d.opts.Channels)
	}
	return &Handle{
		id:   id,
		opts: d.opts,
		rng:  rand.New(rand.NewSource(d.opts.Seed)),
	}, nil
}

// Handle is one synthetic device connection.
type Handle struct {
	mu         sync.Mutex
	id         string
	opts       Options
	rng        *rand.Rand
	running    bool
	testSignal bool
	started    time.Time
	sample     int64
	pulls      int
	samples    [][]float32
}

var errNotRunning = errors.New("sim: acquisition not running")

// StartAcquisition implements device.Handle.
func (h *Handle) StartAcquisition(testSignal bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return errors.New("sim: acquisition already running")
	}
	h.running = true
	h.testSignal = testSignal
	h.started = time.Now()
	h.sample = 0
	return nil
}

// NumberOfAcquiredChannels implements device.Handle.
func (h *Handle) NumberOfAcquiredChannels() (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.running {
		return 0, errNotRunning
	}
	return h.opts.Channels, nil
}

// GetData implements device.Handle.
func (h *Handle) GetData(frameLength int, buf []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.running {
		return 0, errNotRunning
	}

	h.pulls++
	if h.opts.FaultEvery > 0 && h.pulls%h.opts.FaultEvery == 0 {
		return 0, fmt.Errorf("sim: injected fault on pull %d", h.pulls)
	}

	if need := frame.BufferSize(frameLength, h.opts.Channels); need > len(buf) {
		return 0, fmt.Errorf("sim: buffer too small: %d < %d bytes", len(buf), need)
	}

	h.pace(frameLength)

	if cap(h.samples) < frameLength {
		h.samples = make([][]float32, frameLength)
	}
	h.samples = h.samples[:frameLength]
	for s := range h.samples {
		h.samples[s] = h.generate(h.samples[s])
		h.sample++
	}

	out, err := frame.Encode(buf[:0], h.samples)
	if err != nil {
		return 0, err
	}
	n := len(out)
	if h.opts.ShortEvery > 0 && h.pulls%h.opts.ShortEvery == 0 {
		n -= frame.BytesPerValue
	}
	return n, nil
}

// pace blocks until the device clock has produced the requested samples.
func (h *Handle) pace(frameLength int) {
	if h.opts.SamplingRate <= 0 {
		return
	}
	due := h.started.Add(time.Duration(float64(h.sample+int64(frameLength)) / h.opts.SamplingRate * float64(time.Second)))
	if wait := time.Until(due); wait > 0 {
		time.Sleep(wait)
	}
}

func (h *Handle) generate(dst []float32) []float32 {
	if cap(dst) < h.opts.Channels {
		dst = make([]float32, h.opts.Channels)
	}
	dst = dst[:h.opts.Channels]

	rate := h.opts.SamplingRate
	if rate <= 0 {
		rate = 250
	}
	t := float64(h.sample) / rate

	for c := range dst {
		if h.testSignal {
			// 1 Hz square wave, amplitude grows with channel index.
			amp := 10 * float64(c+1)
			if math.Sin(2*math.Pi*t) >= 0 {
				dst[c] = float32(amp)
			} else {
				dst[c] = float32(-amp)
			}
			continue
		}
		freq := 8 + float64(c)
		dst[c] = float32(20*math.Sin(2*math.Pi*freq*t) + h.rng.NormFloat64()*5)
	}
	return dst
}

// Discard implements device.Handle. The device clock is re-anchored so the
// next sample is due one sampling period from now.
func (h *Handle) Discard() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.running {
		return errNotRunning
	}
	if h.opts.SamplingRate > 0 {
		elapsed := time.Duration(float64(h.sample) / h.opts.SamplingRate * float64(time.Second))
		h.started = time.Now().Add(-elapsed)
	}
	return nil
}

// StopAcquisition implements device.Handle.
func (h *Handle) StopAcquisition() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.running {
		return errNotRunning
	}
	h.running = false
	return nil
}

// Close implements device.Handle.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.running = false
	return nil
}
