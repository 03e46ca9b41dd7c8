// Package unicorn talks to an 8-channel Unicorn-class EEG headset over its
// Bluetooth serial port.
package unicorn

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"time"

	"go.bug.st/serial"

	"github.com/eyespy-lab/stimlog/internal/device"
	"github.com/eyespy-lab/stimlog/internal/frame"
)

// Port is the subset of serial.Port the driver uses.
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
}

// Options configures the serial driver.
type Options struct {
	Ports       []string      // explicit port names; enumeration is used when empty
	PortPattern string        // regexp filtering enumerated port names
	BaudRate    int           // serial line rate
	ReadTimeout time.Duration // per-sample timeout
}

// DefaultOptions returns the headset's serial settings.
func DefaultOptions() Options {
	return Options{
		PortPattern: `(?i)(rfcomm|UN-|unicorn)`,
		BaudRate:    115200,
		ReadTimeout: time.Second,
	}
}

// Driver enumerates and connects to headsets on serial ports.
type Driver struct {
	opts     Options
	list     func() ([]string, error)
	openPort func(name string, mode *serial.Mode) (Port, error)
}

// NewDriver returns a Driver backed by the host's serial ports.
func NewDriver(opts Options) *Driver {
	return &Driver{
		opts: opts,
		list: serial.GetPortsList,
		openPort: func(name string, mode *serial.Mode) (Port, error) {
			return serial.Open(name, mode)
		},
	}
}

// Name implements device.Driver.
func (d *Driver) Name() string { return "unicorn" }

// Devices implements device.Driver.
func (d *Driver) Devices(ctx context.Context) ([]string, error) {
	if len(d.opts.Ports) > 0 {
		return d.opts.Ports, nil
	}

	ports, err := d.list()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}
	if d.opts.PortPattern == "" {
		return ports, nil
	}

	re, err := regexp.Compile(d.opts.PortPattern)
	if err != nil {
		return nil, fmt.Errorf("invalid port pattern: %w", err)
	}
	var out []string
	for _, p := range ports {
		if re.MatchString(p) {
			out = append(out, p)
		}
	}
	return out, nil
}

// Connect implements device.Driver.
func (d *Driver) Connect(ctx context.Context, id string) (device.Handle, error) {
	p, err := d.openPort(id, &serial.Mode{
		BaudRate: d.opts.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", id, err)
	}

	timeout := d.opts.ReadTimeout
	if timeout <= 0 {
		timeout = time.Second
	}
	// Short reads let readFull enforce the per-sample deadline.
	if err := p.SetReadTimeout(10 * time.Millisecond); err != nil {
		p.Close()
		return nil, fmt.Errorf("set read timeout: %w", err)
	}
	return &Handle{port: p, timeout: timeout, payload: make([]byte, PayloadSize)}, nil
}

// Handle is one open headset connection.
type Handle struct {
	port    Port
	timeout time.Duration
	running bool
	synced  bool
	payload []byte
	values  [ChannelCount]float32
	samples [][]float32
}

var errNotRunning = errors.New("unicorn: acquisition not running")

// StartAcquisition implements device.Handle.
func (h *Handle) StartAcquisition(testSignal bool) error {
	if testSignal {
		return errors.New("unicorn: test signal is not available over the serial transport")
	}
	if err := h.port.ResetInputBuffer(); err != nil {
		return fmt.Errorf("reset input: %w", err)
	}
	if err := h.command(startCommand); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	h.running = true
	h.synced = true
	return nil
}

// NumberOfAcquiredChannels implements device.Handle.
func (h *Handle) NumberOfAcquiredChannels() (int, error) {
	if !h.running {
		return 0, errNotRunning
	}
	return ChannelCount, nil
}

// GetData implements device.Handle.
func (h *Handle) GetData(frameLength int, buf []byte) (int, error) {
	if !h.running {
		return 0, errNotRunning
	}
	if need := frame.BufferSize(frameLength, ChannelCount); len(buf) < need {
		return 0, fmt.Errorf("unicorn: buffer too small: %d < %d bytes", len(buf), need)
	}

	if cap(h.samples) < frameLength {
		h.samples = make([][]float32, frameLength)
	}
	h.samples = h.samples[:frameLength]

	for s := 0; s < frameLength; s++ {
		if err := h.nextPayload(); err != nil {
			return 0, err
		}
		if err := DecodePayload(h.payload, h.values[:]); err != nil {
			h.synced = false
			return 0, err
		}
		if len(h.samples[s]) != ChannelCount {
			h.samples[s] = make([]float32, ChannelCount)
		}
		copy(h.samples[s], h.values[:])
	}

	out, err := frame.Encode(buf[:0], h.samples)
	if err != nil {
		return 0, err
	}
	return len(out), nil
}

// nextPayload reads one payload, scanning for the header first if a previous
// payload was malformed.
func (h *Handle) nextPayload() error {
	if h.synced {
		return h.readFull(h.payload)
	}

	// Slide a two-byte window until the header appears.
	header := []byte{0xC0, 0x00}
	window := make([]byte, 2)
	if err := h.readFull(window); err != nil {
		return err
	}
	for !bytes.Equal(window, header) {
		window[0] = window[1]
		if err := h.readFull(window[1:]); err != nil {
			return err
		}
	}
	copy(h.payload, header)
	if err := h.readFull(h.payload[2:]); err != nil {
		return err
	}
	h.synced = true
	return nil
}

// readFull fills p or fails once the per-sample timeout elapses.
func (h *Handle) readFull(p []byte) error {
	deadline := time.Now().Add(h.timeout)
	for off := 0; off < len(p); {
		n, err := h.port.Read(p[off:])
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		off += n
		if n == 0 && time.Now().After(deadline) {
			return fmt.Errorf("read: timed out after %s", h.timeout)
		}
	}
	return nil
}

func (h *Handle) command(cmd []byte) error {
	if _, err := h.port.Write(cmd); err != nil {
		return fmt.Errorf("write command: %w", err)
	}
	resp := make([]byte, len(ackResponse))
	if err := h.readFull(resp); err != nil {
		return err
	}
	if !bytes.Equal(resp, ackResponse) {
		return fmt.Errorf("unexpected response % x", resp)
	}
	return nil
}

// Discard implements device.Handle. Flushing the input buffer can cut a
// payload in half, so the next read resynchronizes on the header.
func (h *Handle) Discard() error {
	if !h.running {
		return errNotRunning
	}
	if err := h.port.ResetInputBuffer(); err != nil {
		return fmt.Errorf("reset input: %w", err)
	}
	h.synced = false
	return nil
}

// StopAcquisition implements device.Handle.
func (h *Handle) StopAcquisition() error {
	if !h.running {
		return errNotRunning
	}
	if _, err := h.port.Write(stopCommand); err != nil {
		return fmt.Errorf("stop: %w", err)
	}
	h.running = false
	return nil
}

// Close implements device.Handle.
func (h *Handle) Close() error {
	return h.port.Close()
}
