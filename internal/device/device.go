// Package device wraps an amplifier handle behind a session-scoped channel
// adapter. Vendor transports implement Driver and Handle; the acquisition loop
// only ever talks to a Channel.
package device

import (
	"context"
	"errors"
	"fmt"

	"github.com/eyespy-lab/stimlog/internal/frame"
)

// ErrDeviceUnavailable is returned when no device is found or the requested
// index is out of range.
var ErrDeviceUnavailable = errors.New("device unavailable")

// ErrNotStarted is returned when a channel is used before StartAcquisition.
var ErrNotStarted = errors.New("acquisition not started")

// AcquisitionError reports a device fault during a frame pull.
type AcquisitionError struct {
	Op  string
	Err error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("acquisition %s: %v", e.Op, e.Err)
}

func (e *AcquisitionError) Unwrap() error { return e.Err }

// Driver enumerates and connects to devices of one kind.
type Driver interface {
	Name() string
	Devices(ctx context.Context) ([]string, error)
	Connect(ctx context.Context, id string) (Handle, error)
}

// Handle is an exclusive, stateful connection to one physical device.
type Handle interface {
	StartAcquisition(testSignal bool) error
	// NumberOfAcquiredChannels is only well defined after StartAcquisition.
	NumberOfAcquiredChannels() (int, error)
	// GetData blocks until frameLength samples per channel are available,
	// fills buf with little-endian float32 values and returns the number of
	// bytes written.
	GetData(frameLength int, buf []byte) (int, error)
	// Discard drops every sample buffered since the last GetData, so the
	// next GetData returns samples taken after the call.
	Discard() error
	StopAcquisition() error
	Close() error
}

// Channel is the session's adapter around a Handle.
type Channel struct {
	id       string
	handle   Handle
	channels int
	started  bool
	stopped  bool
	closed   bool
	buf      []byte
}

// Open selects the device at index from the driver's enumeration and connects.
func Open(ctx context.Context, d Driver, index int) (*Channel, error) {
	ids, err := d.Devices(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: enumerate %s devices: %v", ErrDeviceUnavailable, d.Name(), err)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no %s devices found", ErrDeviceUnavailable, d.Name())
	}
	if index < 0 || index >= len(ids) {
		return nil, fmt.Errorf("%w: index %d out of range (%d available)", ErrDeviceUnavailable, index, len(ids))
	}

	h, err := d.Connect(ctx, ids[index])
	if err != nil {
		return nil, fmt.Errorf("%w: connect %s: %v", ErrDeviceUnavailable, ids[index], err)
	}
	return &Channel{id: ids[index], handle: h}, nil
}

// ID returns the identifier of the connected device.
func (c *Channel) ID() string { return c.id }

// StartAcquisition starts sampling and queries the channel count. It must be
// called exactly once before ChannelCount or PullFrame.
func (c *Channel) StartAcquisition(testSignal bool) error {
	if c.started {
		return errors.New("acquisition already started")
	}
	if err := c.handle.StartAcquisition(testSignal); err != nil {
		return &AcquisitionError{Op: "start", Err: err}
	}
	c.started = true

	n, err := c.handle.NumberOfAcquiredChannels()
	if err != nil {
		return &AcquisitionError{Op: "channel count", Err: err}
	}
	if n <= 0 {
		return &AcquisitionError{Op: "channel count", Err: fmt.Errorf("device reported %d channels", n)}
	}
	c.channels = n
	return nil
}

// ChannelCount returns the number of acquired channels, fixed for the session.
func (c *Channel) ChannelCount() int { return c.channels }

// PullFrame blocks until the device produces frameLength samples per channel
// and returns the raw buffer. The buffer is reused by the next call.
func (c *Channel) PullFrame(frameLength int) ([]byte, error) {
	if !c.started || c.stopped {
		return nil, ErrNotStarted
	}
	size := frame.BufferSize(frameLength, c.channels)
	if cap(c.buf) < size {
		c.buf = make([]byte, size)
	}
	c.buf = c.buf[:size]

	n, err := c.handle.GetData(frameLength, c.buf)
	if err != nil {
		return nil, &AcquisitionError{Op: "pull", Err: err}
	}
	if n < 0 || n > len(c.buf) {
		return nil, &AcquisitionError{Op: "pull", Err: fmt.Errorf("device reported %d bytes for a %d byte buffer", n, len(c.buf))}
	}
	return c.buf[:n], nil
}

// Discard drops the samples the device buffered while nobody was pulling.
func (c *Channel) Discard() error {
	if !c.started || c.stopped {
		return ErrNotStarted
	}
	if err := c.handle.Discard(); err != nil {
		return &AcquisitionError{Op: "discard", Err: err}
	}
	return nil
}

// StopAcquisition stops sampling. After the first successful stop further
// calls are no-ops; a failed stop may be retried.
func (c *Channel) StopAcquisition() error {
	if !c.started || c.stopped {
		return nil
	}
	if err := c.handle.StopAcquisition(); err != nil {
		return &AcquisitionError{Op: "stop", Err: err}
	}
	c.stopped = true
	return nil
}

// Close releases the device handle. Only the first call has any effect.
func (c *Channel) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.handle.Close()
}
