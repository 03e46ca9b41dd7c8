package acquisition

import (
	"context"
	"errors"
	"fmt"

	"github.com/eyespy-lab/stimlog/internal/device"
	"github.com/eyespy-lab/stimlog/internal/sessionlog"
)

// OpenResources connects to the device at index and then opens the session
// log at logPath. The device is opened first so that an unavailable device
// never leaves an empty log behind. If the log cannot be opened the device is
// released before returning.
func OpenResources(ctx context.Context, drv device.Driver, index int, logPath string) (*device.Channel, *sessionlog.Writer, error) {
	ch, err := device.Open(ctx, drv, index)
	if err != nil {
		return nil, nil, err
	}

	w, err := sessionlog.Open(logPath)
	if err != nil {
		if closeErr := ch.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("releasing device: %w", closeErr))
		}
		return nil, nil, err
	}
	return ch, w, nil
}
