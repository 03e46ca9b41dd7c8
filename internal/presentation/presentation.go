// Package presentation defines how the acquisition controller talks to
// whatever puts stimuli in front of the participant.
package presentation

import (
	"context"

	"github.com/eyespy-lab/stimlog/internal/stimulus"
)

// Driver shows stimuli. Show must return only once the stimulus is visible,
// because the caller stamps the presentation time immediately afterwards.
type Driver interface {
	// WaitForStart blocks until the operator starts the session.
	WaitForStart(ctx context.Context) error
	Show(ctx context.Context, s stimulus.Stimulus) error
	// Clear removes the current stimulus from the display.
	Clear(ctx context.Context) error
	// Finish announces the end of the session.
	Finish(ctx context.Context) error
}
