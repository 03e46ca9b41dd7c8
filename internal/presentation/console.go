package presentation

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/eyespy-lab/stimlog/internal/stimulus"
)

const (
	welcomeMessage  = "Welcome to the image slideshow! Press Enter to start."
	completeMessage = "Slideshow complete. Thank you for participating!"
)

// Console is a headless Driver. It prints operator messages to Out and,
// when In is set, waits for a line on In before starting.
type Console struct {
	Out    io.Writer
	In     io.Reader
	Logger *zap.Logger

	shown int
}

// NewConsole returns a Console driver. A nil in skips the start prompt.
func NewConsole(out io.Writer, in io.Reader, logger *zap.Logger) *Console {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Console{Out: out, In: in, Logger: logger}
}

func (c *Console) WaitForStart(ctx context.Context) error {
	fmt.Fprintln(c.Out, welcomeMessage)
	if c.In == nil {
		return ctx.Err()
	}

	done := make(chan error, 1)
	go func() {
		_, err := bufio.NewReader(c.In).ReadString('\n')
		if err == io.EOF {
			err = nil
		}
		done <- err
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return fmt.Errorf("waiting for start: %w", err)
		}
		return nil
	}
}

func (c *Console) Show(ctx context.Context, s stimulus.Stimulus) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.shown++
	c.Logger.Debug("Presented",
		zap.Int("n", c.shown),
		zap.String("stimulus", s.Path),
		zap.String("class", s.Class),
		zap.String("condition", s.Condition),
	)
	return nil
}

func (c *Console) Clear(ctx context.Context) error {
	return ctx.Err()
}

func (c *Console) Finish(ctx context.Context) error {
	fmt.Fprintln(c.Out, completeMessage)
	c.Logger.Info("Presentation finished", zap.Int("shown", c.shown))
	return nil
}
