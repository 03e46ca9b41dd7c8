package presentation

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/eyespy-lab/stimlog/internal/stimulus"
)

func TestConsoleWaitsForEnter(t *testing.T) {
	var out bytes.Buffer
	c := NewConsole(&out, strings.NewReader("\n"), zap.NewNop())

	require.NoError(t, c.WaitForStart(context.Background()))
	assert.Contains(t, out.String(), "Press Enter to start")
}

func TestConsoleWithoutInputStartsImmediately(t *testing.T) {
	var out bytes.Buffer
	c := NewConsole(&out, nil, nil)

	require.NoError(t, c.WaitForStart(context.Background()))
}

func TestConsoleWaitHonoursCancellation(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	c := NewConsole(io.Discard, pr, zap.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := c.WaitForStart(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConsoleShowCountsAndFinishes(t *testing.T) {
	var out bytes.Buffer
	core, logs := observer.New(zapcore.DebugLevel)
	c := NewConsole(&out, nil, zap.New(core))
	ctx := context.Background()

	s := stimulus.Stimulus{Path: "real/a.jpg", Class: "real", Condition: "1"}
	require.NoError(t, c.Show(ctx, s))
	require.NoError(t, c.Clear(ctx))
	require.NoError(t, c.Show(ctx, s))
	require.NoError(t, c.Finish(ctx))

	assert.Equal(t, 2, logs.FilterMessage("Presented").Len())
	finished := logs.FilterMessage("Presentation finished").All()
	require.Len(t, finished, 1)
	assert.Equal(t, int64(2), finished[0].ContextMap()["shown"])
	assert.Contains(t, out.String(), "Slideshow complete")
}

func TestConsoleShowAfterCancel(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	c := NewConsole(io.Discard, nil, zap.New(core))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, c.Show(ctx, stimulus.Stimulus{Path: "x.jpg"}), context.Canceled)
	assert.Zero(t, logs.FilterMessage("Presented").Len())
}
