// Package acquisition runs the stimulus-synchronized sampling loop. A single
// goroutine drives presentation, device polling and row logging in strict
// sequence, so rows reach the session log in exactly the order frames were
// pulled.
package acquisition

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/eyespy-lab/stimlog/internal/device"
	"github.com/eyespy-lab/stimlog/internal/frame"
	"github.com/eyespy-lab/stimlog/internal/metrics"
	"github.com/eyespy-lab/stimlog/internal/presentation"
	"github.com/eyespy-lab/stimlog/internal/row"
	"github.com/eyespy-lab/stimlog/internal/stimulus"
)

// ErrTooManyFaults is returned when consecutive dropped frames reach
// Options.MaxConsecutiveFaults.
var ErrTooManyFaults = errors.New("too many consecutive frame faults")

// Source is the device side of a session. *device.Channel implements it.
type Source interface {
	StartAcquisition(testSignal bool) error
	ChannelCount() int
	PullFrame(frameLength int) ([]byte, error)
	Discard() error
	StopAcquisition() error
	Close() error
}

// RowWriter persists composed rows. *sessionlog.Writer implements it.
type RowWriter interface {
	WriteRow(fields []string) error
	Close() error
}

// Trial describes one presentation.
type Trial struct {
	Seq       int // 0-based across the session
	Position  stimulus.Position
	Stimulus  stimulus.Stimulus
	Onset     time.Duration
	Offset    time.Duration
	Rows      int
	Completed bool // false if the session ended during the presentation
}

// TrialRecorder receives every presentation once it ends.
type TrialRecorder interface {
	RecordTrial(ctx context.Context, t Trial) error
}

// Options holds the timing parameters of a session.
type Options struct {
	DisplayDuration time.Duration
	InterTrialGap   time.Duration
	Baseline        time.Duration
	FrameLength     int
	// PollInterval spaces pulls on a fixed schedule. Zero pulls back to back
	// and lets the device's blocking read set the cadence.
	PollInterval    time.Duration
	SampleDuringGap bool
	// MaxConsecutiveFaults makes a run of dropped frames fatal. Zero means unlimited.
	MaxConsecutiveFaults int
	TestSignal           bool
	// ProgressEvery logs a debug progress line every N rows. Zero disables.
	ProgressEvery int
}

// Session bundles the collaborators a Controller owns for one run.
type Session struct {
	Source    Source
	Log       RowWriter
	Sequence  *stimulus.Sequence
	Presenter presentation.Driver
	Clock     Clock
	Recorder  TrialRecorder
	Metrics   *metrics.Metrics
	Logger    *zap.Logger
}

// Summary reports what a session did.
type Summary struct {
	IdleRows      int64
	StimulusRows  int64
	FramesDropped int
	Trials        int
	Reason        EndReason
	Elapsed       time.Duration
}

// Rows returns the total number of rows written.
func (s Summary) Rows() int64 { return s.IdleRows + s.StimulusRows }

// Controller is the acquisition state machine. It owns its Source and
// RowWriter from construction until Close.
type Controller struct {
	opts Options
	sess Session

	state    State
	channels int
	summary  Summary

	nextPoll          time.Duration
	consecutiveFaults int
	ran               bool

	stopped   bool
	logClosed bool
	released  bool
}

// NewController validates opts and returns a controller for sess.
func NewController(sess Session, opts Options) (*Controller, error) {
	switch {
	case sess.Source == nil:
		return nil, errors.New("acquisition: nil source")
	case sess.Log == nil:
		return nil, errors.New("acquisition: nil session log")
	case sess.Sequence == nil:
		return nil, errors.New("acquisition: nil stimulus sequence")
	case sess.Presenter == nil:
		return nil, errors.New("acquisition: nil presentation driver")
	}
	if opts.DisplayDuration <= 0 {
		return nil, fmt.Errorf("acquisition: display duration must be positive, got %s", opts.DisplayDuration)
	}
	if opts.FrameLength <= 0 {
		return nil, fmt.Errorf("acquisition: frame length must be positive, got %d", opts.FrameLength)
	}
	if opts.PollInterval < 0 || opts.InterTrialGap < 0 || opts.Baseline < 0 {
		return nil, errors.New("acquisition: durations must not be negative")
	}
	if sess.Clock == nil {
		sess.Clock = NewClock()
	}
	if sess.Logger == nil {
		sess.Logger = zap.NewNop()
	}

	return &Controller{opts: opts, sess: sess, state: StateIdleSampling}, nil
}

// State returns the controller's current state.
func (c *Controller) State() State { return c.state }

// Summary returns the counters gathered so far.
func (c *Controller) Summary() Summary { return c.summary }

// Run executes the session until every repetition has been presented, ctx is
// cancelled or a fatal error occurs. Cancellation is not an error: the summary
// reports ReasonAborted. Run always tears the session down before returning.
func (c *Controller) Run(ctx context.Context) (Summary, error) {
	if c.ran {
		return c.summary, errors.New("acquisition: controller already ran")
	}
	c.ran = true

	err := c.run(ctx)

	switch {
	case err == nil:
		c.summary.Reason = ReasonCompleted
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		c.summary.Reason = ReasonAborted
		err = nil
	default:
		c.summary.Reason = ReasonFailed
	}
	c.summary.Elapsed = c.sess.Clock.Now()
	c.setState(StateTerminated)

	if closeErr := c.Close(); closeErr != nil {
		err = errors.Join(err, closeErr)
	}

	c.sess.Logger.Info("Session ended",
		zap.Stringer("reason", c.summary.Reason),
		zap.Int64("idle_rows", c.summary.IdleRows),
		zap.Int64("stimulus_rows", c.summary.StimulusRows),
		zap.Int("frames_dropped", c.summary.FramesDropped),
		zap.Int("trials", c.summary.Trials),
		zap.Duration("elapsed", c.summary.Elapsed),
	)
	return c.summary, err
}

func (c *Controller) run(ctx context.Context) error {
	c.setState(StateIdleSampling)

	if err := c.sess.Presenter.WaitForStart(ctx); err != nil {
		return err
	}

	if err := c.sess.Source.StartAcquisition(c.opts.TestSignal); err != nil {
		return fmt.Errorf("starting acquisition: %w", err)
	}
	c.channels = c.sess.Source.ChannelCount()
	c.sess.Logger.Info("Acquisition started",
		zap.Int("channels", c.channels),
		zap.Int("frame_length", c.opts.FrameLength),
		zap.Bool("test_signal", c.opts.TestSignal),
	)

	if c.opts.Baseline > 0 {
		if _, err := c.sampleUntil(ctx, c.sess.Clock.Now()+c.opts.Baseline, idleRow); err != nil {
			return err
		}
	}

	for seq := 0; ; seq++ {
		stim, pos, ok := c.sess.Sequence.Next()
		if !ok {
			break
		}
		if pos.Index == 0 && pos.Repetition > 0 {
			c.sess.Logger.Debug("Repetition started", zap.Int("repetition", pos.Repetition+1))
		}

		if err := c.present(ctx, seq, stim, pos); err != nil {
			return err
		}

		c.setState(StateInterTrialGap)
		if err := c.gap(ctx); err != nil {
			return err
		}
		if !c.sess.Sequence.RemainingInBlock() {
			c.setState(StateIdleSampling)
		}
	}

	if err := c.sess.Presenter.Finish(ctx); err != nil {
		c.sess.Logger.Warn("Presentation finish failed", zap.Error(err))
	}
	return nil
}

// present shows one stimulus and samples until its display deadline.
func (c *Controller) present(ctx context.Context, seq int, stim stimulus.Stimulus, pos stimulus.Position) error {
	c.setState(StateAwaitingStimulusSelection)
	if err := c.sess.Presenter.Show(ctx, stim); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("showing %s: %w", stim.Path, err)
	}

	presentedAt := c.sess.Clock.Now()
	c.setState(StateStimulusSampling)

	compose := func(channels []float32, acq time.Duration) row.Row {
		return row.ComposeStimulus(channels, acq, stim.Condition, stim.Path, presentedAt)
	}
	rows, err := c.sampleUntil(ctx, presentedAt+c.opts.DisplayDuration, compose)

	trial := Trial{
		Seq:       seq,
		Position:  pos,
		Stimulus:  stim,
		Onset:     presentedAt,
		Offset:    c.sess.Clock.Now(),
		Rows:      rows,
		Completed: err == nil,
	}

	if clearErr := c.sess.Presenter.Clear(ctx); clearErr != nil && ctx.Err() == nil {
		c.sess.Logger.Warn("Clearing display failed", zap.Error(clearErr))
	}
	c.recordTrial(ctx, trial)
	return err
}

func (c *Controller) gap(ctx context.Context) error {
	if c.opts.InterTrialGap <= 0 {
		return ctx.Err()
	}
	if c.opts.SampleDuringGap {
		_, err := c.sampleUntil(ctx, c.sess.Clock.Now()+c.opts.InterTrialGap, idleRow)
		return err
	}
	if err := c.sess.Clock.Sleep(ctx, c.opts.InterTrialGap); err != nil {
		return err
	}
	// Samples the device buffered during the sleep belong to the gap, not to
	// the next presentation.
	if err := c.sess.Source.Discard(); err != nil {
		c.sess.Logger.Warn("Discarding gap backlog failed", zap.Error(err))
	}
	return nil
}

func (c *Controller) recordTrial(ctx context.Context, t Trial) {
	if t.Completed {
		c.summary.Trials++
		c.sess.Metrics.RecordPresentation()
	}
	if c.sess.Recorder == nil {
		return
	}
	// The trial is recorded even when ctx has been cancelled.
	if err := c.sess.Recorder.RecordTrial(context.WithoutCancel(ctx), t); err != nil {
		c.sess.Logger.Warn("Recording trial failed",
			zap.Int("seq", t.Seq),
			zap.String("stimulus", t.Stimulus.Path),
			zap.Error(err),
		)
	}
}

type composeFunc func(channels []float32, acq time.Duration) row.Row

func idleRow(channels []float32, acq time.Duration) row.Row {
	return row.ComposeIdle(channels, acq)
}

// sampleUntil polls until the monotonic deadline passes, composing one row
// per sample. The deadline is checked before every pull, and a pull in
// progress always finishes and is written.
func (c *Controller) sampleUntil(ctx context.Context, deadline time.Duration, compose composeFunc) (int, error) {
	rows := 0
	for {
		if err := ctx.Err(); err != nil {
			return rows, err
		}
		now := c.sess.Clock.Now()
		if now >= deadline {
			return rows, nil
		}
		if c.opts.PollInterval > 0 && c.nextPoll > now {
			if c.nextPoll >= deadline {
				if err := c.sess.Clock.Sleep(ctx, deadline-now); err != nil {
					return rows, err
				}
				return rows, nil
			}
			if err := c.sess.Clock.Sleep(ctx, c.nextPoll-now); err != nil {
				return rows, err
			}
		}

		n, err := c.poll(compose)
		rows += n
		if err != nil {
			return rows, err
		}
	}
}

// poll pulls, decodes, composes and persists one frame. Device faults and
// malformed frames are dropped; only log write failures and persistent
// faults are returned.
func (c *Controller) poll(compose composeFunc) (int, error) {
	started := c.sess.Clock.Now()
	buf, err := c.sess.Source.PullFrame(c.opts.FrameLength)
	acq := c.sess.Clock.Now()
	c.sess.Metrics.ObservePoll(acq - started)
	c.schedule(started)

	if err != nil {
		var acqErr *device.AcquisitionError
		if !errors.As(err, &acqErr) {
			return 0, fmt.Errorf("pulling frame: %w", err)
		}
		return 0, c.drop(metrics.ReasonAcquisition, err)
	}

	frm, err := frame.Decode(buf, c.opts.FrameLength, c.channels)
	if err != nil {
		return 0, c.drop(metrics.ReasonShape, err)
	}
	c.consecutiveFaults = 0

	for _, sample := range frm {
		r := compose(sample, acq)
		if err := c.sess.Log.WriteRow(r.Fields()); err != nil {
			return 0, fmt.Errorf("writing session log: %w", err)
		}
		c.sess.Metrics.RecordRow(r.Phase.String())
		if r.Phase == row.PhaseStimulus {
			c.summary.StimulusRows++
		} else {
			c.summary.IdleRows++
		}
		c.progress()
	}
	return frm.Len(), nil
}

// schedule advances the poll schedule past the pull that started at t,
// skipping ticks that were missed.
func (c *Controller) schedule(t time.Duration) {
	if c.opts.PollInterval <= 0 {
		return
	}
	next := c.nextPoll + c.opts.PollInterval
	if next <= t {
		missed := (t-next)/c.opts.PollInterval + 1
		next += missed * c.opts.PollInterval
	}
	c.nextPoll = next
}

func (c *Controller) drop(reason string, err error) error {
	c.summary.FramesDropped++
	c.consecutiveFaults++
	c.sess.Metrics.RecordDrop(reason)
	c.sess.Logger.Warn("Frame dropped",
		zap.String("reason", reason),
		zap.Stringer("state", c.state),
		zap.Int("consecutive", c.consecutiveFaults),
		zap.Error(err),
	)

	if c.opts.MaxConsecutiveFaults > 0 && c.consecutiveFaults >= c.opts.MaxConsecutiveFaults {
		return fmt.Errorf("%w: %d in a row, last: %w", ErrTooManyFaults, c.consecutiveFaults, err)
	}
	return nil
}

func (c *Controller) progress() {
	if c.opts.ProgressEvery <= 0 {
		return
	}
	total := c.summary.Rows()
	if total%int64(c.opts.ProgressEvery) != 0 {
		return
	}
	c.sess.Logger.Debug("Progress",
		zap.Int64("rows", total),
		zap.Stringer("state", c.state),
		zap.Duration("elapsed", c.sess.Clock.Now()),
	)
}

func (c *Controller) setState(s State) {
	if s == c.state && s != StateIdleSampling {
		return
	}
	prev := c.state
	c.state = s
	c.sess.Metrics.SetState(prev.String(), s.String())
	c.sess.Logger.Debug("State", zap.Stringer("from", prev), zap.Stringer("to", s))
}

// Close stops acquisition, closes the session log and releases the device,
// in that order. Each step runs at most once, so calling Close again after
// Run is harmless.
func (c *Controller) Close() error {
	var errs []error

	if !c.stopped {
		c.stopped = true
		if err := c.sess.Source.StopAcquisition(); err != nil {
			errs = append(errs, fmt.Errorf("stopping acquisition: %w", err))
		}
	}

	if !c.logClosed {
		c.logClosed = true
		if err := c.sess.Log.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing session log: %w", err))
		}
	}

	if !c.released {
		c.released = true
		if err := c.sess.Source.Close(); err != nil {
			errs = append(errs, fmt.Errorf("releasing device: %w", err))
		}
	}

	return errors.Join(errs...)
}
