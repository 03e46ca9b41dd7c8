package acquisition

import (
	"context"
	"errors"
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/eyespy-lab/stimlog/internal/device"
	"github.com/eyespy-lab/stimlog/internal/frame"
	"github.com/eyespy-lab/stimlog/internal/row"
	"github.com/eyespy-lab/stimlog/internal/sessionlog"
	"github.com/eyespy-lab/stimlog/internal/stimulus"
)

// fakeClock advances only when something sleeps or pulls.
type fakeClock struct {
	now    time.Duration
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Duration { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d > 0 {
		c.sleeps = append(c.sleeps, d)
		c.now += d
	}
	return nil
}

// events records teardown order across fakes.
type events []string

func (e *events) add(s string) { *e = append(*e, s) }

type fakeSource struct {
	clock    *fakeClock
	events   *events
	channels int
	pullCost time.Duration

	faults    map[int]bool // 1-based pull numbers that fail
	faultFrom int          // every pull from this one fails; 0 disables
	short     map[int]bool // 1-based pull numbers that come back truncated
	onPull    func(n int)

	// period > 0 makes the source behave like a buffering device: a pull
	// blocks until its samples are due and returns at once while a backlog
	// remains.
	period  time.Duration
	anchor  time.Duration
	sampled int

	pulls    int
	starts   int
	stops    int
	closes   int
	discards int
}

func newFakeSource(clock *fakeClock, ev *events, channels int) *fakeSource {
	return &fakeSource{clock: clock, events: ev, channels: channels}
}

func (s *fakeSource) StartAcquisition(testSignal bool) error {
	s.starts++
	s.anchor = s.clock.now
	s.events.add("start")
	return nil
}

func (s *fakeSource) ChannelCount() int { return s.channels }

func (s *fakeSource) PullFrame(frameLength int) ([]byte, error) {
	s.pulls++
	if s.onPull != nil {
		s.onPull(s.pulls)
	}
	s.clock.now += s.pullCost
	if s.period > 0 {
		s.sampled += frameLength
		if due := s.anchor + time.Duration(s.sampled)*s.period; s.clock.now < due {
			s.clock.now = due
		}
	}

	if s.faults[s.pulls] || (s.faultFrom > 0 && s.pulls >= s.faultFrom) {
		return nil, &device.AcquisitionError{Op: "pull", Err: errors.New("link lost")}
	}

	samples := make([][]float32, frameLength)
	for i := range samples {
		samples[i] = make([]float32, s.channels)
		for c := range samples[i] {
			samples[i][c] = float32(s.pulls) + float32(c)/100
		}
	}
	buf, err := frame.Encode(nil, samples)
	if err != nil {
		return nil, err
	}
	if s.short[s.pulls] {
		buf = buf[:len(buf)-frame.BytesPerValue]
	}
	return buf, nil
}

func (s *fakeSource) Discard() error {
	s.discards++
	s.anchor = s.clock.now - time.Duration(s.sampled)*s.period
	return nil
}

func (s *fakeSource) StopAcquisition() error {
	s.stops++
	s.events.add("stop")
	return nil
}

func (s *fakeSource) Close() error {
	s.closes++
	s.events.add("release")
	return nil
}

// recordingLog wraps a real session log and can fail after a number of rows.
type recordingLog struct {
	*sessionlog.Writer
	events    *events
	failAfter int
	written   int
	closes    int
}

func (l *recordingLog) WriteRow(fields []string) error {
	if l.failAfter > 0 && l.written >= l.failAfter {
		return errors.New("disk full")
	}
	if err := l.Writer.WriteRow(fields); err != nil {
		return err
	}
	l.written++
	return nil
}

func (l *recordingLog) Close() error {
	l.closes++
	l.events.add("log-close")
	return l.Writer.Close()
}

type recordingPresenter struct {
	ctrl     *Controller
	shown    []stimulus.Stimulus
	states   []State
	clears   int
	finished bool
	waitErr  error
}

func (p *recordingPresenter) WaitForStart(ctx context.Context) error {
	if p.waitErr != nil {
		return p.waitErr
	}
	return ctx.Err()
}

func (p *recordingPresenter) Show(ctx context.Context, s stimulus.Stimulus) error {
	p.shown = append(p.shown, s)
	if p.ctrl != nil {
		p.states = append(p.states, p.ctrl.State())
	}
	return nil
}

func (p *recordingPresenter) Clear(ctx context.Context) error {
	p.clears++
	return nil
}

func (p *recordingPresenter) Finish(ctx context.Context) error {
	p.finished = true
	return nil
}

type memoryRecorder struct {
	trials []Trial
	err    error
}

func (r *memoryRecorder) RecordTrial(ctx context.Context, t Trial) error {
	r.trials = append(r.trials, t)
	return r.err
}

func testCatalog(paths ...string) *stimulus.Catalog {
	cat := &stimulus.Catalog{}
	for i, p := range paths {
		class, label := "real", "1"
		if i%2 == 1 {
			class, label = "ai", "2"
		}
		cat.Stimuli = append(cat.Stimuli, stimulus.Stimulus{Path: p, Class: class, Condition: label})
	}
	return cat
}

// harness wires a controller to fakes and a real session log in a temp dir.
type harness struct {
	clock     *fakeClock
	events    *events
	source    *fakeSource
	log       *recordingLog
	presenter *recordingPresenter
	recorder  *memoryRecorder
	path      string
}

func newHarness(t *testing.T, channels int) *harness {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "Participant1700000000.csv")
	w, err := sessionlog.Open(path)
	require.NoError(t, err)

	ev := &events{}
	clock := &fakeClock{}
	return &harness{
		clock:     clock,
		events:    ev,
		source:    newFakeSource(clock, ev, channels),
		log:       &recordingLog{Writer: w, events: ev},
		presenter: &recordingPresenter{},
		recorder:  &memoryRecorder{},
		path:      path,
	}
}

func (h *harness) controller(t *testing.T, cat *stimulus.Catalog, reps int, opts Options) *Controller {
	t.Helper()
	ctrl, err := NewController(Session{
		Source:    h.source,
		Log:       h.log,
		Sequence:  stimulus.NewSequence(cat, reps, rand.New(rand.NewSource(7))),
		Presenter: h.presenter,
		Clock:     h.clock,
		Recorder:  h.recorder,
	}, opts)
	require.NoError(t, err)
	h.presenter.ctrl = ctrl
	return ctrl
}

// rows reads the session log back and parses every record.
func (h *harness) rows(t *testing.T) []row.Row {
	t.Helper()
	records, err := sessionlog.ReadAll(h.path)
	require.NoError(t, err)

	out := make([]row.Row, 0, len(records))
	for i, rec := range records {
		r, err := row.Parse(rec, h.source.channels)
		require.NoError(t, err, "record %d: %v", i+1, rec)
		out = append(out, r)
	}
	return out
}
