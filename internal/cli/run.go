package cli

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/eyespy-lab/stimlog/internal/acquisition"
	"github.com/eyespy-lab/stimlog/internal/config"
	"github.com/eyespy-lab/stimlog/internal/device"
	"github.com/eyespy-lab/stimlog/internal/metrics"
	"github.com/eyespy-lab/stimlog/internal/presentation"
	"github.com/eyespy-lab/stimlog/internal/sessionlog"
	"github.com/eyespy-lab/stimlog/internal/stimulus"
	"github.com/eyespy-lab/stimlog/internal/storage"
)

// runJSON is the JSON output structure for the run command.
type runJSON struct {
	SessionID     string `json:"session_id,omitempty"`
	LogPath       string `json:"log_path"`
	Device        string `json:"device"`
	Seed          int64  `json:"seed"`
	Reason        string `json:"reason"`
	IdleRows      int64  `json:"idle_rows"`
	StimulusRows  int64  `json:"stimulus_rows"`
	FramesDropped int    `json:"frames_dropped"`
	Trials        int    `json:"trials"`
	Elapsed       string `json:"elapsed"`
	Error         string `json:"error,omitempty"`
}

// Execute implements the go-flags Commander interface for RunCommand.
func (c *RunCommand) Execute(args []string) error {
	cfg, err := loadConfig(c.globals)
	if err != nil {
		return err
	}
	if err := c.applyFlags(cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := newLogger(cfg, c.globals)
	if err != nil {
		return err
	}
	defer logger.Sync()

	drv, err := newDriver(cfg)
	if err != nil {
		return err
	}

	var store storage.Store
	if cfg.Storage.Enabled {
		s, db, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer db.Close()
		defer s.Close()
		store = s
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var in io.Reader
	if cfg.Presentation.WaitForKey {
		in = os.Stdin
	}
	return c.executeWith(ctx, cfg, drv, store, in, logger)
}

// applyFlags overlays command-line overrides onto cfg. The preset is applied
// first so explicit flags win over it.
func (c *RunCommand) applyFlags(cfg *config.Config) error {
	if c.Preset != "" {
		if err := cfg.ApplyPreset(c.Preset); err != nil {
			return err
		}
	}

	s := &cfg.Session
	for _, f := range []struct {
		name  string
		value string
		dst   *config.Duration
	}{
		{"duration", c.Duration, &s.DisplayDuration},
		{"gap", c.Gap, &s.InterTrialGap},
		{"baseline", c.Baseline, &s.Baseline},
	} {
		if f.value == "" {
			continue
		}
		d, err := parseFlagDuration(f.name, f.value)
		if err != nil {
			return err
		}
		*f.dst = config.Duration(d)
	}

	if c.Repetitions != 0 {
		s.Repetitions = c.Repetitions
	}
	if c.Seed != 0 {
		s.Seed = c.Seed
	}
	if c.SampleDuringGap {
		s.SampleDuringGap = true
	}
	if c.TestSignal {
		cfg.Device.TestSignal = true
	}
	if c.DeviceIndex >= 0 {
		cfg.Device.Index = c.DeviceIndex
	}
	if c.Driver != "" {
		cfg.Device.Driver = c.Driver
	}
	if c.OutputDir != "" {
		cfg.Output.Dir = c.OutputDir
	}
	if c.Participant != "" {
		cfg.Output.Prefix = c.Participant
	}
	if c.NoWait {
		cfg.Presentation.WaitForKey = false
	}
	if c.MetricsAddr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Addr = c.MetricsAddr
	}
	return nil
}

// executeWith runs one session against the given driver and (optional) store.
func (c *RunCommand) executeWith(ctx context.Context, cfg *config.Config, drv device.Driver, store storage.Store, in io.Reader, logger *zap.Logger) error {
	specs := make([]stimulus.ClassSpec, len(cfg.Stimuli.Classes))
	for i, cls := range cfg.Stimuli.Classes {
		specs[i] = stimulus.ClassSpec{Name: cls.Name, Label: cls.Label, Dir: cls.Dir, Extensions: cls.Extensions}
	}
	catalog, err := stimulus.BuildCatalog(specs)
	if err != nil {
		return fmt.Errorf("build stimulus catalog: %w", err)
	}

	seed := cfg.Session.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	seq := stimulus.NewSequence(catalog, cfg.Session.Repetitions, rand.New(rand.NewSource(seed)))

	started := time.Now()
	logPath, err := sessionlog.UniquePath(cfg.Output.Dir, cfg.Output.Prefix, started)
	if err != nil {
		return err
	}

	ch, w, err := acquisition.OpenResources(ctx, drv, cfg.Device.Index, logPath)
	if err != nil {
		return err
	}

	logger = logger.With(zap.String("log", logPath), zap.String("device", ch.ID()))

	recorder, sessionID := c.registerSession(ctx, store, cfg, catalog, seed, logPath, ch.ID(), started, logger)
	if sessionID != "" {
		logger = logger.With(zap.String("session", sessionID))
	}

	m := metrics.New()
	metricsCtx, stopMetrics := context.WithCancel(context.Background())
	defer stopMetrics()
	if cfg.Metrics.Enabled {
		go func() {
			if err := m.Serve(metricsCtx, cfg.Metrics.Addr, logger); err != nil {
				logger.Warn("Metrics endpoint failed", zap.Error(err))
			}
		}()
	}

	out := io.Writer(os.Stdout)
	if c.globals != nil && c.globals.JSON {
		out = os.Stderr
	}

	var trialRecorder acquisition.TrialRecorder
	if recorder != nil {
		trialRecorder = recorder
	}

	ctrl, err := acquisition.NewController(acquisition.Session{
		Source:    ch,
		Log:       w,
		Sequence:  seq,
		Presenter: presentation.NewConsole(out, in, logger),
		Recorder:  trialRecorder,
		Metrics:   m,
		Logger:    logger,
	}, acquisition.Options{
		DisplayDuration:      cfg.Session.DisplayDuration.Std(),
		InterTrialGap:        cfg.Session.InterTrialGap.Std(),
		Baseline:             cfg.Session.Baseline.Std(),
		FrameLength:          cfg.Session.FrameLength,
		PollInterval:         cfg.Session.PollInterval.Std(),
		SampleDuringGap:      cfg.Session.SampleDuringGap,
		MaxConsecutiveFaults: cfg.Session.MaxConsecutiveFaults,
		TestSignal:           cfg.Device.TestSignal,
		ProgressEvery:        int(cfg.Device.SamplingRate / 25),
	})
	if err != nil {
		w.Close()
		ch.Close()
		return err
	}

	logger.Info("Session starting",
		zap.Int("stimuli", catalog.Len()),
		zap.Int("repetitions", seq.Repetitions()),
		zap.Int("presentations", seq.Total()),
		zap.Int64("seed", seed),
	)
	summary, runErr := ctrl.Run(ctx)

	if store != nil && sessionID != "" {
		result := storage.SessionResult{
			Status:        sessionStatus(summary.Reason),
			EndedAt:       time.Now(),
			IdleRows:      summary.IdleRows,
			StimulusRows:  summary.StimulusRows,
			FramesDropped: int64(summary.FramesDropped),
			Trials:        int64(summary.Trials),
		}
		if runErr != nil {
			result.Error = runErr.Error()
		}
		if err := store.FinishSession(context.WithoutCancel(ctx), sessionID, result); err != nil {
			logger.Warn("Recording session result failed", zap.Error(err))
		}
	}

	report := runJSON{
		SessionID:     sessionID,
		LogPath:       logPath,
		Device:        ch.ID(),
		Seed:          seed,
		Reason:        summary.Reason.String(),
		IdleRows:      summary.IdleRows,
		StimulusRows:  summary.StimulusRows,
		FramesDropped: summary.FramesDropped,
		Trials:        summary.Trials,
		Elapsed:       summary.Elapsed.Round(time.Millisecond).String(),
	}
	if runErr != nil {
		report.Error = runErr.Error()
	}

	if c.globals != nil && c.globals.JSON {
		if err := printJSON(report); err != nil {
			return err
		}
	} else {
		printRunSummary(report)
	}

	return runErr
}

// registerSession records the session and its catalogue in the index. Index
// failures are logged and the session runs without trial recording.
func (c *RunCommand) registerSession(ctx context.Context, store storage.Store, cfg *config.Config, catalog *stimulus.Catalog,
	seed int64, logPath, deviceID string, started time.Time, logger *zap.Logger) (*indexRecorder, string) {
	if store == nil {
		return nil, ""
	}
	// A session whose log exists is indexed even if the run is already cancelled.
	ctx = context.WithoutCancel(ctx)

	sess := &storage.Session{
		Participant:     cfg.Output.Prefix,
		LogPath:         logPath,
		Driver:          cfg.Device.Driver,
		DeviceID:        deviceID,
		Channels:        expectedChannels(cfg),
		FrameLength:     cfg.Session.FrameLength,
		TestSignal:      cfg.Device.TestSignal,
		Repetitions:     cfg.Session.Repetitions,
		Seed:            seed,
		DisplayDuration: cfg.Session.DisplayDuration.Std(),
		InterTrialGap:   cfg.Session.InterTrialGap.Std(),
		StartedAt:       started,
	}
	if err := store.CreateSession(ctx, sess); err != nil {
		logger.Warn("Session index unavailable", zap.Error(err))
		return nil, ""
	}

	entries := make([]storage.StimulusEntry, len(catalog.Stimuli))
	for i, s := range catalog.Stimuli {
		entries[i] = storage.StimulusEntry{Path: s.Path, Class: s.Class, Condition: s.Condition}
	}
	if err := store.RecordStimuli(ctx, sess.ID, entries); err != nil {
		logger.Warn("Recording stimulus catalogue failed", zap.Error(err))
	}

	return &indexRecorder{store: store, sessionID: sess.ID}, sess.ID
}

// indexRecorder stores every finished presentation as a trial.
type indexRecorder struct {
	store     storage.Store
	sessionID string
}

func (r *indexRecorder) RecordTrial(ctx context.Context, t acquisition.Trial) error {
	return r.store.RecordTrial(ctx, &storage.Trial{
		SessionID:  r.sessionID,
		Seq:        t.Seq,
		Repetition: t.Position.Repetition,
		Index:      t.Position.Index,
		Stimulus:   t.Stimulus.Path,
		Condition:  t.Stimulus.Condition,
		Onset:      t.Onset,
		Offset:     t.Offset,
		Rows:       t.Rows,
		Completed:  t.Completed,
	})
}

func sessionStatus(r acquisition.EndReason) string {
	switch r {
	case acquisition.ReasonCompleted:
		return storage.StatusCompleted
	case acquisition.ReasonAborted:
		return storage.StatusAborted
	default:
		return storage.StatusFailed
	}
}

func printRunSummary(r runJSON) {
	fmt.Println()
	fmt.Println("Session Summary")
	fmt.Println("===============")
	if r.SessionID != "" {
		fmt.Printf("Session:       %s\n", r.SessionID)
	}
	fmt.Printf("Log:           %s\n", r.LogPath)
	fmt.Printf("Device:        %s\n", r.Device)
	fmt.Printf("Seed:          %d\n", r.Seed)
	fmt.Printf("Ended:         %s\n", r.Reason)
	fmt.Printf("Trials:        %s\n", formatNumber(int64(r.Trials)))
	fmt.Printf("Idle rows:     %s\n", formatNumber(r.IdleRows))
	fmt.Printf("Stimulus rows: %s\n", formatNumber(r.StimulusRows))
	fmt.Printf("Dropped:       %s\n", formatNumber(int64(r.FramesDropped)))
	fmt.Printf("Elapsed:       %s\n", r.Elapsed)
	if r.Error != "" {
		fmt.Printf("Error:         %s\n", r.Error)
	}
}
