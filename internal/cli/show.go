package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eyespy-lab/stimlog/internal/storage"
)

type showJSON struct {
	Session sessionJSON `json:"session"`
	Stimuli int         `json:"stimuli"`
	Trials  []trialJSON `json:"trials"`
}

type trialJSON struct {
	Seq           int     `json:"seq"`
	Repetition    int     `json:"repetition"`
	Index         int     `json:"index"`
	Stimulus      string  `json:"stimulus"`
	Condition     string  `json:"condition"`
	OnsetSeconds  float64 `json:"onset_seconds"`
	OffsetSeconds float64 `json:"offset_seconds"`
	Rows          int     `json:"rows"`
	Completed     bool    `json:"completed"`
}

// Execute implements the go-flags Commander interface for ShowCommand.
func (c *ShowCommand) Execute(args []string) error {
	if c.ID == "" {
		return fmt.Errorf("--id is required for show command")
	}

	cfg, err := loadConfig(c.globals)
	if err != nil {
		return err
	}
	store, db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	defer store.Close()

	return c.executeWithStore(store)
}

// executeWithStore prints a session from a provided store (for testing).
func (c *ShowCommand) executeWithStore(store storage.Store) error {
	ctx := context.Background()

	sess, err := store.GetSession(ctx, c.ID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("session not found: %s", c.ID)
		}
		return err
	}

	trials, err := store.ListTrials(ctx, sess.ID)
	if err != nil {
		return err
	}
	stimuli, err := store.ListStimuli(ctx, sess.ID)
	if err != nil {
		return err
	}

	if c.globals != nil && c.globals.JSON {
		return c.outputJSON(sess, len(stimuli), trials)
	}

	switch c.Format {
	case "json":
		return c.outputJSON(sess, len(stimuli), trials)
	case "trials":
		outputTrials(trials)
	case "full", "":
		c.outputFull(sess, len(stimuli), trials)
	default:
		return fmt.Errorf("invalid --format value %q (use full, trials or json)", c.Format)
	}
	return nil
}

func (c *ShowCommand) outputFull(s *storage.Session, stimuli int, trials []storage.Trial) {
	fmt.Println(s.ID)
	fmt.Printf("Participant: %s\n", s.Participant)
	fmt.Printf("Log:         %s\n", s.LogPath)
	fmt.Printf("Device:      %s (%s, %d channels)\n", s.DeviceID, s.Driver, s.Channels)
	fmt.Printf("Started:     %s\n", s.StartedAt.Local().Format("2006-01-02 15:04:05"))
	if !s.EndedAt.IsZero() {
		fmt.Printf("Ended:       %s (%s)\n", s.EndedAt.Local().Format("2006-01-02 15:04:05"), s.EndedAt.Sub(s.StartedAt).Round(time.Second))
	}
	fmt.Printf("Status:      %s\n", s.Status)
	if s.Error != "" {
		fmt.Printf("Error:       %s\n", s.Error)
	}
	fmt.Printf("Timing:      %s display, %s gap, %d repetitions, frame length %d\n",
		s.DisplayDuration, s.InterTrialGap, s.Repetitions, s.FrameLength)
	fmt.Printf("Seed:        %d\n", s.Seed)
	fmt.Printf("Stimuli:     %d\n", stimuli)
	fmt.Printf("Rows:        %s idle, %s stimulus, %s dropped\n",
		formatNumber(s.IdleRows), formatNumber(s.StimulusRows), formatNumber(s.FramesDropped))
	fmt.Println()
	fmt.Println("--- Trials ---")
	outputTrials(trials)
}

func outputTrials(trials []storage.Trial) {
	if len(trials) == 0 {
		fmt.Println("No trials recorded")
		return
	}
	for _, t := range trials {
		mark := ""
		if !t.Completed {
			mark = " (interrupted)"
		}
		fmt.Printf("%4d  r%-2d #%-3d %-4s %10.3fs %10.3fs %5d rows  %s%s\n",
			t.Seq, t.Repetition+1, t.Index+1, t.Condition,
			t.Onset.Seconds(), t.Offset.Seconds(), t.Rows, t.Stimulus, mark)
	}
}

func (c *ShowCommand) outputJSON(s *storage.Session, stimuli int, trials []storage.Trial) error {
	out := showJSON{
		Session: toSessionJSON(s),
		Stimuli: stimuli,
		Trials:  make([]trialJSON, len(trials)),
	}
	for i, t := range trials {
		out.Trials[i] = trialJSON{
			Seq:           t.Seq,
			Repetition:    t.Repetition,
			Index:         t.Index,
			Stimulus:      t.Stimulus,
			Condition:     t.Condition,
			OnsetSeconds:  t.Onset.Seconds(),
			OffsetSeconds: t.Offset.Seconds(),
			Rows:          t.Rows,
			Completed:     t.Completed,
		}
	}
	return printJSON(out)
}
