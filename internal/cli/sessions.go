package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/eyespy-lab/stimlog/internal/storage"
)

// Execute implements the go-flags Commander interface for SessionsCommand.
func (c *SessionsCommand) Execute(args []string) error {
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

// executeWithStore lists sessions from a provided store (for testing).
func (c *SessionsCommand) executeWithStore(store storage.Store) error {
	var since time.Time
	if c.Since != "" {
		dur, err := parseDuration(c.Since)
		if err != nil {
			return fmt.Errorf("invalid --since value %q: %w", c.Since, err)
		}
		since = time.Now().Add(-dur)
	}

	switch c.Status {
	case "", storage.StatusRunning, storage.StatusCompleted, storage.StatusAborted, storage.StatusFailed:
	default:
		return fmt.Errorf("invalid --status value %q", c.Status)
	}

	sessions, err := store.ListSessions(context.Background(), storage.SessionQuery{
		Participant: c.Participant,
		Status:      c.Status,
		Since:       since,
		Limit:       c.Limit,
		Offset:      c.Offset,
	})
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}

	if c.globals != nil && c.globals.JSON {
		out := sessionsJSON{Count: len(sessions), Sessions: make([]sessionJSON, len(sessions))}
		for i := range sessions {
			out.Sessions[i] = toSessionJSON(&sessions[i])
		}
		return printJSON(out)
	}
	return c.printHuman(sessions)
}

func (c *SessionsCommand) printHuman(sessions []storage.Session) error {
	if len(sessions) == 0 {
		fmt.Println("No sessions recorded")
		return nil
	}

	word := "sessions"
	if len(sessions) == 1 {
		word = "session"
	}
	fmt.Printf("%d %s\n\n", len(sessions), word)

	fmt.Printf("%-8s  %-16s  %-10s  %6s  %9s  %s\n", "ID", "Started", "Status", "Trials", "Rows", "Participant")
	for _, s := range sessions {
		fmt.Printf("%-8s  %-16s  %-10s  %6d  %9s  %s\n",
			shortID(s.ID),
			s.StartedAt.Local().Format("2006-01-02 15:04"),
			s.Status,
			s.Trials,
			formatNumber(s.IdleRows+s.StimulusRows),
			s.Participant,
		)
	}
	return nil
}

type sessionsJSON struct {
	Count    int           `json:"count"`
	Sessions []sessionJSON `json:"sessions"`
}

type sessionJSON struct {
	ID             string  `json:"id"`
	Participant    string  `json:"participant"`
	LogPath        string  `json:"log_path"`
	Driver         string  `json:"driver"`
	DeviceID       string  `json:"device_id"`
	Channels       int     `json:"channels"`
	FrameLength    int     `json:"frame_length"`
	TestSignal     bool    `json:"test_signal"`
	Repetitions    int     `json:"repetitions"`
	Seed           int64   `json:"seed"`
	DisplaySeconds float64 `json:"display_seconds"`
	GapSeconds     float64 `json:"gap_seconds"`
	StartedAt      string  `json:"started_at"`
	EndedAt        string  `json:"ended_at,omitempty"`
	Status         string  `json:"status"`
	Error          string  `json:"error,omitempty"`
	IdleRows       int64   `json:"idle_rows"`
	StimulusRows   int64   `json:"stimulus_rows"`
	FramesDropped  int64   `json:"frames_dropped"`
	Trials         int64   `json:"trials"`
}

func toSessionJSON(s *storage.Session) sessionJSON {
	out := sessionJSON{
		ID:             s.ID,
		Participant:    s.Participant,
		LogPath:        s.LogPath,
		Driver:         s.Driver,
		DeviceID:       s.DeviceID,
		Channels:       s.Channels,
		FrameLength:    s.FrameLength,
		TestSignal:     s.TestSignal,
		Repetitions:    s.Repetitions,
		Seed:           s.Seed,
		DisplaySeconds: s.DisplayDuration.Seconds(),
		GapSeconds:     s.InterTrialGap.Seconds(),
		StartedAt:      s.StartedAt.UTC().Format(time.RFC3339),
		Status:         s.Status,
		Error:          s.Error,
		IdleRows:       s.IdleRows,
		StimulusRows:   s.StimulusRows,
		FramesDropped:  s.FramesDropped,
		Trials:         s.Trials,
	}
	if !s.EndedAt.IsZero() {
		out.EndedAt = s.EndedAt.UTC().Format(time.RFC3339)
	}
	return out
}
