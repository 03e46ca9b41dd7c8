package storage

import "time"

// Session statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusAborted   = "aborted"
	StatusFailed    = "failed"
)

// Session is one acquisition run as recorded in the session index.
type Session struct {
	ID          string
	Participant string
	LogPath     string
	Driver      string
	DeviceID    string
	Channels    int
	FrameLength int
	TestSignal  bool
	Repetitions int
	Seed        int64

	DisplayDuration time.Duration
	InterTrialGap   time.Duration

	StartedAt time.Time
	EndedAt   time.Time // zero while running
	Status    string
	Error     string

	IdleRows      int64
	StimulusRows  int64
	FramesDropped int64
	Trials        int64
}

// SessionResult is written when a session ends.
type SessionResult struct {
	Status        string
	Error         string
	EndedAt       time.Time
	IdleRows      int64
	StimulusRows  int64
	FramesDropped int64
	Trials        int64
}

// StimulusEntry is one catalogue entry used by a session.
type StimulusEntry struct {
	Path      string
	Class     string
	Condition string
}

// Trial is one presentation within a session. Onset and Offset are session
// clock readings.
type Trial struct {
	SessionID  string
	Seq        int
	Repetition int
	Index      int
	Stimulus   string
	Condition  string
	Onset      time.Duration
	Offset     time.Duration
	Rows       int
	Completed  bool
}

// SessionQuery defines filters for listing sessions.
type SessionQuery struct {
	Participant string
	Status      string
	Since       time.Time
	Limit       int
	Offset      int
}

// Stats holds aggregate statistics about the session index.
type Stats struct {
	TotalSessions     int64
	TotalTrials       int64
	TotalRows         int64
	OldestSession     time.Time
	NewestSession     time.Time
	DatabaseSizeBytes int64
	ByStatus          []StatusCount
}

// StatusCount pairs a session status with its count.
type StatusCount struct {
	Status string
	Count  int64
}
