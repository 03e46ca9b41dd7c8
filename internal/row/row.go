package row

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Schema constants. A stimulus row carries MetadataColumns trailing fields
// (acquisition timestamp, condition, stimulus id, presentation timestamp).
// An idle row keeps the same width: IdlePlaceholderColumns zeros stand in for
// the three stimulus-only fields and the acquisition timestamp comes last.
const (
	MetadataColumns        = 4
	IdlePlaceholderColumns = MetadataColumns - 1
)

// Placeholder is the value written into unused idle-row columns.
const Placeholder = "0"

// ErrAmbiguousRow is returned by Parse when a record cannot be classified as
// exactly one of the two row kinds.
var ErrAmbiguousRow = errors.New("ambiguous row")

// Phase identifies whether a row was sampled at baseline or during stimulus display.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseStimulus
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseStimulus:
		return "stimulus"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Row is one persisted acquisition record.
type Row struct {
	Phase      Phase
	Channels   []float32
	AcquiredAt time.Duration

	// Stimulus-only fields.
	Condition   string
	StimulusID  string
	PresentedAt time.Duration
}

// ComposeIdle builds a baseline row.
func ComposeIdle(channels []float32, acquiredAt time.Duration) Row {
	return Row{
		Phase:      PhaseIdle,
		Channels:   cloneChannels(channels),
		AcquiredAt: acquiredAt,
	}
}

// ComposeStimulus builds a stimulus-viewing row.
func ComposeStimulus(channels []float32, acquiredAt time.Duration, condition, stimulusID string, presentedAt time.Duration) Row {
	return Row{
		Phase:       PhaseStimulus,
		Channels:    cloneChannels(channels),
		AcquiredAt:  acquiredAt,
		Condition:   condition,
		StimulusID:  stimulusID,
		PresentedAt: presentedAt,
	}
}

// Width returns the column count of the row.
func (r Row) Width() int {
	return len(r.Channels) + MetadataColumns
}

// Fields renders the row as CSV fields in schema order.
func (r Row) Fields() []string {
	out := make([]string, 0, r.Width())
	for _, v := range r.Channels {
		out = append(out, FormatChannel(v))
	}

	if r.Phase == PhaseStimulus {
		return append(out,
			FormatTimestamp(r.AcquiredAt),
			r.Condition,
			r.StimulusID,
			FormatTimestamp(r.PresentedAt),
		)
	}

	for i := 0; i < IdlePlaceholderColumns; i++ {
		out = append(out, Placeholder)
	}
	return append(out, FormatTimestamp(r.AcquiredAt))
}

// FormatChannel renders a channel reading with the shortest representation
// that round-trips through float32.
func FormatChannel(v float32) string {
	return strconv.FormatFloat(float64(v), 'f', -1, 32)
}

// FormatTimestamp renders a monotonic offset as seconds with microsecond precision.
func FormatTimestamp(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 6, 64)
}

// ParseTimestamp is the inverse of FormatTimestamp.
func ParseTimestamp(s string) (time.Duration, error) {
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return time.Duration(secs * float64(time.Second)).Round(time.Microsecond), nil
}

func cloneChannels(channels []float32) []float32 {
	out := make([]float32, len(channels))
	copy(out, channels)
	return out
}
