package sessionlog

import (
	"time"

	"github.com/eyespy-lab/stimlog/internal/row"
)

// maxAmbiguousLines caps how many ambiguous line numbers a Report keeps.
const maxAmbiguousLines = 20

// Block is a run of consecutive stimulus rows from one presentation.
type Block struct {
	StimulusID  string
	Condition   string
	PresentedAt time.Duration
	FirstLine   int
	Rows        int
}

// Report describes the content of a session file.
type Report struct {
	Channels     int
	Rows         int
	IdleRows     int
	StimulusRows int

	// Ambiguous counts records that parse as neither row kind; AmbiguousLines
	// holds the first few of their line numbers.
	Ambiguous      int
	AmbiguousLines []int

	// OutOfOrder counts rows whose acquisition timestamp does not exceed the
	// previous row's. Rows from one multi-sample frame share a timestamp and
	// are not counted.
	OutOfOrder int

	FirstAcquired time.Duration
	LastAcquired  time.Duration
	Blocks        []Block
}

// Inspect classifies every record of the session file at path. channelCount
// may be zero, in which case it is taken from the first record.
func Inspect(path string, channelCount int) (*Report, error) {
	rep := &Report{Channels: channelCount}
	var prev *row.Row

	err := Scan(path, func(line int, fields []string) error {
		rep.Rows++
		if rep.Channels <= 0 {
			rep.Channels = len(fields) - row.MetadataColumns
		}

		r, err := row.Parse(fields, rep.Channels)
		if err != nil {
			rep.Ambiguous++
			if len(rep.AmbiguousLines) < maxAmbiguousLines {
				rep.AmbiguousLines = append(rep.AmbiguousLines, line)
			}
			prev = nil
			return nil
		}

		if r.Phase == row.PhaseStimulus {
			rep.StimulusRows++
			rep.extendBlock(r, line, prev)
		} else {
			rep.IdleRows++
		}

		if rep.IdleRows+rep.StimulusRows == 1 {
			rep.FirstAcquired = r.AcquiredAt
		}
		if prev != nil && r.AcquiredAt <= prev.AcquiredAt &&
			!(r.AcquiredAt == prev.AcquiredAt && sameFrame(prev, &r)) {
			rep.OutOfOrder++
		}
		rep.LastAcquired = r.AcquiredAt
		prev = &r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rep, nil
}

// sameFrame reports whether two rows with equal timestamps can be samples of
// one frame: both idle, or both from the same presentation.
func sameFrame(a, b *row.Row) bool {
	if a.Phase != b.Phase {
		return false
	}
	return a.Phase == row.PhaseIdle || (a.StimulusID == b.StimulusID && a.PresentedAt == b.PresentedAt)
}

func (rep *Report) extendBlock(r row.Row, line int, prev *row.Row) {
	if n := len(rep.Blocks); n > 0 && prev != nil && prev.Phase == row.PhaseStimulus {
		b := &rep.Blocks[n-1]
		if b.StimulusID == r.StimulusID && b.PresentedAt == r.PresentedAt {
			b.Rows++
			return
		}
	}
	rep.Blocks = append(rep.Blocks, Block{
		StimulusID:  r.StimulusID,
		Condition:   r.Condition,
		PresentedAt: r.PresentedAt,
		FirstLine:   line,
		Rows:        1,
	})
}
