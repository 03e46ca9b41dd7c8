package cli

import (
	"fmt"

	"github.com/eyespy-lab/stimlog/internal/sessionlog"
)

type inspectJSON struct {
	Path           string      `json:"path"`
	Channels       int         `json:"channels"`
	Rows           int         `json:"rows"`
	IdleRows       int         `json:"idle_rows"`
	StimulusRows   int         `json:"stimulus_rows"`
	Ambiguous      int         `json:"ambiguous"`
	AmbiguousLines []int       `json:"ambiguous_lines,omitempty"`
	OutOfOrder     int         `json:"out_of_order"`
	FirstAcquired  float64     `json:"first_acquired_seconds"`
	LastAcquired   float64     `json:"last_acquired_seconds"`
	Blocks         []blockJSON `json:"blocks"`
}

type blockJSON struct {
	Stimulus         string  `json:"stimulus"`
	Condition        string  `json:"condition"`
	PresentedSeconds float64 `json:"presented_seconds"`
	FirstLine        int     `json:"first_line"`
	Rows             int     `json:"rows"`
}

// Execute implements the go-flags Commander interface for InspectCommand.
func (c *InspectCommand) Execute(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("inspect takes exactly one session CSV path")
	}

	rep, err := sessionlog.Inspect(args[0], c.Channels)
	if err != nil {
		return err
	}

	if c.globals != nil && c.globals.JSON {
		return printJSON(toInspectJSON(args[0], rep))
	}
	c.printHuman(args[0], rep)
	return nil
}

func toInspectJSON(path string, rep *sessionlog.Report) inspectJSON {
	out := inspectJSON{
		Path:           path,
		Channels:       rep.Channels,
		Rows:           rep.Rows,
		IdleRows:       rep.IdleRows,
		StimulusRows:   rep.StimulusRows,
		Ambiguous:      rep.Ambiguous,
		AmbiguousLines: rep.AmbiguousLines,
		OutOfOrder:     rep.OutOfOrder,
		FirstAcquired:  rep.FirstAcquired.Seconds(),
		LastAcquired:   rep.LastAcquired.Seconds(),
		Blocks:         make([]blockJSON, len(rep.Blocks)),
	}
	for i, b := range rep.Blocks {
		out.Blocks[i] = blockJSON{
			Stimulus:         b.StimulusID,
			Condition:        b.Condition,
			PresentedSeconds: b.PresentedAt.Seconds(),
			FirstLine:        b.FirstLine,
			Rows:             b.Rows,
		}
	}
	return out
}

func (c *InspectCommand) printHuman(path string, rep *sessionlog.Report) {
	fmt.Println(path)
	fmt.Printf("Channels:      %d\n", rep.Channels)
	fmt.Printf("Rows:          %s\n", formatNumber(int64(rep.Rows)))
	fmt.Printf("Idle:          %s\n", formatNumber(int64(rep.IdleRows)))
	fmt.Printf("Stimulus:      %s\n", formatNumber(int64(rep.StimulusRows)))
	fmt.Printf("Ambiguous:     %s", formatNumber(int64(rep.Ambiguous)))
	if len(rep.AmbiguousLines) > 0 {
		fmt.Printf(" (lines %v)", rep.AmbiguousLines)
	}
	fmt.Println()
	fmt.Printf("Out of order:  %s\n", formatNumber(int64(rep.OutOfOrder)))
	if rep.Rows > 0 {
		fmt.Printf("Span:          %.3fs to %.3fs\n", rep.FirstAcquired.Seconds(), rep.LastAcquired.Seconds())
	}
	fmt.Printf("Blocks:        %d\n", len(rep.Blocks))

	if !c.Blocks || len(rep.Blocks) == 0 {
		return
	}
	fmt.Println()
	for i, b := range rep.Blocks {
		fmt.Printf("%4d  line %-7d %-4s %10.3fs %5d rows  %s\n",
			i+1, b.FirstLine, b.Condition, b.PresentedAt.Seconds(), b.Rows, b.StimulusID)
	}
}
