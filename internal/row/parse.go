package row

import (
	"fmt"
	"strconv"
)

// Parse classifies a persisted record back into a Row using only its
// trailing-column shape. channelCount may be zero, in which case it is
// inferred from the record width.
func Parse(fields []string, channelCount int) (Row, error) {
	if channelCount <= 0 {
		channelCount = len(fields) - MetadataColumns
	}
	if channelCount <= 0 || len(fields) != channelCount+MetadataColumns {
		return Row{}, fmt.Errorf("%w: %d fields for %d channels", ErrAmbiguousRow, len(fields), channelCount)
	}

	channels := make([]float32, channelCount)
	for i := 0; i < channelCount; i++ {
		v, err := strconv.ParseFloat(fields[i], 32)
		if err != nil {
			return Row{}, fmt.Errorf("%w: channel %d: %q is not numeric", ErrAmbiguousRow, i+1, fields[i])
		}
		channels[i] = float32(v)
	}

	meta := fields[channelCount:]
	switch {
	case isIdleTail(meta):
		acq, err := ParseTimestamp(meta[3])
		if err != nil {
			return Row{}, fmt.Errorf("%w: %v", ErrAmbiguousRow, err)
		}
		return Row{Phase: PhaseIdle, Channels: channels, AcquiredAt: acq}, nil

	case isStimulusTail(meta):
		acq, err := ParseTimestamp(meta[0])
		if err != nil {
			return Row{}, fmt.Errorf("%w: %v", ErrAmbiguousRow, err)
		}
		presented, err := ParseTimestamp(meta[3])
		if err != nil {
			return Row{}, fmt.Errorf("%w: %v", ErrAmbiguousRow, err)
		}
		return Row{
			Phase:       PhaseStimulus,
			Channels:    channels,
			AcquiredAt:  acq,
			Condition:   meta[1],
			StimulusID:  meta[2],
			PresentedAt: presented,
		}, nil
	}

	return Row{}, fmt.Errorf("%w: trailing columns %q", ErrAmbiguousRow, meta)
}

// isIdleTail reports whether the metadata columns are three numeric zeros
// followed by a numeric acquisition timestamp.
func isIdleTail(meta []string) bool {
	for i := 0; i < IdlePlaceholderColumns; i++ {
		v, err := strconv.ParseFloat(meta[i], 64)
		if err != nil || v != 0 {
			return false
		}
	}
	return IsNumeric(meta[3])
}

// isStimulusTail reports whether the metadata columns hold a numeric
// acquisition timestamp, a condition, a non-numeric stimulus id and a numeric
// presentation timestamp.
func isStimulusTail(meta []string) bool {
	return IsNumeric(meta[0]) &&
		meta[1] != "" &&
		meta[2] != "" && !IsNumeric(meta[2]) &&
		IsNumeric(meta[3])
}

// IsNumeric reports whether s parses as a float. Stimulus identifiers must
// never be numeric or rows would be ambiguous.
func IsNumeric(s string) bool {
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}
