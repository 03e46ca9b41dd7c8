// Package export converts session logs into EDF recordings.
package export

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/OpenPSG/edf"

	"github.com/eyespy-lab/stimlog/internal/row"
	"github.com/eyespy-lab/stimlog/internal/sessionlog"
)

// TriggerLabel names the extra signal carrying the stimulus condition.
const TriggerLabel = "Trigger"

const (
	digitalMin = -32768
	digitalMax = 32767

	// maxRecordBytes is the data record ceiling enforced by the EDF writer.
	maxRecordBytes = 61440
)

// ErrEmptyLog is returned when a session log holds no rows to export.
var ErrEmptyLog = errors.New("session log has no rows")

// Options controls how a session log is laid out as EDF.
type Options struct {
	// ChannelCount is the number of signal columns per row. Zero infers it
	// from the first row.
	ChannelCount int
	SamplingRate float64
	// RecordDuration must be a whole number of seconds.
	RecordDuration    time.Duration
	PhysicalDimension string
	// ChannelLabels names the signal columns. Missing labels become "Ch<n>".
	ChannelLabels []string
	PatientID     string
	RecordingID   string
	StartTime     time.Time
}

// Result summarises a finished export.
type Result struct {
	Rows         int64
	IdleRows     int64
	StimulusRows int64
	Records      int
	Signals      int
	// Conditions maps non-numeric condition labels to the trigger value
	// they were assigned.
	Conditions map[string]float64
}

// ConvertFile exports the session log at csvPath to a new EDF file at edfPath.
// A partially written output is removed on failure.
func ConvertFile(csvPath, edfPath string, opts Options) (Result, error) {
	if opts.StartTime.IsZero() {
		if info, err := os.Stat(csvPath); err == nil {
			opts.StartTime = info.ModTime()
		}
	}

	if err := os.MkdirAll(filepath.Dir(edfPath), 0o755); err != nil {
		return Result{}, fmt.Errorf("creating output directory: %w", err)
	}
	f, err := os.OpenFile(edfPath, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return Result{}, fmt.Errorf("creating EDF file: %w", err)
	}

	res, err := Convert(csvPath, f, opts)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("closing EDF file: %w", cerr)
	}
	if err != nil {
		os.Remove(edfPath)
		return Result{}, err
	}
	return res, nil
}

// Convert reads the session log twice: once to size each signal's physical
// range, then again to stream data records into w. The final partial record
// is padded by holding the last sample.
func Convert(csvPath string, w io.WriteSeeker, opts Options) (Result, error) {
	spr, err := samplesPerRecord(opts)
	if err != nil {
		return Result{}, err
	}

	scan, err := survey(csvPath, opts.ChannelCount)
	if err != nil {
		return Result{}, err
	}
	channels := scan.channels

	if (channels+1)*spr*2 > maxRecordBytes {
		return Result{}, fmt.Errorf("data record of %d signals x %d samples exceeds %d bytes", channels+1, spr, maxRecordBytes)
	}

	hdr := edf.Header{
		Version:            edf.Version0,
		PatientID:          fit(opts.PatientID, 80),
		RecordingID:        fit(opts.RecordingID, 80),
		StartTime:          opts.StartTime,
		DataRecordDuration: opts.RecordDuration,
		SignalCount:        channels + 1,
		Signals:            make([]edf.SignalHeader, 0, channels+1),
	}
	if hdr.StartTime.IsZero() {
		hdr.StartTime = time.Now()
	}
	for i := 0; i < channels; i++ {
		hdr.Signals = append(hdr.Signals, edf.SignalHeader{
			Label:             channelLabel(opts.ChannelLabels, i),
			PhysicalDimension: fit(opts.PhysicalDimension, 8),
			PhysicalMin:       scan.min[i],
			PhysicalMax:       scan.max[i],
			DigitalMin:        digitalMin,
			DigitalMax:        digitalMax,
			SamplesPerRecord:  spr,
		})
	}
	hdr.Signals = append(hdr.Signals, edf.SignalHeader{
		Label:            TriggerLabel,
		PhysicalMin:      0,
		PhysicalMax:      math.Max(1, scan.maxTrigger),
		DigitalMin:       digitalMin,
		DigitalMax:       digitalMax,
		SamplesPerRecord: spr,
	})

	ew, err := edf.Create(w, hdr)
	if err != nil {
		return Result{}, fmt.Errorf("writing EDF header: %w", err)
	}

	res := Result{Signals: hdr.SignalCount, Conditions: scan.conditions}
	record := make([][]float64, hdr.SignalCount)
	for i := range record {
		record[i] = make([]float64, 0, spr)
	}

	flush := func() error {
		if err := ew.WriteRecord(record); err != nil {
			return fmt.Errorf("writing data record %d: %w", res.Records+1, err)
		}
		res.Records++
		for i := range record {
			record[i] = record[i][:0]
		}
		return nil
	}

	err = sessionlog.Scan(csvPath, func(line int, fields []string) error {
		r, err := row.Parse(fields, channels)
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		for i, v := range r.Channels {
			record[i] = append(record[i], clamp(float64(v), hdr.Signals[i].PhysicalMin, hdr.Signals[i].PhysicalMax))
		}
		trig := hdr.Signals[channels]
		record[channels] = append(record[channels], clamp(scan.trigger(r), trig.PhysicalMin, trig.PhysicalMax))

		res.Rows++
		if r.Phase == row.PhaseStimulus {
			res.StimulusRows++
		} else {
			res.IdleRows++
		}

		if len(record[0]) == spr {
			return flush()
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	if n := len(record[0]); n > 0 {
		for i := range record {
			last := record[i][n-1]
			for len(record[i]) < spr {
				record[i] = append(record[i], last)
			}
		}
		if err := flush(); err != nil {
			return Result{}, err
		}
	}

	if err := ew.Close(); err != nil {
		return Result{}, fmt.Errorf("finalising EDF header: %w", err)
	}
	return res, nil
}

func samplesPerRecord(opts Options) (int, error) {
	if opts.SamplingRate <= 0 {
		return 0, fmt.Errorf("sampling rate must be positive, got %g", opts.SamplingRate)
	}
	if opts.RecordDuration < time.Second || opts.RecordDuration%time.Second != 0 {
		return 0, fmt.Errorf("record duration must be a whole number of seconds, got %s", opts.RecordDuration)
	}
	spr := int(math.Round(opts.SamplingRate * opts.RecordDuration.Seconds()))
	if spr < 1 {
		return 0, fmt.Errorf("record of %s at %g Hz holds no samples", opts.RecordDuration, opts.SamplingRate)
	}
	return spr, nil
}

// logSurvey holds what the first pass learns about a session log.
type logSurvey struct {
	channels   int
	min, max   []float64
	maxTrigger float64
	conditions map[string]float64
}

// trigger returns the trigger channel value for a row: zero at baseline, the
// numeric condition when there is one, otherwise the label's assigned index.
func (s *logSurvey) trigger(r row.Row) float64 {
	if r.Phase != row.PhaseStimulus {
		return 0
	}
	if v, err := strconv.ParseFloat(r.Condition, 64); err == nil {
		return v
	}
	return s.conditions[r.Condition]
}

func survey(csvPath string, channelCount int) (*logSurvey, error) {
	s := &logSurvey{channels: channelCount, conditions: map[string]float64{}}
	var labels []string
	rows := 0

	err := sessionlog.Scan(csvPath, func(line int, fields []string) error {
		r, err := row.Parse(fields, s.channels)
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if s.min == nil {
			s.channels = len(r.Channels)
			s.min = make([]float64, s.channels)
			s.max = make([]float64, s.channels)
			for i, v := range r.Channels {
				s.min[i], s.max[i] = float64(v), float64(v)
			}
		}
		for i, v := range r.Channels {
			s.min[i] = math.Min(s.min[i], float64(v))
			s.max[i] = math.Max(s.max[i], float64(v))
		}

		if r.Phase == row.PhaseStimulus {
			if v, err := strconv.ParseFloat(r.Condition, 64); err == nil {
				s.maxTrigger = math.Max(s.maxTrigger, v)
			} else if _, ok := s.conditions[r.Condition]; !ok {
				s.conditions[r.Condition] = 0
				labels = append(labels, r.Condition)
			}
		}
		rows++
		return nil
	})
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, ErrEmptyLog
	}

	// Text labels take the integers after the largest numeric condition, in
	// order of first appearance.
	base := math.Ceil(s.maxTrigger)
	for i, label := range labels {
		s.conditions[label] = base + float64(i+1)
	}
	s.maxTrigger = base + float64(len(labels))

	// Header fields hold eight characters, so ranges are widened to whole
	// units and never left degenerate.
	for i := range s.min {
		s.min[i] = math.Floor(s.min[i])
		s.max[i] = math.Ceil(s.max[i])
		if s.max[i] == s.min[i] {
			s.max[i]++
		}
	}
	return s, nil
}

func channelLabel(labels []string, i int) string {
	if i < len(labels) && labels[i] != "" {
		return fit(labels[i], 16)
	}
	return fmt.Sprintf("Ch%d", i+1)
}

// fit truncates s to the width of its fixed-size header field.
func fit(s string, width int) string {
	if len(s) > width {
		return s[:width]
	}
	return s
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
