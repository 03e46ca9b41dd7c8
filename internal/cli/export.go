package cli

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/eyespy-lab/stimlog/internal/config"
	"github.com/eyespy-lab/stimlog/internal/export"
)

type exportJSON struct {
	Input        string             `json:"input"`
	Output       string             `json:"output"`
	Rows         int64              `json:"rows"`
	IdleRows     int64              `json:"idle_rows"`
	StimulusRows int64              `json:"stimulus_rows"`
	Records      int                `json:"records"`
	Signals      int                `json:"signals"`
	Conditions   map[string]float64 `json:"conditions,omitempty"`
}

// Execute implements the go-flags Commander interface for ExportCommand.
func (c *ExportCommand) Execute(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("export takes exactly one session CSV path")
	}
	cfg, err := loadConfig(c.globals)
	if err != nil {
		return err
	}
	return c.executeWithConfig(cfg, args[0])
}

// executeWithConfig exports csvPath using cfg for defaults (for testing).
func (c *ExportCommand) executeWithConfig(cfg *config.Config, csvPath string) error {
	opts := export.Options{
		ChannelCount:      c.Channels,
		SamplingRate:      cfg.Device.SamplingRate,
		RecordDuration:    cfg.Export.RecordDuration.Std(),
		PhysicalDimension: cfg.Export.PhysicalDimension,
		ChannelLabels:     channelLabels(cfg),
		PatientID:         cfg.Output.Prefix,
		RecordingID:       filepath.Base(csvPath),
	}
	if c.SamplingRate > 0 {
		opts.SamplingRate = c.SamplingRate
	}
	if c.RecordDuration != "" {
		d, err := parseFlagDuration("record-duration", c.RecordDuration)
		if err != nil {
			return err
		}
		opts.RecordDuration = d
	}

	out := c.Output
	if out == "" {
		out = strings.TrimSuffix(csvPath, filepath.Ext(csvPath)) + ".edf"
	}

	res, err := export.ConvertFile(csvPath, out, opts)
	if err != nil {
		return fmt.Errorf("export %s: %w", csvPath, err)
	}

	if c.globals != nil && c.globals.JSON {
		return printJSON(exportJSON{
			Input:        csvPath,
			Output:       out,
			Rows:         res.Rows,
			IdleRows:     res.IdleRows,
			StimulusRows: res.StimulusRows,
			Records:      res.Records,
			Signals:      res.Signals,
			Conditions:   res.Conditions,
		})
	}

	fmt.Printf("Exported %s rows (%s idle, %s stimulus) to %s\n",
		formatNumber(res.Rows), formatNumber(res.IdleRows), formatNumber(res.StimulusRows), out)
	fmt.Printf("%d signals, %d data records\n", res.Signals, res.Records)
	labels := make([]string, 0, len(res.Conditions))
	for label := range res.Conditions {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	for _, label := range labels {
		fmt.Printf("  trigger %g = %s\n", res.Conditions[label], label)
	}
	return nil
}
