package config

import (
	"fmt"
	"sort"
	"time"
)

// presets reproduce the observed script variants. They differ in window size,
// repetition count, inter-trial gap and output location. Condition label
// polarity (which class is "1") is not consistent across the variants, so it
// is always taken from stimuli.classes and never from a preset.
var presets = map[string]func(*Config){
	"training": func(c *Config) {
		c.Presentation.Width, c.Presentation.Height = 950, 950
		c.Session.Repetitions = 16
		c.Session.DisplayDuration = Duration(1 * time.Second)
		c.Session.InterTrialGap = Duration(500 * time.Millisecond)
		c.Session.SampleDuringGap = false
		c.Output.Dir = "data/training"
		c.Output.Prefix = "ParticipantK"
	},
	"slideshow": func(c *Config) {
		c.Presentation.Width, c.Presentation.Height = 600, 600
		c.Session.Repetitions = 4
		c.Session.DisplayDuration = Duration(1 * time.Second)
		c.Session.InterTrialGap = Duration(500 * time.Millisecond)
		c.Session.Baseline = Duration(1 * time.Second)
		c.Output.Dir = "data/recordings"
		c.Output.Prefix = "combined_recording_"
	},
	"continuous": func(c *Config) {
		c.Session.SampleDuringGap = true
	},
}

// PresetNames returns the available preset names in sorted order.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ApplyPreset overlays the named preset onto c.
func (c *Config) ApplyPreset(name string) error {
	apply, ok := presets[name]
	if !ok {
		return fmt.Errorf("unknown preset %q (available: %v)", name, PresetNames())
	}
	apply(c)
	return nil
}
