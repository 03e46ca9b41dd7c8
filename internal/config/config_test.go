package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, time.Second, cfg.Session.DisplayDuration.Std())
	assert.Equal(t, 16, cfg.Session.Repetitions)
	assert.Equal(t, 500*time.Millisecond, cfg.Session.InterTrialGap.Std())
	assert.Equal(t, time.Second, cfg.Session.Baseline.Std())
	assert.Equal(t, 1, cfg.Session.FrameLength)
	assert.Zero(t, cfg.Session.PollInterval)
	assert.False(t, cfg.Session.SampleDuringGap)
	assert.Zero(t, cfg.Session.MaxConsecutiveFaults)
	assert.Equal(t, "unicorn", cfg.Device.Driver)
	assert.Equal(t, 250.0, cfg.Device.SamplingRate)
	assert.Equal(t, 17, cfg.Device.Sim.Channels)
	assert.Equal(t, 115200, cfg.Device.Serial.BaudRate)
	require.Len(t, cfg.Stimuli.Classes, 2)
	assert.Equal(t, "1", cfg.Stimuli.Classes[0].Label)
	assert.Equal(t, "2", cfg.Stimuli.Classes[1].Label)
	assert.Equal(t, "data/training", cfg.Output.Dir)
	assert.Equal(t, 950, cfg.Presentation.Width)
	assert.True(t, cfg.Presentation.WaitForKey)
	assert.Equal(t, "~/.config/stimlog", cfg.Storage.Path)
	assert.Equal(t, "sessions.db", cfg.Storage.SQLiteFile)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, "uV", cfg.Export.PhysicalDimension)

	assert.NoError(t, cfg.Validate())
}

func TestLoadValidYAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	yamlContent := `
session:
  display_duration: 2s
  repetitions: 3
  poll_interval: 4ms
device:
  driver: sim
  test_signal: true
logging:
  level: "debug"
`
	err := os.WriteFile(cfgPath, []byte(yamlContent), 0644)
	require.NoError(t, err)

	cfg, err := Load(cfgPath)
	require.NoError(t, err)

	// Overridden values
	assert.Equal(t, 2*time.Second, cfg.Session.DisplayDuration.Std())
	assert.Equal(t, 3, cfg.Session.Repetitions)
	assert.Equal(t, 4*time.Millisecond, cfg.Session.PollInterval.Std())
	assert.Equal(t, "sim", cfg.Device.Driver)
	assert.True(t, cfg.Device.TestSignal)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Non-overridden values remain defaults
	assert.Equal(t, 500*time.Millisecond, cfg.Session.InterTrialGap.Std())
	assert.Equal(t, 17, cfg.Device.Sim.Channels)
	assert.Equal(t, "~/.config/stimlog", cfg.Storage.Path)
}

func TestLoadInvalidYAMLReturnsError(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	err := os.WriteFile(cfgPath, []byte(":::not valid yaml{{{"), 0644)
	require.NoError(t, err)

	_, err = Load(cfgPath)
	assert.Error(t, err)
}

func TestLoadInvalidDurationReturnsError(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	err := os.WriteFile(cfgPath, []byte("session:\n  display_duration: soon\n"), 0644)
	require.NoError(t, err)

	_, err = Load(cfgPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid duration")
}

func TestLoadNonExistentFileReturnsError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing", "config.yaml"))
	assert.Error(t, err)
}

func TestLoadOrCreateCreatesDefaultsWhenMissing(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "sub", "deep", "config.yaml")

	cfg, err := LoadOrCreateAt(cfgPath)
	require.NoError(t, err)

	// Should return defaults
	assert.Equal(t, 16, cfg.Session.Repetitions)
	assert.Equal(t, "unicorn", cfg.Device.Driver)

	// File should now exist on disk
	_, statErr := os.Stat(cfgPath)
	assert.NoError(t, statErr)

	// File should be valid YAML loadable again
	cfg2, err := Load(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, cfg.Session, cfg2.Session)
	assert.Equal(t, cfg.Stimuli, cfg2.Stimuli)
}

func TestLoadOrCreateLoadsExistingFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	yamlContent := `
session:
  repetitions: 7
`
	err := os.WriteFile(cfgPath, []byte(yamlContent), 0644)
	require.NoError(t, err)

	cfg, err := LoadOrCreateAt(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Session.Repetitions)
	// Other fields remain defaults
	assert.Equal(t, 1, cfg.Session.FrameLength)
}

func TestLoadReplacesStimulusClasses(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	yamlContent := `
stimuli:
  classes:
    - name: faces
      label: "face"
      dir: /data/faces
`
	err := os.WriteFile(cfgPath, []byte(yamlContent), 0644)
	require.NoError(t, err)

	cfg, err := Load(cfgPath)
	require.NoError(t, err)
	require.Len(t, cfg.Stimuli.Classes, 1)
	assert.Equal(t, "face", cfg.Stimuli.Classes[0].Label)
	assert.Empty(t, cfg.Stimuli.Classes[0].Extensions)
}

func TestDurationMarshalsAsString(t *testing.T) {
	out, err := yaml.Marshal(struct {
		D Duration `yaml:"d"`
	}{D: Duration(1500 * time.Millisecond)})
	require.NoError(t, err)
	assert.Equal(t, "d: 1.5s\n", string(out))
}

// --- Validate ---

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Session.DisplayDuration = 0
	cfg.Session.FrameLength = 0
	cfg.Device.Driver = "openbci"
	cfg.Logging.Level = "loud"

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "display_duration")
	assert.Contains(t, msg, "frame_length")
	assert.Contains(t, msg, "openbci")
	assert.Contains(t, msg, "loud")
}

func TestValidateSimDevice(t *testing.T) {
	tests := []struct {
		name     string
		driver   string
		devices  int
		channels int
		want     string
	}{
		{"negative devices", "sim", -1, 17, "device.sim.devices"},
		{"zero channels", "sim", 1, 0, "device.sim.channels"},
		{"negative channels", "sim", 1, -4, "device.sim.channels"},
		{"no devices is allowed", "sim", 0, 17, ""},
		{"ignored for unicorn", "unicorn", -1, 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Device.Driver = tt.driver
			cfg.Device.Sim.Devices = tt.devices
			cfg.Device.Sim.Channels = tt.channels

			err := cfg.Validate()
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateRejectsDuplicateLabels(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Stimuli.Classes[1].Label = cfg.Stimuli.Classes[0].Label

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reuses label")
}

func TestValidateRequiresClasses(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Stimuli.Classes = nil

	assert.Error(t, cfg.Validate())
}

// --- Presets ---

func TestApplyPresetSlideshow(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.ApplyPreset("slideshow"))

	assert.Equal(t, 600, cfg.Presentation.Width)
	assert.Equal(t, 600, cfg.Presentation.Height)
	assert.Equal(t, 4, cfg.Session.Repetitions)
	assert.Equal(t, 500*time.Millisecond, cfg.Session.InterTrialGap.Std())
	assert.Equal(t, "data/recordings", cfg.Output.Dir)
	// Labels come from the class configuration, not the preset.
	assert.Equal(t, "1", cfg.Stimuli.Classes[0].Label)
	assert.NoError(t, cfg.Validate())
}

func TestApplyPresetTraining(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.ApplyPreset("training"))

	assert.Equal(t, 950, cfg.Presentation.Width)
	assert.Equal(t, 16, cfg.Session.Repetitions)
	assert.Equal(t, "ParticipantK", cfg.Output.Prefix)
}

func TestApplyPresetUnknown(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.ApplyPreset("marathon")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "continuous")
}

func TestPresetNamesSorted(t *testing.T) {
	assert.Equal(t, []string{"continuous", "slideshow", "training"}, PresetNames())
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := ExpandPath("~/x/y")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "x/y"), got)

	got, err = ExpandPath("/abs")
	require.NoError(t, err)
	assert.Equal(t, "/abs", got)
}
