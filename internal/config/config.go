package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Default config file path.
const DefaultConfigPath = "~/.config/stimlog/config.yaml"

// Config holds all stimlog configuration.
type Config struct {
	Session      SessionConfig      `yaml:"session"`
	Device       DeviceConfig       `yaml:"device"`
	Stimuli      StimuliConfig      `yaml:"stimuli"`
	Output       OutputConfig       `yaml:"output"`
	Presentation PresentationConfig `yaml:"presentation"`
	Storage      StorageConfig      `yaml:"storage"`
	Logging      LoggingConfig      `yaml:"logging"`
	Metrics      MetricsConfig      `yaml:"metrics"`
	Export       ExportConfig       `yaml:"export"`
}

// SessionConfig controls acquisition timing.
type SessionConfig struct {
	DisplayDuration      Duration `yaml:"display_duration"`
	Repetitions          int      `yaml:"repetitions"`
	InterTrialGap        Duration `yaml:"inter_trial_gap"`
	Baseline             Duration `yaml:"baseline"`
	FrameLength          int      `yaml:"frame_length"`
	PollInterval         Duration `yaml:"poll_interval"`
	SampleDuringGap      bool     `yaml:"sample_during_gap"`
	MaxConsecutiveFaults int      `yaml:"max_consecutive_faults"`
	Seed                 int64    `yaml:"seed"`
}

type DeviceConfig struct {
	Driver       string       `yaml:"driver"`
	Index        int          `yaml:"index"`
	TestSignal   bool         `yaml:"test_signal"`
	SamplingRate float64      `yaml:"sampling_rate"`
	Sim          SimConfig    `yaml:"sim"`
	Serial       SerialConfig `yaml:"serial"`
}

type SimConfig struct {
	Devices  int `yaml:"devices"`
	Channels int `yaml:"channels"`
}

type SerialConfig struct {
	Ports       []string `yaml:"ports"`
	PortPattern string   `yaml:"port_pattern"`
	BaudRate    int      `yaml:"baud_rate"`
	ReadTimeout Duration `yaml:"read_timeout"`
}

type StimuliConfig struct {
	Classes []ClassConfig `yaml:"classes"`
}

// ClassConfig maps a directory of images to a condition label.
type ClassConfig struct {
	Name       string   `yaml:"name"`
	Label      string   `yaml:"label"`
	Dir        string   `yaml:"dir"`
	Extensions []string `yaml:"extensions"`
}

type OutputConfig struct {
	Dir    string `yaml:"dir"`
	Prefix string `yaml:"prefix"`
}

type PresentationConfig struct {
	Width      int  `yaml:"width"`
	Height     int  `yaml:"height"`
	WaitForKey bool `yaml:"wait_for_key"`
}

type StorageConfig struct {
	Enabled           bool   `yaml:"enabled"`
	Path              string `yaml:"path"`
	SQLiteFile        string `yaml:"sqlite_file"`
	SQLiteJournalMode string `yaml:"sqlite_journal_mode"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type ExportConfig struct {
	RecordDuration    Duration `yaml:"record_duration"`
	PhysicalDimension string   `yaml:"physical_dimension"`
	ChannelLabels     []string `yaml:"channel_labels"`
}

// Load reads a YAML config file at path and merges it with defaults.
// Returns an error if the file cannot be read or contains invalid YAML.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return cfg, nil
}

// ExpandPath replaces a leading ~ with the user's home directory.
func ExpandPath(path string) (string, error) {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolving home directory: %w", err)
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// LoadOrCreate loads the config from the default path. If the file does
// not exist, it creates the directory structure and writes defaults.
func LoadOrCreate() (*Config, error) {
	path, err := ExpandPath(DefaultConfigPath)
	if err != nil {
		return nil, err
	}
	return LoadOrCreateAt(path)
}

// LoadOrCreateAt loads the config from the given path. If the file does
// not exist, it creates the directory structure and writes defaults.
func LoadOrCreateAt(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := DefaultConfig()

		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating config directory: %w", err)
		}

		data, err := yaml.Marshal(cfg)
		if err != nil {
			return nil, fmt.Errorf("marshaling default config: %w", err)
		}

		if err := os.WriteFile(path, data, 0644); err != nil {
			return nil, fmt.Errorf("writing default config: %w", err)
		}

		return cfg, nil
	}

	return Load(path)
}

// DatabasePath returns the expanded path of the session index database.
func (c *Config) DatabasePath() (string, error) {
	dir, err := ExpandPath(c.Storage.Path)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, c.Storage.SQLiteFile), nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	s := c.Session
	if s.DisplayDuration.Std() <= 0 {
		add("session.display_duration must be positive")
	}
	if s.Repetitions <= 0 {
		add("session.repetitions must be positive")
	}
	if s.InterTrialGap.Std() < 0 {
		add("session.inter_trial_gap must not be negative")
	}
	if s.Baseline.Std() < 0 {
		add("session.baseline must not be negative")
	}
	if s.FrameLength <= 0 {
		add("session.frame_length must be at least 1")
	}
	if s.PollInterval.Std() < 0 {
		add("session.poll_interval must not be negative")
	}
	if s.MaxConsecutiveFaults < 0 {
		add("session.max_consecutive_faults must not be negative")
	}

	switch c.Device.Driver {
	case "sim":
		if c.Device.Sim.Devices < 0 {
			add("device.sim.devices must not be negative")
		}
		if c.Device.Sim.Channels <= 0 {
			add("device.sim.channels must be positive")
		}
	case "unicorn":
	default:
		add("device.driver %q is not one of sim, unicorn", c.Device.Driver)
	}
	if c.Device.Index < 0 {
		add("device.index must not be negative")
	}

	if len(c.Stimuli.Classes) == 0 {
		add("stimuli.classes must list at least one class")
	}
	labels := make(map[string]string)
	for i, cls := range c.Stimuli.Classes {
		if cls.Dir == "" {
			add("stimuli.classes[%d].dir is required", i)
		}
		if cls.Label == "" {
			add("stimuli.classes[%d].label is required", i)
			continue
		}
		if other, ok := labels[cls.Label]; ok {
			add("stimuli.classes[%d] reuses label %q of class %q", i, cls.Label, other)
		}
		labels[cls.Label] = cls.Name
	}

	if c.Output.Dir == "" {
		add("output.dir is required")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		add("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}

	return errors.Join(errs...)
}
