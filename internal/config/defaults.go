package config

import "time"

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() *Config {
	return &Config{
		Session: SessionConfig{
			DisplayDuration:      Duration(1 * time.Second),
			Repetitions:          16,
			InterTrialGap:        Duration(500 * time.Millisecond),
			Baseline:             Duration(1 * time.Second),
			FrameLength:          1,
			PollInterval:         0,
			SampleDuringGap:      false,
			MaxConsecutiveFaults: 0,
			Seed:                 0,
		},
		Device: DeviceConfig{
			Driver:       "unicorn",
			Index:        0,
			TestSignal:   false,
			SamplingRate: 250,
			Sim: SimConfig{
				Devices:  1,
				Channels: 17,
			},
			Serial: SerialConfig{
				Ports:       []string{},
				PortPattern: `(?i)(rfcomm|UN-|unicorn)`,
				BaudRate:    115200,
				ReadTimeout: Duration(1 * time.Second),
			},
		},
		Stimuli: StimuliConfig{
			Classes: []ClassConfig{
				{Name: "real", Label: "1", Dir: "stimuli/real_images", Extensions: []string{".jpg"}},
				{Name: "ai", Label: "2", Dir: "stimuli/ai_images", Extensions: []string{".jpg"}},
			},
		},
		Output: OutputConfig{
			Dir:    "data/training",
			Prefix: "Participant",
		},
		Presentation: PresentationConfig{
			Width:      950,
			Height:     950,
			WaitForKey: true,
		},
		Storage: StorageConfig{
			Enabled:           true,
			Path:              "~/.config/stimlog",
			SQLiteFile:        "sessions.db",
			SQLiteJournalMode: "wal",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			File:   "",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9464",
		},
		Export: ExportConfig{
			RecordDuration:    Duration(1 * time.Second),
			PhysicalDimension: "uV",
			ChannelLabels:     []string{},
		},
	}
}
