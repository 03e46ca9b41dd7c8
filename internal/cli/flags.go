package cli

import "database/sql"

// GlobalFlags holds flags available to all subcommands.
type GlobalFlags struct {
	Config  string `long:"config" description:"Path to config file" default:""`
	JSON    bool   `long:"json" description:"Output in JSON format"`
	Verbose bool   `long:"verbose" description:"Enable verbose output"`
	Version bool   `long:"version" description:"Show version and exit"`
}

// RunCommand runs one acquisition session. Flags override the config file.
type RunCommand struct {
	Preset          string `long:"preset" description:"Apply a named preset (training, slideshow, continuous)"`
	Duration        string `long:"duration" description:"Stimulus display duration (e.g., 1s, 750ms)"`
	Repetitions     int    `long:"repetitions" description:"Number of repetition blocks"`
	Gap             string `long:"gap" description:"Inter-trial gap (e.g., 500ms, 0s)"`
	Baseline        string `long:"baseline" description:"Idle baseline before the first stimulus (e.g., 1s, 0s)"`
	TestSignal      bool   `long:"test-signal" description:"Ask the amplifier for its internal test signal"`
	DeviceIndex     int    `long:"device-index" description:"Index into the enumerated device list" default:"-1"`
	Driver          string `long:"driver" description:"Device driver: sim | unicorn"`
	OutputDir       string `long:"output-dir" description:"Directory for the session CSV"`
	Participant     string `long:"participant" description:"Session file name prefix"`
	Seed            int64  `long:"seed" description:"Shuffle seed (0 picks one from the clock)"`
	NoWait          bool   `long:"no-wait" description:"Start without waiting for Enter"`
	SampleDuringGap bool   `long:"sample-during-gap" description:"Keep logging idle rows during the inter-trial gap"`
	MetricsAddr     string `long:"metrics-addr" description:"Serve Prometheus metrics on this address"`

	globals *GlobalFlags
	version string
}

// DevicesCommand enumerates devices for the configured driver.
type DevicesCommand struct {
	Driver string `long:"driver" description:"Device driver: sim | unicorn"`

	globals *GlobalFlags
	version string
}

// CatalogCommand builds and prints the stimulus catalog.
type CatalogCommand struct {
	Preset  string `long:"preset" description:"Apply a named preset before building"`
	Entries bool   `long:"entries" description:"List every stimulus, not only class counts"`

	globals *GlobalFlags
	version string
}

// SessionsCommand lists sessions recorded in the session index.
type SessionsCommand struct {
	Participant string `long:"participant" description:"Filter by participant (session file prefix)"`
	Status      string `long:"status" description:"Filter by status: running | completed | aborted | failed"`
	Since       string `long:"since" description:"Only sessions newer than duration (e.g., 7d, 24h)"`
	Limit       int    `long:"limit" description:"Maximum results" default:"20"`
	Offset      int    `long:"offset" description:"Skip first N results" default:"0"`

	globals *GlobalFlags
	version string
}

// ShowCommand prints one session and its trials.
type ShowCommand struct {
	ID     string `long:"id" description:"Session ID or unique prefix (required)"`
	Format string `long:"format" description:"Output format: full | trials | json" default:"full"`

	globals *GlobalFlags
	version string
}

// StatusCommand shows session index statistics and a configuration summary.
type StatusCommand struct {
	globals *GlobalFlags
	version string
}

// InspectCommand classifies every row of a session CSV.
type InspectCommand struct {
	Channels int  `long:"channels" description:"Signal channels per row (0 infers from the first row)"`
	Blocks   bool `long:"blocks" description:"List every stimulus block"`

	globals *GlobalFlags
	version string
}

// ExportCommand converts a session CSV to EDF.
type ExportCommand struct {
	Output         string  `short:"o" long:"output" description:"EDF output path (default: CSV path with .edf)"`
	Channels       int     `long:"channels" description:"Signal channels per row (0 infers from the first row)"`
	SamplingRate   float64 `long:"sampling-rate" description:"Sampling rate in Hz (default from config)"`
	RecordDuration string  `long:"record-duration" description:"EDF data record duration (whole seconds)"`

	globals *GlobalFlags
	version string
}

// DeleteCommand removes a session from the index with safety confirmation.
type DeleteCommand struct {
	ID    string `long:"id" description:"Session ID or unique prefix (required)"`
	Force bool   `long:"force" description:"Skip safety confirmation prompt"`

	globals *GlobalFlags
	version string
	db      *sql.DB // injectable for testing; nil means open the configured DB
}
