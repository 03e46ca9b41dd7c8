package cli

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/eyespy-lab/stimlog/internal/config"
	"github.com/eyespy-lab/stimlog/internal/device"
	"github.com/eyespy-lab/stimlog/internal/device/sim"
	"github.com/eyespy-lab/stimlog/internal/device/unicorn"
	"github.com/eyespy-lab/stimlog/internal/logging"
	"github.com/eyespy-lab/stimlog/internal/storage"
)

// loadConfig loads the file named by --config, or the default config file
// (created with defaults on first use).
func loadConfig(globals *GlobalFlags) (*config.Config, error) {
	if globals == nil || globals.Config == "" {
		return config.LoadOrCreate()
	}
	path, err := config.ExpandPath(globals.Config)
	if err != nil {
		return nil, err
	}
	return config.Load(path)
}

// newLogger builds the configured logger; --verbose forces debug level.
func newLogger(cfg *config.Config, globals *GlobalFlags) (*zap.Logger, error) {
	lc := cfg.Logging
	if globals != nil && globals.Verbose {
		lc.Level = "debug"
	}
	return logging.New(lc)
}

// openStore opens the session index named by cfg, runs migrations,
// and returns a ready-to-use store and the underlying *sql.DB.
func openStore(cfg *config.Config) (*storage.SQLiteStore, *sql.DB, error) {
	dbPath, err := cfg.DatabasePath()
	if err != nil {
		return nil, nil, err
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}

	runner := storage.NewMigrationRunner(db)
	runner.JournalMode = cfg.Storage.SQLiteJournalMode
	if err := runner.Run(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("run migrations: %w", err)
	}

	store, err := storage.NewSQLiteStore(db)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("create store: %w", err)
	}

	return store, db, nil
}

// newDriver returns the device driver selected by cfg.Device.Driver.
func newDriver(cfg *config.Config) (device.Driver, error) {
	d := cfg.Device
	switch d.Driver {
	case "sim":
		opts := sim.DefaultOptions()
		opts.Devices = d.Sim.Devices
		opts.Channels = d.Sim.Channels
		opts.SamplingRate = d.SamplingRate
		if cfg.Session.Seed != 0 {
			opts.Seed = cfg.Session.Seed
		}
		return sim.NewDriver(opts), nil
	case "unicorn":
		opts := unicorn.DefaultOptions()
		opts.Ports = d.Serial.Ports
		if d.Serial.PortPattern != "" {
			opts.PortPattern = d.Serial.PortPattern
		}
		if d.Serial.BaudRate > 0 {
			opts.BaudRate = d.Serial.BaudRate
		}
		if d.Serial.ReadTimeout > 0 {
			opts.ReadTimeout = d.Serial.ReadTimeout.Std()
		}
		return unicorn.NewDriver(opts), nil
	default:
		return nil, fmt.Errorf("unknown device driver %q (use sim or unicorn)", d.Driver)
	}
}

// channelLabels returns the export labels for the configured driver.
func channelLabels(cfg *config.Config) []string {
	if len(cfg.Export.ChannelLabels) > 0 {
		return cfg.Export.ChannelLabels
	}
	if cfg.Device.Driver == "unicorn" {
		return unicorn.ChannelNames()
	}
	return nil
}

// expectedChannels is the channel count the configured driver reports once
// acquisition starts.
func expectedChannels(cfg *config.Config) int {
	if cfg.Device.Driver == "unicorn" {
		return unicorn.ChannelCount
	}
	return cfg.Device.Sim.Channels
}

// parseFlagDuration parses a Go duration given to the named flag.
func parseFlagDuration(flag, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid --%s value %q: %w", flag, value, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid --%s value %q: must not be negative", flag, value)
	}
	return d, nil
}

// parseDuration parses a human-friendly duration string like "7d", "24h", "2w".
func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("invalid duration: empty string")
	}

	if len(s) < 2 {
		return 0, fmt.Errorf("invalid duration: %q", s)
	}

	suffix := s[len(s)-1]
	numStr := s[:len(s)-1]

	n, err := strconv.Atoi(numStr)
	if err != nil {
		return 0, fmt.Errorf("invalid duration: %q", s)
	}

	switch suffix {
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	case 'h':
		return time.Duration(n) * time.Hour, nil
	case 'w':
		return time.Duration(n) * 7 * 24 * time.Hour, nil
	case 'm':
		return time.Duration(n) * time.Minute, nil
	default:
		return 0, fmt.Errorf("invalid duration: %q (use d, h, w, or m suffix)", s)
	}
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// formatBytes formats a byte count into a human-readable string.
func formatBytes(b int64) string {
	switch {
	case b >= 1<<30:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(1<<30))
	case b >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(b)/float64(1<<10))
	default:
		return fmt.Sprintf("%d B", b)
	}
}

// formatNumber formats an int64 with comma separators.
func formatNumber(n int64) string {
	s := strconv.FormatInt(n, 10)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	if len(s) <= 3 {
		if neg {
			return "-" + s
		}
		return s
	}

	var result strings.Builder
	if neg {
		result.WriteString("-")
	}
	remainder := len(s) % 3
	if remainder > 0 {
		result.WriteString(s[:remainder])
	}
	for i := remainder; i < len(s); i += 3 {
		if i > 0 {
			result.WriteString(",")
		}
		result.WriteString(s[i : i+3])
	}
	return result.String()
}

// shortID truncates a session UUID for table output.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
