package cli

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/eyespy-lab/stimlog/internal/config"
	"github.com/eyespy-lab/stimlog/internal/storage"
)

// statusJSON is the JSON output structure for the status command.
type statusJSON struct {
	Version           string            `json:"version"`
	DatabasePath      string            `json:"database_path"`
	DatabaseSizeBytes int64             `json:"database_size_bytes"`
	SchemaVersion     int               `json:"schema_version"`
	TotalSessions     int64             `json:"total_sessions"`
	TotalTrials       int64             `json:"total_trials"`
	TotalRows         int64             `json:"total_rows"`
	OldestSession     string            `json:"oldest_session,omitempty"`
	NewestSession     string            `json:"newest_session,omitempty"`
	ByStatus          []statusCountJSON `json:"by_status"`
	Driver            string            `json:"driver"`
	OutputDir         string            `json:"output_dir"`
	Presets           []string          `json:"presets"`
	MetricsEnabled    bool              `json:"metrics_enabled"`
}

type statusCountJSON struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

// Execute implements the go-flags Commander interface for StatusCommand.
func (c *StatusCommand) Execute(args []string) error {
	cfg, err := loadConfig(c.globals)
	if err != nil {
		return err
	}
	store, db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	defer store.Close()

	return c.executeWithStore(cfg, store, db)
}

// executeWithStore runs status against a provided store and db (for testing).
func (c *StatusCommand) executeWithStore(cfg *config.Config, store *storage.SQLiteStore, db *sql.DB) error {
	ctx := context.Background()

	stats, err := store.GetStats(ctx)
	if err != nil {
		return fmt.Errorf("get stats: %w", err)
	}

	dbPath, err := cfg.DatabasePath()
	if err != nil {
		return err
	}
	stats.DatabaseSizeBytes = getDatabaseSize(db, dbPath)

	schema, err := storage.NewMigrationRunner(db).Version()
	if err != nil {
		return err
	}

	if c.globals != nil && c.globals.JSON {
		return c.printStatusJSON(cfg, stats, dbPath, schema)
	}
	return c.printStatusHuman(cfg, stats, dbPath, schema)
}

func (c *StatusCommand) printStatusHuman(cfg *config.Config, stats *storage.Stats, dbPath string, schema int) error {
	fmt.Println("stimlog Status")
	fmt.Println("==============")
	fmt.Printf("Version:       %s\n", c.version)
	fmt.Printf("Database:      %s (%s, schema v%d)\n", dbPath, formatBytes(stats.DatabaseSizeBytes), schema)
	fmt.Printf("Sessions:      %s\n", formatNumber(stats.TotalSessions))
	fmt.Printf("Trials:        %s\n", formatNumber(stats.TotalTrials))
	fmt.Printf("Rows:          %s\n", formatNumber(stats.TotalRows))

	if stats.TotalSessions > 0 {
		fmt.Printf("Oldest:        %s\n", stats.OldestSession.Local().Format("2006-01-02"))
		fmt.Printf("Newest:        %s\n", stats.NewestSession.Local().Format("2006-01-02"))
	}

	if len(stats.ByStatus) > 0 {
		fmt.Println()
		fmt.Println("By Status:")
		for _, s := range stats.ByStatus {
			fmt.Printf("  %-20s %s\n", s.Status, formatNumber(s.Count))
		}
	}

	fmt.Println()
	fmt.Printf("Driver:        %s (device %d)\n", cfg.Device.Driver, cfg.Device.Index)
	fmt.Printf("Output:        %s\n", cfg.Output.Dir)
	fmt.Printf("Classes:       %d\n", len(cfg.Stimuli.Classes))
	if cfg.Metrics.Enabled {
		fmt.Printf("Metrics:       %s\n", cfg.Metrics.Addr)
	} else {
		fmt.Println("Metrics:       disabled")
	}

	return nil
}

func (c *StatusCommand) printStatusJSON(cfg *config.Config, stats *storage.Stats, dbPath string, schema int) error {
	out := statusJSON{
		Version:           c.version,
		DatabasePath:      dbPath,
		DatabaseSizeBytes: stats.DatabaseSizeBytes,
		SchemaVersion:     schema,
		TotalSessions:     stats.TotalSessions,
		TotalTrials:       stats.TotalTrials,
		TotalRows:         stats.TotalRows,
		ByStatus:          make([]statusCountJSON, len(stats.ByStatus)),
		Driver:            cfg.Device.Driver,
		OutputDir:         cfg.Output.Dir,
		Presets:           config.PresetNames(),
		MetricsEnabled:    cfg.Metrics.Enabled,
	}

	if stats.TotalSessions > 0 {
		out.OldestSession = stats.OldestSession.UTC().Format(time.RFC3339)
		out.NewestSession = stats.NewestSession.UTC().Format(time.RFC3339)
	}

	for i, s := range stats.ByStatus {
		out.ByStatus[i] = statusCountJSON{Status: s.Status, Count: s.Count}
	}

	return printJSON(out)
}

// getDatabaseSize returns the database file size in bytes.
// For on-disk databases, it uses os.Stat. For in-memory databases,
// it queries page_count * page_size.
func getDatabaseSize(db *sql.DB, dbPath string) int64 {
	if info, err := os.Stat(dbPath); err == nil {
		return info.Size()
	}

	var pageCount, pageSize int64
	if err := db.QueryRow("PRAGMA page_count").Scan(&pageCount); err != nil {
		return 0
	}
	if err := db.QueryRow("PRAGMA page_size").Scan(&pageSize); err != nil {
		return 0
	}
	return pageCount * pageSize
}
