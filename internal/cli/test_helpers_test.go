package cli

import (
	"bytes"
	"context"
	"database/sql"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/eyespy-lab/stimlog/internal/config"
	"github.com/eyespy-lab/stimlog/internal/storage"
)

// captureOutput captures stdout during fn execution and returns it as a string.
func captureOutput(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w

	fn()

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)
	return buf.String()
}

// testConfig returns a config wired to temp directories: two stimulus classes
// with two images each, a fast 4-channel sim device, and an index database.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.Stimuli.Classes = []config.ClassConfig{
		{Name: "real", Label: "1", Dir: filepath.Join(root, "real"), Extensions: []string{".jpg"}},
		{Name: "ai", Label: "2", Dir: filepath.Join(root, "ai"), Extensions: []string{".jpg"}},
	}
	for _, cls := range cfg.Stimuli.Classes {
		require.NoError(t, os.MkdirAll(cls.Dir, 0755))
		for _, name := range []string{"a.jpg", "b.jpg"} {
			require.NoError(t, os.WriteFile(filepath.Join(cls.Dir, name), []byte("jpg"), 0644))
		}
	}

	cfg.Session.DisplayDuration = config.Duration(20 * time.Millisecond)
	cfg.Session.InterTrialGap = config.Duration(5 * time.Millisecond)
	cfg.Session.Baseline = config.Duration(10 * time.Millisecond)
	cfg.Session.Repetitions = 2
	cfg.Session.Seed = 42

	cfg.Device.Driver = "sim"
	cfg.Device.SamplingRate = 1000
	cfg.Device.Sim.Channels = 4

	cfg.Output.Dir = filepath.Join(root, "data")
	cfg.Output.Prefix = "ParticipantT"
	cfg.Presentation.WaitForKey = false
	cfg.Storage.Path = filepath.Join(root, "index")
	cfg.Logging.Level = "error"
	return cfg
}

// writeConfigFile saves cfg as YAML and returns its path.
func writeConfigFile(t *testing.T, cfg *config.Config) string {
	t.Helper()
	data, err := yaml.Marshal(cfg)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

// setupStore creates a migrated in-memory session index.
func setupStore(t *testing.T) (*storage.SQLiteStore, *sql.DB) {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:?_foreign_keys=on")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	runner := storage.NewMigrationRunner(db)
	require.NoError(t, runner.Run())

	store, err := storage.NewSQLiteStore(db)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store, db
}

// seedSession records a finished session with n completed trials.
func seedSession(t *testing.T, store storage.Store, participant, status string, started time.Time, trials int) *storage.Session {
	t.Helper()
	ctx := context.Background()

	sess := &storage.Session{
		Participant:     participant,
		LogPath:         filepath.Join(t.TempDir(), participant+".csv"),
		Driver:          "sim",
		DeviceID:        "SIM-0001",
		Channels:        4,
		FrameLength:     1,
		Repetitions:     1,
		Seed:            7,
		DisplayDuration: time.Second,
		InterTrialGap:   500 * time.Millisecond,
		StartedAt:       started,
	}
	require.NoError(t, store.CreateSession(ctx, sess))
	require.NoError(t, store.RecordStimuli(ctx, sess.ID, []storage.StimulusEntry{
		{Path: "real/a.jpg", Class: "real", Condition: "1"},
		{Path: "ai/b.jpg", Class: "ai", Condition: "2"},
	}))
	for i := 0; i < trials; i++ {
		require.NoError(t, store.RecordTrial(ctx, &storage.Trial{
			SessionID: sess.ID,
			Seq:       i,
			Index:     i,
			Stimulus:  "real/a.jpg",
			Condition: "1",
			Onset:     time.Duration(i) * 1500 * time.Millisecond,
			Offset:    time.Duration(i)*1500*time.Millisecond + time.Second,
			Rows:      250,
			Completed: true,
		}))
	}
	require.NoError(t, store.FinishSession(ctx, sess.ID, storage.SessionResult{
		Status:       status,
		EndedAt:      started.Add(time.Minute),
		IdleRows:     100,
		StimulusRows: int64(250 * trials),
		Trials:       int64(trials),
	}))
	return sess
}
