package sessionlog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// ErrClosed is returned when writing to a closed session log.
var ErrClosed = errors.New("session log closed")

// Writer appends acquisition rows to a session CSV file. Each row is flushed
// to the file before WriteRow returns; rows are never rewritten.
type Writer struct {
	path   string
	f      *os.File
	csv    *csv.Writer
	closed bool
}

// Open creates any missing parent directories and opens path for appending.
func Open(path string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open session log: %w", err)
	}

	return &Writer{path: path, f: f, csv: csv.NewWriter(f)}, nil
}

// Path returns the file the writer appends to.
func (w *Writer) Path() string { return w.path }

// WriteRow appends one record followed by a newline.
func (w *Writer) WriteRow(fields []string) error {
	if w.closed {
		return ErrClosed
	}
	if err := w.csv.Write(fields); err != nil {
		return fmt.Errorf("write row: %w", err)
	}
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		return fmt.Errorf("flush row: %w", err)
	}
	return nil
}

// Close flushes and releases the file. Only the first call has any effect.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	w.csv.Flush()
	flushErr := w.csv.Error()
	syncErr := w.f.Sync()
	closeErr := w.f.Close()

	return errors.Join(flushErr, syncErr, closeErr)
}

// UniquePath derives the session file path <dir>/<prefix><epoch>.csv for the
// start time t. If a file for that second already exists, a -N suffix is added.
func UniquePath(dir, prefix string, t time.Time) (string, error) {
	base := prefix + strconv.FormatInt(t.Unix(), 10)
	candidate := filepath.Join(dir, base+".csv")

	for n := 1; n < 1000; n++ {
		_, err := os.Stat(candidate)
		if errors.Is(err, os.ErrNotExist) {
			return candidate, nil
		}
		if err != nil {
			return "", fmt.Errorf("stat %s: %w", candidate, err)
		}
		candidate = filepath.Join(dir, fmt.Sprintf("%s-%d.csv", base, n))
	}
	return "", fmt.Errorf("no free session file name for %s in %s", base, dir)
}
