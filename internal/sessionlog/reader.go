package sessionlog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
)

// ReadAll returns every record of a session file. Records may have differing
// widths.
func ReadAll(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open session log: %w", err)
	}
	defer f.Close()

	return readRecords(f)
}

// Scan calls fn for each record of the session file in order. It stops at the
// first error returned by fn.
func Scan(path string, fn func(line int, fields []string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open session log: %w", err)
	}
	defer f.Close()

	r := newReader(f)
	for line := 1; ; line++ {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read line %d: %w", line, err)
		}
		if err := fn(line, rec); err != nil {
			return err
		}
	}
}

func readRecords(r io.Reader) ([][]string, error) {
	records, err := newReader(r).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read session log: %w", err)
	}
	return records, nil
}

func newReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	return cr
}
