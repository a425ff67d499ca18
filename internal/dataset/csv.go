package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ErrEmptyDataset is returned for a file with a header and no rows.
var ErrEmptyDataset = errors.New("dataset has no rows")

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// Loader reads a dataset file into a frame.
type Loader interface {
	Load(ctx context.Context, path string) (*Frame, error)
}

// FileLoader reads CSV files from local storage. Relative paths are resolved
// against Root.
type FileLoader struct {
	Root string
}

// Load opens and parses the CSV at path.
func (l *FileLoader) Load(ctx context.Context, path string) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !filepath.IsAbs(path) && l.Root != "" {
		path = filepath.Join(l.Root, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()

	return ReadCSV(f)
}

// ReadCSV parses a CSV whose first column is the timestamp and whose
// remaining columns are numeric. Empty, non numeric and non finite cells
// are errors.
func ReadCSV(r io.Reader) (*Frame, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyDataset
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if len(header) < 2 {
		return nil, fmt.Errorf("dataset needs a timestamp column and at least one value column, got %d columns", len(header))
	}

	columns := make([]string, 0, len(header)-1)
	for _, name := range header[1:] {
		columns = append(columns, strings.TrimSpace(name))
	}

	var index []time.Time
	values := make(map[string][]float64, len(columns))

	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read line %d: %w", line, err)
		}

		ts, err := ParseTimestamp(record[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		index = append(index, ts)

		for i, col := range columns {
			cell := strings.TrimSpace(record[i+1])
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("line %d column %s: invalid value %q", line, col, cell)
			}
			values[col] = append(values[col], v)
		}
	}

	if len(index) == 0 {
		return nil, ErrEmptyDataset
	}

	return NewFrame(index, columns, values)
}

// ParseTimestamp accepts RFC 3339, common date time layouts and unix seconds.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}
