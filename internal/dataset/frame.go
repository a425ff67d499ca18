// Package dataset loads time series files into in-memory frames.
package dataset

import (
	"errors"
	"fmt"
	"time"

	"github.com/wolfeidau/tsrunner/internal/models"
)

// ErrColumnNotFound is returned when a selected column is not in the frame.
var ErrColumnNotFound = errors.New("column not found")

// Frame is a time indexed table of float columns. Frames are immutable once
// loaded; Slice and Select share the backing arrays.
type Frame struct {
	index   []time.Time
	columns []string
	values  map[string][]float64
}

// NewFrame builds a frame. Every column must have len(index) values.
func NewFrame(index []time.Time, columns []string, values map[string][]float64) (*Frame, error) {
	for _, col := range columns {
		v, ok := values[col]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrColumnNotFound, col)
		}
		if len(v) != len(index) {
			return nil, fmt.Errorf("column %s has %d values, index has %d", col, len(v), len(index))
		}
	}
	return &Frame{index: index, columns: columns, values: values}, nil
}

// Len returns the number of rows.
func (f *Frame) Len() int { return len(f.index) }

// Index returns the timestamps.
func (f *Frame) Index() []time.Time { return f.index }

// Columns returns the column names in file order.
func (f *Frame) Columns() []string { return f.columns }

// Has reports whether col exists.
func (f *Frame) Has(col string) bool {
	_, ok := f.values[col]
	return ok
}

// Column returns the values of col, or nil.
func (f *Frame) Column(col string) []float64 { return f.values[col] }

// Slice returns rows [from, to).
func (f *Frame) Slice(from, to int) *Frame {
	from = max(0, min(from, f.Len()))
	to = max(from, min(to, f.Len()))

	values := make(map[string][]float64, len(f.values))
	for col, v := range f.values {
		values[col] = v[from:to]
	}
	return &Frame{index: f.index[from:to], columns: f.columns, values: values}
}

// Split cuts the frame at the train percentage: the first pct*len/100 rows
// train, the rest test.
func (f *Frame) Split(pct int) (train, test *Frame) {
	n := pct * f.Len() / 100
	return f.Slice(0, n), f.Slice(n, f.Len())
}

// Select returns a frame restricted to cols, in the given order.
func (f *Frame) Select(cols ...string) (*Frame, error) {
	values := make(map[string][]float64, len(cols))
	for _, col := range cols {
		v, ok := f.values[col]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrColumnNotFound, col)
		}
		values[col] = v
	}
	return &Frame{index: f.index, columns: cols, values: values}, nil
}

// Timeseries copies the selected columns (all when none are given) into the
// serialized result form.
func (f *Frame) Timeseries(cols ...string) *models.Timeseries {
	if len(cols) == 0 {
		cols = f.columns
	}
	ts := &models.Timeseries{
		Data:  make(map[string][]float64, len(cols)),
		Index: append([]time.Time(nil), f.index...),
	}
	for _, col := range cols {
		if v, ok := f.values[col]; ok {
			ts.Data[col] = append([]float64(nil), v...)
		}
	}
	return ts
}
