package models

import "time"

// Timeseries is the serialized form of a multi-column series:
//
//	{"data": {"col": [..]}, "index": ["2024-01-01T00:00:00Z", ..]}
type Timeseries struct {
	Data  map[string][]float64 `json:"data"`
	Index []time.Time          `json:"index"`
}

// Len returns the number of observations.
func (t *Timeseries) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Index)
}

// Clone returns a deep copy.
func (t *Timeseries) Clone() *Timeseries {
	if t == nil {
		return nil
	}
	c := &Timeseries{
		Data:  make(map[string][]float64, len(t.Data)),
		Index: append([]time.Time(nil), t.Index...),
	}
	for k, v := range t.Data {
		c.Data[k] = append([]float64(nil), v...)
	}
	return c
}
