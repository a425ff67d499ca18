package pipeline

import "sync"

// Sink receives progress. A nil Sink discards it.
type Sink func(Stage)

// tracker forwards stages to a sink, keeping them in table order. A stage at
// or behind the last forwarded one, or unknown to the table, is dropped, so
// sub-progress from the engine can never move a run backwards.
type tracker struct {
	mu     sync.Mutex
	stages []Stage
	pos    int
	sink   Sink
}

func newTracker(kind Kind, sink Sink) *tracker {
	return &tracker{stages: stageTables[kind], pos: -1, sink: sink}
}

// advance moves to the named stage and reports whether it was forwarded.
func (t *tracker) advance(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := -1
	for i, s := range t.stages {
		if s.Name == name {
			idx = i
			break
		}
	}
	if idx <= t.pos {
		return false
	}
	if t.pos >= 0 && t.stages[idx].Percent < t.stages[t.pos].Percent {
		return false
	}

	t.pos = idx
	if t.sink != nil {
		t.sink(t.stages[idx])
	}
	return true
}

// current returns the last forwarded stage.
func (t *tracker) current() (Stage, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pos < 0 {
		return Stage{}, false
	}
	return t.stages[t.pos], true
}
