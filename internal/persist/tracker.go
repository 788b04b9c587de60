// Package persist runs asynchronous note writes and tracks a clean, pending,
// or failed status per note so callers can surface unsaved changes.
package persist

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Status is the persistence state of one entity.
type Status string

const (
	StatusClean   Status = "clean"
	StatusPending Status = "pending"
	StatusFailed  Status = "failed"
)

// State describes the latest known persistence outcome of an entity.
type State struct {
	Key       string    `json:"key"`
	Status    Status    `json:"status"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

type entry struct {
	write sync.Mutex // serializes writes of one key
	gen   uint64
	state State
}

// Tracker schedules writes. Writes to the same key run one at a time and a
// write superseded before it starts is skipped, so the last write wins.
type Tracker struct {
	logger *slog.Logger

	mu       sync.Mutex
	entries  map[string]*entry
	inflight int
	idle     []chan struct{}
	onFail   func(key string, err error)
}

// NewTracker returns an empty tracker.
func NewTracker(logger *slog.Logger) *Tracker {
	return &Tracker{logger: logger, entries: make(map[string]*entry)}
}

// OnFailure registers a callback invoked after a write fails.
func (t *Tracker) OnFailure(fn func(key string, err error)) {
	t.mu.Lock()
	t.onFail = fn
	t.mu.Unlock()
}

// Go marks key pending and runs write in the background.
func (t *Tracker) Go(key string, write func() error) {
	t.mu.Lock()
	e, ok := t.entries[key]
	if !ok {
		e = &entry{}
		t.entries[key] = e
	}
	e.gen++
	gen := e.gen
	e.state = State{Key: key, Status: StatusPending, UpdatedAt: time.Now()}
	t.inflight++
	t.mu.Unlock()

	go func() {
		defer t.done()

		e.write.Lock()
		defer e.write.Unlock()

		t.mu.Lock()
		superseded := gen < e.gen
		t.mu.Unlock()
		if superseded {
			return
		}

		err := write()

		t.mu.Lock()
		if gen == e.gen {
			e.state = State{Key: key, Status: StatusClean, UpdatedAt: time.Now()}
			if err != nil {
				e.state.Status = StatusFailed
				e.state.Error = err.Error()
			}
		}
		onFail := t.onFail
		t.mu.Unlock()

		if err != nil {
			t.logger.Error("persist failed", "key", key, "error", err)
			if onFail != nil {
				onFail(key, err)
			}
		}
	}()
}

func (t *Tracker) done() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inflight--
	if t.inflight == 0 {
		for _, ch := range t.idle {
			close(ch)
		}
		t.idle = nil
	}
}

// Status returns the state of key. Unknown keys are clean.
func (t *Tracker) Status(key string) State {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[key]; ok {
		return e.state
	}
	return State{Key: key, Status: StatusClean}
}

// Snapshot returns every tracked state sorted by key.
func (t *Tracker) Snapshot() []State {
	t.mu.Lock()
	out := make([]State, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e.state)
	}
	t.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Flush blocks until no write is in flight or ctx ends.
func (t *Tracker) Flush(ctx context.Context) error {
	t.mu.Lock()
	if t.inflight == 0 {
		t.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	t.idle = append(t.idle, ch)
	t.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
