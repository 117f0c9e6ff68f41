package testutil

import (
	"context"
	"maps"
	"sync"

	"github.com/roach88/glyph/internal/host"
	"github.com/roach88/glyph/internal/script"
)

// Call is one recorded script invocation.
type Call struct {
	Source string
	Actor  string
	Vars   map[string]any
}

// Recorder is a script.Executor that records every invocation and returns a
// completed future. Optional results are looked up by source.
//
// Thread-safety: Recorder is safe for concurrent use.
type Recorder struct {
	mu       sync.Mutex
	calls    []Call
	results  map[string]any
	failures map[string]error
	preheats []string
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		results:  make(map[string]any),
		failures: make(map[string]error),
	}
}

// Return makes invocations of source resolve to value.
func (r *Recorder) Return(source string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results[source] = value
}

// FailWith makes invocations and preheats of source fail with err.
func (r *Recorder) FailWith(source string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[source] = err
}

func (r *Recorder) Invoke(_ context.Context, source string, actor host.Actor, vars map[string]any) *script.Future {
	r.mu.Lock()
	defer r.mu.Unlock()

	call := Call{Source: source, Vars: maps.Clone(vars)}
	if actor != nil {
		call.Actor = actor.ID()
	}
	r.calls = append(r.calls, call)

	if err := r.failures[source]; err != nil {
		return script.Completed(nil, err)
	}
	return script.Completed(r.results[source], nil)
}

func (r *Recorder) Preheat(source string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.preheats = append(r.preheats, source)
	return r.failures[source]
}

// Calls returns every recorded invocation in order.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Sources returns the source of every recorded invocation in order.
func (r *Recorder) Sources() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calls))
	for i, c := range r.calls {
		out[i] = c.Source
	}
	return out
}

// Count returns how many times source was invoked.
func (r *Recorder) Count(source string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c.Source == source {
			n++
		}
	}
	return n
}

// Preheated returns every preheated source in order.
func (r *Recorder) Preheated() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.preheats...)
}

// Reset forgets recorded calls.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
	r.preheats = nil
}

var _ script.Executor = (*Recorder)(nil)
