// Package script declares the pluggable script executor the engine delegates
// all scripted effect logic to, a per-script-type registry, and the default
// Lua implementation.
//
// Dispatch and the tick scheduler fire scripts and continue; they never wait
// on the returned Future. Callers that need the result (tests, the CLI) may.
package script

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/roach88/glyph/internal/host"
)

// DefaultType is the script type used when configuration leaves it empty.
const DefaultType = "lua"

// Executor runs script source against an actor with bound variables.
type Executor interface {
	// Invoke starts the script. It never blocks on completion itself unless
	// the implementation is synchronous; failures are reported through the
	// Future.
	Invoke(ctx context.Context, source string, actor host.Actor, vars map[string]any) *Future

	// Preheat compiles source without running it.
	Preheat(source string) error
}

// Future is the eventual result of one invocation.
type Future struct {
	done  chan struct{}
	once  sync.Once
	value any
	err   error
}

// NewFuture creates a pending future.
func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Completed creates an already-resolved future.
func Completed(value any, err error) *Future {
	f := NewFuture()
	f.Complete(value, err)
	return f
}

// Complete resolves the future. Only the first call has an effect.
func (f *Future) Complete(value any, err error) {
	f.once.Do(func() {
		f.value = value
		f.err = err
		close(f.done)
	})
}

// Done is closed once the future resolves.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the future resolves or ctx is cancelled.
func (f *Future) Wait(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Registry maps script types to executors.
//
// Thread-safety: Registry is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	executors map[string]Executor
	logger    *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{executors: make(map[string]Executor), logger: logger}
}

func (r *Registry) log() *slog.Logger {
	if r.logger != nil {
		return r.logger
	}
	return slog.Default()
}

// Register binds an executor to a script type, replacing any previous one.
func (r *Registry) Register(scriptType string, exec Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[normalize(scriptType)] = exec
}

// Executor returns the executor bound to scriptType.
func (r *Registry) Executor(scriptType string) (Executor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exec, ok := r.executors[normalize(scriptType)]
	return exec, ok
}

// Types returns every registered script type, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.executors))
	for t := range r.executors {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Invoke runs source through the executor for scriptType. Empty source
// resolves immediately to nil. An unknown type resolves to an error.
func (r *Registry) Invoke(ctx context.Context, scriptType, source string, actor host.Actor, vars map[string]any) *Future {
	if strings.TrimSpace(source) == "" {
		return Completed(nil, nil)
	}
	exec, ok := r.Executor(scriptType)
	if !ok {
		err := fmt.Errorf("unknown script type %q", scriptType)
		r.log().Error("script invocation failed", "script_type", scriptType, "error", err)
		return Completed(nil, err)
	}
	return exec.Invoke(ctx, source, actor, vars)
}

// Preheat compiles source with the executor for scriptType.
func (r *Registry) Preheat(scriptType, source string) error {
	if strings.TrimSpace(source) == "" {
		return nil
	}
	exec, ok := r.Executor(scriptType)
	if !ok {
		return fmt.Errorf("unknown script type %q", scriptType)
	}
	return exec.Preheat(source)
}

func normalize(scriptType string) string {
	t := strings.ToLower(strings.TrimSpace(scriptType))
	if t == "" {
		return DefaultType
	}
	return t
}
