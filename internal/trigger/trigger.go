// Package trigger binds one effect's scripted behavior to external events
// and to the tick scheduler.
//
// A Trigger owns an effect's EventExecutors (one per listener) and Tickers.
// Enable registers them with the dispatcher and scheduler; Dispose removes
// exactly what Enable registered.
package trigger

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/roach88/glyph/internal/dispatch"
	"github.com/roach88/glyph/internal/host"
	"github.com/roach88/glyph/internal/ir"
	"github.com/roach88/glyph/internal/limit"
	"github.com/roach88/glyph/internal/script"
	"github.com/roach88/glyph/internal/tick"
	"github.com/roach88/glyph/internal/variable"
)

// Reserved variable names bound for every script invocation. They shadow
// effect variables of the same name.
const (
	VarActor  = "actor"
	VarItem   = "item"
	VarLevel  = "level"
	VarSlot   = "slot"
	VarEffect = "effect"
	VarEvent  = "event"
	VarToken  = "token"
	VarPhase  = "phase"

	// VarEventName holds the external event type name; VarEvent holds the
	// event instance itself.
	VarEventName = "event_name"
)

// Env holds the collaborators a Trigger runs against.
type Env struct {
	Variables  *variable.Set
	Limits     *limit.Set
	Scripts    *script.Registry
	Dispatcher *dispatch.Dispatcher
	Scheduler  *tick.Scheduler
}

// Trigger is the runtime side of one effect's trigger block.
//
// Thread-safety: Enable and Dispose are serialized by a mutex. Listener
// and ticker callbacks read immutable state only.
type Trigger struct {
	mu       sync.Mutex
	effectID string
	spec     ir.TriggerSpec
	env      Env
	logger   *slog.Logger

	executors []*EventExecutor
	tickers   map[string]*Ticker
	order     []string
	enabled   bool
}

// Option configures a Trigger.
type Option func(*Trigger)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Trigger) {
		t.logger = l
	}
}

// New builds a trigger for effectID. Nothing is registered until Enable.
func New(effectID string, spec ir.TriggerSpec, env Env, opts ...Option) *Trigger {
	t := &Trigger{
		effectID: effectID,
		spec:     spec,
		env:      env,
		tickers:  make(map[string]*Ticker),
	}
	for _, opt := range opts {
		opt(t)
	}

	for _, ls := range spec.Listeners {
		t.executors = append(t.executors, &EventExecutor{trigger: t, spec: ls})
	}
	for _, ts := range spec.Tickers {
		if _, dup := t.tickers[ts.ID]; dup {
			t.log().Warn("duplicate ticker skipped", "effect", effectID, "ticker", ts.ID)
			continue
		}
		t.tickers[ts.ID] = &Ticker{trigger: t, spec: ts}
		t.order = append(t.order, ts.ID)
	}
	return t
}

func (t *Trigger) log() *slog.Logger {
	if t.logger != nil {
		return t.logger
	}
	return slog.Default()
}

// EffectID returns the owning effect's id.
func (t *Trigger) EffectID() string {
	return t.effectID
}

// TickPriority returns the effect's tick priority.
func (t *Trigger) TickPriority() int {
	return t.spec.TickPriority
}

// ListenerName is the dispatcher-wide name of one of the effect's listeners.
func ListenerName(effectID, listener string) string {
	return effectID + ":" + listener
}

// Listeners returns the dispatcher-wide names of the effect's listeners.
func (t *Trigger) Listeners() []string {
	out := make([]string, len(t.executors))
	for i, ex := range t.executors {
		out[i] = ListenerName(t.effectID, ex.spec.Name)
	}
	return out
}

// Ticker returns the ticker with id.
func (t *Trigger) Ticker(id string) (*Ticker, bool) {
	tk, ok := t.tickers[id]
	return tk, ok
}

// Tickers returns ticker ids in declaration order.
func (t *Trigger) Tickers() []string {
	return append([]string(nil), t.order...)
}

// Enable preheats every script, registers listeners and schedules tickers.
// Failures are logged and skip only the offending listener or ticker. It
// returns how many listeners and tickers were bound.
func (t *Trigger) Enable() (listeners, tickers int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.enabled {
		t.disposeLocked()
	}
	t.enabled = true

	for _, ex := range t.executors {
		t.preheat(ex.spec.ScriptType, ex.spec.Handle, "listener", ex.spec.Name)
		if t.env.Dispatcher == nil {
			continue
		}
		name := ListenerName(t.effectID, ex.spec.Name)
		if err := t.env.Dispatcher.RegisterListener(name, ex.Mapping(), ex.Handle); err != nil {
			t.log().Warn("listener not bound", "effect", t.effectID, "listener", ex.spec.Name, "error", err)
			continue
		}
		listeners++
	}

	for _, id := range t.order {
		tk := t.tickers[id]
		t.preheat(tk.spec.ScriptType, tk.spec.Pre, "ticker", id)
		t.preheat(tk.spec.ScriptType, tk.spec.Handle, "ticker", id)
		t.preheat(tk.spec.ScriptType, tk.spec.Post, "ticker", id)
		if t.env.Scheduler == nil {
			continue
		}
		if err := t.env.Scheduler.Schedule(t.effectID, id, tk.spec.Interval, t.spec.TickPriority); err != nil {
			t.log().Warn("ticker not scheduled", "effect", t.effectID, "ticker", id, "error", err)
			continue
		}
		tickers++
	}

	t.log().Debug("trigger enabled", "effect", t.effectID, "listeners", listeners, "tickers", tickers)
	return listeners, tickers
}

func (t *Trigger) preheat(scriptType, source, kind, name string) {
	if t.env.Scripts == nil {
		return
	}
	if err := t.env.Scripts.Preheat(scriptType, source); err != nil {
		t.log().Warn("script preheat failed", "effect", t.effectID, kind, name, "error", err)
	}
}

// Dispose destroys the effect's listeners and removes its routine entries.
// It is safe to call more than once.
func (t *Trigger) Dispose() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.disposeLocked()
}

func (t *Trigger) disposeLocked() {
	if !t.enabled {
		return
	}
	t.enabled = false
	if t.env.Dispatcher != nil {
		for _, ex := range t.executors {
			t.env.Dispatcher.DestroyListener(ListenerName(t.effectID, ex.spec.Name))
		}
	}
	if t.env.Scheduler != nil {
		t.env.Scheduler.Unschedule(t.effectID)
	}
}

// level returns the effect's level on item, 0 when absent.
func (t *Trigger) level(item host.Item) int {
	if item == nil {
		return 0
	}
	return item.Effects()[t.effectID]
}

// usable reports whether the effect may act through item in slot.
func (t *Trigger) usable(actor host.Actor, item host.Item, slot ir.Slot) bool {
	if t.level(item) <= 0 {
		return false
	}
	if t.env.Limits == nil {
		return true
	}
	res := t.env.Limits.Check(limit.Use, item, actor, slot, slot == "")
	if res.IsFailure() {
		t.log().Debug("trigger suppressed", "effect", t.effectID, "actor", actor.ID(), "slot", string(slot), "reason", res.Reason)
		return false
	}
	return true
}

// vars builds the variable context of one invocation.
func (t *Trigger) vars(actor host.Actor, item host.Item, slot ir.Slot) map[string]any {
	level := t.level(item)
	var out map[string]any
	if t.env.Variables != nil {
		out = t.env.Variables.EvaluateAll(level, item, false)
	} else {
		out = make(map[string]any)
	}
	out[VarEffect] = t.effectID
	out[VarActor] = actor
	out[VarLevel] = level
	if item != nil {
		out[VarItem] = item
	}
	if slot != "" {
		out[VarSlot] = string(slot)
	}
	return out
}

// invoke fires source and continues. Failures already known are logged.
func (t *Trigger) invoke(ctx context.Context, scriptType, source string, actor host.Actor, vars map[string]any, attrs ...any) {
	if t.env.Scripts == nil {
		return
	}
	fut := t.env.Scripts.Invoke(ctx, scriptType, source, actor, vars)
	select {
	case <-fut.Done():
		if _, err := fut.Wait(ctx); err != nil {
			t.log().Warn("trigger script failed", append([]any{"effect", t.effectID, "error", err}, attrs...)...)
		}
	default:
	}
}

// Describe returns a stable summary of the trigger's bindings.
func (t *Trigger) Describe() []string {
	out := make([]string, 0, len(t.executors)+len(t.order))
	for _, ex := range t.executors {
		out = append(out, "listener "+ex.spec.Name+" on "+ex.spec.Event+" ("+ex.spec.Priority.String()+")")
	}
	for _, id := range t.order {
		out = append(out, "ticker "+id)
	}
	sort.Strings(out)
	return out
}
