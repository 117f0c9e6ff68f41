package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/glyph/internal/compiler"
	"github.com/roach88/glyph/internal/dispatch"
	"github.com/roach88/glyph/internal/effect"
	"github.com/roach88/glyph/internal/host"
	"github.com/roach88/glyph/internal/ir"
	"github.com/roach88/glyph/internal/limit"
	"github.com/roach88/glyph/internal/script"
	"github.com/roach88/glyph/internal/store"
	"github.com/roach88/glyph/internal/testutil"
	"github.com/roach88/glyph/internal/tick"
)

// Event is the external event type the harness dispatches. Every listener
// resolves its actor paths through Actors, falling back to Actor, and its
// item path to Item.
type Event struct {
	Name      string
	Actor     host.Actor
	Actors    map[string]host.Actor
	Item      host.Item
	slot      ir.Slot
	cancelled bool
}

func (e *Event) Cancelled() bool { return e.cancelled }

func (e *Event) Slot() ir.Slot { return e.slot }

// Field exposes name, actor, item, slot and cancelled to scripts.
func (e *Event) Field(name string) (any, bool) {
	switch name {
	case "name":
		return e.Name, true
	case "actor":
		return e.Actor, e.Actor != nil
	case "item":
		return e.Item, e.Item != nil
	case "slot":
		return string(e.slot), true
	case "cancelled":
		return e.cancelled, true
	}
	return nil, false
}

// SetField accepts writes to cancelled only.
func (e *Event) SetField(name string, value any) error {
	if name != "cancelled" {
		return fmt.Errorf("field %q is read-only", name)
	}
	b, ok := value.(bool)
	if !ok {
		return fmt.Errorf("cancelled must be a boolean, got %T", value)
	}
	e.cancelled = b
	return nil
}

var _ host.Event = (*Event)(nil)

// Harness is the scenario execution engine.
// It runs scenarios with a deterministic tick counter, a fixed dispatch
// token, and a recording script executor.
type Harness struct {
	store      *store.Store
	world      *testutil.World
	recorder   *testutil.Recorder
	dispatcher *dispatch.Dispatcher
	scheduler  *tick.Scheduler
	registry   *effect.Registry
	clock      *testutil.DeterministicClock
	logger     *slog.Logger
	pace       time.Duration

	actors map[string]*testutil.Actor
	items  map[string]*testutil.Item
	seen   int // recorder calls already copied into the trace
}

// Option configures a harness run.
type Option func(*Harness)

// WithPacing spaces scheduler steps d apart in wall-clock time, the way a
// live driver would. Traces are unchanged; zero (the default) steps as fast
// as possible.
func WithPacing(d time.Duration) Option {
	return func(h *Harness) {
		h.pace = d
	}
}

// WithLogger routes engine logs to l. Logs are discarded by default.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) {
		h.logger = l
	}
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Compile and validate the catalog
// 2. Create the world, register event resolvers, load and enable the registry
// 3. Execute steps, copying recorded script calls into the trace after each
// 4. Evaluate assertions
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	catalog, err := compiler.LoadCatalog(scenario.Catalog)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	if errs := compiler.Validate(catalog); len(errs) > 0 {
		return nil, fmt.Errorf("invalid catalog: %w", errs[0])
	}
	return RunCatalog(scenario, *catalog, opts...)
}

// RunCatalog executes a scenario against an already compiled catalog. The
// scenario's catalog path is ignored.
func RunCatalog(scenario *Scenario, catalog ir.Catalog, opts ...Option) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		store:    st,
		world:    testutil.NewWorld(),
		recorder: testutil.NewRecorder(),
		clock:    testutil.NewDeterministicClock(),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		actors:   make(map[string]*testutil.Actor),
		items:    make(map[string]*testutil.Item),
	}
	for _, opt := range opts {
		opt(h)
	}

	ctx := context.Background()
	result := NewResult()

	hash, err := st.SaveCatalog(ctx, catalog)
	if err != nil {
		return nil, fmt.Errorf("failed to save catalog: %w", err)
	}
	result.CatalogHash = hash

	h.setup(scenario, catalog)
	if err := h.registry.Load(catalog); err != nil {
		return nil, fmt.Errorf("failed to load registry: %w", err)
	}
	h.registry.Enable(ctx)
	defer h.registry.Unload()

	if err := h.populate(scenario); err != nil {
		return nil, err
	}

	for i, step := range scenario.Steps {
		if err := h.execute(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
	}

	actx := &AssertionContext{Store: st, Ctx: ctx}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}

	return result, nil
}

// setup wires the engine: resolvers for every event the catalog listens
// to, the dispatcher, the scheduler and the registry.
func (h *Harness) setup(scenario *Scenario, catalog ir.Catalog) {
	rs := dispatch.NewResolvers()
	resolver := dispatch.Resolver[*Event]{
		Entity: func(e *Event, path string) (host.Actor, bool) {
			if a, ok := e.Actors[path]; ok {
				return a, true
			}
			return e.Actor, e.Actor != nil
		},
		Item: func(e *Event, _ string, _ host.Actor) (host.Item, bool) {
			return e.Item, e.Item != nil
		},
	}
	for _, spec := range catalog.Effects {
		if spec.Trigger == nil {
			continue
		}
		for _, l := range spec.Trigger.Listeners {
			if !rs.Has(l.Event) {
				dispatch.Register(rs, l.Event, resolver)
			}
		}
	}

	h.dispatcher = dispatch.New(rs,
		dispatch.WithEquipment(h.world),
		dispatch.WithTokens(testutil.NewFixedTokenGenerator(scenario.Token)),
		dispatch.WithLogger(h.logger),
	)
	h.scheduler = tick.New(h.world,
		tick.WithCounter(h.clock),
		tick.WithLogger(h.logger),
	)

	scripts := script.NewRegistry(h.logger)
	scripts.Register(script.DefaultType, h.recorder)

	h.registry = effect.NewRegistry(
		effect.WithStorage(h.store),
		effect.WithScripts(scripts),
		effect.WithDispatcher(h.dispatcher),
		effect.WithScheduler(h.scheduler),
		effect.WithoutDriver(),
		effect.WithLogger(h.logger),
	)
}

// populate creates the scenario's items and actors and equips them.
func (h *Harness) populate(scenario *Scenario) error {
	for _, spec := range scenario.Items {
		item := testutil.NewItem(spec.ID, spec.Type)
		for effectID, level := range spec.Effects {
			item.Apply(effectID, level)
		}
		h.items[spec.ID] = item
	}

	for _, spec := range scenario.Actors {
		world := spec.World
		if world == "" {
			world = "world"
		}
		actor := testutil.NewActor(spec.ID, world).Grant(spec.Permissions...)
		for k, v := range spec.Attributes {
			actor.Set(k, v)
		}
		h.actors[spec.ID] = actor
		h.world.Join(actor)

		for slotName, itemID := range spec.Equipment {
			if err := h.equip(EquipStep{Actor: spec.ID, Slot: slotName, Item: itemID}); err != nil {
				return fmt.Errorf("actor %q: %w", spec.ID, err)
			}
		}
	}
	return nil
}

func (h *Harness) actor(id string) (*testutil.Actor, error) {
	a, ok := h.actors[id]
	if !ok {
		return nil, fmt.Errorf("unknown actor %q", id)
	}
	return a, nil
}

func (h *Harness) item(id string) (*testutil.Item, error) {
	it, ok := h.items[id]
	if !ok {
		return nil, fmt.Errorf("unknown item %q", id)
	}
	return it, nil
}

// optionalActor resolves id, or returns a nil host.Actor for an empty id.
func (h *Harness) optionalActor(id string) (host.Actor, error) {
	if id == "" {
		return nil, nil
	}
	a, err := h.actor(id)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// optionalItem resolves id, or returns a nil host.Item for an empty id.
func (h *Harness) optionalItem(id string) (host.Item, error) {
	if id == "" {
		return nil, nil
	}
	it, err := h.item(id)
	if err != nil {
		return nil, err
	}
	return it, nil
}

func parseOptionalSlot(s string) (ir.Slot, error) {
	if s == "" {
		return "", nil
	}
	return ir.ParseSlot(s)
}

func (h *Harness) equip(step EquipStep) error {
	actor, err := h.actor(step.Actor)
	if err != nil {
		return err
	}
	slot, err := ir.ParseSlot(step.Slot)
	if err != nil {
		return err
	}
	item, err := h.optionalItem(step.Item)
	if err != nil {
		return err
	}
	h.world.Equip(actor, slot, item)
	return nil
}

// execute runs one step. Expectation mismatches are recorded on result;
// returned errors abort the scenario.
func (h *Harness) execute(ctx context.Context, index int, step Step, result *Result) error {
	switch {
	case step.Tick > 0:
		var pacer <-chan time.Time
		if h.pace > 0 {
			t := time.NewTicker(h.pace)
			defer t.Stop()
			pacer = t.C
		}
		for i := 0; i < step.Tick; i++ {
			if pacer != nil {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-pacer:
				}
			}
			counter := h.scheduler.Step(ctx)
			h.drain(index, counter, result)
		}
		return nil

	case step.Event != nil:
		return h.dispatch(ctx, index, *step.Event, result)

	case step.Check != nil:
		return h.check(index, *step.Check, result)

	case step.Eval != nil:
		return h.eval(index, *step.Eval, result)

	case step.Modify != nil:
		return h.modify(index, *step.Modify, result)

	case step.Equip != nil:
		return h.equip(*step.Equip)

	case step.Join != "":
		actor, err := h.actor(step.Join)
		if err != nil {
			return err
		}
		h.world.Join(actor)
		return nil

	case step.Leave != "":
		if _, err := h.actor(step.Leave); err != nil {
			return err
		}
		h.world.Leave(step.Leave)
		return nil
	}
	return fmt.Errorf("empty step")
}

func (h *Harness) dispatch(ctx context.Context, index int, step EventStep, result *Result) error {
	actor, err := h.optionalActor(step.Actor)
	if err != nil {
		return err
	}
	item, err := h.optionalItem(step.Item)
	if err != nil {
		return err
	}
	slot, err := parseOptionalSlot(step.Slot)
	if err != nil {
		return err
	}

	event := &Event{Name: step.Name, Actor: actor, Item: item, slot: slot, cancelled: step.Cancelled}
	if len(step.Actors) > 0 {
		event.Actors = make(map[string]host.Actor, len(step.Actors))
		for path, id := range step.Actors {
			a, err := h.actor(id)
			if err != nil {
				return err
			}
			event.Actors[path] = a
		}
	}

	token := h.dispatcher.Dispatch(ctx, step.Name, event)
	result.AddTrace(TraceEvent{
		Step:   index,
		Type:   EntryEvent,
		Source: step.Name,
		Actor:  step.Actor,
		Result: token,
	})
	h.drain(index, 0, result)
	return nil
}

func (h *Harness) check(index int, step CheckStep, result *Result) error {
	ctx, err := limit.ParseContext(step.Context)
	if err != nil {
		return err
	}
	item, err := h.item(step.Item)
	if err != nil {
		return err
	}
	actor, err := h.optionalActor(step.Actor)
	if err != nil {
		return err
	}
	slot, err := parseOptionalSlot(step.Slot)
	if err != nil {
		return err
	}

	res, err := h.registry.Available(ctx, step.Effect, item, actor, slot)
	if err != nil {
		return err
	}

	outcome := "pass"
	if res.IsFailure() {
		outcome = "fail"
	}
	result.AddTrace(TraceEvent{
		Step:   index,
		Type:   EntryCheck,
		Source: step.Effect,
		Actor:  step.Actor,
		Result: outcome,
		Reason: res.Reason,
	})

	if step.Expect != nil {
		if step.Expect.Pass == res.IsFailure() {
			result.AddError(fmt.Sprintf("step %d: check %s on %s: expected pass=%t, got %s",
				index, step.Effect, step.Item, step.Expect.Pass, res))
		} else if step.Expect.Reason != "" && step.Expect.Reason != res.Reason {
			result.AddError(fmt.Sprintf("step %d: check %s on %s: expected reason %q, got %q",
				index, step.Effect, step.Item, step.Expect.Reason, res.Reason))
		}
	}
	return nil
}

func (h *Harness) eval(index int, step EvalStep, result *Result) error {
	item, err := h.optionalItem(step.Item)
	if err != nil {
		return err
	}
	value, err := h.registry.Evaluate(step.Effect, step.Variable, step.Level, item, step.Unit)
	if err != nil {
		return err
	}

	got := fmt.Sprint(value)
	result.AddTrace(TraceEvent{
		Step:   index,
		Type:   EntryEval,
		Source: step.Effect + "." + step.Variable,
		Result: got,
	})

	if step.Expect != nil && *step.Expect != got {
		result.AddError(fmt.Sprintf("step %d: eval %s.%s at level %d: expected %q, got %q",
			index, step.Effect, step.Variable, step.Level, *step.Expect, got))
	}
	return nil
}

func (h *Harness) modify(index int, step ModifyStep, result *Result) error {
	e, ok := h.registry.Effect(step.Effect)
	if !ok {
		return fmt.Errorf("%w: %s", effect.ErrUnknownEffect, step.Effect)
	}
	item, err := h.item(step.Item)
	if err != nil {
		return err
	}
	if err := e.Variables.Modify(step.Variable, item, step.Value); err != nil {
		return err
	}
	result.AddTrace(TraceEvent{
		Step:   index,
		Type:   EntryModify,
		Source: step.Effect + "." + step.Variable,
		Result: step.Value,
	})
	return nil
}

// drain copies script calls recorded since the last drain into the trace.
func (h *Harness) drain(index int, tick int64, result *Result) {
	calls := h.recorder.Calls()
	for _, call := range calls[h.seen:] {
		result.AddTrace(TraceEvent{
			Step:   index,
			Type:   EntryScript,
			Tick:   tick,
			Source: call.Source,
			Actor:  call.Actor,
			Vars:   scalarVars(call.Vars),
		})
	}
	h.seen = len(calls)
}
