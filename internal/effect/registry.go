// Package effect is the composition root of the engine.
//
// A Registry turns a compiled ir.Catalog into runtime Effects (variable
// set, limitation set and trigger per effect), resolves conflict
// declarations once every effect exists, and owns the load / enable /
// unload lifecycle that binds triggers to the dispatcher and scheduler.
package effect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/glyph/internal/dispatch"
	"github.com/roach88/glyph/internal/expr"
	"github.com/roach88/glyph/internal/host"
	"github.com/roach88/glyph/internal/i18n"
	"github.com/roach88/glyph/internal/ir"
	"github.com/roach88/glyph/internal/limit"
	"github.com/roach88/glyph/internal/script"
	"github.com/roach88/glyph/internal/tick"
	"github.com/roach88/glyph/internal/trigger"
	"github.com/roach88/glyph/internal/variable"
)

// ErrUnknownEffect is returned for lookups of effects that are not loaded.
var ErrUnknownEffect = errors.New("unknown effect")

// ErrAlreadyLoaded is returned by Load when a catalog is already loaded.
var ErrAlreadyLoaded = errors.New("catalog already loaded")

// Effect is one loaded rule bundle.
type Effect struct {
	Spec      ir.EffectSpec
	Variables *variable.Set
	Limits    *limit.Set

	// Trigger is nil for effects without scripted behavior.
	Trigger *trigger.Trigger
}

// ID returns the effect id.
func (e *Effect) ID() string {
	return e.Spec.ID
}

// MaxLevel returns the effect's level cap.
func (e *Effect) MaxLevel() int {
	return e.Spec.MaxLevel
}

// Registry holds every loaded effect and the catalog data their
// limitation sets consult.
//
// Thread-safety: lookups are safe for concurrent use. Load, Enable, Unload
// and Reload are serialized by a lifecycle mutex and are expected to run
// from one control goroutine.
type Registry struct {
	lifecycle sync.Mutex

	mu      sync.RWMutex
	catalog ir.Catalog
	hash    string
	targets map[string]ir.TargetSpec
	groups  map[string]ir.GroupSpec
	effects map[string]*Effect
	order   []string
	enabled bool

	registrar  *limit.Registrar
	evaluator  *expr.Evaluator
	storage    host.ItemStorage
	localizer  *i18n.Localizer
	scripts    *script.Registry
	dispatcher *dispatch.Dispatcher
	scheduler  *tick.Scheduler
	driver     bool

	scale           int
	rounding        variable.RoundingMode
	defaultCapacity int
	logger          *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithEvaluator sets the expression evaluator shared by every effect.
func WithEvaluator(e *expr.Evaluator) Option {
	return func(r *Registry) {
		r.evaluator = e
	}
}

// WithStorage sets the persisted item storage used by modifiable variables.
func WithStorage(s host.ItemStorage) Option {
	return func(r *Registry) {
		r.storage = s
	}
}

// WithLocalizer sets the localizer for limitation failure reasons.
func WithLocalizer(l *i18n.Localizer) Option {
	return func(r *Registry) {
		r.localizer = l
	}
}

// WithScripts sets the script executor registry.
func WithScripts(s *script.Registry) Option {
	return func(r *Registry) {
		r.scripts = s
	}
}

// WithDispatcher sets the event dispatcher triggers register listeners with.
func WithDispatcher(d *dispatch.Dispatcher) Option {
	return func(r *Registry) {
		r.dispatcher = d
	}
}

// WithScheduler sets the tick scheduler triggers schedule tickers with.
// The registry becomes the scheduler's ticker lookup.
func WithScheduler(s *tick.Scheduler) Option {
	return func(r *Registry) {
		r.scheduler = s
	}
}

// WithoutDriver keeps Enable from starting the scheduler's periodic driver.
// Steps are then driven explicitly through Scheduler.Step.
func WithoutDriver() Option {
	return func(r *Registry) {
		r.driver = false
	}
}

// WithRounding sets how non-integral leveled values are rendered.
func WithRounding(scale int, mode variable.RoundingMode) Option {
	return func(r *Registry) {
		r.scale = scale
		r.rounding = mode
	}
}

// WithDefaultCapacity sets the capacity of items no target type covers.
func WithDefaultCapacity(n int) Option {
	return func(r *Registry) {
		r.defaultCapacity = n
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = l
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		targets:         make(map[string]ir.TargetSpec),
		groups:          make(map[string]ir.GroupSpec),
		effects:         make(map[string]*Effect),
		driver:          true,
		scale:           2,
		rounding:        variable.RoundHalfUp,
		defaultCapacity: limit.DefaultCapacity,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.evaluator == nil {
		r.evaluator = expr.Default()
	}
	if r.localizer == nil {
		r.localizer = i18n.NewLocalizer(nil, i18n.BaseLocale)
	}
	r.registrar = limit.NewRegistrar(r.logger)
	if r.scheduler != nil {
		r.scheduler.SetTickers(r)
	}
	return r
}

func (r *Registry) log() *slog.Logger {
	if r.logger != nil {
		return r.logger
	}
	return slog.Default()
}

// Load builds every effect of catalog in declaration order. Conflict
// declarations are collected but not resolved until Enable. Effects with
// duplicate ids are logged and skipped.
func (r *Registry) Load(catalog ir.Catalog) error {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()
	return r.load(catalog)
}

func (r *Registry) load(catalog ir.Catalog) error {
	hash, err := ir.CatalogHash(catalog)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.effects) > 0 {
		return ErrAlreadyLoaded
	}

	r.catalog = catalog
	r.hash = hash
	for _, t := range catalog.Targets {
		r.targets[t.ID] = t
	}
	for _, g := range catalog.Groups {
		r.groups[g.ID] = g
	}

	for _, spec := range catalog.Effects {
		if _, dup := r.effects[spec.ID]; dup {
			r.log().Warn("duplicate effect skipped", "effect", spec.ID)
			continue
		}
		r.effects[spec.ID] = r.build(spec)
		r.order = append(r.order, spec.ID)
	}

	groups, pairs := r.registrar.Pending()
	r.log().Info("catalog loaded",
		"hash", hash,
		"effects", len(r.order),
		"targets", len(r.targets),
		"groups", len(r.groups),
		"pending_group_conflicts", groups,
		"pending_pair_conflicts", pairs,
	)
	return nil
}

func (r *Registry) build(spec ir.EffectSpec) *Effect {
	e := &Effect{Spec: spec}

	e.Variables = variable.New(spec.Variables,
		variable.WithEvaluator(r.evaluator),
		variable.WithStorage(r.storage),
		variable.WithRounding(r.scale, r.rounding),
		variable.WithLogger(r.logger),
	)
	if err := e.Variables.Preheat(); err != nil {
		r.log().Warn("variable preheat failed", "effect", spec.ID, "error", err)
	}

	e.Limits = limit.New(spec, r, r.registrar,
		limit.WithPredicates(r.evaluator),
		limit.WithLocalizer(r.localizer),
		limit.WithDefaultCapacity(r.defaultCapacity),
		limit.WithLogger(r.logger),
	)

	if spec.Trigger != nil {
		e.Trigger = trigger.New(spec.ID, *spec.Trigger, trigger.Env{
			Variables:  e.Variables,
			Limits:     e.Limits,
			Scripts:    r.scripts,
			Dispatcher: r.dispatcher,
			Scheduler:  r.scheduler,
		}, trigger.WithLogger(r.logger))
	}
	return e
}

// Enable resolves pending conflicts, binds every trigger and starts the
// scheduler's driver.
func (r *Registry) Enable(ctx context.Context) {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()
	r.enable(ctx)
}

func (r *Registry) enable(ctx context.Context) {
	r.registrar.Enable(r)

	var listeners, tickers int
	for _, e := range r.Effects() {
		if e.Trigger == nil || e.Spec.Disabled {
			continue
		}
		l, t := e.Trigger.Enable()
		listeners += l
		tickers += t
	}

	r.mu.Lock()
	r.enabled = true
	r.mu.Unlock()

	if r.scheduler != nil && r.driver {
		r.scheduler.Start(ctx)
	}
	r.log().Info("effects enabled", "listeners", listeners, "tickers", tickers)
}

// Unload disposes every trigger, resets the scheduler and forgets every
// effect. It is safe to call on an empty registry.
func (r *Registry) Unload() {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()
	r.unload()
}

func (r *Registry) unload() {
	for _, e := range r.Effects() {
		if e.Trigger != nil {
			e.Trigger.Dispose()
		}
	}
	if r.scheduler != nil {
		r.scheduler.Reset()
	}
	// Drop any conflicts a failed load left pending.
	r.registrar = limit.NewRegistrar(r.logger)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.catalog = ir.Catalog{}
	r.hash = ""
	r.targets = make(map[string]ir.TargetSpec)
	r.groups = make(map[string]ir.GroupSpec)
	r.effects = make(map[string]*Effect)
	r.order = nil
	r.enabled = false
}

// Reload replaces the loaded catalog: Unload, Load, Enable. A catalog with
// the same hash as the loaded one is skipped; Reload then reports false.
func (r *Registry) Reload(ctx context.Context, catalog ir.Catalog) (bool, error) {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()

	hash, err := ir.CatalogHash(catalog)
	if err != nil {
		return false, fmt.Errorf("reload catalog: %w", err)
	}
	if r.Hash() == hash && r.Enabled() {
		r.log().Info("catalog unchanged, reload skipped", "hash", hash)
		return false, nil
	}

	r.unload()
	if err := r.load(catalog); err != nil {
		return false, err
	}
	r.enable(ctx)
	return true, nil
}

// Enabled reports whether Enable ran since the last Load.
func (r *Registry) Enabled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.enabled
}

// Hash returns the content hash of the loaded catalog.
func (r *Registry) Hash() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.hash
}

// Catalog returns the loaded catalog.
func (r *Registry) Catalog() ir.Catalog {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.catalog
}

// Effect returns a loaded effect.
func (r *Registry) Effect(id string) (*Effect, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.effects[id]
	return e, ok
}

// Effects returns every loaded effect in declaration order.
func (r *Registry) Effects() []*Effect {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Effect, len(r.order))
	for i, id := range r.order {
		out[i] = r.effects[id]
	}
	return out
}

// ByGroup returns the loaded members of a group in group declaration order.
func (r *Registry) ByGroup(groupID string) []*Effect {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.groups[groupID]
	if !ok {
		return nil
	}
	var out []*Effect
	for _, id := range g.Effects {
		if e, ok := r.effects[id]; ok {
			out = append(out, e)
		}
	}
	return out
}

// ByRarity returns the loaded effects of a rarity in declaration order.
func (r *Registry) ByRarity(rarity string) []*Effect {
	var out []*Effect
	for _, e := range r.Effects() {
		if e.Spec.Rarity == rarity {
			out = append(out, e)
		}
	}
	return out
}

// Targets implements limit.Catalog.
func (r *Registry) Targets() []ir.TargetSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]ir.TargetSpec(nil), r.catalog.Targets...)
}

// Target implements limit.Catalog.
func (r *Registry) Target(id string) (ir.TargetSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.targets[id]
	return t, ok
}

// Group implements limit.Catalog.
func (r *Registry) Group(id string) (ir.GroupSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.groups[id]
	return g, ok
}

// Limitations implements limit.Catalog.
func (r *Registry) Limitations(effectID string) (*limit.Set, bool) {
	e, ok := r.Effect(effectID)
	if !ok {
		return nil, false
	}
	return e.Limits, true
}

// Ticker implements tick.Tickers.
func (r *Registry) Ticker(effectID, tickerID string) (tick.Ticker, bool) {
	e, ok := r.Effect(effectID)
	if !ok || e.Trigger == nil {
		return nil, false
	}
	tk, ok := e.Trigger.Ticker(tickerID)
	if !ok {
		return nil, false
	}
	return tk, true
}

// Available checks whether effectID may be applied to or used through item
// in the given context. Unknown effects are an error; constraint failures
// are a Failure result.
func (r *Registry) Available(ctx limit.Context, effectID string, item host.Item, actor host.Actor, slot ir.Slot) (limit.Result, error) {
	e, ok := r.Effect(effectID)
	if !ok {
		return limit.Result{}, fmt.Errorf("%w: %s", ErrUnknownEffect, effectID)
	}
	return e.Limits.Check(ctx, item, actor, slot, slot == ""), nil
}

// Applicable returns every loaded effect that passes ctx for item, in
// declaration order.
func (r *Registry) Applicable(ctx limit.Context, item host.Item, actor host.Actor) []*Effect {
	var out []*Effect
	for _, e := range r.Effects() {
		if e.Limits.Check(ctx, item, actor, "", true).IsFailure() {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Conflicting reports whether two loaded effects conflict.
func (r *Registry) Conflicting(a, b string) (bool, error) {
	ea, ok := r.Effect(a)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownEffect, a)
	}
	eb, ok := r.Effect(b)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownEffect, b)
	}
	return ea.Limits.ConflictsWith(eb.Limits), nil
}

// Evaluate computes one variable of an effect.
func (r *Registry) Evaluate(effectID, name string, level int, item host.Item, withUnit bool) (any, error) {
	e, ok := r.Effect(effectID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEffect, effectID)
	}
	if _, ok := e.Variables.KindOf(name); !ok {
		return nil, fmt.Errorf("effect %s has no variable %q", effectID, name)
	}
	return e.Variables.Evaluate(name, level, item, withUnit), nil
}
