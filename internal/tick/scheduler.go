// Package tick runs periodic effect routines.
//
// The Scheduler owns the routine table, (effect, ticker) -> interval, and
// the per-actor active markers. Each step it advances a logical counter,
// selects the routines whose interval divides the counter and drives each
// through the enter/execute/exit lifecycle for every active actor.
package tick

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/roach88/glyph/internal/host"
	"github.com/roach88/glyph/internal/ir"
)

// DefaultPeriod is the step period used when none is configured.
const DefaultPeriod = 50 * time.Millisecond

// Ticker is the runtime side of one scheduled routine.
type Ticker interface {
	// Slots lists the equipment slots worth scanning for this ticker.
	Slots() []ir.Slot

	// Active reports whether the item in slot carries the effect at a
	// positive level and passes the active-use limitation context.
	Active(actor host.Actor, item host.Item, slot ir.Slot) bool

	// Pre runs once when an actor enters a run of active steps.
	Pre(ctx context.Context, actor host.Actor, item host.Item, slot ir.Slot)

	// Handle runs for every active slot on every active step.
	Handle(ctx context.Context, actor host.Actor, item host.Item, slot ir.Slot)

	// Post runs once when a run of active steps ends.
	Post(ctx context.Context, actor host.Actor)
}

// Tickers resolves the ticker implementation for a routine entry.
type Tickers interface {
	Ticker(effectID, tickerID string) (Ticker, bool)
}

// Entry is one routine table row.
type Entry struct {
	Effect   string
	Ticker   string
	Interval int

	// Priority is the owning effect's tick priority; lower runs first.
	Priority int

	seq int
}

type entryKey struct {
	effect string
	ticker string
}

type markerKey struct {
	actor  string
	effect string
	ticker string
}

// Scheduler drives routine entries once per step.
//
// Thread-safety: Schedule, Unschedule and Reset take the table write lock;
// Step holds the read lock for the whole step, so table mutation is
// serialized against step execution. Ticker callbacks must not mutate the
// table. Active markers have their own mutex.
type Scheduler struct {
	mu       sync.RWMutex
	routines map[entryKey]Entry
	seq      int

	markersMu sync.Mutex
	markers   map[markerKey]host.Actor

	stepMu sync.Mutex

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	counter   Counter
	actors    host.ActorSource
	equipment host.Equipment
	tickers   Tickers
	period    time.Duration
	logger    *slog.Logger
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithCounter sets the step counter. Defaults to a fresh Clock.
func WithCounter(c Counter) Option {
	return func(s *Scheduler) {
		s.counter = c
	}
}

// WithPeriod sets the driver's step period. Defaults to DefaultPeriod.
func WithPeriod(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.period = d
		}
	}
}

// WithTickers sets the ticker lookup.
func WithTickers(t Tickers) Option {
	return func(s *Scheduler) {
		s.tickers = t
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = l
	}
}

// New creates a scheduler over the platform's actors and equipment.
func New(platform host.Platform, opts ...Option) *Scheduler {
	s := &Scheduler{
		routines:  make(map[entryKey]Entry),
		markers:   make(map[markerKey]host.Actor),
		counter:   NewClock(),
		actors:    platform,
		equipment: platform,
		period:    DefaultPeriod,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scheduler) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return slog.Default()
}

// SetTickers replaces the ticker lookup.
func (s *Scheduler) SetTickers(t Tickers) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickers = t
}

// Schedule adds or replaces the routine entry for (effect, ticker).
// A replaced entry keeps its declaration order.
func (s *Scheduler) Schedule(effectID, tickerID string, interval, priority int) error {
	if interval <= 0 {
		return &RoutineError{
			Code:    ErrCodeInvalidInterval,
			Message: "interval must be positive",
			Effect:  effectID,
			Ticker:  tickerID,
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := entryKey{effect: effectID, ticker: tickerID}
	e, ok := s.routines[key]
	if !ok {
		s.seq++
		e.seq = s.seq
	}
	e.Effect = effectID
	e.Ticker = tickerID
	e.Interval = interval
	e.Priority = priority
	s.routines[key] = e
	return nil
}

// Unschedule removes every routine entry of an effect and forgets its
// active markers. It returns how many entries were removed.
func (s *Scheduler) Unschedule(effectID string) int {
	s.mu.Lock()
	n := 0
	for key := range s.routines {
		if key.effect == effectID {
			delete(s.routines, key)
			n++
		}
	}
	s.mu.Unlock()

	s.markersMu.Lock()
	for key := range s.markers {
		if key.effect == effectID {
			delete(s.markers, key)
		}
	}
	s.markersMu.Unlock()
	return n
}

// Entries returns the routine table in execution order.
func (s *Scheduler) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, 0, len(s.routines))
	for _, e := range s.routines {
		out = append(out, e)
	}
	sortEntries(out)
	return out
}

// Counter returns the current step.
func (s *Scheduler) Counter() int64 {
	return s.counter.Current()
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Priority != entries[j].Priority {
			return entries[i].Priority < entries[j].Priority
		}
		return entries[i].seq < entries[j].seq
	})
}

// Step advances the counter once and runs every due routine entry.
// It returns the new counter value.
func (s *Scheduler) Step(ctx context.Context) int64 {
	s.stepMu.Lock()
	defer s.stepMu.Unlock()

	s.mu.RLock()
	defer s.mu.RUnlock()

	counter := s.counter.Next()

	due := make([]Entry, 0, len(s.routines))
	for _, e := range s.routines {
		if counter%int64(e.Interval) == 0 {
			due = append(due, e)
		}
	}
	sortEntries(due)

	var actors []host.Actor
	if s.actors != nil && len(due) > 0 {
		actors = s.actors.Actors()
	}

	for _, e := range due {
		if ctx.Err() != nil {
			return counter
		}
		s.run(ctx, counter, e, actors)
	}
	return counter
}

func (s *Scheduler) run(ctx context.Context, counter int64, e Entry, actors []host.Actor) {
	var (
		t  Ticker
		ok bool
	)
	if s.tickers != nil {
		t, ok = s.tickers.Ticker(e.Effect, e.Ticker)
	}
	if !ok {
		err := &RoutineError{
			Code:    ErrCodeUnknownTicker,
			Message: "ticker not found",
			Effect:  e.Effect,
			Ticker:  e.Ticker,
		}
		s.log().Error("routine skipped", "step", counter, "error", err)
		return
	}

	present := make(map[string]bool, len(actors))
	for _, actor := range actors {
		present[actor.ID()] = true
		key := markerKey{actor: actor.ID(), effect: e.Effect, ticker: e.Ticker}

		active := false
		for _, slot := range t.Slots() {
			item := s.itemIn(actor, slot, e)
			if item == nil || !t.Active(actor, item, slot) {
				continue
			}
			active = true
			if s.mark(key, actor) {
				t.Pre(ctx, actor, item, slot)
			}
			t.Handle(ctx, actor, item, slot)
		}

		if !active && s.unmark(key) {
			t.Post(ctx, actor)
		}
	}

	// Actors that left while active still get their exit phase.
	for _, actor := range s.departed(e, present) {
		t.Post(ctx, actor)
	}
}

func (s *Scheduler) itemIn(actor host.Actor, slot ir.Slot, e Entry) host.Item {
	if s.equipment == nil {
		return nil
	}
	item, err := s.equipment.ItemIn(actor, slot)
	if err != nil {
		s.log().Debug("slot lookup failed", "effect", e.Effect, "ticker", e.Ticker,
			"actor", actor.ID(), "slot", string(slot), "error", err)
		return nil
	}
	return item
}

// mark records key as active and reports whether it was newly marked.
func (s *Scheduler) mark(key markerKey, actor host.Actor) bool {
	s.markersMu.Lock()
	defer s.markersMu.Unlock()
	if _, ok := s.markers[key]; ok {
		return false
	}
	s.markers[key] = actor
	return true
}

// unmark clears key and reports whether it was marked.
func (s *Scheduler) unmark(key markerKey) bool {
	s.markersMu.Lock()
	defer s.markersMu.Unlock()
	if _, ok := s.markers[key]; !ok {
		return false
	}
	delete(s.markers, key)
	return true
}

func (s *Scheduler) departed(e Entry, present map[string]bool) []host.Actor {
	s.markersMu.Lock()
	defer s.markersMu.Unlock()
	var out []host.Actor
	for key, actor := range s.markers {
		if key.effect != e.Effect || key.ticker != e.Ticker || present[key.actor] {
			continue
		}
		delete(s.markers, key)
		out = append(out, actor)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Active reports whether an actor is inside an active run of a ticker.
func (s *Scheduler) Active(actorID, effectID, tickerID string) bool {
	s.markersMu.Lock()
	defer s.markersMu.Unlock()
	_, ok := s.markers[markerKey{actor: actorID, effect: effectID, ticker: tickerID}]
	return ok
}

// Start begins the periodic step driver. Calling Start while the driver
// runs restarts it. The driver stops when ctx is cancelled or Reset is
// called.
func (s *Scheduler) Start(ctx context.Context) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	s.stopLocked()

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	go func() {
		defer close(done)
		ticker := time.NewTicker(s.period)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				s.Step(runCtx)
			}
		}
	}()

	s.log().Info("tick scheduler started", "period", s.period)
}

// Running reports whether the step driver is running. A driver whose
// parent context was cancelled is no longer running.
func (s *Scheduler) Running() bool {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.cancel == nil {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// Stop halts the step driver and waits for an in-flight step to finish.
// The routine table is kept.
func (s *Scheduler) Stop() {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	s.stopLocked()
}

func (s *Scheduler) stopLocked() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil
}

// Reset stops the driver and clears every routine entry and active marker.
func (s *Scheduler) Reset() {
	s.Stop()

	s.mu.Lock()
	s.routines = make(map[entryKey]Entry)
	s.seq = 0
	s.mu.Unlock()

	s.markersMu.Lock()
	s.markers = make(map[markerKey]host.Actor)
	s.markersMu.Unlock()
}
