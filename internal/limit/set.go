// Package limit implements per-effect limitation sets and the two-phase
// registrar that makes declared conflicts symmetric.
package limit

import (
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/roach88/glyph/internal/expr"
	"github.com/roach88/glyph/internal/host"
	"github.com/roach88/glyph/internal/i18n"
	"github.com/roach88/glyph/internal/ir"
)

// DefaultCapacity applies to items no target type declares a capacity for.
const DefaultCapacity = 32

// DefaultKinds are present in every set even when configuration omits them.
var DefaultKinds = []ir.ConstraintKind{
	ir.KindTarget, ir.KindMaxCapacity, ir.KindDisabledWorld, ir.KindSlot,
}

// Entry is one constraint. Default entries have an empty Value.
type Entry struct {
	Kind  ir.ConstraintKind
	Value string
}

// Catalog is the read-only view of loaded configuration a set consults.
type Catalog interface {
	Targets() []ir.TargetSpec
	Target(id string) (ir.TargetSpec, bool)
	Group(id string) (ir.GroupSpec, bool)
	Limitations(effectID string) (*Set, bool)
}

// Predicates evaluates actor-bound boolean expressions.
type Predicates interface {
	Predicate(expression string, actor host.Actor) bool
}

// Set is the limitation set owned by one effect.
//
// Thread-safety: Set is safe for concurrent use. Entries only grow, during
// construction and the registrar's enable phase.
type Set struct {
	mu      sync.RWMutex
	entries []Entry

	effectID   string
	disabled   bool
	everything bool
	targets    []string
	worlds     map[string]bool
	slots      map[ir.Slot]bool
	capacity   int

	catalog         Catalog
	predicates      Predicates
	localizer       *i18n.Localizer
	defaultCapacity int
	logger          *slog.Logger
}

// Option configures a Set.
type Option func(*Set)

// WithPredicates sets the EXPRESSION evaluator. Defaults to expr.Default().
func WithPredicates(p Predicates) Option {
	return func(s *Set) {
		s.predicates = p
	}
}

// WithLocalizer sets the reason renderer.
func WithLocalizer(l *i18n.Localizer) Option {
	return func(s *Set) {
		s.localizer = l
	}
}

// WithDefaultCapacity sets the MAX_CAPACITY fallback.
func WithDefaultCapacity(n int) Option {
	return func(s *Set) {
		s.defaultCapacity = n
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Set) {
		s.logger = l
	}
}

// New builds the limitation set of an effect from its raw "KIND:value"
// lines. Conflict declarations are also recorded in the registrar, which may
// be nil. Malformed lines are logged and skipped.
func New(effect ir.EffectSpec, catalog Catalog, registrar *Registrar, opts ...Option) *Set {
	s := &Set{
		effectID:        effect.ID,
		disabled:        effect.Disabled,
		everything:      effect.ConflictsWithEverything,
		targets:         append([]string(nil), effect.Targets...),
		worlds:          make(map[string]bool),
		slots:           make(map[ir.Slot]bool),
		catalog:         catalog,
		defaultCapacity: DefaultCapacity,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.predicates == nil {
		s.predicates = expr.Default()
	}
	if s.localizer == nil {
		s.localizer = i18n.NewLocalizer(nil, i18n.BaseLocale)
	}

	for _, kind := range DefaultKinds {
		s.entries = append(s.entries, Entry{Kind: kind})
	}

	for _, line := range effect.Limitations {
		entry, ok := s.parse(line)
		if !ok {
			continue
		}
		s.entries = append(s.entries, entry)

		switch entry.Kind {
		case ir.KindDisabledWorld:
			for _, w := range strings.Split(entry.Value, ",") {
				if w = strings.TrimSpace(w); w != "" {
					s.worlds[w] = true
				}
			}
		case ir.KindTarget:
			s.targets = append(s.targets, entry.Value)
		case ir.KindSlot:
			if slot, err := ir.ParseSlot(entry.Value); err == nil {
				s.slots[slot] = true
			} else {
				s.log().Warn("malformed limitation skipped", "effect", s.effectID, "line", line, "error", err)
			}
		case ir.KindMaxCapacity:
			s.capacity, _ = strconv.Atoi(entry.Value)
		case ir.KindConflictGroup:
			if registrar != nil {
				registrar.PendGroup(s.effectID, entry.Value)
			}
		case ir.KindConflictEffect:
			if registrar != nil {
				registrar.PendPair(s.effectID, entry.Value)
			}
		}
	}
	return s
}

func (s *Set) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return slog.Default()
}

// parse splits one "KIND:value" line.
func (s *Set) parse(line string) (Entry, bool) {
	rawKind, value, found := strings.Cut(line, ":")
	if !found {
		s.log().Warn("malformed limitation skipped", "effect", s.effectID, "line", line)
		return Entry{}, false
	}
	kind, err := ir.ParseConstraintKind(rawKind)
	if err != nil {
		s.log().Warn("malformed limitation skipped", "effect", s.effectID, "line", line, "error", err)
		return Entry{}, false
	}
	value = strings.TrimSpace(value)
	if value == "" {
		s.log().Warn("malformed limitation skipped", "effect", s.effectID, "line", line, "error", "empty value")
		return Entry{}, false
	}
	if kind == ir.KindMaxCapacity {
		if n, err := strconv.Atoi(value); err != nil || n <= 0 {
			s.log().Warn("malformed limitation skipped", "effect", s.effectID, "line", line, "error", "capacity must be a positive integer")
			return Entry{}, false
		}
	}
	return Entry{Kind: kind, Value: value}, true
}

// EffectID returns the owning effect.
func (s *Set) EffectID() string {
	return s.effectID
}

// ConflictsWithEverything reports the owning effect's global conflict flag.
func (s *Set) ConflictsWithEverything() bool {
	return s.everything
}

// Entries returns a copy of every entry, defaults first.
func (s *Set) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Entry(nil), s.entries...)
}

// Has reports whether the set holds the exact entry.
func (s *Set) Has(kind ir.ConstraintKind, value string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.has(kind, value)
}

func (s *Set) has(kind ir.ConstraintKind, value string) bool {
	for _, e := range s.entries {
		if e.Kind == kind && e.Value == value {
			return true
		}
	}
	return false
}

// AddConflict adds a CONFLICT_ENCHANT entry unless it is already present.
func (s *Set) AddConflict(effectID string) {
	if effectID == "" || effectID == s.effectID {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.has(ir.KindConflictEffect, effectID) {
		s.entries = append(s.entries, Entry{Kind: ir.KindConflictEffect, Value: effectID})
	}
}

// ConflictsWith reports whether this effect may not coexist with other.
func (s *Set) ConflictsWith(other *Set) bool {
	if other == nil || other.effectID == s.effectID {
		return false
	}
	if s.everything || other.everything {
		return true
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entries {
		switch e.Kind {
		case ir.KindConflictEffect:
			if e.Value == other.effectID {
				return true
			}
		case ir.KindConflictGroup:
			if s.catalog == nil {
				continue
			}
			if g, ok := s.catalog.Group(e.Value); ok && g.HasEffect(other.effectID) {
				return true
			}
		}
	}
	return false
}

// Check evaluates every entry whose kind belongs to ctx, stopping at the
// first failure. actor may be nil for non-actor contexts. slot is empty when
// no slot is known; ignoreSlot then lets SLOT entries pass.
func (s *Set) Check(ctx Context, item host.Item, actor host.Actor, slot ir.Slot, ignoreSlot bool) Result {
	if s.disabled {
		return Failure(s.localizer.Reason("limitation.disabled", s.effectID))
	}

	entries := s.Entries()
	for _, e := range entries {
		if !ctx.Has(e.Kind) {
			continue
		}
		if ok, arg := s.holds(ctx, e, item, actor, slot, ignoreSlot); !ok {
			s.log().Debug("limitation failed",
				"effect", s.effectID,
				"context", ctx.Name,
				"kind", string(e.Kind),
				"value", e.Value,
			)
			return Failure(s.localizer.Reason("limitation."+string(e.Kind), arg))
		}
	}
	return Success()
}

// holds evaluates one entry. The returned string is the argument for the
// failure reason.
func (s *Set) holds(ctx Context, e Entry, item host.Item, actor host.Actor, slot ir.Slot, ignoreSlot bool) (bool, string) {
	switch e.Kind {
	case ir.KindExpression:
		if actor == nil {
			return true, ""
		}
		return s.predicates.Predicate(e.Value, actor), e.Value

	case ir.KindPermission:
		if actor == nil || e.Value == "" {
			return true, ""
		}
		return actor.HasPermission(e.Value), e.Value

	case ir.KindDisabledWorld:
		if actor == nil {
			return true, ""
		}
		return !s.worlds[actor.World()], actor.World()

	case ir.KindSlot:
		if slot == "" {
			return ignoreSlot, ""
		}
		return s.slotActive(item, slot), string(slot)

	case ir.KindTarget:
		if item == nil {
			return false, ""
		}
		if !ctx.ActiveUse && host.IsBook(item) {
			return true, ""
		}
		return len(s.matchedTargets(item)) > 0, item.Type()

	case ir.KindMaxCapacity:
		if item == nil {
			return false, "0"
		}
		count := s.countOthers(item, func(string) bool { return true })
		return count < s.Capacity(item), strconv.Itoa(count)

	case ir.KindDependsOnEffect:
		if item == nil {
			return false, e.Value
		}
		return e.Value != s.effectID && item.Effects()[e.Value] > 0, e.Value

	case ir.KindDependsOnGroup:
		if item == nil {
			return false, e.Value
		}
		g, ok := s.group(e.Value)
		if !ok {
			return false, e.Value
		}
		return s.countOthers(item, g.HasEffect) > 0, e.Value

	case ir.KindConflictEffect:
		if item == nil || e.Value == s.effectID {
			return true, e.Value
		}
		return item.Effects()[e.Value] <= 0, e.Value

	case ir.KindConflictGroup:
		if item == nil {
			return true, e.Value
		}
		g, ok := s.group(e.Value)
		if !ok {
			return true, e.Value
		}
		maxCoexist := g.MaxCoexist
		if maxCoexist <= 0 {
			maxCoexist = 1
		}
		return s.countOthers(item, g.HasEffect) < maxCoexist, e.Value
	}
	return true, ""
}

func (s *Set) group(id string) (ir.GroupSpec, bool) {
	if s.catalog == nil {
		return ir.GroupSpec{}, false
	}
	g, ok := s.catalog.Group(id)
	if !ok {
		s.log().Debug("unknown group in limitation", "effect", s.effectID, "group", id)
	}
	return g, ok
}

// countOthers counts applied effects other than the owner matching keep.
func (s *Set) countOthers(item host.Item, keep func(string) bool) int {
	n := 0
	for id, level := range item.Effects() {
		if id == s.effectID || level <= 0 {
			continue
		}
		if keep(id) {
			n++
		}
	}
	return n
}

// matchedTargets returns this effect's target types that contain the item's type.
func (s *Set) matchedTargets(item host.Item) []ir.TargetSpec {
	if s.catalog == nil {
		return nil
	}
	var out []ir.TargetSpec
	for _, id := range s.targets {
		t, ok := s.catalog.Target(id)
		if ok && t.HasItem(item.Type()) {
			out = append(out, t)
		}
	}
	return out
}

func (s *Set) slotActive(item host.Item, slot ir.Slot) bool {
	if s.slots[slot] {
		return true
	}
	if item == nil {
		return false
	}
	for _, t := range s.matchedTargets(item) {
		if t.HasSlot(slot) {
			return true
		}
	}
	return false
}

// Capacity is the smallest capacity across every target type containing the
// item's type, bounded by an explicit MAX_CAPACITY entry.
func (s *Set) Capacity(item host.Item) int {
	capacity := 0
	if s.catalog != nil && item != nil {
		for _, t := range s.catalog.Targets() {
			if !t.HasItem(item.Type()) {
				continue
			}
			c := t.Capacity
			if c <= 0 {
				c = s.defaultCapacity
			}
			if capacity == 0 || c < capacity {
				capacity = c
			}
		}
	}
	if capacity == 0 {
		capacity = s.defaultCapacity
	}
	if s.capacity > 0 && s.capacity < capacity {
		capacity = s.capacity
	}
	return capacity
}

// Slots returns every slot in which this effect can be active, in canonical
// scan order.
func (s *Set) Slots() []ir.Slot {
	active := make(map[ir.Slot]bool, len(s.slots))
	for slot := range s.slots {
		active[slot] = true
	}
	if s.catalog != nil {
		for _, id := range s.targets {
			if t, ok := s.catalog.Target(id); ok {
				for _, slot := range t.Slots {
					active[slot] = true
				}
			}
		}
	}
	var out []ir.Slot
	for _, slot := range ir.AllSlots {
		if active[slot] {
			out = append(out, slot)
		}
	}
	return out
}
