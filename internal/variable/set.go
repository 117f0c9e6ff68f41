// Package variable implements the per-effect variable set: leveled formulas,
// item-persisted values, constants and programmatic callbacks, all sharing
// one name space.
package variable

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/roach88/glyph/internal/expr"
	"github.com/roach88/glyph/internal/host"
	"github.com/roach88/glyph/internal/ir"
)

// Unknown is returned for a Modifiable variable read without an item.
const Unknown = "?"

// RawPrefix routes a Modifiable storage key to the item's raw storage path.
const RawPrefix = "(NBT)"

// LevelName is the name the current level is bound to inside formulas.
const LevelName = "level"

// nestedPattern matches {{name}} references to sibling leveled variables.
var nestedPattern = regexp.MustCompile(`\{\{([A-Za-z_][A-Za-z0-9_]*)\}\}`)

// NestedReferences returns the sibling variables a formula references, in
// first-appearance order.
func NestedReferences(formula string) []string {
	var refs []string
	seen := make(map[string]bool)
	for _, m := range nestedPattern.FindAllStringSubmatch(formula, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			refs = append(refs, m[1])
		}
	}
	return refs
}

// Kind identifies which variant owns a variable name.
type Kind int

const (
	KindLeveled Kind = iota
	KindModifiable
	KindOrdinary
	KindCustom
)

func (k Kind) String() string {
	switch k {
	case KindLeveled:
		return "leveled"
	case KindModifiable:
		return "modifiable"
	case KindOrdinary:
		return "ordinary"
	case KindCustom:
		return "custom"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// CustomFunc computes a custom variable for a level.
type CustomFunc func(level int) any

// Leveled is a tiered formula. Tiers are keyed by minimum level.
type Leveled struct {
	Unit  string
	Tiers map[int]string
	keys  []int
}

// NewLeveled builds a Leveled variable from tier formulas.
func NewLeveled(unit string, tiers map[int]string) *Leveled {
	l := &Leveled{Unit: unit, Tiers: tiers}
	for k := range tiers {
		l.keys = append(l.keys, k)
	}
	sort.Ints(l.keys)
	return l
}

// Formula selects the tier with the greatest minimum level not exceeding
// level. Levels below every tier use the lowest tier.
func (l *Leveled) Formula(level int) (string, bool) {
	if len(l.keys) == 0 {
		return "", false
	}
	i := sort.Search(len(l.keys), func(i int) bool { return l.keys[i] > level })
	if i == 0 {
		return l.Tiers[l.keys[0]], true
	}
	return l.Tiers[l.keys[i-1]], true
}

// Modifiable is backed by a persisted per-item slot.
type Modifiable struct {
	Key     string
	Default string
}

// Set is the variable collection owned by one effect.
//
// Thread-safety: Set is safe for concurrent use. Configuration-derived
// variables are immutable after New; only the custom kind changes, through
// AddCustom and RemoveCustom.
type Set struct {
	mu         sync.RWMutex
	order      []string
	owners     map[string]Kind
	leveled    map[string]*Leveled
	modifiable map[string]Modifiable
	ordinary   map[string]any
	custom     map[string]CustomFunc

	evaluator *expr.Evaluator
	storage   host.ItemStorage
	scale     int
	rounding  RoundingMode
	logger    *slog.Logger
}

// Option configures a Set.
type Option func(*Set)

// WithEvaluator sets the expression evaluator. Defaults to expr.Default().
func WithEvaluator(e *expr.Evaluator) Option {
	return func(s *Set) {
		s.evaluator = e
	}
}

// WithStorage sets the persisted item storage used by Modifiable variables.
func WithStorage(storage host.ItemStorage) Option {
	return func(s *Set) {
		s.storage = storage
	}
}

// WithRounding sets the decimal scale and rounding mode for leveled values.
func WithRounding(scale int, mode RoundingMode) Option {
	return func(s *Set) {
		s.scale = scale
		s.rounding = mode
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Set) {
		s.logger = l
	}
}

// New builds a Set from configuration. Duplicate names and malformed tier
// keys are logged and skipped.
func New(spec ir.VariablesSpec, opts ...Option) *Set {
	s := &Set{
		owners:     make(map[string]Kind),
		leveled:    make(map[string]*Leveled),
		modifiable: make(map[string]Modifiable),
		ordinary:   make(map[string]any),
		custom:     make(map[string]CustomFunc),
		scale:      2,
		rounding:   RoundHalfUp,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.evaluator == nil {
		s.evaluator = expr.Default()
	}

	for _, v := range spec.Leveled {
		tiers := make(map[int]string, len(v.Tiers))
		for _, tier := range v.Tiers {
			tiers[tier.MinLevel] = tier.Formula
		}
		if s.claim(v.Name, KindLeveled) {
			s.leveled[v.Name] = NewLeveled(v.Unit, tiers)
		}
	}
	for _, v := range spec.Modifiable {
		if s.claim(v.Name, KindModifiable) {
			s.modifiable[v.Name] = Modifiable{Key: v.Key, Default: v.Default}
		}
	}
	for _, v := range spec.Ordinary {
		if s.claim(v.Name, KindOrdinary) {
			s.ordinary[v.Name] = v.Value
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

func (s *Set) claim(name string, kind Kind) bool {
	if owner, ok := s.owners[name]; ok {
		s.log().Warn("duplicate variable name skipped",
			"variable", name,
			"kind", kind.String(),
			"owner", owner.String(),
		)
		return false
	}
	s.owners[name] = kind
	s.order = append(s.order, name)
	return true
}

// Names returns every variable name in declaration order.
func (s *Set) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}

// KindOf reports which kind owns name.
func (s *Set) KindOf(name string) (Kind, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k, ok := s.owners[name]
	return k, ok
}

// Evaluate computes one variable.
//
// Leveled values are strings (with the unit appended when withUnit is set).
// Modifiable values are strings; a nil item yields Unknown. Ordinary values are
// returned verbatim. Custom values are whatever the callback returns. An
// unknown name yields nil.
func (s *Set) Evaluate(name string, level int, item host.Item, withUnit bool) any {
	s.mu.RLock()
	kind, ok := s.owners[name]
	var (
		leveled    = s.leveled[name]
		modifiable = s.modifiable[name]
		ordinary   = s.ordinary[name]
		custom     = s.custom[name]
	)
	s.mu.RUnlock()

	if !ok {
		return nil
	}

	switch kind {
	case KindLeveled:
		value := FormatNumber(s.leveledValue(name, leveled, level), s.scale, s.rounding)
		if withUnit {
			return value + leveled.Unit
		}
		return value
	case KindModifiable:
		return s.read(name, modifiable, item)
	case KindOrdinary:
		return ordinary
	case KindCustom:
		if custom == nil {
			return nil
		}
		return custom(level)
	default:
		return nil
	}
}

// EvaluateAll computes every variable.
func (s *Set) EvaluateAll(level int, item host.Item, withUnit bool) map[string]any {
	names := s.Names()
	out := make(map[string]any, len(names))
	for _, name := range names {
		out[name] = s.Evaluate(name, level, item, withUnit)
	}
	return out
}

// Numeric returns the unrounded value of a leveled variable.
func (s *Set) Numeric(name string, level int) (float64, bool) {
	s.mu.RLock()
	leveled, ok := s.leveled[name]
	s.mu.RUnlock()
	if !ok {
		return 0, false
	}
	return s.leveledValue(name, leveled, level), true
}

func (s *Set) leveledValue(name string, l *Leveled, level int) float64 {
	formula, ok := l.Formula(level)
	if !ok {
		s.log().Warn("leveled variable has no tiers", "variable", name)
		return 0
	}

	vars := map[string]float64{LevelName: float64(level)}
	for _, ref := range NestedReferences(formula) {
		vars[ref] = s.nestedValue(name, ref, level)
	}
	return s.evaluator.Calculate(nestedPattern.ReplaceAllString(formula, "{$1}"), vars)
}

// nestedValue resolves one {{ref}} reference. The referenced formula must not
// itself contain nested references.
func (s *Set) nestedValue(from, ref string, level int) float64 {
	s.mu.RLock()
	target, ok := s.leveled[ref]
	s.mu.RUnlock()
	if !ok {
		s.log().Warn("nested reference to unknown leveled variable",
			"variable", from,
			"reference", ref,
		)
		return 0
	}

	formula, ok := target.Formula(level)
	if !ok {
		return 0
	}
	if len(NestedReferences(formula)) > 0 {
		s.log().Warn("nested reference exceeds one level",
			"variable", from,
			"reference", ref,
		)
		return 0
	}
	return s.evaluator.Calculate(formula, map[string]float64{LevelName: float64(level)})
}

func (s *Set) read(name string, m Modifiable, item host.Item) string {
	if item == nil {
		return Unknown
	}
	if s.storage == nil {
		return m.Default
	}

	var (
		value string
		found bool
		err   error
	)
	if path, ok := strings.CutPrefix(m.Key, RawPrefix); ok {
		value, found, err = s.storage.Raw(item, path)
	} else {
		value, found, err = s.storage.Data(item, m.Key)
	}
	if err != nil {
		s.log().Error("read modifiable variable",
			"variable", name,
			"item", item.ID(),
			"key", m.Key,
			"error", err,
		)
		return m.Default
	}
	if !found {
		return m.Default
	}
	return value
}

// Modify writes a Modifiable variable back to the item's persisted slot.
func (s *Set) Modify(name string, item host.Item, value string) error {
	s.mu.RLock()
	kind, ok := s.owners[name]
	m := s.modifiable[name]
	s.mu.RUnlock()

	if !ok {
		return fmt.Errorf("unknown variable %q", name)
	}
	if kind != KindModifiable {
		return fmt.Errorf("variable %q is %s, not modifiable", name, kind)
	}
	if item == nil {
		return fmt.Errorf("modify %q: no item", name)
	}
	if s.storage == nil {
		return fmt.Errorf("modify %q: no item storage configured", name)
	}

	if path, ok := strings.CutPrefix(m.Key, RawPrefix); ok {
		if err := s.storage.SetRaw(item, path, value); err != nil {
			return fmt.Errorf("modify %q: %w", name, err)
		}
		return nil
	}
	if err := s.storage.SetData(item, m.Key, value); err != nil {
		return fmt.Errorf("modify %q: %w", name, err)
	}
	return nil
}

// AddCustom registers or replaces a custom variable. It fails when the name
// is owned by a configuration-derived kind.
func (s *Set) AddCustom(name string, fn CustomFunc) error {
	if fn == nil {
		return fmt.Errorf("add custom %q: nil function", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if owner, ok := s.owners[name]; ok && owner != KindCustom {
		return fmt.Errorf("add custom %q: name owned by %s variable", name, owner)
	} else if !ok {
		s.owners[name] = KindCustom
		s.order = append(s.order, name)
	}
	s.custom[name] = fn
	return nil
}

// RemoveCustom unregisters a custom variable. It reports whether a custom
// variable was removed; names owned by other kinds are left untouched.
func (s *Set) RemoveCustom(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if owner, ok := s.owners[name]; !ok || owner != KindCustom {
		return false
	}
	delete(s.custom, name)
	delete(s.owners, name)
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// Preheat compiles every leveled tier formula. All failures are reported.
func (s *Set) Preheat() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var failed []string
	for _, name := range s.order {
		l, ok := s.leveled[name]
		if !ok {
			continue
		}
		for _, minLevel := range l.keys {
			formula := l.Tiers[minLevel]
			refs := NestedReferences(formula)
			names := append([]string{LevelName}, refs...)
			text := nestedPattern.ReplaceAllString(formula, "{$1}")
			if err := s.evaluator.Preheat(text, names...); err != nil {
				failed = append(failed, name+"["+strconv.Itoa(minLevel)+"]")
			}
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("preheat leveled variables: %s", strings.Join(failed, ", "))
	}
	return nil
}
