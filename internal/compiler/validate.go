package compiler

import (
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/roach88/glyph/internal/expr"
	"github.com/roach88/glyph/internal/ir"
	"github.com/roach88/glyph/internal/variable"
)

// Validation error codes (E200-E299)
const (
	// General validation errors (E200)
	ErrUnsupportedIRType = "E200" // unsupported IR type for validation

	// EffectSpec errors (E201-E209)
	ErrEmptyID               = "E201" // rarity/target/group/effect id is empty
	ErrInvalidMaxLevel       = "E202" // max_level must be >= 1
	ErrUnknownRarity         = "E203" // rarity reference not declared
	ErrUnknownTarget         = "E204" // target reference not declared
	ErrUnknownGroup          = "E205" // group reference not declared
	ErrInvalidTier           = "E206" // missing, non-positive, or unordered tier keys
	ErrInvalidInterval       = "E207" // ticker interval must be > 0
	ErrInvalidSlot           = "E208" // unknown slot name
	ErrMalformedLimitation   = "E209" // limitation is not KIND:value
	ErrUnknownEffect         = "E210" // effect reference not declared
	ErrDuplicateName         = "E211" // duplicate id or variable/listener/ticker name
	ErrInvalidListener       = "E212" // listener missing event or handle, or bad priority
	ErrInvalidCapacity       = "E213" // negative capacity or max_coexist
	ErrInvalidFormula        = "E214" // leveled formula does not compile
	ErrUnknownNestedVariable = "E215" // {{name}} is not a leveled sibling
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate validates compiled IR against schema rules.
// Returns all errors found (does not fail-fast).
// Supports Catalog and EffectSpec types. A lone EffectSpec is checked
// without cross-references to rarities, targets, groups or other effects.
func Validate(v any) []ValidationError {
	switch spec := v.(type) {
	case *ir.Catalog:
		return validateCatalog(spec)
	case ir.Catalog:
		return validateCatalog(&spec)
	case *ir.EffectSpec:
		return validateEffect(spec, nil, "effect")
	case ir.EffectSpec:
		return validateEffect(&spec, nil, "effect")
	default:
		return []ValidationError{{
			Field:   "type",
			Message: fmt.Sprintf("unsupported IR type: %T", v),
			Code:    ErrUnsupportedIRType,
		}}
	}
}

// index holds the declared ids of a catalog for reference checks.
type index struct {
	rarities map[string]bool
	targets  map[string]bool
	groups   map[string]bool
	effects  map[string]bool
}

func (ix *index) known(set map[string]bool, id string) bool {
	return ix == nil || set[id]
}

func validateCatalog(c *ir.Catalog) []ValidationError {
	var errs []ValidationError
	ix := &index{
		rarities: make(map[string]bool),
		targets:  make(map[string]bool),
		groups:   make(map[string]bool),
		effects:  make(map[string]bool),
	}

	declare := func(field, id string, set map[string]bool) {
		if strings.TrimSpace(id) == "" {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: "id is required and must be non-empty",
				Code:    ErrEmptyID,
			})
			return
		}
		if set[id] {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("duplicate id: %q", id),
				Code:    ErrDuplicateName,
			})
		}
		set[id] = true
	}

	for i, r := range c.Rarities {
		declare(fmt.Sprintf("rarities[%d]", i), r.ID, ix.rarities)
	}
	for i, t := range c.Targets {
		declare(fmt.Sprintf("targets[%d]", i), t.ID, ix.targets)
	}
	for i, g := range c.Groups {
		declare(fmt.Sprintf("groups[%d]", i), g.ID, ix.groups)
	}
	for i, e := range c.Effects {
		declare(fmt.Sprintf("effects[%d]", i), e.ID, ix.effects)
	}

	for i, t := range c.Targets {
		field := fmt.Sprintf("targets[%d]", i)
		for j, s := range t.Slots {
			if _, err := ir.ParseSlot(string(s)); err != nil {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("%s.slots[%d]", field, j),
					Message: fmt.Sprintf("target %q: %v", t.ID, err),
					Code:    ErrInvalidSlot,
				})
			}
		}
		if t.Capacity < 0 {
			errs = append(errs, ValidationError{
				Field:   field + ".capacity",
				Message: fmt.Sprintf("target %q: capacity must be >= 0, got %d", t.ID, t.Capacity),
				Code:    ErrInvalidCapacity,
			})
		}
	}

	for i, g := range c.Groups {
		field := fmt.Sprintf("groups[%d]", i)
		for j, member := range g.Effects {
			if !ix.effects[member] {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("%s.effects[%d]", field, j),
					Message: fmt.Sprintf("group %q references unknown effect %q", g.ID, member),
					Code:    ErrUnknownEffect,
				})
			}
		}
		if g.MaxCoexist < 0 {
			errs = append(errs, ValidationError{
				Field:   field + ".max_coexist",
				Message: fmt.Sprintf("group %q: max_coexist must be >= 0, got %d", g.ID, g.MaxCoexist),
				Code:    ErrInvalidCapacity,
			})
		}
	}

	for i := range c.Effects {
		errs = append(errs, validateEffect(&c.Effects[i], ix, fmt.Sprintf("effects[%d]", i))...)
	}

	return errs
}

// validateEffect validates one effect. ix may be nil, in which case
// references are not resolved.
func validateEffect(spec *ir.EffectSpec, ix *index, field string) []ValidationError {
	var errs []ValidationError

	// E201: id is required
	if ix == nil && strings.TrimSpace(spec.ID) == "" {
		errs = append(errs, ValidationError{
			Field:   field + ".id",
			Message: "id is required and must be non-empty",
			Code:    ErrEmptyID,
		})
	}

	// E202: max level
	if spec.MaxLevel < 1 {
		errs = append(errs, ValidationError{
			Field:   field + ".max_level",
			Message: fmt.Sprintf("effect %q: max_level must be >= 1, got %d", spec.ID, spec.MaxLevel),
			Code:    ErrInvalidMaxLevel,
		})
	}

	// E203: rarity reference
	if spec.Rarity != "" && ix != nil && !ix.known(ix.rarities, spec.Rarity) {
		errs = append(errs, ValidationError{
			Field:   field + ".rarity",
			Message: fmt.Sprintf("effect %q references unknown rarity %q", spec.ID, spec.Rarity),
			Code:    ErrUnknownRarity,
		})
	}

	// E204: target references
	if ix != nil {
		for j, t := range spec.Targets {
			if !ix.known(ix.targets, t) {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("%s.targets[%d]", field, j),
					Message: fmt.Sprintf("effect %q references unknown target %q", spec.ID, t),
					Code:    ErrUnknownTarget,
				})
			}
		}
	}

	errs = append(errs, validateVariables(spec, field+".variables")...)

	for j, line := range spec.Limitations {
		errs = append(errs, validateLimitation(spec.ID, line, ix, fmt.Sprintf("%s.limitations[%d]", field, j))...)
	}

	if spec.Trigger != nil {
		errs = append(errs, validateTrigger(spec.ID, spec.Trigger, field+".trigger")...)
	}

	return errs
}

func validateVariables(spec *ir.EffectSpec, field string) []ValidationError {
	var errs []ValidationError
	names := make(map[string]bool)
	leveled := make(map[string]bool)

	claim := func(f, name string) {
		if names[name] {
			errs = append(errs, ValidationError{
				Field:   f,
				Message: fmt.Sprintf("effect %q: duplicate variable name %q", spec.ID, name),
				Code:    ErrDuplicateName,
			})
		}
		names[name] = true
	}

	for i, l := range spec.Variables.Leveled {
		claim(fmt.Sprintf("%s.leveled[%d]", field, i), l.Name)
		leveled[l.Name] = true
	}
	for i, m := range spec.Variables.Modifiable {
		claim(fmt.Sprintf("%s.modifiable[%d]", field, i), m.Name)
	}
	for i, o := range spec.Variables.Ordinary {
		claim(fmt.Sprintf("%s.ordinary[%d]", field, i), o.Name)
	}

	evaluator := expr.New(expr.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	for i, l := range spec.Variables.Leveled {
		f := fmt.Sprintf("%s.leveled[%d]", field, i)

		// E206: at least one tier, keys positive and ascending
		if len(l.Tiers) == 0 {
			errs = append(errs, ValidationError{
				Field:   f + ".tiers",
				Message: fmt.Sprintf("leveled variable %q has no tiers", l.Name),
				Code:    ErrInvalidTier,
			})
		}
		prev := 0
		for j, tier := range l.Tiers {
			tf := fmt.Sprintf("%s.tiers[%d]", f, j)
			if tier.MinLevel < 1 || tier.MinLevel <= prev {
				errs = append(errs, ValidationError{
					Field:   tf,
					Message: fmt.Sprintf("leveled variable %q: tier key %d must be positive and ascending", l.Name, tier.MinLevel),
					Code:    ErrInvalidTier,
				})
			}
			prev = tier.MinLevel

			// E215: nested references must name leveled siblings
			refs := variable.NestedReferences(tier.Formula)
			for _, ref := range refs {
				if !leveled[ref] {
					errs = append(errs, ValidationError{
						Field:   tf,
						Message: fmt.Sprintf("leveled variable %q references {{%s}}, which is not a leveled variable", l.Name, ref),
						Code:    ErrUnknownNestedVariable,
					})
				}
			}

			// E214: formula compiles
			text := strings.NewReplacer("{{", "{", "}}", "}").Replace(tier.Formula)
			if _, err := evaluator.Compile(text, append([]string{variable.LevelName}, refs...)); err != nil {
				errs = append(errs, ValidationError{
					Field:   tf,
					Message: fmt.Sprintf("leveled variable %q: %v", l.Name, err),
					Code:    ErrInvalidFormula,
				})
			}
		}
	}

	return errs
}

func validateLimitation(effectID, line string, ix *index, field string) []ValidationError {
	malformed := func(msg string) []ValidationError {
		return []ValidationError{{
			Field:   field,
			Message: fmt.Sprintf("effect %q: limitation %q: %s", effectID, line, msg),
			Code:    ErrMalformedLimitation,
		}}
	}

	rawKind, value, found := strings.Cut(line, ":")
	if !found {
		return malformed("expected KIND:value")
	}
	kind, err := ir.ParseConstraintKind(rawKind)
	if err != nil {
		return malformed(err.Error())
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return malformed("empty value")
	}

	unknown := func(code, what string) []ValidationError {
		return []ValidationError{{
			Field:   field,
			Message: fmt.Sprintf("effect %q: limitation %q references unknown %s %q", effectID, line, what, value),
			Code:    code,
		}}
	}

	switch kind {
	case ir.KindMaxCapacity:
		if n, err := strconv.Atoi(value); err != nil || n <= 0 {
			return malformed("capacity must be a positive integer")
		}
	case ir.KindSlot:
		if _, err := ir.ParseSlot(value); err != nil {
			return []ValidationError{{
				Field:   field,
				Message: fmt.Sprintf("effect %q: %v", effectID, err),
				Code:    ErrInvalidSlot,
			}}
		}
	case ir.KindTarget:
		if ix != nil && !ix.known(ix.targets, value) {
			return unknown(ErrUnknownTarget, "target")
		}
	case ir.KindConflictEffect, ir.KindDependsOnEffect:
		if ix != nil && !ix.known(ix.effects, value) {
			return unknown(ErrUnknownEffect, "effect")
		}
	case ir.KindConflictGroup, ir.KindDependsOnGroup:
		if ix != nil && !ix.known(ix.groups, value) {
			return unknown(ErrUnknownGroup, "group")
		}
	}
	return nil
}

func validateTrigger(effectID string, t *ir.TriggerSpec, field string) []ValidationError {
	var errs []ValidationError

	listeners := make(map[string]bool)
	for i, l := range t.Listeners {
		f := fmt.Sprintf("%s.listeners[%d]", field, i)
		if listeners[l.Name] {
			errs = append(errs, ValidationError{
				Field:   f,
				Message: fmt.Sprintf("effect %q: duplicate listener name %q", effectID, l.Name),
				Code:    ErrDuplicateName,
			})
		}
		listeners[l.Name] = true

		// E212: listener shape
		if strings.TrimSpace(l.Event) == "" {
			errs = append(errs, ValidationError{
				Field:   f + ".event",
				Message: fmt.Sprintf("listener %q: event is required", l.Name),
				Code:    ErrInvalidListener,
			})
		}
		if strings.TrimSpace(l.Handle) == "" {
			errs = append(errs, ValidationError{
				Field:   f + ".handle",
				Message: fmt.Sprintf("listener %q: handle script is required", l.Name),
				Code:    ErrInvalidListener,
			})
		}
		if l.Priority < ir.PriorityLowest || l.Priority > ir.PriorityMonitor {
			errs = append(errs, ValidationError{
				Field:   f + ".priority",
				Message: fmt.Sprintf("listener %q: priority %d out of range", l.Name, int(l.Priority)),
				Code:    ErrInvalidListener,
			})
		}
		for j, s := range l.Slots {
			if _, err := ir.ParseSlot(string(s)); err != nil {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("%s.slots[%d]", f, j),
					Message: fmt.Sprintf("listener %q: %v", l.Name, err),
					Code:    ErrInvalidSlot,
				})
			}
		}
	}

	tickers := make(map[string]bool)
	for i, tk := range t.Tickers {
		f := fmt.Sprintf("%s.tickers[%d]", field, i)
		if tickers[tk.ID] {
			errs = append(errs, ValidationError{
				Field:   f,
				Message: fmt.Sprintf("effect %q: duplicate ticker id %q", effectID, tk.ID),
				Code:    ErrDuplicateName,
			})
		}
		tickers[tk.ID] = true

		// E207: interval
		if tk.Interval <= 0 {
			errs = append(errs, ValidationError{
				Field:   f + ".interval",
				Message: fmt.Sprintf("ticker %q: interval must be > 0, got %d", tk.ID, tk.Interval),
				Code:    ErrInvalidInterval,
			})
		}
	}

	return errs
}
