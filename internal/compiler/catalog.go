package compiler

import (
	"fmt"
	"strconv"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/glyph/internal/ir"
)

// CompileCatalog parses a CUE value into a Catalog.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The value is the root of a catalog tree with optional top-level
// rarity, target, group and effect structs:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`effect: sharpness: { max_level: 5, ... }`)
//	catalog, err := CompileCatalog(v)
//
// Declaration order is preserved in every list. Returns the first error.
func CompileCatalog(v cue.Value) (*ir.Catalog, error) {
	catalog, errs := compileCatalog(v, false)
	if len(errs) > 0 {
		return nil, errs[0]
	}
	return catalog, nil
}

// CompileCatalogAll is CompileCatalog that skips entries which fail to
// compile and returns every error alongside the entries that did compile.
func CompileCatalogAll(v cue.Value) (*ir.Catalog, []error) {
	return compileCatalog(v, true)
}

func compileCatalog(v cue.Value, all bool) (*ir.Catalog, []error) {
	if err := v.Err(); err != nil {
		return nil, []error{formatCUEError(err)}
	}

	catalog := &ir.Catalog{}
	sections := []struct {
		name string
		add  func(id string, fv cue.Value) error
	}{
		{"rarity", func(id string, fv cue.Value) error {
			r, err := compileRarity(id, fv)
			if err == nil {
				catalog.Rarities = append(catalog.Rarities, r)
			}
			return err
		}},
		{"target", func(id string, fv cue.Value) error {
			t, err := compileTarget(id, fv)
			if err == nil {
				catalog.Targets = append(catalog.Targets, t)
			}
			return err
		}},
		{"group", func(id string, fv cue.Value) error {
			g, err := compileGroup(id, fv)
			if err == nil {
				catalog.Groups = append(catalog.Groups, g)
			}
			return err
		}},
		{"effect", func(id string, fv cue.Value) error {
			e, err := CompileEffect(fv)
			if err == nil {
				e.ID = id
				catalog.Effects = append(catalog.Effects, *e)
			}
			return err
		}},
	}

	var errs []error
	for _, section := range sections {
		err := eachField(v, section.name, func(id string, fv cue.Value) error {
			if err := section.add(id, fv); err != nil {
				if !all {
					return err
				}
				errs = append(errs, err)
			}
			return nil
		})
		if err != nil {
			errs = append(errs, err)
			if !all {
				return nil, errs
			}
		}
	}

	return catalog, errs
}

// CompileEffect parses one effect struct. The id is taken from the last
// path selector, so values obtained via LookupPath("effect.<id>") carry it.
func CompileEffect(v cue.Value) (*ir.EffectSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &ir.EffectSpec{}
	if sels := v.Path().Selectors(); len(sels) > 0 {
		spec.ID = sels[len(sels)-1].Unquoted()
	}

	var err error
	if spec.Name, err = stringField(v, "name"); err != nil {
		return nil, err
	}
	if spec.Name == "" {
		spec.Name = spec.ID
	}

	maxVal := v.LookupPath(cue.ParsePath("max_level"))
	if !maxVal.Exists() {
		return nil, &CompileError{
			Field:   "max_level",
			Message: "max_level is required",
			Pos:     v.Pos(),
		}
	}
	if spec.MaxLevel, err = intValue(maxVal); err != nil {
		return nil, err
	}

	if spec.Rarity, err = stringField(v, "rarity"); err != nil {
		return nil, err
	}
	if spec.Targets, err = stringList(v, "targets"); err != nil {
		return nil, err
	}
	if spec.Disabled, err = boolField(v, "disabled"); err != nil {
		return nil, err
	}
	if spec.ConflictsWithEverything, err = boolField(v, "conflicts_with_everything"); err != nil {
		return nil, err
	}
	if spec.Limitations, err = stringList(v, "limitations"); err != nil {
		return nil, err
	}

	if spec.Variables, err = compileVariables(v.LookupPath(cue.ParsePath("variables"))); err != nil {
		return nil, err
	}

	if tv := v.LookupPath(cue.ParsePath("trigger")); tv.Exists() {
		trigger, err := compileTrigger(tv)
		if err != nil {
			return nil, err
		}
		spec.Trigger = trigger
	}

	return spec, nil
}

func compileRarity(id string, v cue.Value) (ir.RaritySpec, error) {
	r := ir.RaritySpec{ID: id}
	var err error
	if r.Name, err = stringField(v, "name"); err != nil {
		return r, err
	}
	if r.Name == "" {
		r.Name = id
	}
	if r.Weight, err = intField(v, "weight", 0); err != nil {
		return r, err
	}
	return r, nil
}

func compileTarget(id string, v cue.Value) (ir.TargetSpec, error) {
	t := ir.TargetSpec{ID: id}
	var err error
	if t.Items, err = stringList(v, "items"); err != nil {
		return t, err
	}
	if t.Slots, err = slotList(v, "slots"); err != nil {
		return t, err
	}
	if t.Capacity, err = intField(v, "capacity", 0); err != nil {
		return t, err
	}
	return t, nil
}

func compileGroup(id string, v cue.Value) (ir.GroupSpec, error) {
	g := ir.GroupSpec{ID: id}
	var err error
	if g.Effects, err = stringList(v, "effects"); err != nil {
		return g, err
	}
	if g.MaxCoexist, err = intField(v, "max_coexist", 0); err != nil {
		return g, err
	}
	return g, nil
}

// compileVariables parses the leveled, modifiable and ordinary sections.
func compileVariables(v cue.Value) (ir.VariablesSpec, error) {
	var vars ir.VariablesSpec
	if !v.Exists() {
		return vars, nil
	}

	err := eachField(v, "leveled", func(name string, fv cue.Value) error {
		l := ir.LeveledSpec{Name: name}
		var err error
		if l.Unit, err = stringField(fv, "unit"); err != nil {
			return err
		}
		if l.Tiers, err = compileTiers(fv.LookupPath(cue.ParsePath("tiers"))); err != nil {
			return err
		}
		vars.Leveled = append(vars.Leveled, l)
		return nil
	})
	if err != nil {
		return vars, err
	}

	err = eachField(v, "modifiable", func(name string, fv cue.Value) error {
		m := ir.ModifiableSpec{Name: name}
		var err error
		if m.Key, err = stringField(fv, "key"); err != nil {
			return err
		}
		if m.Key == "" {
			m.Key = name
		}
		if dv := fv.LookupPath(cue.ParsePath("default")); dv.Exists() {
			if m.Default, err = scalarString(dv); err != nil {
				return err
			}
		}
		vars.Modifiable = append(vars.Modifiable, m)
		return nil
	})
	if err != nil {
		return vars, err
	}

	err = eachField(v, "ordinary", func(name string, fv cue.Value) error {
		value, err := scalarValue(fv)
		if err != nil {
			return err
		}
		vars.Ordinary = append(vars.Ordinary, ir.OrdinarySpec{Name: name, Value: value})
		return nil
	})
	return vars, err
}

// compileTiers parses a {"<min level>": formula} struct. Tiers keep
// declaration order here; validation reports unsorted or non-positive keys.
func compileTiers(v cue.Value) ([]ir.TierSpec, error) {
	if !v.Exists() {
		return nil, nil
	}
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var tiers []ir.TierSpec
	for iter.Next() {
		key := iter.Selector().Unquoted()
		minLevel, err := strconv.Atoi(key)
		if err != nil {
			return nil, &CompileError{
				Field:   "tiers",
				Message: fmt.Sprintf("tier key %q is not an integer level", key),
				Pos:     iter.Value().Pos(),
			}
		}
		formula, err := scalarString(iter.Value())
		if err != nil {
			return nil, err
		}
		tiers = append(tiers, ir.TierSpec{MinLevel: minLevel, Formula: formula})
	}
	return tiers, nil
}

// eachField calls fn for every regular field of the struct at name.
// A missing struct is not an error.
func eachField(v cue.Value, name string, fn func(label string, fv cue.Value) error) error {
	sv := v.LookupPath(cue.ParsePath(name))
	if !sv.Exists() {
		return nil
	}
	iter, err := sv.Fields()
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		if err := fn(iter.Selector().Unquoted(), iter.Value()); err != nil {
			return err
		}
	}
	return nil
}

func stringField(v cue.Value, name string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(name))
	if !fv.Exists() {
		return "", nil
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func intField(v cue.Value, name string, def int) (int, error) {
	fv := v.LookupPath(cue.ParsePath(name))
	if !fv.Exists() {
		return def, nil
	}
	return intValue(fv)
}

func intValue(v cue.Value) (int, error) {
	n, err := v.Int64()
	if err != nil {
		return 0, formatCUEError(err)
	}
	return int(n), nil
}

func boolField(v cue.Value, name string) (bool, error) {
	fv := v.LookupPath(cue.ParsePath(name))
	if !fv.Exists() {
		return false, nil
	}
	b, err := fv.Bool()
	if err != nil {
		return false, formatCUEError(err)
	}
	return b, nil
}

func stringList(v cue.Value, name string) ([]string, error) {
	fv := v.LookupPath(cue.ParsePath(name))
	if !fv.Exists() {
		return nil, nil
	}
	iter, err := fv.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, s)
	}
	return out, nil
}

// slotList reads slot names, normalized to upper case. Unknown names are
// kept and reported by validation.
func slotList(v cue.Value, name string) ([]ir.Slot, error) {
	names, err := stringList(v, name)
	if err != nil {
		return nil, err
	}
	var slots []ir.Slot
	for _, n := range names {
		slots = append(slots, ir.Slot(strings.ToUpper(strings.TrimSpace(n))))
	}
	return slots, nil
}

// scalarValue decodes a concrete string, number or bool.
func scalarValue(v cue.Value) (any, error) {
	switch v.Kind() {
	case cue.StringKind:
		s, err := v.String()
		return s, formatCUEError(err)
	case cue.IntKind:
		n, err := v.Int64()
		return n, formatCUEError(err)
	case cue.FloatKind, cue.NumberKind:
		f, err := v.Float64()
		return f, formatCUEError(err)
	case cue.BoolKind:
		b, err := v.Bool()
		return b, formatCUEError(err)
	default:
		return nil, &CompileError{
			Field:   "value",
			Message: fmt.Sprintf("expected a string, number or bool, got %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

// scalarString renders a scalar as text, so formulas and defaults may be
// written as bare numbers.
func scalarString(v cue.Value) (string, error) {
	value, err := scalarValue(v)
	if err != nil {
		return "", err
	}
	switch x := value.(type) {
	case string:
		return x, nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	default:
		return fmt.Sprint(x), nil
	}
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
