package limit

import (
	"fmt"
	"strings"

	"github.com/roach88/glyph/internal/ir"
)

// Result is the outcome of a limitation check. Failures carry a
// human-readable reason; they are values, never errors.
type Result struct {
	Failed bool
	Reason string
}

// Success is the passing result.
func Success() Result {
	return Result{}
}

// Failure builds a failing result.
func Failure(reason string) Result {
	return Result{Failed: true, Reason: reason}
}

// IsFailure reports whether the check failed.
func (r Result) IsFailure() bool {
	return r.Failed
}

func (r Result) String() string {
	if r.Failed {
		return "FAILURE: " + r.Reason
	}
	return "SUCCESS"
}

// Context is a named subset of constraint kinds checked together.
type Context struct {
	Name  string
	Kinds []ir.ConstraintKind
	// ActiveUse marks contexts where the item is in active use. Book
	// placeholders only satisfy TARGET outside of active use.
	ActiveUse bool
}

var structuralKinds = []ir.ConstraintKind{
	ir.KindConflictGroup, ir.KindConflictEffect,
	ir.KindDependsOnGroup, ir.KindDependsOnEffect,
	ir.KindMaxCapacity, ir.KindTarget,
}

var (
	// Attain covers obtaining an effect through loot or enchanting.
	Attain = Context{Name: "ATTAIN", Kinds: structuralKinds}

	// Merchant covers trade-offer generation.
	Merchant = Context{Name: "MERCHANT", Kinds: structuralKinds}

	// Anvil covers combining and upgrading.
	Anvil = Context{Name: "ANVIL", Kinds: structuralKinds}

	// Use covers an item in active use by an actor.
	Use = Context{
		Name: "USE",
		Kinds: []ir.ConstraintKind{
			ir.KindExpression, ir.KindPermission, ir.KindDisabledWorld, ir.KindTarget, ir.KindSlot,
		},
		ActiveUse: true,
	}
)

// Contexts lists the predefined contexts.
var Contexts = []Context{Attain, Merchant, Anvil, Use}

// ParseContext resolves a predefined context by case-insensitive name.
func ParseContext(name string) (Context, error) {
	want := strings.ToUpper(strings.TrimSpace(name))
	for _, c := range Contexts {
		if c.Name == want {
			return c, nil
		}
	}
	return Context{}, fmt.Errorf("unknown check context %q", name)
}

// Has reports whether the context checks kind.
func (c Context) Has(kind ir.ConstraintKind) bool {
	for _, k := range c.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}
