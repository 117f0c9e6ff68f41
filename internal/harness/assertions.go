package harness

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/roach88/glyph/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nScript trace:\n")
		for _, event := range e.Trace {
			if event.Type == EntryScript {
				fmt.Fprintf(&buf, "  [%d] %s %s %v\n", event.Seq, event.Source, event.Actor, event.Vars)
			}
		}
	}

	return buf.String()
}

// assertTraceContains checks if the trace contains a script run matching
// the source, the actor when given, and the vars (subset match).
func assertTraceContains(trace []TraceEvent, assertion Assertion) error {
	for _, event := range trace {
		if event.Type != EntryScript || event.Source != assertion.Script {
			continue
		}
		if assertion.Actor != "" && event.Actor != assertion.Actor {
			continue
		}
		if matchVars(event.Vars, assertion.Vars) {
			return nil
		}
	}

	expected := fmt.Sprintf("script %s with vars %v", assertion.Script, assertion.Vars)
	if assertion.Actor != "" {
		expected = fmt.Sprintf("script %s for %s with vars %v", assertion.Script, assertion.Actor, assertion.Vars)
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: expected,
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that scripts first ran in the specified order.
// Runs don't need to be consecutive.
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	positions := make(map[string]int)
	for i, event := range trace {
		if event.Type != EntryScript {
			continue
		}
		if _, seen := positions[event.Source]; !seen {
			positions[event.Source] = i + 1 // 1-indexed for readability
		}
	}

	for _, src := range assertion.Scripts {
		if positions[src] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all scripts present: %v", assertion.Scripts),
				Actual:   fmt.Sprintf("missing script: %s", src),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(assertion.Scripts); i++ {
		prev := assertion.Scripts[i-1]
		curr := assertion.Scripts[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("scripts in order: %v", assertion.Scripts),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}

	return nil
}

// assertTraceCount checks if the script ran exactly the specified number of times.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Type == EntryScript && event.Source == assertion.Script {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d runs of %s", assertion.Count, assertion.Script),
			Actual:   fmt.Sprintf("%d runs", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertItemData checks a value persisted for an item.
func assertItemData(ctx context.Context, st *store.Store, assertion Assertion) error {
	ns := store.NamespaceData
	if assertion.Raw {
		ns = store.NamespaceRaw
	}

	value, found, err := st.Get(ctx, assertion.Item, ns, assertion.Key)
	if err != nil {
		return fmt.Errorf("read %s/%s: %w", assertion.Item, assertion.Key, err)
	}
	if !found {
		return &AssertionError{
			Type:     AssertItemData,
			Expected: fmt.Sprintf("%s on %s = %q", assertion.Key, assertion.Item, assertion.Expect),
			Actual:   "not stored",
		}
	}
	if value != assertion.Expect {
		return &AssertionError{
			Type:     AssertItemData,
			Expected: fmt.Sprintf("%s on %s = %q", assertion.Key, assertion.Item, assertion.Expect),
			Actual:   fmt.Sprintf("%q", value),
		}
	}
	return nil
}

// matchVars checks if actual vars contain all expected vars (subset match).
// Extra keys in actual are ignored.
func matchVars(actual, expected map[string]any) bool {
	for key, expectedVal := range expected {
		actualVal, exists := actual[key]
		if !exists {
			return false
		}
		if !valuesEqual(actualVal, expectedVal) {
			return false
		}
	}
	return true
}

// valuesEqual compares two trace values. YAML decodes numbers as int or
// float64 while scripts see int or string values, so scalars are compared
// by their printed form when their types differ.
func valuesEqual(actual, expected any) bool {
	if actual == nil || expected == nil {
		return actual == expected
	}
	if reflect.DeepEqual(actual, expected) {
		return true
	}
	return fmt.Sprint(actual) == fmt.Sprint(expected)
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Store *store.Store
	Ctx   context.Context
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides database access for item_data assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertItemData:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: item_data requires a store", i)
			} else {
				err = assertItemData(actx.Ctx, actx.Store, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
