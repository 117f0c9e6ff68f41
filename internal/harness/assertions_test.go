package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/glyph/internal/store"
)

func sampleTrace() []TraceEvent {
	r := NewResult()
	r.AddTrace(TraceEvent{Type: EntryScript, Source: "a()", Actor: "alice", Vars: map[string]any{"level": 3, "heal": "6"}})
	r.AddTrace(TraceEvent{Type: EntryEvent, Source: "hit", Result: "tok"})
	r.AddTrace(TraceEvent{Type: EntryScript, Source: "b()", Actor: "bob"})
	r.AddTrace(TraceEvent{Type: EntryScript, Source: "a()", Actor: "bob"})
	return r.Trace
}

func TestAssertTraceContains(t *testing.T) {
	trace := sampleTrace()

	require.NoError(t, assertTraceContains(trace, Assertion{Script: "a()"}))
	require.NoError(t, assertTraceContains(trace, Assertion{Script: "a()", Actor: "alice", Vars: map[string]any{"level": 3}}))

	// YAML numbers match script values by printed form.
	require.NoError(t, assertTraceContains(trace, Assertion{Script: "a()", Vars: map[string]any{"heal": 6}}))

	err := assertTraceContains(trace, Assertion{Script: "b()", Actor: "alice"})
	require.Error(t, err)
	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, AssertTraceContains, ae.Type)
	assert.Contains(t, err.Error(), "not found in trace")

	// Non-script entries never match.
	require.Error(t, assertTraceContains(trace, Assertion{Script: "hit"}))
}

func TestAssertTraceOrder(t *testing.T) {
	trace := sampleTrace()

	require.NoError(t, assertTraceOrder(trace, Assertion{Scripts: []string{"a()", "b()"}}))

	err := assertTraceOrder(trace, Assertion{Scripts: []string{"b()", "a()"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "should be before")

	err = assertTraceOrder(trace, Assertion{Scripts: []string{"a()", "c()"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing script: c()")
}

func TestAssertTraceCount(t *testing.T) {
	trace := sampleTrace()

	require.NoError(t, assertTraceCount(trace, Assertion{Script: "a()", Count: 2}))
	require.NoError(t, assertTraceCount(trace, Assertion{Script: "z()", Count: 0}))

	err := assertTraceCount(trace, Assertion{Script: "b()", Count: 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 runs")
}

func TestAssertItemData(t *testing.T) {
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	require.NoError(t, st.Put(ctx, "sword", store.NamespaceData, "kills", "5"))
	require.NoError(t, st.Put(ctx, "sword", store.NamespaceRaw, "display.Name", "Edge"))

	require.NoError(t, assertItemData(ctx, st, Assertion{Item: "sword", Key: "kills", Expect: "5"}))
	require.NoError(t, assertItemData(ctx, st, Assertion{Item: "sword", Key: "display.Name", Raw: true, Expect: "Edge"}))

	err = assertItemData(ctx, st, Assertion{Item: "sword", Key: "kills", Expect: "6"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"5"`)

	err = assertItemData(ctx, st, Assertion{Item: "sword", Key: "deaths", Expect: "0"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not stored")
}

func TestEvaluateAssertions(t *testing.T) {
	result := &Result{Trace: sampleTrace()}

	errs := EvaluateAssertions(result, []Assertion{
		{Type: AssertTraceCount, Script: "a()", Count: 2},
		{Type: AssertTraceCount, Script: "a()", Count: 1},
		{Type: AssertItemData, Item: "x", Key: "k"},
		{Type: "bogus"},
	}, nil)

	require.Len(t, errs, 3)
	assert.Contains(t, errs[0], "trace_count")
	assert.Contains(t, errs[1], "item_data requires a store")
	assert.Contains(t, errs[2], `unknown assertion type "bogus"`)
}

func TestValuesEqual(t *testing.T) {
	assert.True(t, valuesEqual(nil, nil))
	assert.False(t, valuesEqual(nil, "x"))
	assert.True(t, valuesEqual(3, 3))
	assert.True(t, valuesEqual("3", 3))
	assert.False(t, valuesEqual("3", 4))
}
