package harness

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/glyph/internal/ir"
)

func loadScenario(t *testing.T, name string) *Scenario {
	t.Helper()
	s, err := LoadScenario("testdata/scenarios/" + name)
	require.NoError(t, err)
	return s
}

func TestRunLifesteal(t *testing.T) {
	result, err := Run(loadScenario(t, "lifesteal.yaml"))
	require.NoError(t, err)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Empty(t, result.Errors)
	assert.NotEmpty(t, result.CatalogHash)
	assert.Equal(t, []string{"aura_on()", "aura()", "heal(actor)", "aura_off()"}, result.Scripts())

	for i, e := range result.Trace {
		assert.Equal(t, int64(i+1), e.Seq)
	}
}

func TestRunPermissionDenied(t *testing.T) {
	result, err := Run(loadScenario(t, "permission_denied.yaml"))
	require.NoError(t, err)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Empty(t, result.Scripts())

	// The dispatcher still assigns a token to the event.
	require.Equal(t, EntryEvent, result.Trace[0].Type)
	assert.Equal(t, "test-event-default", result.Trace[0].Result)
}

func TestRunDeterministic(t *testing.T) {
	s := loadScenario(t, "lifesteal.yaml")

	first, err := Run(s)
	require.NoError(t, err)
	second, err := Run(s)
	require.NoError(t, err)

	assert.Equal(t, first.Trace, second.Trace)
	assert.Equal(t, first.CatalogHash, second.CatalogHash)
}

func TestRunRecordsExpectationMismatches(t *testing.T) {
	want := "5"
	s := &Scenario{
		Name:        "mismatch",
		Description: "wrong expectations are reported, not fatal",
		Catalog:     "testdata/catalog",
		Items:       []ItemSpec{{ID: "sword", Type: "DIAMOND_SWORD", Effects: map[string]int{"lifesteal": 1}}},
		Steps: []Step{
			{Eval: &EvalStep{Effect: "lifesteal", Variable: "heal", Level: 2, Expect: &want}},
			{Check: &CheckStep{Effect: "flame", Item: "sword", Context: "attain", Expect: &CheckExpect{Pass: true}}},
		},
		Assertions: []Assertion{{Type: AssertTraceCount, Script: "aura()", Count: 1}},
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 3)
	assert.Contains(t, result.Errors[0], `expected "5", got "4"`)
	assert.Contains(t, result.Errors[1], "expected pass=true")
	assert.Contains(t, result.Errors[2], "trace_count")
}

func TestRunEvalWithUnit(t *testing.T) {
	want := "6HP"
	s := &Scenario{
		Name:        "unit",
		Description: "units are appended on request",
		Catalog:     "testdata/catalog",
		Steps:       []Step{{Eval: &EvalStep{Effect: "lifesteal", Variable: "heal", Level: 3, Unit: true, Expect: &want}}},
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRunStepErrors(t *testing.T) {
	tests := []struct {
		name string
		step Step
		want string
	}{
		{"unknown item", Step{Check: &CheckStep{Effect: "flame", Item: "ghost", Context: "attain"}}, `unknown item "ghost"`},
		{"unknown context", Step{Check: &CheckStep{Effect: "flame", Item: "sword", Context: "forge"}}, "unknown check context"},
		{"unknown effect", Step{Check: &CheckStep{Effect: "frost", Item: "sword", Context: "attain"}}, "unknown effect"},
		{"unknown variable", Step{Eval: &EvalStep{Effect: "lifesteal", Variable: "nope"}}, `no variable "nope"`},
		{"unknown actor", Step{Join: "carol"}, `unknown actor "carol"`},
		{"bad slot", Step{Equip: &EquipStep{Actor: "alice", Slot: "TAIL"}}, "TAIL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Scenario{
				Name:        "errors",
				Description: "step failures abort the run",
				Catalog:     "testdata/catalog",
				Actors:      []ActorSpec{{ID: "alice"}},
				Items:       []ItemSpec{{ID: "sword", Type: "DIAMOND_SWORD"}},
				Steps:       []Step{tt.step},
			}
			_, err := Run(s)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "step 0")
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRunInvalidCatalog(t *testing.T) {
	s := &Scenario{Name: "x", Description: "y", Catalog: "testdata/missing", Steps: []Step{{Tick: 1}}}
	_, err := Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load catalog")
}

func TestRunCatalogLeaveRunsPost(t *testing.T) {
	catalog := ir.Catalog{
		Targets: []ir.TargetSpec{{ID: "boots", Items: []string{"IRON_BOOTS"}, Slots: []ir.Slot{ir.SlotFeet}}},
		Effects: []ir.EffectSpec{{
			ID: "swift", MaxLevel: 1, Targets: []string{"boots"},
			Trigger: &ir.TriggerSpec{
				Tickers: []ir.TickerSpec{{ID: "run", Interval: 1, Pre: "start()", Handle: "run()", Post: "stop()"}},
			},
		}},
	}
	steps := []Step{
		{Tick: 1},
		{Leave: "alice"},
		{Tick: 1},
		{Join: "alice"},
		{Equip: &EquipStep{Actor: "alice", Slot: "FEET", Item: "boots"}},
		{Tick: 1},
	}
	s := &Scenario{
		Name:   "leave",
		Actors: []ActorSpec{{ID: "alice", Equipment: map[string]string{"FEET": "boots"}}},
		Items:  []ItemSpec{{ID: "boots", Type: "IRON_BOOTS", Effects: map[string]int{"swift": 1}}},
		Steps:  steps,
	}

	result, err := RunCatalog(s, catalog)
	require.NoError(t, err)
	assert.Equal(t, []string{"start()", "run()", "stop()", "start()", "run()"}, result.Scripts())
}

func TestRunWithPacing(t *testing.T) {
	scenario := loadScenario(t, "lifesteal.yaml")

	fast, err := Run(scenario)
	require.NoError(t, err)

	start := time.Now()
	paced, err := Run(scenario, WithPacing(5*time.Millisecond))
	require.NoError(t, err)

	assert.GreaterOrEqual(t, time.Since(start), 4*5*time.Millisecond, "four ticks are paced")
	assert.Equal(t, fast.Trace, paced.Trace)
}
