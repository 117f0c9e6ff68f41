package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/glyph/internal/ir"
)

func leveled(name string, formulas ...string) ir.LeveledSpec {
	l := ir.LeveledSpec{Name: name}
	for i, f := range formulas {
		l.Tiers = append(l.Tiers, ir.TierSpec{MinLevel: i + 1, Formula: f})
	}
	return l
}

// TestAnalyzeCycles_Empty tests that an empty catalog produces no warnings.
func TestAnalyzeCycles_Empty(t *testing.T) {
	warnings := AnalyzeCycles(ir.Catalog{})
	assert.NotNil(t, warnings)
	assert.Empty(t, warnings)
}

// TestAnalyzeCycles_DAG tests that acyclic references produce no warnings.
func TestAnalyzeCycles_DAG(t *testing.T) {
	c := ir.Catalog{Effects: []ir.EffectSpec{
		{
			ID: "a",
			Variables: ir.VariablesSpec{Leveled: []ir.LeveledSpec{
				leveled("base", "{level}*2"),
				leveled("bonus", "{{base}}+1"),
				leveled("total", "{{base}}+{{bonus}}"),
			}},
			Limitations: []string{"DEPENDENCE_ENCHANT:b"},
		},
		{ID: "b", Limitations: []string{"DEPENDENCE_ENCHANT:c"}},
		{ID: "c"},
	}}

	assert.Empty(t, AnalyzeCycles(c))
}

// TestAnalyzeCycles_VariableSelfLoop tests a formula referencing itself.
func TestAnalyzeCycles_VariableSelfLoop(t *testing.T) {
	c := ir.Catalog{Effects: []ir.EffectSpec{{
		ID:        "echo",
		Variables: ir.VariablesSpec{Leveled: []ir.LeveledSpec{leveled("x", "1", "{{x}}*2")}},
	}}}

	warnings := AnalyzeCycles(c)
	require.Len(t, warnings, 1)
	assert.Equal(t, []string{"echo.x", "echo.x"}, warnings[0].Path)
	assert.Equal(t, "warning", warnings[0].Level)
	assert.Contains(t, warnings[0].Message, "Self-referencing nested variable")
}

// TestAnalyzeCycles_VariableCycle tests a two-variable cycle.
func TestAnalyzeCycles_VariableCycle(t *testing.T) {
	c := ir.Catalog{Effects: []ir.EffectSpec{{
		ID: "loop",
		Variables: ir.VariablesSpec{Leveled: []ir.LeveledSpec{
			leveled("a", "{{b}}+1"),
			leveled("b", "{{a}}-1"),
		}},
	}}}

	warnings := AnalyzeCycles(c)
	require.Len(t, warnings, 1)
	assert.Equal(t, []string{"loop.a", "loop.b", "loop.a"}, warnings[0].Path)
	assert.Contains(t, warnings[0].Message, "Nested variable cycle detected: loop.a → loop.b → loop.a")
}

// TestAnalyzeCycles_VariablesScopedPerEffect tests that equal names in
// different effects do not link.
func TestAnalyzeCycles_VariablesScopedPerEffect(t *testing.T) {
	c := ir.Catalog{Effects: []ir.EffectSpec{
		{ID: "p", Variables: ir.VariablesSpec{Leveled: []ir.LeveledSpec{leveled("a", "{{b}}")}}},
		{ID: "q", Variables: ir.VariablesSpec{Leveled: []ir.LeveledSpec{leveled("b", "{{a}}")}}},
	}}

	assert.Empty(t, AnalyzeCycles(c))
}

// TestAnalyzeCycles_DependenceCycle tests a three-effect dependence cycle.
func TestAnalyzeCycles_DependenceCycle(t *testing.T) {
	c := ir.Catalog{Effects: []ir.EffectSpec{
		{ID: "alpha", Limitations: []string{"DEPENDENCE_ENCHANT:beta"}},
		{ID: "beta", Limitations: []string{"dependence_enchant: gamma"}},
		{ID: "gamma", Limitations: []string{"DEPENDENCE_ENCHANT:alpha", "CONFLICT_ENCHANT:beta"}},
	}}

	warnings := AnalyzeCycles(c)
	require.Len(t, warnings, 1)
	assert.Equal(t, []string{"alpha", "beta", "gamma", "alpha"}, warnings[0].Path)
	assert.Contains(t, warnings[0].Message, "Effect dependence cycle detected")
}

// TestAnalyzeCycles_Ordering tests that variable warnings precede
// dependence warnings and each group is sorted.
func TestAnalyzeCycles_Ordering(t *testing.T) {
	c := ir.Catalog{Effects: []ir.EffectSpec{
		{ID: "z", Limitations: []string{"DEPENDENCE_ENCHANT:z"}},
		{ID: "m", Variables: ir.VariablesSpec{Leveled: []ir.LeveledSpec{leveled("v", "{{v}}")}}},
		{ID: "b", Limitations: []string{"DEPENDENCE_ENCHANT:b"}},
	}}

	warnings := AnalyzeCycles(c)
	require.Len(t, warnings, 3)
	assert.Equal(t, "m.v", warnings[0].Path[0])
	assert.Equal(t, "b", warnings[1].Path[0])
	assert.Equal(t, "z", warnings[2].Path[0])
}

// TestAnalyzeCycles_MalformedLinesIgnored tests that unparseable
// limitations do not create edges.
func TestAnalyzeCycles_MalformedLinesIgnored(t *testing.T) {
	c := ir.Catalog{Effects: []ir.EffectSpec{
		{ID: "a", Limitations: []string{"DEPENDENCE_ENCHANT", "NOPE:a", "DEPENDENCE_ENCHANT: "}},
	}}

	assert.Empty(t, AnalyzeCycles(c))
}

func TestTarjanSCC_Deterministic(t *testing.T) {
	graph := dependencyGraph{
		"a": {"b"},
		"b": {"a"},
		"c": {"c"},
		"d": {"a"},
	}

	for i := 0; i < 5; i++ {
		sccs := tarjanSCC(graph)
		require.Len(t, sccs, 3)
		assert.ElementsMatch(t, []string{"a", "b"}, sccs[0])
		assert.Equal(t, []string{"c"}, sccs[1])
		assert.Equal(t, []string{"d"}, sccs[2])
	}
}
