package variable

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/glyph/internal/expr"
	"github.com/roach88/glyph/internal/ir"
	"github.com/roach88/glyph/internal/testutil"
)

func leveled(name, unit string, tiers map[int]string) ir.LeveledSpec {
	spec := ir.LeveledSpec{Name: name, Unit: unit}
	for k, v := range tiers {
		spec.Tiers = append(spec.Tiers, ir.TierSpec{MinLevel: k, Formula: v})
	}
	return spec
}

func newSet(t *testing.T, spec ir.VariablesSpec, opts ...Option) (*Set, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	opts = append([]Option{
		WithLogger(logger),
		WithEvaluator(expr.New(expr.WithLogger(logger))),
	}, opts...)
	return New(spec, opts...), &buf
}

func TestLeveledTierSelection(t *testing.T) {
	s, _ := newSet(t, ir.VariablesSpec{
		Leveled: []ir.LeveledSpec{leveled("power", "", map[int]string{1: "5", 5: "10", 10: "20"})},
	})

	assert.Equal(t, "5", s.Evaluate("power", 1, nil, false))
	assert.Equal(t, "5", s.Evaluate("power", 4, nil, false))
	assert.Equal(t, "10", s.Evaluate("power", 5, nil, false))
	assert.Equal(t, "10", s.Evaluate("power", 7, nil, false))
	assert.Equal(t, "20", s.Evaluate("power", 12, nil, false))
	assert.Equal(t, "5", s.Evaluate("power", 0, nil, false), "below every tier uses the lowest")
}

func TestLeveledIntegralResult(t *testing.T) {
	s, _ := newSet(t, ir.VariablesSpec{
		Leveled: []ir.LeveledSpec{leveled("damage", "HP", map[int]string{1: "level*2"})},
	})

	assert.Equal(t, "6", s.Evaluate("damage", 3, nil, false))
	assert.Equal(t, "6HP", s.Evaluate("damage", 3, nil, true))
}

func TestLeveledRounding(t *testing.T) {
	spec := ir.VariablesSpec{
		Leveled: []ir.LeveledSpec{leveled("chance", "%", map[int]string{1: "{level} / 8"})},
	}

	s, _ := newSet(t, spec)
	assert.Equal(t, "0.38", s.Evaluate("chance", 3, nil, false))

	s, _ = newSet(t, spec, WithRounding(1, RoundFloor))
	assert.Equal(t, "0.3", s.Evaluate("chance", 3, nil, false))

	s, _ = newSet(t, spec, WithRounding(2, RoundDown))
	assert.Equal(t, "0.37%", s.Evaluate("chance", 3, nil, true))
}

func TestLeveledNestedReference(t *testing.T) {
	s, _ := newSet(t, ir.VariablesSpec{
		Leveled: []ir.LeveledSpec{
			leveled("base", "", map[int]string{1: "{level} * 3"}),
			leveled("total", "", map[int]string{1: "{{base}} + 1"}),
		},
	})

	assert.Equal(t, "10", s.Evaluate("total", 3, nil, false))
}

func TestLeveledNestedTooDeep(t *testing.T) {
	s, buf := newSet(t, ir.VariablesSpec{
		Leveled: []ir.LeveledSpec{
			leveled("a", "", map[int]string{1: "{level}"}),
			leveled("b", "", map[int]string{1: "{{a}} + 1"}),
			leveled("c", "", map[int]string{1: "{{b}} + 1"}),
		},
	})

	assert.Equal(t, "1", s.Evaluate("c", 5, nil, false))
	assert.Contains(t, buf.String(), "nested reference exceeds one level")
}

func TestLeveledBadFormulaIsSoft(t *testing.T) {
	s, buf := newSet(t, ir.VariablesSpec{
		Leveled: []ir.LeveledSpec{leveled("broken", "", map[int]string{1: "{level} *"})},
	})

	assert.Equal(t, "0", s.Evaluate("broken", 2, nil, false))
	assert.NotEmpty(t, buf.String())
	assert.Error(t, s.Preheat())
}

func TestModifiable(t *testing.T) {
	storage := testutil.NewStorage()
	s, _ := newSet(t, ir.VariablesSpec{
		Modifiable: []ir.ModifiableSpec{
			{Name: "kills", Key: "kills", Default: "0"},
			{Name: "owner", Key: "(NBT)display.owner", Default: "nobody"},
		},
	}, WithStorage(storage))

	item := testutil.NewItem("i1", "DIAMOND_SWORD")

	assert.Equal(t, Unknown, s.Evaluate("kills", 1, nil, false))
	assert.Equal(t, "0", s.Evaluate("kills", 1, item, false))

	require.NoError(t, s.Modify("kills", item, "7"))
	assert.Equal(t, "7", s.Evaluate("kills", 1, item, false))

	require.NoError(t, s.Modify("owner", item, "steve"))
	raw, ok, err := storage.Raw(item, "display.owner")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "steve", raw)
	assert.Equal(t, "steve", s.Evaluate("owner", 1, item, false))
}

func TestModifyRejectsOtherKinds(t *testing.T) {
	s, _ := newSet(t, ir.VariablesSpec{
		Ordinary: []ir.OrdinarySpec{{Name: "motto", Value: "cut"}},
	}, WithStorage(testutil.NewStorage()))

	assert.Error(t, s.Modify("motto", testutil.NewItem("i1", "BOW"), "x"))
	assert.Error(t, s.Modify("missing", testutil.NewItem("i1", "BOW"), "x"))
}

func TestOrdinary(t *testing.T) {
	s, _ := newSet(t, ir.VariablesSpec{
		Ordinary: []ir.OrdinarySpec{{Name: "motto", Value: "cut"}, {Name: "radius", Value: 3}},
	})

	assert.Equal(t, "cut", s.Evaluate("motto", 1, nil, false))
	assert.Equal(t, 3, s.Evaluate("radius", 9, nil, true))
}

func TestCustomOwnership(t *testing.T) {
	s, _ := newSet(t, ir.VariablesSpec{
		Ordinary: []ir.OrdinarySpec{{Name: "motto", Value: "cut"}},
	})

	assert.Nil(t, s.Evaluate("bonus", 2, nil, false))

	require.NoError(t, s.AddCustom("bonus", func(level int) any { return level * 10 }))
	assert.Equal(t, 20, s.Evaluate("bonus", 2, nil, false))

	assert.Error(t, s.AddCustom("motto", func(int) any { return nil }))
	assert.False(t, s.RemoveCustom("motto"))
	assert.Equal(t, "cut", s.Evaluate("motto", 1, nil, false))

	assert.True(t, s.RemoveCustom("bonus"))
	assert.False(t, s.RemoveCustom("bonus"))
	assert.Nil(t, s.Evaluate("bonus", 2, nil, false))
}

func TestDuplicateNamesSkipped(t *testing.T) {
	s, buf := newSet(t, ir.VariablesSpec{
		Leveled:  []ir.LeveledSpec{leveled("x", "", map[int]string{1: "1"})},
		Ordinary: []ir.OrdinarySpec{{Name: "x", Value: "dup"}},
	})

	kind, ok := s.KindOf("x")
	require.True(t, ok)
	assert.Equal(t, KindLeveled, kind)
	assert.Contains(t, buf.String(), "duplicate variable name")
}

func TestEvaluateAll(t *testing.T) {
	s, _ := newSet(t, ir.VariablesSpec{
		Leveled:    []ir.LeveledSpec{leveled("damage", "HP", map[int]string{1: "level*2"})},
		Modifiable: []ir.ModifiableSpec{{Name: "kills", Key: "kills", Default: "0"}},
		Ordinary:   []ir.OrdinarySpec{{Name: "motto", Value: "cut"}},
	})

	assert.Equal(t, map[string]any{
		"damage": "4HP",
		"kills":  Unknown,
		"motto":  "cut",
	}, s.EvaluateAll(2, nil, true))
	assert.Equal(t, []string{"damage", "kills", "motto"}, s.Names())
}

func TestNestedReferences(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, NestedReferences("{{a}} + {level} * {{b}} - {{a}}"))
	assert.Empty(t, NestedReferences("{level}"))
}

func TestParseRoundingMode(t *testing.T) {
	mode, err := ParseRoundingMode("half_even")
	require.NoError(t, err)
	assert.Equal(t, RoundHalfEven, mode)

	_, err = ParseRoundingMode("sideways")
	assert.Error(t, err)
}

func TestFormatNumber(t *testing.T) {
	assert.Equal(t, "6", FormatNumber(6, 2, RoundHalfUp))
	assert.Equal(t, "-3", FormatNumber(-3, 2, RoundHalfUp))
	assert.Equal(t, "2.50", FormatNumber(2.5, 2, RoundHalfUp))
	assert.Equal(t, "2.68", FormatNumber(2.675, 2, RoundHalfUp))
	assert.Equal(t, "2.67", FormatNumber(2.675, 2, RoundHalfDown))
	assert.Equal(t, "2.2", FormatNumber(2.25, 1, RoundHalfEven))
	assert.Equal(t, "2.3", FormatNumber(2.21, 1, RoundUp))
	assert.Equal(t, "-2.2", FormatNumber(-2.21, 1, RoundCeiling))
	assert.Equal(t, "-2.3", FormatNumber(-2.21, 1, RoundFloor))
}
