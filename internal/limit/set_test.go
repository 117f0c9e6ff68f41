package limit

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/glyph/internal/i18n"
	"github.com/roach88/glyph/internal/ir"
	"github.com/roach88/glyph/internal/testutil"
)

// testCatalog is a map-backed Catalog.
type testCatalog struct {
	targets []ir.TargetSpec
	groups  map[string]ir.GroupSpec
	sets    map[string]*Set
}

func newTestCatalog() *testCatalog {
	return &testCatalog{
		targets: []ir.TargetSpec{
			{ID: "sword", Items: []string{"DIAMOND_SWORD", "IRON_SWORD"}, Slots: []ir.Slot{ir.SlotHand}, Capacity: 2},
			{ID: "weapon", Items: []string{"DIAMOND_SWORD", "BOW"}, Slots: []ir.Slot{ir.SlotHand, ir.SlotOffHand}},
			{ID: "helmet", Items: []string{"IRON_HELMET"}, Slots: []ir.Slot{ir.SlotHead}},
		},
		groups: map[string]ir.GroupSpec{
			"fire":   {ID: "fire", Effects: []string{"flame", "blaze"}, MaxCoexist: 1},
			"damage": {ID: "damage", Effects: []string{"sharpness", "smite", "bane"}, MaxCoexist: 2},
		},
		sets: make(map[string]*Set),
	}
}

func (c *testCatalog) Targets() []ir.TargetSpec { return c.targets }

func (c *testCatalog) Target(id string) (ir.TargetSpec, bool) {
	for _, t := range c.targets {
		if t.ID == id {
			return t, true
		}
	}
	return ir.TargetSpec{}, false
}

func (c *testCatalog) Group(id string) (ir.GroupSpec, bool) {
	g, ok := c.groups[id]
	return g, ok
}

func (c *testCatalog) Limitations(effectID string) (*Set, bool) {
	s, ok := c.sets[effectID]
	return s, ok
}

func (c *testCatalog) load(t *testing.T, r *Registrar, spec ir.EffectSpec, opts ...Option) *Set {
	t.Helper()
	if spec.Targets == nil {
		spec.Targets = []string{"sword"}
	}
	s := New(spec, c, r, opts...)
	c.sets[spec.ID] = s
	return s
}

func TestDefaultEntriesPresent(t *testing.T) {
	c := newTestCatalog()
	s := c.load(t, nil, ir.EffectSpec{ID: "sharpness"})

	for _, kind := range DefaultKinds {
		assert.True(t, s.Has(kind, ""), "missing default %s", kind)
	}
	assert.Len(t, s.Entries(), len(DefaultKinds))
}

func TestMalformedLinesSkipped(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	c := newTestCatalog()
	s := c.load(t, nil, ir.EffectSpec{
		ID: "sharpness",
		Limitations: []string{
			"PERMISSION:glyph.sharpness",
			"no separator",
			"BOGUS:x",
			"CONFLICT_ENCHANT:",
			"MAX_CAPACITY:many",
		},
	}, WithLogger(logger))

	assert.Len(t, s.Entries(), len(DefaultKinds)+1)
	assert.True(t, s.Has(ir.KindPermission, "glyph.sharpness"))
	assert.Contains(t, buf.String(), "malformed limitation skipped")
}

func TestConflictPairBecomesSymmetric(t *testing.T) {
	c := newTestCatalog()
	r := NewRegistrar(nil)
	a := c.load(t, r, ir.EffectSpec{ID: "sharpness", Limitations: []string{"CONFLICT_ENCHANT:smite"}})
	b := c.load(t, r, ir.EffectSpec{ID: "smite"})

	assert.True(t, a.ConflictsWith(b))
	assert.False(t, b.ConflictsWith(a), "one-directional before enable")

	r.Enable(c)

	assert.True(t, a.ConflictsWith(b))
	assert.True(t, b.ConflictsWith(a))

	groups, pairs := r.Pending()
	assert.Zero(t, groups)
	assert.Zero(t, pairs)
}

func TestConflictPairDeclaredTwiceHasNoDuplicates(t *testing.T) {
	c := newTestCatalog()
	r := NewRegistrar(nil)
	a := c.load(t, r, ir.EffectSpec{ID: "sharpness", Limitations: []string{"CONFLICT_ENCHANT:smite"}})
	c.load(t, r, ir.EffectSpec{ID: "smite", Limitations: []string{"CONFLICT_ENCHANT:sharpness"}})

	r.Enable(c)

	n := 0
	for _, e := range a.Entries() {
		if e.Kind == ir.KindConflictEffect {
			n++
		}
	}
	assert.Equal(t, 1, n)
}

func TestConflictGroupResolvesToMembers(t *testing.T) {
	c := newTestCatalog()
	r := NewRegistrar(nil)
	frost := c.load(t, r, ir.EffectSpec{ID: "frost", Limitations: []string{"CONFLICT_GROUP:fire"}})
	flame := c.load(t, r, ir.EffectSpec{ID: "flame"})
	blaze := c.load(t, r, ir.EffectSpec{ID: "blaze"})

	r.Enable(c)

	assert.True(t, frost.ConflictsWith(flame))
	assert.True(t, flame.ConflictsWith(frost))
	assert.True(t, blaze.ConflictsWith(frost))
	assert.False(t, flame.ConflictsWith(blaze))
}

func TestEnableSkipsUnknownReferences(t *testing.T) {
	var buf bytes.Buffer
	c := newTestCatalog()
	r := NewRegistrar(slog.New(slog.NewTextHandler(&buf, nil)))
	c.load(t, r, ir.EffectSpec{ID: "sharpness", Limitations: []string{"CONFLICT_ENCHANT:ghost", "CONFLICT_GROUP:nowhere"}})

	r.Enable(c)
	assert.Contains(t, buf.String(), "conflict with unknown effect skipped")
	assert.Contains(t, buf.String(), "conflict with unknown group skipped")
}

func TestConflictsWithEverything(t *testing.T) {
	c := newTestCatalog()
	curse := c.load(t, nil, ir.EffectSpec{ID: "curse", ConflictsWithEverything: true})
	sharp := c.load(t, nil, ir.EffectSpec{ID: "sharpness"})

	assert.True(t, curse.ConflictsWith(sharp))
	assert.True(t, sharp.ConflictsWith(curse))
	assert.False(t, curse.ConflictsWith(curse))
}

func TestConflictGroupMaxCoexist(t *testing.T) {
	c := newTestCatalog()
	r := NewRegistrar(nil)
	c.load(t, r, ir.EffectSpec{ID: "flame", Targets: []string{"weapon"}, Limitations: []string{"CONFLICT_GROUP:fire"}})
	blaze := c.load(t, r, ir.EffectSpec{ID: "blaze", Targets: []string{"weapon"}, Limitations: []string{"CONFLICT_GROUP:fire"}})
	r.Enable(c)

	bow := testutil.NewItem("i1", "BOW").Apply("flame", 1)

	result := blaze.Check(Attain, bow, nil, "", true)
	require.True(t, result.IsFailure())
	assert.Equal(t, "too many effects from group fire", result.Reason)

	empty := testutil.NewItem("i2", "BOW")
	assert.False(t, blaze.Check(Attain, empty, nil, "", true).IsFailure())
}

func TestConflictGroupCountsAgainstMaxCoexist(t *testing.T) {
	c := newTestCatalog()
	bane := c.load(t, nil, ir.EffectSpec{ID: "bane", Targets: []string{"weapon"}, Limitations: []string{"CONFLICT_GROUP:damage"}})

	one := testutil.NewItem("i1", "BOW").Apply("sharpness", 1)
	assert.False(t, bane.Check(Attain, one, nil, "", true).IsFailure())

	two := testutil.NewItem("i2", "BOW").Apply("sharpness", 1).Apply("smite", 1)
	result := bane.Check(Attain, two, nil, "", true)
	require.True(t, result.IsFailure())
	assert.Equal(t, "too many effects from group damage", result.Reason)

	// Self does not count against the limit.
	upgrade := testutil.NewItem("i3", "BOW").Apply("sharpness", 1).Apply("bane", 1)
	assert.False(t, bane.Check(Attain, upgrade, nil, "", true).IsFailure())
}

func TestMaxCapacity(t *testing.T) {
	c := newTestCatalog()
	third := c.load(t, nil, ir.EffectSpec{ID: "unbreaking", Targets: []string{"sword", "weapon"}})

	sword := testutil.NewItem("i1", "DIAMOND_SWORD").Apply("sharpness", 1).Apply("looting", 2)
	assert.Equal(t, 2, third.Capacity(sword), "smallest capacity across matching targets")

	result := third.Check(Attain, sword, nil, "", true)
	require.True(t, result.IsFailure())
	assert.Equal(t, "item already carries 2 effects", result.Reason)

	bow := testutil.NewItem("i2", "BOW").Apply("power", 1).Apply("flame", 1)
	assert.Equal(t, DefaultCapacity, third.Capacity(bow))
	assert.False(t, third.Check(Attain, bow, nil, "", true).IsFailure())
}

func TestExplicitMaxCapacity(t *testing.T) {
	c := newTestCatalog()
	s := c.load(t, nil, ir.EffectSpec{ID: "mending", Targets: []string{"weapon"}, Limitations: []string{"MAX_CAPACITY:1"}})

	bow := testutil.NewItem("i1", "BOW").Apply("power", 1)
	assert.Equal(t, 1, s.Capacity(bow))
	assert.True(t, s.Check(Attain, bow, nil, "", true).IsFailure())
}

func TestTargetAndBooks(t *testing.T) {
	c := newTestCatalog()
	s := c.load(t, nil, ir.EffectSpec{ID: "sharpness"})

	assert.False(t, s.Check(Attain, testutil.NewItem("i1", "IRON_SWORD"), nil, "", true).IsFailure())

	result := s.Check(Attain, testutil.NewItem("i2", "IRON_HELMET"), nil, "", true)
	require.True(t, result.IsFailure())
	assert.Equal(t, "item type IRON_HELMET is not a valid target", result.Reason)

	book := testutil.NewItem("i3", "ENCHANTED_BOOK")
	assert.False(t, s.Check(Anvil, book, nil, "", true).IsFailure())
	assert.True(t, s.Check(Use, book, nil, ir.SlotHand, false).IsFailure(), "books are not targets in active use")
}

func TestUseContextSlot(t *testing.T) {
	c := newTestCatalog()
	s := c.load(t, nil, ir.EffectSpec{ID: "sharpness"})
	sword := testutil.NewItem("i1", "IRON_SWORD")

	assert.False(t, s.Check(Use, sword, nil, ir.SlotHand, false).IsFailure())
	assert.True(t, s.Check(Use, sword, nil, ir.SlotHead, false).IsFailure())
	assert.True(t, s.Check(Use, sword, nil, "", false).IsFailure())
	assert.False(t, s.Check(Use, sword, nil, "", true).IsFailure())

	assert.Equal(t, []ir.Slot{ir.SlotHand}, s.Slots())
}

func TestUseContextActorKinds(t *testing.T) {
	c := newTestCatalog()
	s := c.load(t, nil, ir.EffectSpec{
		ID: "sharpness",
		Limitations: []string{
			"PERMISSION:glyph.sharpness",
			"DISABLED_WORLD:nether, the_end",
			"EXPRESSION:%level% >= 10",
		},
	})
	sword := testutil.NewItem("i1", "IRON_SWORD")

	steve := testutil.NewActor("steve", "overworld").Set("level", 12)
	result := s.Check(Use, sword, steve, ir.SlotHand, false)
	require.True(t, result.IsFailure())
	assert.Equal(t, "missing permission glyph.sharpness", result.Reason)

	steve.Grant("glyph.sharpness")
	assert.False(t, s.Check(Use, sword, steve, ir.SlotHand, false).IsFailure())

	steve.MoveTo("the_end")
	result = s.Check(Use, sword, steve, ir.SlotHand, false)
	require.True(t, result.IsFailure())
	assert.Equal(t, "disabled in world the_end", result.Reason)

	steve.MoveTo("overworld")
	steve.Set("level", 3)
	result = s.Check(Use, sword, steve, ir.SlotHand, false)
	require.True(t, result.IsFailure())
	assert.Equal(t, "condition not met: %level% >= 10", result.Reason)

	// Actor-bound kinds pass trivially without an actor.
	assert.False(t, s.Check(Use, sword, nil, ir.SlotHand, false).IsFailure())

	// Acquisition contexts ignore actor-bound kinds entirely.
	stranger := testutil.NewActor("alex", "the_end").Set("level", 1)
	for _, ctx := range []Context{Attain, Merchant, Anvil} {
		assert.False(t, s.Check(ctx, sword, stranger, "", true).IsFailure(), ctx.Name)
	}
}

func TestDependencies(t *testing.T) {
	c := newTestCatalog()
	s := c.load(t, nil, ir.EffectSpec{
		ID:          "sweeping",
		Limitations: []string{"DEPENDENCE_ENCHANT:sharpness", "DEPENDENCE_GROUP:fire"},
	})

	bare := testutil.NewItem("i1", "IRON_SWORD")
	result := s.Check(Attain, bare, nil, "", true)
	require.True(t, result.IsFailure())
	assert.Equal(t, "requires sharpness", result.Reason)

	partial := testutil.NewItem("i2", "IRON_SWORD").Apply("sharpness", 1)
	result = s.Check(Attain, partial, nil, "", true)
	require.True(t, result.IsFailure())
	assert.Equal(t, "requires an effect from group fire", result.Reason)

	full := testutil.NewItem("i3", "DIAMOND_SWORD").Apply("sharpness", 1)
	full.Apply("flame", 1)
	assert.True(t, s.Check(Attain, full, nil, "", true).IsFailure(), "capacity 2 already used")

	c.targets[0].Capacity = 5
	assert.False(t, s.Check(Attain, full, nil, "", true).IsFailure())
}

func TestDisabledEffectFailsImmediately(t *testing.T) {
	c := newTestCatalog()
	s := c.load(t, nil, ir.EffectSpec{ID: "flame", Disabled: true})

	result := s.Check(Attain, testutil.NewItem("i1", "IRON_SWORD"), nil, "", true)
	require.True(t, result.IsFailure())
	assert.Equal(t, "effect flame is disabled", result.Reason)
}

func TestLocalizedReason(t *testing.T) {
	c := newTestCatalog()
	s := c.load(t, nil, ir.EffectSpec{ID: "flame", Disabled: true},
		WithLocalizer(i18n.NewLocalizer(nil, "zh-CN")))

	result := s.Check(Attain, testutil.NewItem("i1", "IRON_SWORD"), nil, "", true)
	require.True(t, result.IsFailure())
	assert.Contains(t, result.Reason, "flame")
	assert.NotEqual(t, "effect flame is disabled", result.Reason)
}

func TestParseContext(t *testing.T) {
	ctx, err := ParseContext("use")
	require.NoError(t, err)
	assert.Equal(t, Use.Name, ctx.Name)
	assert.True(t, ctx.Has(ir.KindSlot))
	assert.False(t, ctx.Has(ir.KindMaxCapacity))

	ctx, err = ParseContext("ANVIL")
	require.NoError(t, err)
	assert.Equal(t, Attain.Kinds, ctx.Kinds)
	assert.False(t, ctx.Has(ir.KindPermission))

	_, err = ParseContext("smithing")
	assert.Error(t, err)
}

func TestResultString(t *testing.T) {
	assert.Equal(t, "SUCCESS", Success().String())
	assert.Equal(t, "FAILURE: nope", Failure("nope").String())
}
