package trigger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/glyph/internal/dispatch"
	"github.com/roach88/glyph/internal/host"
	"github.com/roach88/glyph/internal/ir"
	"github.com/roach88/glyph/internal/limit"
	"github.com/roach88/glyph/internal/script"
	"github.com/roach88/glyph/internal/testutil"
	"github.com/roach88/glyph/internal/tick"
	"github.com/roach88/glyph/internal/variable"
)

type hitEvent struct {
	attacker host.Actor
	weapon   host.Item
	damage   float64
}

func (e *hitEvent) Field(name string) (any, bool) {
	if name == "damage" {
		return e.damage, true
	}
	return nil, false
}

func (e *hitEvent) SetField(name string, value any) error {
	f, ok := value.(float64)
	if name != "damage" || !ok {
		return errors.New("only damage is writable")
	}
	e.damage = f
	return nil
}

type catalog struct {
	targets []ir.TargetSpec
}

func (c catalog) Targets() []ir.TargetSpec { return c.targets }

func (c catalog) Target(id string) (ir.TargetSpec, bool) {
	for _, t := range c.targets {
		if t.ID == id {
			return t, true
		}
	}
	return ir.TargetSpec{}, false
}

func (c catalog) Group(string) (ir.GroupSpec, bool)     { return ir.GroupSpec{}, false }
func (c catalog) Limitations(string) (*limit.Set, bool) { return nil, false }

var testCatalog = catalog{targets: []ir.TargetSpec{
	{ID: "sword", Items: []string{"DIAMOND_SWORD"}, Slots: []ir.Slot{ir.SlotHand}},
}}

type fixture struct {
	world      *testutil.World
	recorder   *testutil.Recorder
	dispatcher *dispatch.Dispatcher
	scheduler  *tick.Scheduler
	trigger    *Trigger
}

func newFixture(t *testing.T, effect ir.EffectSpec) *fixture {
	t.Helper()

	f := &fixture{world: testutil.NewWorld(), recorder: testutil.NewRecorder()}

	rs := dispatch.NewResolvers()
	dispatch.Register(rs, "hit", dispatch.Resolver[*hitEvent]{
		Entity: func(e *hitEvent, _ string) (host.Actor, bool) { return e.attacker, true },
		Item: func(e *hitEvent, _ string, _ host.Actor) (host.Item, bool) {
			return e.weapon, e.weapon != nil
		},
	})
	f.dispatcher = dispatch.New(rs,
		dispatch.WithEquipment(f.world),
		dispatch.WithTokens(testutil.NewFixedTokenGenerator("tok")),
	)

	scripts := script.NewRegistry(nil)
	scripts.Register(script.DefaultType, f.recorder)

	f.trigger = New(effect.ID, *effect.Trigger, Env{
		Variables:  variable.New(effect.Variables),
		Limits:     limit.New(effect, testCatalog, nil),
		Scripts:    scripts,
		Dispatcher: f.dispatcher,
	})
	f.scheduler = tick.New(f.world, tick.WithTickers(tickerLookup{f.trigger}))
	f.trigger.env.Scheduler = f.scheduler
	return f
}

type tickerLookup struct{ t *Trigger }

func (l tickerLookup) Ticker(effectID, tickerID string) (tick.Ticker, bool) {
	if effectID != l.t.EffectID() {
		return nil, false
	}
	tk, ok := l.t.Ticker(tickerID)
	return tk, ok
}

func lifesteal() ir.EffectSpec {
	return ir.EffectSpec{
		ID:       "lifesteal",
		MaxLevel: 3,
		Targets:  []string{"sword"},
		Variables: ir.VariablesSpec{
			Leveled: []ir.LeveledSpec{{Name: "heal", Tiers: []ir.TierSpec{{MinLevel: 1, Formula: "{level}*2"}}}},
		},
		Limitations: []string{"PERMISSION:glyph.lifesteal"},
		Trigger: &ir.TriggerSpec{
			TickPriority: 2,
			Listeners: []ir.ListenerSpec{{
				Name:   "on-hit",
				Event:  "hit",
				Actors: []string{"attacker"},
				Item:   "weapon",
				Handle: "heal(actor)",
			}},
			Tickers: []ir.TickerSpec{{
				ID:       "aura",
				Interval: 2,
				Pre:      "aura_on()",
				Handle:   "aura()",
				Post:     "aura_off()",
			}},
		},
	}
}

func TestEnable_BindsListenersAndTickers(t *testing.T) {
	f := newFixture(t, lifesteal())

	listeners, tickers := f.trigger.Enable()
	assert.Equal(t, 1, listeners)
	assert.Equal(t, 1, tickers)
	assert.Equal(t, []string{"lifesteal:on-hit"}, f.dispatcher.Listeners())

	entries := f.scheduler.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, tick.Entry{Effect: "lifesteal", Ticker: "aura", Interval: 2, Priority: 2}, stripSeq(entries[0]))

	assert.ElementsMatch(t, []string{"heal(actor)", "aura_on()", "aura()", "aura_off()"}, f.recorder.Preheated())
}

func stripSeq(e tick.Entry) tick.Entry {
	return tick.Entry{Effect: e.Effect, Ticker: e.Ticker, Interval: e.Interval, Priority: e.Priority}
}

func TestEventExecutor_InvokesWithContext(t *testing.T) {
	f := newFixture(t, lifesteal())
	f.trigger.Enable()

	steve := testutil.NewActor("steve", "overworld").Grant("glyph.lifesteal")
	sword := testutil.NewItem("sword-1", "DIAMOND_SWORD").Apply("lifesteal", 3)

	ev := &hitEvent{attacker: steve, weapon: sword}
	f.dispatcher.Dispatch(context.Background(), "hit", ev)

	calls := f.recorder.Calls()
	require.Len(t, calls, 1)
	call := calls[0]
	assert.Equal(t, "heal(actor)", call.Source)
	assert.Equal(t, "steve", call.Actor)
	assert.Equal(t, "6", call.Vars["heal"])
	assert.Equal(t, 3, call.Vars[VarLevel])
	assert.Same(t, ev, call.Vars[VarEvent])
	assert.Equal(t, "hit", call.Vars[VarEventName])
	assert.Equal(t, "tok", call.Vars[VarToken])
	assert.Equal(t, "lifesteal", call.Vars[VarEffect])
	assert.Same(t, sword, call.Vars[VarItem])
}

func TestEventExecutor_LuaHandlerChangesEvent(t *testing.T) {
	spec := lifesteal()
	spec.Trigger.Listeners[0].Handle = "event.damage = event.damage - heal"
	spec.Trigger.Tickers = nil
	f := newFixture(t, spec)
	f.trigger.env.Scripts.Register(script.DefaultType, script.NewLuaExecutor(nil))
	f.trigger.Enable()

	steve := testutil.NewActor("steve", "overworld").Grant("glyph.lifesteal")
	sword := testutil.NewItem("sword-1", "DIAMOND_SWORD").Apply("lifesteal", 2)

	ev := &hitEvent{attacker: steve, weapon: sword, damage: 10}
	f.dispatcher.Dispatch(context.Background(), "hit", ev)

	assert.Equal(t, 6.0, ev.damage)
}

func TestEventExecutor_DropsUnusableItems(t *testing.T) {
	f := newFixture(t, lifesteal())
	f.trigger.Enable()

	granted := testutil.NewActor("steve", "overworld").Grant("glyph.lifesteal")
	plain := testutil.NewActor("alex", "overworld")

	ctx := context.Background()
	// No effect on the item.
	f.dispatcher.Dispatch(ctx, "hit", &hitEvent{attacker: granted, weapon: testutil.NewItem("s", "DIAMOND_SWORD")})
	// Missing permission.
	f.dispatcher.Dispatch(ctx, "hit", &hitEvent{attacker: plain, weapon: testutil.NewItem("s", "DIAMOND_SWORD").Apply("lifesteal", 1)})
	// Wrong target type.
	f.dispatcher.Dispatch(ctx, "hit", &hitEvent{attacker: granted, weapon: testutil.NewItem("b", "BOW").Apply("lifesteal", 1)})

	assert.Empty(t, f.recorder.Calls())
}

func TestTicker_Lifecycle(t *testing.T) {
	f := newFixture(t, lifesteal())
	f.trigger.Enable()

	steve := testutil.NewActor("steve", "overworld").Grant("glyph.lifesteal")
	f.world.Join(steve)
	sword := testutil.NewItem("sword-1", "DIAMOND_SWORD").Apply("lifesteal", 1)
	f.world.Equip(steve, ir.SlotHand, sword)

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		f.scheduler.Step(ctx)
	}
	f.world.Equip(steve, ir.SlotHand, nil)
	f.scheduler.Step(ctx)
	f.scheduler.Step(ctx)

	assert.Equal(t, []string{"aura_on()", "aura()", "aura()", "aura_off()"}, f.recorder.Sources())

	calls := f.recorder.Calls()
	assert.Equal(t, "pre", calls[0].Vars[VarPhase])
	assert.Equal(t, "HAND", calls[1].Vars[VarSlot])
	assert.Equal(t, "post", calls[3].Vars[VarPhase])
	assert.Equal(t, 0, calls[3].Vars[VarLevel])
}

func TestTicker_SlotsFromTargets(t *testing.T) {
	f := newFixture(t, lifesteal())
	tk, ok := f.trigger.Ticker("aura")
	require.True(t, ok)
	assert.Equal(t, []ir.Slot{ir.SlotHand}, tk.Slots())
	assert.Equal(t, 2, tk.Interval())
	assert.Equal(t, "aura", tk.ID())

	_, ok = f.trigger.Ticker("missing")
	assert.False(t, ok)
}

func TestDispose(t *testing.T) {
	f := newFixture(t, lifesteal())
	f.trigger.Enable()

	f.trigger.Dispose()
	f.trigger.Dispose()

	assert.Empty(t, f.dispatcher.Listeners())
	assert.Empty(t, f.scheduler.Entries())

	steve := testutil.NewActor("steve", "overworld").Grant("glyph.lifesteal")
	sword := testutil.NewItem("sword-1", "DIAMOND_SWORD").Apply("lifesteal", 1)
	f.dispatcher.Dispatch(context.Background(), "hit", &hitEvent{attacker: steve, weapon: sword})
	assert.Empty(t, f.recorder.Calls())
}

func TestEnable_UnknownEventSkipsListenerOnly(t *testing.T) {
	effect := lifesteal()
	effect.Trigger.Listeners = append(effect.Trigger.Listeners, ir.ListenerSpec{Name: "on-fly", Event: "fly", Handle: "x()"})
	effect.Trigger.Tickers = append(effect.Trigger.Tickers, ir.TickerSpec{ID: "broken", Interval: 0, Handle: "y()"})
	f := newFixture(t, effect)

	listeners, tickers := f.trigger.Enable()
	assert.Equal(t, 1, listeners)
	assert.Equal(t, 1, tickers)
	assert.Equal(t, []string{"lifesteal:on-hit", "lifesteal:on-fly"}, f.trigger.Listeners())
}

func TestEnable_Twice(t *testing.T) {
	f := newFixture(t, lifesteal())
	f.trigger.Enable()
	f.trigger.Enable()
	assert.Equal(t, []string{"lifesteal:on-hit"}, f.dispatcher.Listeners())
	assert.Len(t, f.scheduler.Entries(), 1)
}

func TestScriptFailureDoesNotStopDispatch(t *testing.T) {
	f := newFixture(t, lifesteal())
	f.recorder.FailWith("heal(actor)", errors.New("boom"))
	f.trigger.Enable()

	steve := testutil.NewActor("steve", "overworld").Grant("glyph.lifesteal")
	sword := testutil.NewItem("sword-1", "DIAMOND_SWORD").Apply("lifesteal", 1)

	f.dispatcher.Dispatch(context.Background(), "hit", &hitEvent{attacker: steve, weapon: sword})
	f.dispatcher.Dispatch(context.Background(), "hit", &hitEvent{attacker: steve, weapon: sword})
	assert.Equal(t, 2, f.recorder.Count("heal(actor)"))
}

func TestDescribe(t *testing.T) {
	f := newFixture(t, lifesteal())
	assert.Equal(t, []string{"listener on-hit on hit (LOWEST)", "ticker aura"}, f.trigger.Describe())
	assert.Equal(t, 2, f.trigger.TickPriority())
	assert.Equal(t, []string{"aura"}, f.trigger.Tickers())
}
