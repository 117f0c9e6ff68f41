package trigger

import (
	"context"

	"github.com/roach88/glyph/internal/dispatch"
	"github.com/roach88/glyph/internal/host"
	"github.com/roach88/glyph/internal/ir"
	"github.com/roach88/glyph/internal/tick"
)

// EventExecutor runs one listener's handle script for matched occurrences.
type EventExecutor struct {
	trigger *Trigger
	spec    ir.ListenerSpec
}

// Mapping converts the listener declaration into a dispatch mapping.
func (ex *EventExecutor) Mapping() dispatch.Mapping {
	return dispatch.Mapping{
		Event:           ex.spec.Event,
		Slots:           ex.spec.Slots,
		ActorPaths:      ex.spec.Actors,
		ItemPath:        ex.spec.Item,
		Priority:        ex.spec.Priority,
		IgnoreCancelled: ex.spec.IgnoreCancelled,
	}
}

// Handle is the dispatch.Handler for the listener. Occurrences on items
// that do not carry the effect, or that fail the active-use context, are
// dropped.
func (ex *EventExecutor) Handle(ctx context.Context, occ dispatch.Occurrence) {
	t := ex.trigger
	if !t.usable(occ.Actor, occ.Item, occ.Slot) {
		return
	}
	vars := t.vars(occ.Actor, occ.Item, occ.Slot)
	vars[VarEvent] = occ.Payload
	vars[VarEventName] = occ.Event
	vars[VarToken] = occ.Token
	t.invoke(ctx, ex.spec.ScriptType, ex.spec.Handle, occ.Actor, vars,
		"listener", ex.spec.Name, "token", occ.Token)
}

// Ticker is one periodic routine of an effect.
type Ticker struct {
	trigger *Trigger
	spec    ir.TickerSpec
}

// ID returns the ticker id.
func (tk *Ticker) ID() string {
	return tk.spec.ID
}

// Interval returns the ticker's period in steps.
func (tk *Ticker) Interval() int {
	return tk.spec.Interval
}

// Slots returns the slots in which the effect can be active. An effect
// without declared slots is checked in every slot.
func (tk *Ticker) Slots() []ir.Slot {
	if tk.trigger.env.Limits != nil {
		if slots := tk.trigger.env.Limits.Slots(); len(slots) > 0 {
			return slots
		}
	}
	return ir.AllSlots
}

func (tk *Ticker) Active(actor host.Actor, item host.Item, slot ir.Slot) bool {
	return tk.trigger.usable(actor, item, slot)
}

func (tk *Ticker) Pre(ctx context.Context, actor host.Actor, item host.Item, slot ir.Slot) {
	tk.run(ctx, "pre", tk.spec.Pre, actor, item, slot)
}

func (tk *Ticker) Handle(ctx context.Context, actor host.Actor, item host.Item, slot ir.Slot) {
	tk.run(ctx, "handle", tk.spec.Handle, actor, item, slot)
}

func (tk *Ticker) Post(ctx context.Context, actor host.Actor) {
	tk.run(ctx, "post", tk.spec.Post, actor, nil, "")
}

func (tk *Ticker) run(ctx context.Context, phase, source string, actor host.Actor, item host.Item, slot ir.Slot) {
	t := tk.trigger
	vars := t.vars(actor, item, slot)
	vars[VarPhase] = phase
	t.invoke(ctx, tk.spec.ScriptType, source, actor, vars, "ticker", tk.spec.ID, "phase", phase)
}

var _ tick.Ticker = (*Ticker)(nil)
