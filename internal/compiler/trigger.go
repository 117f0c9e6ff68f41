package compiler

import (
	"cuelang.org/go/cue"

	"github.com/roach88/glyph/internal/ir"
)

// compileTrigger parses an effect's trigger block: tick priority, event
// listeners and tickers, each keyed by name in declaration order.
func compileTrigger(v cue.Value) (*ir.TriggerSpec, error) {
	trigger := &ir.TriggerSpec{}

	var err error
	if trigger.TickPriority, err = intField(v, "tick_priority", 0); err != nil {
		return nil, err
	}

	err = eachField(v, "listeners", func(name string, lv cue.Value) error {
		l, err := compileListener(name, lv)
		if err != nil {
			return err
		}
		trigger.Listeners = append(trigger.Listeners, l)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = eachField(v, "tickers", func(id string, tv cue.Value) error {
		t, err := compileTicker(id, tv)
		if err != nil {
			return err
		}
		trigger.Tickers = append(trigger.Tickers, t)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return trigger, nil
}

func compileListener(name string, v cue.Value) (ir.ListenerSpec, error) {
	l := ir.ListenerSpec{Name: name}
	var err error

	if l.Event, err = stringField(v, "event"); err != nil {
		return l, err
	}

	priority, err := stringField(v, "priority")
	if err != nil {
		return l, err
	}
	if l.Priority, err = ir.ParsePriority(priority); err != nil {
		return l, &CompileError{
			Field:   "priority",
			Message: err.Error(),
			Pos:     v.LookupPath(cue.ParsePath("priority")).Pos(),
		}
	}

	if l.IgnoreCancelled, err = boolField(v, "ignore_cancelled"); err != nil {
		return l, err
	}
	if l.Slots, err = slotList(v, "slots"); err != nil {
		return l, err
	}
	if l.Actors, err = stringList(v, "actors"); err != nil {
		return l, err
	}
	if l.Item, err = stringField(v, "item"); err != nil {
		return l, err
	}
	if l.ScriptType, err = stringField(v, "script"); err != nil {
		return l, err
	}
	if l.Handle, err = stringField(v, "handle"); err != nil {
		return l, err
	}
	return l, nil
}

func compileTicker(id string, v cue.Value) (ir.TickerSpec, error) {
	t := ir.TickerSpec{ID: id}
	var err error

	ival := v.LookupPath(cue.ParsePath("interval"))
	if !ival.Exists() {
		return t, &CompileError{
			Field:   "interval",
			Message: "interval is required",
			Pos:     v.Pos(),
		}
	}
	if t.Interval, err = intValue(ival); err != nil {
		return t, err
	}

	if t.ScriptType, err = stringField(v, "script"); err != nil {
		return t, err
	}
	if t.Pre, err = stringField(v, "pre"); err != nil {
		return t, err
	}
	if t.Handle, err = stringField(v, "handle"); err != nil {
		return t, err
	}
	if t.Post, err = stringField(v, "post"); err != nil {
		return t, err
	}
	return t, nil
}
