package script

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type luaActor struct{ id, world string }

func (a luaActor) ID() string                     { return a.id }
func (a luaActor) World() string                  { return a.world }
func (a luaActor) HasPermission(node string) bool { return node == "glyph.use" }
func (a luaActor) Attributes() map[string]any     { return map[string]any{"hunger": 7} }

type luaItem struct{}

func (luaItem) ID() string              { return "i1" }
func (luaItem) Type() string            { return "DIAMOND_SWORD" }
func (luaItem) Effects() map[string]int { return map[string]int{"sharpness": 3} }

type luaEvent struct {
	damage    float64
	cancelled bool
}

func (e *luaEvent) Field(name string) (any, bool) {
	switch name {
	case "damage":
		return e.damage, true
	case "cancelled":
		return e.cancelled, true
	}
	return nil, false
}

func (e *luaEvent) SetField(name string, value any) error {
	switch name {
	case "damage":
		f, ok := value.(float64)
		if !ok {
			return errors.New("damage must be a number")
		}
		e.damage = f
		return nil
	case "cancelled":
		b, ok := value.(bool)
		if !ok {
			return errors.New("cancelled must be a boolean")
		}
		e.cancelled = b
		return nil
	}
	return errors.New("unknown field")
}

func wait(t *testing.T, f *Future) (any, error) {
	t.Helper()
	select {
	case <-f.Done():
	default:
		t.Fatal("future not completed")
	}
	return f.Wait(context.Background())
}

func TestFutureCompleteOnce(t *testing.T) {
	f := NewFuture()
	f.Complete(1, nil)
	f.Complete(2, nil)

	v, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestFutureWaitCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewFuture().Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRegistryUnknownType(t *testing.T) {
	var buf bytes.Buffer
	r := NewRegistry(slog.New(slog.NewTextHandler(&buf, nil)))

	_, err := wait(t, r.Invoke(context.Background(), "python", "print(1)", nil, nil))
	require.Error(t, err)
	assert.Contains(t, buf.String(), "unknown script type")
	assert.Error(t, r.Preheat("python", "x"))
}

func TestRegistryEmptySourceIsNoop(t *testing.T) {
	r := NewRegistry(nil)
	v, err := wait(t, r.Invoke(context.Background(), "python", "  ", nil, nil))
	require.NoError(t, err)
	assert.Nil(t, v)
	assert.NoError(t, r.Preheat("python", ""))
}

func TestRegistryDefaultType(t *testing.T) {
	r := NewRegistry(nil)
	lua := NewLuaExecutor(nil)
	r.Register("LUA", lua)

	exec, ok := r.Executor("")
	require.True(t, ok)
	assert.Same(t, lua, exec)
	assert.Equal(t, []string{"lua"}, r.Types())
}

func TestLuaReturnsValue(t *testing.T) {
	e := NewLuaExecutor(nil)

	v, err := wait(t, e.Invoke(context.Background(), "return level * 2", nil, map[string]any{"level": 3}))
	require.NoError(t, err)
	assert.Equal(t, 6.0, v)
}

func TestLuaBindsActorAndItem(t *testing.T) {
	e := NewLuaExecutor(nil)
	source := `
		return {
			id = actor:id(),
			world = actor:world(),
			allowed = actor:has_permission("glyph.use"),
			hunger = actor:attribute("hunger"),
			kind = item:type(),
			level = item:level("sharpness"),
		}
	`

	v, err := wait(t, e.Invoke(context.Background(), source, luaActor{"steve", "overworld"}, map[string]any{"item": luaItem{}}))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"id":      "steve",
		"world":   "overworld",
		"allowed": true,
		"hunger":  7.0,
		"kind":    "DIAMOND_SWORD",
		"level":   3.0,
	}, v)
}

func TestLuaEventFields(t *testing.T) {
	e := NewLuaExecutor(nil)
	ev := &luaEvent{damage: 4}
	source := `
		local before = event.damage
		event.damage = event.damage + heal
		event.cancelled = true
		return { before = before, missing = event.nothing }
	`

	v, err := wait(t, e.Invoke(context.Background(), source, nil, map[string]any{"event": ev, "heal": 3}))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"before": 4.0}, v)
	assert.Equal(t, 7.0, ev.damage)
	assert.True(t, ev.cancelled)
}

func TestLuaEventRejectsBadField(t *testing.T) {
	e := NewLuaExecutor(nil)
	ev := &luaEvent{damage: 4}

	_, err := wait(t, e.Invoke(context.Background(), `event.owner = "steve"`, nil, map[string]any{"event": ev}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown field")

	_, err = wait(t, e.Invoke(context.Background(), `event.damage = "lots"`, nil, map[string]any{"event": ev}))
	require.Error(t, err)
	assert.Equal(t, 4.0, ev.damage)
}

func TestLuaGlobalsDoNotLeak(t *testing.T) {
	e := NewLuaExecutor(nil)

	_, err := wait(t, e.Invoke(context.Background(), "return secret", nil, map[string]any{"secret": "x"}))
	require.NoError(t, err)

	v, err := wait(t, e.Invoke(context.Background(), "return secret", nil, nil))
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestLuaLog(t *testing.T) {
	var buf bytes.Buffer
	e := NewLuaExecutor(slog.New(slog.NewTextHandler(&buf, nil)))

	_, err := wait(t, e.Invoke(context.Background(), `log("hello from lua")`, nil, nil))
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "hello from lua")
}

func TestLuaErrors(t *testing.T) {
	var buf bytes.Buffer
	e := NewLuaExecutor(slog.New(slog.NewTextHandler(&buf, nil)))

	_, err := wait(t, e.Invoke(context.Background(), "return (", nil, nil))
	require.Error(t, err)
	assert.Contains(t, buf.String(), "script compilation failed")

	_, err = wait(t, e.Invoke(context.Background(), `error("boom")`, nil, nil))
	require.Error(t, err)
	assert.Contains(t, buf.String(), "script execution failed")

	// The state stays usable after failures.
	v, err := wait(t, e.Invoke(context.Background(), "return 1", nil, nil))
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)
}

func TestLuaPreheat(t *testing.T) {
	e := NewLuaExecutor(nil)
	require.NoError(t, e.Preheat("return 42"))
	assert.Error(t, e.Preheat("return ("))

	v, err := wait(t, e.Invoke(context.Background(), "return 42", nil, nil))
	require.NoError(t, err)
	assert.Equal(t, 42.0, v)
}

func TestLuaCancelledContext(t *testing.T) {
	e := NewLuaExecutor(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := wait(t, e.Invoke(ctx, "return 1", nil, nil))
	assert.ErrorIs(t, err, context.Canceled)
}
