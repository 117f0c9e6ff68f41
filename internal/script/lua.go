package script

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/Shopify/go-lua"

	"github.com/roach88/glyph/internal/host"
)

const (
	actorTypeName = "glyph.actor"
	itemTypeName  = "glyph.item"
	eventTypeName = "glyph.event"
	chunkPrefix   = "glyph.chunk."
)

// LuaExecutor runs scripts on one embedded Lua state.
//
// Globals bound for each call: every entry of the variable map, actor (when
// given), and log(msg). Actor and item values are userdata:
//
//	actor:id()  actor:world()  actor:has_permission(node)  actor:attribute(key)
//	item:id()   item:type()    item:level(effect)
//
// A host.Event is userdata whose fields read and assign like a table:
// event.damage, event.damage = 2.
//
// Thread-safety: LuaExecutor is safe for concurrent use. Invocations are
// serialized by a mutex and complete before Invoke returns.
type LuaExecutor struct {
	mu     sync.Mutex
	state  *lua.State
	logger *slog.Logger
}

// NewLuaExecutor creates an executor with the standard libraries opened.
func NewLuaExecutor(logger *slog.Logger) *LuaExecutor {
	if logger == nil {
		logger = slog.Default()
	}
	state := lua.NewState()
	lua.OpenLibraries(state)

	e := &LuaExecutor{state: state, logger: logger}
	registerActorType(state)
	registerItemType(state)
	registerEventType(state)
	state.Register("log", e.luaLog)
	return e
}

func registerActorType(state *lua.State) {
	lua.NewMetaTable(state, actorTypeName)
	state.NewTable()
	lua.SetFunctions(state, actorMethods, 0)
	state.SetField(-2, "__index")
	state.Pop(1)
}

func registerItemType(state *lua.State) {
	lua.NewMetaTable(state, itemTypeName)
	state.NewTable()
	lua.SetFunctions(state, itemMethods, 0)
	state.SetField(-2, "__index")
	state.Pop(1)
}

func registerEventType(state *lua.State) {
	lua.NewMetaTable(state, eventTypeName)
	state.PushGoFunction(eventIndex)
	state.SetField(-2, "__index")
	state.PushGoFunction(eventNewIndex)
	state.SetField(-2, "__newindex")
	state.Pop(1)
}

var actorMethods = []lua.RegistryFunction{
	{Name: "id", Function: actorID},
	{Name: "world", Function: actorWorld},
	{Name: "has_permission", Function: actorHasPermission},
	{Name: "attribute", Function: actorAttribute},
}

var itemMethods = []lua.RegistryFunction{
	{Name: "id", Function: itemID},
	{Name: "type", Function: itemType},
	{Name: "level", Function: itemLevel},
}

func checkActor(state *lua.State) host.Actor {
	actor, ok := lua.CheckUserData(state, 1, actorTypeName).(host.Actor)
	if !ok {
		lua.Errorf(state, "expected actor")
	}
	return actor
}

func checkItem(state *lua.State) host.Item {
	item, ok := lua.CheckUserData(state, 1, itemTypeName).(host.Item)
	if !ok {
		lua.Errorf(state, "expected item")
	}
	return item
}

func actorID(state *lua.State) int {
	state.PushString(checkActor(state).ID())
	return 1
}

func actorWorld(state *lua.State) int {
	state.PushString(checkActor(state).World())
	return 1
}

func actorHasPermission(state *lua.State) int {
	actor := checkActor(state)
	state.PushBoolean(actor.HasPermission(lua.CheckString(state, 2)))
	return 1
}

func actorAttribute(state *lua.State) int {
	actor := checkActor(state)
	pushValue(state, actor.Attributes()[lua.CheckString(state, 2)])
	return 1
}

func itemID(state *lua.State) int {
	state.PushString(checkItem(state).ID())
	return 1
}

func itemType(state *lua.State) int {
	state.PushString(checkItem(state).Type())
	return 1
}

func itemLevel(state *lua.State) int {
	item := checkItem(state)
	state.PushInteger(item.Effects()[lua.CheckString(state, 2)])
	return 1
}

func checkEvent(state *lua.State) host.Event {
	ev, ok := lua.CheckUserData(state, 1, eventTypeName).(host.Event)
	if !ok {
		lua.Errorf(state, "expected event")
	}
	return ev
}

func eventIndex(state *lua.State) int {
	ev := checkEvent(state)
	v, ok := ev.Field(lua.CheckString(state, 2))
	if !ok {
		state.PushNil()
		return 1
	}
	pushValue(state, v)
	return 1
}

func eventNewIndex(state *lua.State) int {
	ev := checkEvent(state)
	name := lua.CheckString(state, 2)
	if err := ev.SetField(name, toValue(state, 3)); err != nil {
		lua.Errorf(state, "event.%s: %s", name, err.Error())
	}
	return 0
}

func (e *LuaExecutor) luaLog(state *lua.State) int {
	msg := lua.CheckString(state, 1)
	e.logger.Info("script log", "message", msg)
	return 0
}

// Invoke runs source and returns a completed Future holding the script's
// first return value.
func (e *LuaExecutor) Invoke(ctx context.Context, source string, actor host.Actor, vars map[string]any) *Future {
	if err := ctx.Err(); err != nil {
		return Completed(nil, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	state := e.state
	state.SetTop(0)

	names := make([]string, 0, len(vars)+1)
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		pushValue(state, vars[name])
		state.SetGlobal(name)
	}
	if actor != nil {
		pushValue(state, actor)
		state.SetGlobal("actor")
		names = append(names, "actor")
	}
	defer func() {
		for _, name := range names {
			state.PushNil()
			state.SetGlobal(name)
		}
		state.SetTop(0)
	}()

	if err := e.load(source); err != nil {
		e.logger.Error("script compilation failed", "error", err)
		return Completed(nil, err)
	}
	if err := state.ProtectedCall(0, 1, 0); err != nil {
		err = fmt.Errorf("run script: %w", err)
		e.logger.Error("script execution failed", "error", err)
		return Completed(nil, err)
	}
	return Completed(toValue(state, -1), nil)
}

// Preheat compiles source into the chunk cache.
func (e *LuaExecutor) Preheat(source string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.load(source); err != nil {
		return err
	}
	e.state.Pop(1)
	return nil
}

// load pushes the compiled chunk for source, compiling it on first use.
// Compiled chunks are kept in the Lua registry.
func (e *LuaExecutor) load(source string) error {
	state := e.state
	sum := sha256.Sum256([]byte(source))
	key := chunkPrefix + hex.EncodeToString(sum[:8])

	top := state.Top()
	state.Field(lua.RegistryIndex, key)
	if state.TypeOf(-1) == lua.TypeFunction {
		return nil
	}
	state.SetTop(top)

	if err := lua.LoadString(state, source); err != nil {
		state.SetTop(top)
		return fmt.Errorf("compile script: %w", err)
	}
	state.PushValue(-1)
	state.SetField(lua.RegistryIndex, key)
	return nil
}

// pushValue pushes a Go value as its closest Lua counterpart.
func pushValue(state *lua.State, v any) {
	switch val := v.(type) {
	case nil:
		state.PushNil()
	case bool:
		state.PushBoolean(val)
	case string:
		state.PushString(val)
	case int:
		state.PushInteger(val)
	case int64:
		state.PushNumber(float64(val))
	case float64:
		state.PushNumber(val)
	case float32:
		state.PushNumber(float64(val))
	case host.Actor:
		state.PushUserData(val)
		lua.SetMetaTableNamed(state, actorTypeName)
	case host.Item:
		state.PushUserData(val)
		lua.SetMetaTableNamed(state, itemTypeName)
	case host.Event:
		state.PushUserData(val)
		lua.SetMetaTableNamed(state, eventTypeName)
	case map[string]any:
		state.NewTable()
		for k, item := range val {
			pushValue(state, item)
			state.SetField(-2, k)
		}
	case []any:
		state.NewTable()
		for i, item := range val {
			pushValue(state, item)
			state.RawSetInt(-2, i+1)
		}
	case fmt.Stringer:
		state.PushString(val.String())
	default:
		state.PushString(fmt.Sprint(val))
	}
}

// toValue converts the Lua value at index into a Go value. Tables become
// map[string]any; userdata is returned as its Go payload.
func toValue(state *lua.State, index int) any {
	switch state.TypeOf(index) {
	case lua.TypeBoolean:
		return state.ToBoolean(index)
	case lua.TypeNumber:
		n, _ := state.ToNumber(index)
		return n
	case lua.TypeString:
		s, _ := state.ToString(index)
		return s
	case lua.TypeUserData:
		return state.ToUserData(index)
	case lua.TypeTable:
		out := make(map[string]any)
		index = state.AbsIndex(index)
		state.PushNil()
		for state.Next(index) {
			var key string
			switch state.TypeOf(-2) {
			case lua.TypeString:
				key, _ = state.ToString(-2)
			case lua.TypeNumber:
				n, _ := state.ToNumber(-2)
				key = fmt.Sprint(n)
			default:
				state.Pop(1)
				continue
			}
			out[key] = toValue(state, -1)
			state.Pop(1)
		}
		return out
	default:
		return nil
	}
}
