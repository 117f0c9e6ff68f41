package testutil

import (
	"maps"
	"sort"
	"sync"

	"github.com/roach88/glyph/internal/host"
	"github.com/roach88/glyph/internal/ir"
)

// Actor is an in-memory host.Actor.
type Actor struct {
	mu          sync.RWMutex
	id          string
	world       string
	permissions map[string]bool
	attributes  map[string]any
}

// NewActor creates an actor standing in world.
func NewActor(id, world string) *Actor {
	return &Actor{
		id:          id,
		world:       world,
		permissions: make(map[string]bool),
		attributes:  make(map[string]any),
	}
}

// Grant gives the actor permission nodes.
func (a *Actor) Grant(nodes ...string) *Actor {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, n := range nodes {
		a.permissions[n] = true
	}
	return a
}

// Set sets a predicate attribute.
func (a *Actor) Set(key string, value any) *Actor {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.attributes[key] = value
	return a
}

// MoveTo changes the actor's world.
func (a *Actor) MoveTo(world string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.world = world
}

func (a *Actor) ID() string { return a.id }

func (a *Actor) World() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.world
}

func (a *Actor) HasPermission(node string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.permissions[node]
}

func (a *Actor) Attributes() map[string]any {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return maps.Clone(a.attributes)
}

// Item is an in-memory host.Item.
type Item struct {
	mu      sync.RWMutex
	id      string
	typ     string
	applied map[string]int
}

// NewItem creates an item of the given type with no effects.
func NewItem(id, typ string) *Item {
	return &Item{id: id, typ: typ, applied: make(map[string]int)}
}

// Apply sets an effect level on the item. Level 0 removes it.
func (i *Item) Apply(effect string, level int) *Item {
	i.mu.Lock()
	defer i.mu.Unlock()
	if level <= 0 {
		delete(i.applied, effect)
	} else {
		i.applied[effect] = level
	}
	return i
}

func (i *Item) ID() string   { return i.id }
func (i *Item) Type() string { return i.typ }

func (i *Item) Effects() map[string]int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return maps.Clone(i.applied)
}

// World is an in-memory host.Platform: a set of actors and what they hold.
//
// Thread-safety: World is safe for concurrent use.
type World struct {
	mu        sync.RWMutex
	actors    map[string]host.Actor
	equipment map[string]map[ir.Slot]host.Item
	failures  map[string]map[ir.Slot]error
}

// NewWorld creates an empty world.
func NewWorld() *World {
	return &World{
		actors:    make(map[string]host.Actor),
		equipment: make(map[string]map[ir.Slot]host.Item),
		failures:  make(map[string]map[ir.Slot]error),
	}
}

// Join adds actors.
func (w *World) Join(actors ...host.Actor) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, a := range actors {
		w.actors[a.ID()] = a
	}
}

// Leave removes an actor and its equipment.
func (w *World) Leave(actorID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.actors, actorID)
	delete(w.equipment, actorID)
	delete(w.failures, actorID)
}

// Equip puts an item in an actor's slot. A nil item empties the slot.
func (w *World) Equip(actor host.Actor, slot ir.Slot, item host.Item) {
	w.mu.Lock()
	defer w.mu.Unlock()
	slots, ok := w.equipment[actor.ID()]
	if !ok {
		slots = make(map[ir.Slot]host.Item)
		w.equipment[actor.ID()] = slots
	}
	if item == nil {
		delete(slots, slot)
		return
	}
	slots[slot] = item
}

// Fail makes every lookup of an actor's slot return err. A nil err clears it.
func (w *World) Fail(actor host.Actor, slot ir.Slot, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	slots, ok := w.failures[actor.ID()]
	if !ok {
		slots = make(map[ir.Slot]error)
		w.failures[actor.ID()] = slots
	}
	if err == nil {
		delete(slots, slot)
		return
	}
	slots[slot] = err
}

// Actors returns actors sorted by id.
func (w *World) Actors() []host.Actor {
	w.mu.RLock()
	defer w.mu.RUnlock()
	ids := make([]string, 0, len(w.actors))
	for id := range w.actors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]host.Actor, len(ids))
	for i, id := range ids {
		out[i] = w.actors[id]
	}
	return out
}

func (w *World) ItemIn(actor host.Actor, slot ir.Slot) (host.Item, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if err := w.failures[actor.ID()][slot]; err != nil {
		return nil, err
	}
	item, ok := w.equipment[actor.ID()][slot]
	if !ok {
		return nil, nil
	}
	return item, nil
}

// Storage is an in-memory host.ItemStorage.
type Storage struct {
	mu   sync.RWMutex
	data map[string]string
	raw  map[string]string
}

// NewStorage creates empty item storage.
func NewStorage() *Storage {
	return &Storage{data: make(map[string]string), raw: make(map[string]string)}
}

func storageKey(item host.Item, key string) string {
	return item.ID() + "\x00" + key
}

func (s *Storage) Data(item host.Item, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[storageKey(item, key)]
	return v, ok, nil
}

func (s *Storage) SetData(item host.Item, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[storageKey(item, key)] = value
	return nil
}

func (s *Storage) Raw(item host.Item, path string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.raw[storageKey(item, path)]
	return v, ok, nil
}

func (s *Storage) SetRaw(item host.Item, path, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.raw[storageKey(item, path)] = value
	return nil
}

var (
	_ host.Actor       = (*Actor)(nil)
	_ host.Item        = (*Item)(nil)
	_ host.Platform    = (*World)(nil)
	_ host.ItemStorage = (*Storage)(nil)
)
