// Package dispatch binds an open set of external event types to listeners.
//
// Adapter code registers a Resolver per event type name; the engine only
// knows names. A listener declares which event it wants through a Mapping
// and receives one Occurrence per resolved (actor, item) pair.
package dispatch

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/roach88/glyph/internal/host"
	"github.com/roach88/glyph/internal/ir"
)

// Mapping declares how one listener attaches to an external event type.
type Mapping struct {
	// Event is the external event type name.
	Event string

	// Slots restricts matches to these slots. Empty means every slot.
	Slots []ir.Slot

	// ActorPaths are the field paths resolving acting entities, tried in
	// order. Empty means one lookup with an empty path.
	ActorPaths []string

	// ItemPath resolves the item. Empty means the actor's equipment in the
	// relevant slots is scanned instead.
	ItemPath string

	Priority        ir.Priority
	IgnoreCancelled bool
}

func (m Mapping) allows(slot ir.Slot) bool {
	if slot == "" || len(m.Slots) == 0 {
		return true
	}
	for _, s := range m.Slots {
		if s == slot {
			return true
		}
	}
	return false
}

func (m Mapping) scanSlots() []ir.Slot {
	if len(m.Slots) == 0 {
		return ir.AllSlots
	}
	return m.Slots
}

// Occurrence is one resolved match of an external event for a listener.
type Occurrence struct {
	Token    string
	Listener string
	Event    string
	Path     string
	Actor    host.Actor
	Item     host.Item
	Slot     ir.Slot
	Payload  any
}

// Handler receives occurrences. Handlers fire their work and return; they
// must not block on script completion.
type Handler func(ctx context.Context, occ Occurrence)

type listener struct {
	name     string
	mapping  Mapping
	handler  Handler
	resolver anyResolver
	seq      int
}

// Dispatcher routes external events to registered listeners.
//
// Thread-safety: Dispatcher is safe for concurrent use. Dispatch takes a
// snapshot of the listener table, so handlers may register or destroy
// listeners without deadlocking.
type Dispatcher struct {
	mu        sync.RWMutex
	listeners map[string]*listener
	byEvent   map[string][]*listener
	seq       int

	resolvers *Resolvers
	equipment host.Equipment
	tokens    TokenGenerator
	logger    *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithEquipment sets the equipment lookup used when a mapping has no item path.
func WithEquipment(eq host.Equipment) Option {
	return func(d *Dispatcher) {
		d.equipment = eq
	}
}

// WithTokens sets the correlation token generator. Defaults to UUIDv7Generator.
func WithTokens(g TokenGenerator) Option {
	return func(d *Dispatcher) {
		d.tokens = g
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = l
	}
}

// New creates a dispatcher over a resolver table.
func New(resolvers *Resolvers, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		listeners: make(map[string]*listener),
		byEvent:   make(map[string][]*listener),
		resolvers: resolvers,
		tokens:    UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.resolvers == nil {
		d.resolvers = NewResolvers()
	}
	return d
}

func (d *Dispatcher) log() *slog.Logger {
	if d.logger != nil {
		return d.logger
	}
	return slog.Default()
}

// Resolvers returns the resolver table.
func (d *Dispatcher) Resolvers() *Resolvers {
	return d.resolvers
}

// RegisterListener registers handler under name. Registering an existing
// name replaces it. An unknown event type is logged and reported as a
// RegistrationError; the listener stays unregistered.
func (d *Dispatcher) RegisterListener(name string, m Mapping, handler Handler) error {
	if name == "" {
		return newInvalidListenerError(name, "listener name is empty")
	}
	if handler == nil {
		return newInvalidListenerError(name, "listener handler is nil")
	}

	resolver, ok := d.resolvers.lookup(m.Event)
	if !ok {
		err := newUnknownEventError(name, m.Event)
		d.log().Warn("listener registration skipped", "listener", name, "event", m.Event, "error", err)
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.remove(name)
	d.seq++
	l := &listener{name: name, mapping: m, handler: handler, resolver: resolver, seq: d.seq}
	d.listeners[name] = l

	list := append(d.byEvent[m.Event], l)
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].mapping.Priority != list[j].mapping.Priority {
			return list[i].mapping.Priority < list[j].mapping.Priority
		}
		return list[i].seq < list[j].seq
	})
	d.byEvent[m.Event] = list

	d.log().Debug("listener registered", "listener", name, "event", m.Event, "priority", m.Priority.String())
	return nil
}

// DestroyListener unregisters one listener. It reports whether one existed.
func (d *Dispatcher) DestroyListener(name string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.remove(name)
}

// DestroyListeners unregisters every listener and returns how many existed.
func (d *Dispatcher) DestroyListeners() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := len(d.listeners)
	d.listeners = make(map[string]*listener)
	d.byEvent = make(map[string][]*listener)
	return n
}

func (d *Dispatcher) remove(name string) bool {
	l, ok := d.listeners[name]
	if !ok {
		return false
	}
	delete(d.listeners, name)

	list := d.byEvent[l.mapping.Event]
	for i, other := range list {
		if other == l {
			list = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(d.byEvent, l.mapping.Event)
	} else {
		d.byEvent[l.mapping.Event] = list
	}
	return true
}

// Listeners returns registered listener names, sorted.
func (d *Dispatcher) Listeners() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.listeners))
	for name := range d.listeners {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Dispatch delivers one occurrence of an external event to every listener
// mapped to eventName, in ascending priority order. It returns the
// correlation token shared by every resulting Occurrence.
func (d *Dispatcher) Dispatch(ctx context.Context, eventName string, event any) string {
	d.mu.RLock()
	list := append([]*listener(nil), d.byEvent[eventName]...)
	d.mu.RUnlock()

	if len(list) == 0 {
		return ""
	}
	token := d.tokens.Generate()

	for _, l := range list {
		if ctx.Err() != nil {
			return token
		}
		d.deliver(ctx, token, l, eventName, event)
	}
	return token
}

func (d *Dispatcher) deliver(ctx context.Context, token string, l *listener, eventName string, event any) {
	if !l.resolver.accepts(event) {
		d.log().Debug("event type mismatch", "listener", l.name, "event", eventName, "want", l.resolver.typeName())
		return
	}
	if l.mapping.IgnoreCancelled {
		if c, ok := event.(Cancellable); ok && c.Cancelled() {
			d.log().Debug("cancelled event skipped", "listener", l.name, "event", eventName, "token", token)
			return
		}
	}

	l.resolver.event(event)

	var eventSlot ir.Slot
	if s, ok := event.(Slotted); ok {
		eventSlot = s.Slot()
	}
	if !l.mapping.allows(eventSlot) {
		return
	}

	paths := l.mapping.ActorPaths
	if len(paths) == 0 {
		paths = []string{""}
	}

	for _, path := range paths {
		actor, ok := l.resolver.entity(event, path)
		if !ok || actor == nil {
			continue
		}

		occ := Occurrence{
			Token:    token,
			Listener: l.name,
			Event:    eventName,
			Path:     path,
			Actor:    actor,
			Payload:  event,
		}

		if l.mapping.ItemPath != "" {
			item, ok := l.resolver.item(event, l.mapping.ItemPath, actor)
			if !ok || item == nil {
				continue
			}
			occ.Item = item
			occ.Slot = eventSlot
			l.handler(ctx, occ)
			continue
		}

		d.scan(ctx, l, occ, eventSlot)
	}
}

// scan delivers one occurrence per occupied relevant slot of the actor. An
// event that reports its own slot is scanned in that slot only.
func (d *Dispatcher) scan(ctx context.Context, l *listener, occ Occurrence, eventSlot ir.Slot) {
	if d.equipment == nil {
		return
	}
	slots := l.mapping.scanSlots()
	if eventSlot != "" {
		slots = []ir.Slot{eventSlot}
	}
	for _, slot := range slots {
		item, err := d.equipment.ItemIn(occ.Actor, slot)
		if err != nil {
			d.log().Debug("slot lookup failed", "listener", l.name, "actor", occ.Actor.ID(), "slot", string(slot), "error", err)
			continue
		}
		if item == nil {
			continue
		}
		o := occ
		o.Item = item
		o.Slot = slot
		l.handler(ctx, o)
	}
}
