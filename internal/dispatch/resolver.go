package dispatch

import (
	"fmt"
	"sort"
	"sync"

	"github.com/roach88/glyph/internal/host"
	"github.com/roach88/glyph/internal/ir"
)

// Cancellable is implemented by events that can be cancelled by an earlier
// listener or by the host.
type Cancellable interface {
	Cancelled() bool
}

// Slotted is implemented by events that know which equipment slot they
// concern.
type Slotted interface {
	Slot() ir.Slot
}

// Resolver extracts engine facts from one external event type T.
//
// Entity resolves the acting entity at a field path; Event is a side-effect
// hook run once per listener before extraction; Item resolves the item at a
// field path for an already resolved actor. Any function may be nil: a nil
// Entity or Item never matches, a nil Event does nothing.
type Resolver[T any] struct {
	Entity func(event T, path string) (host.Actor, bool)
	Event  func(event T)
	Item   func(event T, path string, actor host.Actor) (host.Item, bool)
}

// anyResolver is a Resolver with its type parameter erased.
type anyResolver interface {
	accepts(event any) bool
	entity(event any, path string) (host.Actor, bool)
	event(event any)
	item(event any, path string, actor host.Actor) (host.Item, bool)
	typeName() string
}

func (r Resolver[T]) accepts(event any) bool {
	_, ok := event.(T)
	return ok
}

func (r Resolver[T]) entity(event any, path string) (host.Actor, bool) {
	e, ok := event.(T)
	if !ok || r.Entity == nil {
		return nil, false
	}
	return r.Entity(e, path)
}

func (r Resolver[T]) event(event any) {
	if e, ok := event.(T); ok && r.Event != nil {
		r.Event(e)
	}
}

func (r Resolver[T]) item(event any, path string, actor host.Actor) (host.Item, bool) {
	e, ok := event.(T)
	if !ok || r.Item == nil {
		return nil, false
	}
	return r.Item(e, path, actor)
}

func (r Resolver[T]) typeName() string {
	var zero T
	return fmt.Sprintf("%T", zero)
}

// Resolvers maps event type names to resolvers. Adapter code outside the
// engine populates it.
//
// Thread-safety: Resolvers is safe for concurrent use.
type Resolvers struct {
	mu        sync.RWMutex
	resolvers map[string]anyResolver
	factories map[string]func() anyResolver
}

// NewResolvers creates an empty resolver table.
func NewResolvers() *Resolvers {
	return &Resolvers{
		resolvers: make(map[string]anyResolver),
		factories: make(map[string]func() anyResolver),
	}
}

// Register binds an event type name to a resolver, replacing any previous one.
func Register[T any](rs *Resolvers, name string, r Resolver[T]) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.resolvers[name] = r
	delete(rs.factories, name)
}

// RegisterLazy binds an event type name to a resolver built on first lookup.
func RegisterLazy[T any](rs *Resolvers, name string, build func() Resolver[T]) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	delete(rs.resolvers, name)
	rs.factories[name] = func() anyResolver { return build() }
}

// lookup returns the resolver for name, building a lazy one if needed.
func (rs *Resolvers) lookup(name string) (anyResolver, bool) {
	rs.mu.RLock()
	r, ok := rs.resolvers[name]
	build, lazy := rs.factories[name]
	rs.mu.RUnlock()
	if ok {
		return r, true
	}
	if !lazy {
		return nil, false
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()
	if r, ok := rs.resolvers[name]; ok {
		return r, true
	}
	r = build()
	rs.resolvers[name] = r
	delete(rs.factories, name)
	return r, true
}

// Has reports whether name has a resolver, eager or lazy.
func (rs *Resolvers) Has(name string) bool {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	_, ok := rs.resolvers[name]
	_, lazy := rs.factories[name]
	return ok || lazy
}

// Names returns every event type name with a resolver, sorted.
func (rs *Resolvers) Names() []string {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	out := make([]string, 0, len(rs.resolvers)+len(rs.factories))
	for name := range rs.resolvers {
		out = append(out, name)
	}
	for name := range rs.factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
