// Package host declares the collaborators the engine calls into: the acting
// entities, their items, equipment lookup and per-item persisted storage.
//
// Implementations live outside the core: adapters for a concrete simulation,
// internal/store for SQLite-backed item storage, and internal/testutil for
// in-memory doubles.
package host

import "github.com/roach88/glyph/internal/ir"

// Actor is the acting entity the engine evaluates and affects.
type Actor interface {
	// ID is stable for the lifetime of the actor.
	ID() string
	// World names the world the actor currently stands in.
	World() string
	// HasPermission reports whether the actor holds a permission node.
	HasPermission(node string) bool
	// Attributes exposes named facts for predicate expressions.
	Attributes() map[string]any
}

// Item is a held or worn item that may carry applied effects.
type Item interface {
	// ID identifies the item instance for persisted storage.
	ID() string
	// Type is the item type name (e.g. "DIAMOND_SWORD").
	Type() string
	// Effects maps applied effect id to level.
	Effects() map[string]int
}

// ActorSource enumerates every currently active actor.
type ActorSource interface {
	Actors() []Actor
}

// Equipment resolves the item an actor holds in a slot.
// A nil item with a nil error means the slot is empty. Errors are platform
// failures local to one lookup.
type Equipment interface {
	ItemIn(actor Actor, slot ir.Slot) (Item, error)
}

// ItemStorage reads and writes per-item persisted slots.
//
// Data/SetData use the normal per-item store. Raw/SetRaw address a
// lower-level raw storage path of the item.
type ItemStorage interface {
	Data(item Item, key string) (string, bool, error)
	SetData(item Item, key, value string) error
	Raw(item Item, path string) (string, bool, error)
	SetRaw(item Item, path, value string) error
}

// Event is an external event payload whose fields scripts can read and
// write. SetField fails for unknown or read-only fields.
type Event interface {
	Field(name string) (any, bool)
	SetField(name string, value any) error
}

// Platform bundles the collaborators a running engine needs.
type Platform interface {
	ActorSource
	Equipment
}

// BookTypes are generic placeholder item types that accept any effect
// outside of active use.
var BookTypes = map[string]bool{
	"BOOK":           true,
	"ENCHANTED_BOOK": true,
}

// IsBook reports whether the item is a generic book placeholder.
func IsBook(item Item) bool {
	return item != nil && BookTypes[item.Type()]
}
