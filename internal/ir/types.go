package ir

// Catalog is a compiled effect catalog: every rarity, target type, group and
// effect declared in one configuration tree, in declaration order.
type Catalog struct {
	Rarities []RaritySpec `json:"rarities"`
	Targets  []TargetSpec `json:"targets"`
	Groups   []GroupSpec  `json:"groups"`
	Effects  []EffectSpec `json:"effects"`
}

// RaritySpec is a weighted category effects are drawn from.
type RaritySpec struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Weight int    `json:"weight"`
}

// TargetSpec describes a target type: the item types it covers, the slots in
// which an item of this type is considered active, and how many effects an
// item of this type may carry.
type TargetSpec struct {
	ID       string   `json:"id"`
	Items    []string `json:"items"`
	Slots    []Slot   `json:"slots"`
	Capacity int      `json:"capacity"` // 0 means "use the engine default"
}

// HasItem reports whether itemType belongs to this target type.
func (t TargetSpec) HasItem(itemType string) bool {
	for _, it := range t.Items {
		if it == itemType {
			return true
		}
	}
	return false
}

// HasSlot reports whether slot is one of this target type's active slots.
func (t TargetSpec) HasSlot(slot Slot) bool {
	for _, s := range t.Slots {
		if s == slot {
			return true
		}
	}
	return false
}

// GroupSpec is a named set of effects with a coexistence limit.
type GroupSpec struct {
	ID         string   `json:"id"`
	Effects    []string `json:"effects"`
	MaxCoexist int      `json:"max_coexist"`
}

// HasEffect reports whether the effect is a member of the group.
func (g GroupSpec) HasEffect(effectID string) bool {
	for _, e := range g.Effects {
		if e == effectID {
			return true
		}
	}
	return false
}

// EffectSpec is one enchantment-like rule bundle.
type EffectSpec struct {
	ID                      string        `json:"id"`
	Name                    string        `json:"name"`
	MaxLevel                int           `json:"max_level"`
	Rarity                  string        `json:"rarity"`
	Targets                 []string      `json:"targets"`
	Disabled                bool          `json:"disabled"`
	ConflictsWithEverything bool          `json:"conflicts_with_everything"`
	Variables               VariablesSpec `json:"variables"`
	Limitations             []string      `json:"limitations"` // raw "KIND:value" lines
	Trigger                 *TriggerSpec  `json:"trigger,omitempty"`
}

// VariablesSpec holds the configuration-defined variable kinds of an effect.
// Custom variables are registered programmatically and never appear here.
type VariablesSpec struct {
	Leveled    []LeveledSpec    `json:"leveled"`
	Modifiable []ModifiableSpec `json:"modifiable"`
	Ordinary   []OrdinarySpec   `json:"ordinary"`
}

// LeveledSpec is a formula variable selected by level tier.
type LeveledSpec struct {
	Name  string     `json:"name"`
	Unit  string     `json:"unit"`
	Tiers []TierSpec `json:"tiers"` // ascending by MinLevel
}

// TierSpec is one (min-level, formula) pair.
type TierSpec struct {
	MinLevel int    `json:"min_level"`
	Formula  string `json:"formula"`
}

// ModifiableSpec is a variable persisted on the item under Key.
type ModifiableSpec struct {
	Name    string `json:"name"`
	Key     string `json:"key"`
	Default string `json:"default"`
}

// OrdinarySpec is a constant variable.
type OrdinarySpec struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// TriggerSpec binds scripted behavior to external events and to the tick clock.
type TriggerSpec struct {
	TickPriority int            `json:"tick_priority"`
	Listeners    []ListenerSpec `json:"listeners"`
	Tickers      []TickerSpec   `json:"tickers"`
}

// ListenerSpec is the declarative event mapping plus the handler script of
// one listener.
type ListenerSpec struct {
	Name            string   `json:"name"`
	Event           string   `json:"event"`
	Priority        Priority `json:"priority"`
	IgnoreCancelled bool     `json:"ignore_cancelled"`
	Slots           []Slot   `json:"slots"`
	Actors          []string `json:"actors"` // field paths resolving the acting entity
	Item            string   `json:"item"`   // field path resolving the item, may be empty
	ScriptType      string   `json:"script_type"`
	Handle          string   `json:"handle"`
}

// TickerSpec is a periodic script bundle with enter/execute/exit phases.
type TickerSpec struct {
	ID         string `json:"id"`
	Interval   int    `json:"interval"` // in ticks, > 0
	ScriptType string `json:"script_type"`
	Pre        string `json:"pre"`
	Handle     string `json:"handle"`
	Post       string `json:"post"`
}
