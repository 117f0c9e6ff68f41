package limit

import "log/slog"

// pending is one one-directional conflict declaration.
type pending struct {
	effectID string
	other    string
}

// Registrar collects one-directional conflict declarations while effects
// load and resolves them into symmetric CONFLICT_ENCHANT entries once every
// effect exists.
//
// Thread-safety: Registrar is not safe for concurrent use. It is only touched
// by the single-threaded load and enable sequence.
type Registrar struct {
	groups []pending
	pairs  []pending
	logger *slog.Logger
}

// NewRegistrar creates an empty registrar.
func NewRegistrar(logger *slog.Logger) *Registrar {
	return &Registrar{logger: logger}
}

func (r *Registrar) log() *slog.Logger {
	if r.logger != nil {
		return r.logger
	}
	return slog.Default()
}

// PendGroup records that effectID conflicts with every member of group.
func (r *Registrar) PendGroup(effectID, group string) {
	r.groups = append(r.groups, pending{effectID: effectID, other: group})
}

// PendPair records that effectID conflicts with other.
func (r *Registrar) PendPair(effectID, other string) {
	r.pairs = append(r.pairs, pending{effectID: effectID, other: other})
}

// Pending returns the number of unresolved group and pair declarations.
func (r *Registrar) Pending() (groups, pairs int) {
	return len(r.groups), len(r.pairs)
}

// Enable resolves every pending declaration against catalog, then clears
// both lists. References to unknown effects or groups are logged and skipped.
func (r *Registrar) Enable(catalog Catalog) {
	for _, p := range r.groups {
		g, ok := catalog.Group(p.other)
		if !ok {
			r.log().Warn("conflict with unknown group skipped", "effect", p.effectID, "group", p.other)
			continue
		}
		for _, member := range g.Effects {
			if member == p.effectID {
				continue
			}
			set, ok := catalog.Limitations(member)
			if !ok {
				r.log().Warn("group member not loaded", "group", g.ID, "effect", member)
				continue
			}
			set.AddConflict(p.effectID)
		}
	}

	for _, p := range r.pairs {
		a, okA := catalog.Limitations(p.effectID)
		b, okB := catalog.Limitations(p.other)
		if !okA || !okB {
			r.log().Warn("conflict with unknown effect skipped", "effect", p.effectID, "other", p.other)
			continue
		}
		a.AddConflict(p.other)
		b.AddConflict(p.effectID)
	}

	r.log().Debug("conflicts resolved", "groups", len(r.groups), "pairs", len(r.pairs))
	r.groups = nil
	r.pairs = nil
}
