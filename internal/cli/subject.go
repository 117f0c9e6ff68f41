package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/glyph/internal/host"
)

// flagItem is an item described on the command line.
type flagItem struct {
	id      string
	typ     string
	effects map[string]int
}

func (i *flagItem) ID() string              { return i.id }
func (i *flagItem) Type() string            { return i.typ }
func (i *flagItem) Effects() map[string]int { return i.effects }

// flagActor is an actor described on the command line.
type flagActor struct {
	id          string
	world       string
	permissions map[string]bool
	attributes  map[string]any
}

func (a *flagActor) ID() string                     { return a.id }
func (a *flagActor) World() string                  { return a.world }
func (a *flagActor) HasPermission(node string) bool { return a.permissions[node] }
func (a *flagActor) Attributes() map[string]any     { return a.attributes }

var (
	_ host.Item  = (*flagItem)(nil)
	_ host.Actor = (*flagActor)(nil)
)

// parseLevels parses "effect=level" pairs.
func parseLevels(pairs []string) (map[string]int, error) {
	out := make(map[string]int, len(pairs))
	for _, p := range pairs {
		id, raw, ok := strings.Cut(p, "=")
		if !ok || id == "" {
			return nil, fmt.Errorf("invalid effect level %q: want effect=level", p)
		}
		level, err := strconv.Atoi(raw)
		if err != nil || level < 1 {
			return nil, fmt.Errorf("invalid effect level %q: level must be a positive integer", p)
		}
		out[id] = level
	}
	return out, nil
}

// parseAttributes parses "key=value" pairs. Numeric and boolean values are
// typed so predicates can compare them.
func parseAttributes(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		key, raw, ok := strings.Cut(p, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid attribute %q: want key=value", p)
		}
		switch {
		case raw == "true" || raw == "false":
			out[key] = raw == "true"
		default:
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				out[key] = f
			} else {
				out[key] = raw
			}
		}
	}
	return out, nil
}

func toSet(values []string) map[string]bool {
	out := make(map[string]bool, len(values))
	for _, v := range values {
		out[v] = true
	}
	return out
}
