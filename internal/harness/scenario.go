package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines an engine scenario: a catalog, a small world of actors
// and items, a sequence of steps, and assertions on the resulting trace.
type Scenario struct {
	// Name uniquely identifies this scenario. Golden files are named after it.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Catalog is the CUE catalog directory or file to compile and load.
	// Relative paths are resolved against the scenario file location.
	Catalog string `yaml:"catalog"`

	// Token is the fixed dispatch token. Defaults to "test-event-default".
	Token string `yaml:"token,omitempty"`

	// Actors join the world before the first step.
	Actors []ActorSpec `yaml:"actors,omitempty"`

	// Items are the items steps and equipment refer to by id.
	Items []ItemSpec `yaml:"items,omitempty"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and item data.
	// Supported types: trace_contains, trace_order, trace_count, item_data
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// ActorSpec declares one actor.
type ActorSpec struct {
	ID          string            `yaml:"id"`
	World       string            `yaml:"world,omitempty"`
	Permissions []string          `yaml:"permissions,omitempty"`
	Attributes  map[string]any    `yaml:"attributes,omitempty"`
	Equipment   map[string]string `yaml:"equipment,omitempty"` // slot -> item id
}

// ItemSpec declares one item and the effect levels it carries.
type ItemSpec struct {
	ID      string         `yaml:"id"`
	Type    string         `yaml:"type"`
	Effects map[string]int `yaml:"effects,omitempty"`
}

// Step is one scenario action. Exactly one field is set.
type Step struct {
	// Tick advances the scheduler by this many steps.
	Tick int `yaml:"tick,omitempty"`

	Event  *EventStep  `yaml:"event,omitempty"`
	Check  *CheckStep  `yaml:"check,omitempty"`
	Eval   *EvalStep   `yaml:"eval,omitempty"`
	Modify *ModifyStep `yaml:"modify,omitempty"`
	Equip  *EquipStep  `yaml:"equip,omitempty"`

	// Join and Leave add or remove an actor from the world by id.
	Join  string `yaml:"join,omitempty"`
	Leave string `yaml:"leave,omitempty"`
}

// EventStep dispatches one external event.
type EventStep struct {
	Name      string            `yaml:"name"`
	Actor     string            `yaml:"actor,omitempty"`
	Actors    map[string]string `yaml:"actors,omitempty"` // field path -> actor id
	Item      string            `yaml:"item,omitempty"`
	Slot      string            `yaml:"slot,omitempty"`
	Cancelled bool              `yaml:"cancelled,omitempty"`
}

// CheckStep runs a limitation check.
type CheckStep struct {
	Effect  string       `yaml:"effect"`
	Item    string       `yaml:"item"`
	Actor   string       `yaml:"actor,omitempty"`
	Slot    string       `yaml:"slot,omitempty"`
	Context string       `yaml:"context"`
	Expect  *CheckExpect `yaml:"expect,omitempty"`
}

// CheckExpect is the expected outcome of a CheckStep. Reason is matched only
// when non-empty.
type CheckExpect struct {
	Pass   bool   `yaml:"pass"`
	Reason string `yaml:"reason,omitempty"`
}

// EvalStep evaluates one variable.
type EvalStep struct {
	Effect   string  `yaml:"effect"`
	Variable string  `yaml:"variable"`
	Level    int     `yaml:"level"`
	Item     string  `yaml:"item,omitempty"`
	Unit     bool    `yaml:"unit,omitempty"`
	Expect   *string `yaml:"expect,omitempty"`
}

// ModifyStep writes a Modifiable variable on an item.
type ModifyStep struct {
	Effect   string `yaml:"effect"`
	Variable string `yaml:"variable"`
	Item     string `yaml:"item"`
	Value    string `yaml:"value"`
}

// EquipStep puts an item in an actor's slot. An empty item clears the slot.
type EquipStep struct {
	Actor string `yaml:"actor"`
	Slot  string `yaml:"slot"`
	Item  string `yaml:"item,omitempty"`
}

// Assertion validates trace or item data.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": a script ran, optionally for an actor with vars
	// - "trace_order": scripts first ran in this order
	// - "trace_count": a script ran exactly N times
	// - "item_data": a stored item value equals Expect
	Type string `yaml:"type"`

	// Script is the script source (trace_contains, trace_count).
	Script string `yaml:"script,omitempty"`

	// Actor filters trace_contains by actor id.
	Actor string `yaml:"actor,omitempty"`

	// Vars are expected script variables (trace_contains).
	// Subset match - only specified keys are validated.
	Vars map[string]any `yaml:"vars,omitempty"`

	// Scripts is the expected order (trace_order).
	Scripts []string `yaml:"scripts,omitempty"`

	// Count is the expected number of runs (trace_count).
	Count int `yaml:"count,omitempty"`

	// Item, Key and Raw address a stored value (item_data).
	Item string `yaml:"item,omitempty"`
	Key  string `yaml:"key,omitempty"`
	Raw  bool   `yaml:"raw,omitempty"`

	// Expect is the expected stored value (item_data).
	Expect string `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertItemData      = "item_data"
)

// LoadScenario reads and parses a scenario YAML file. The catalog path is
// resolved relative to the scenario file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving the catalog path relative to the provided base path.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	// Resolve the catalog path relative to base path BEFORE validation
	if scenario.Catalog != "" && !filepath.IsAbs(scenario.Catalog) && basePath != "" {
		scenario.Catalog = filepath.Join(basePath, scenario.Catalog)
	}

	if err := validateScenario(scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	if _, err := os.Stat(scenario.Catalog); os.IsNotExist(err) {
		return nil, fmt.Errorf("invalid scenario: catalog not found: %s", scenario.Catalog)
	}

	return scenario, nil
}

// ParseScenario decodes scenario YAML without validating it or resolving
// paths.
func ParseScenario(data []byte) (*Scenario, error) {
	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Catalog == "" {
		return fmt.Errorf("catalog is required")
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	actors := make(map[string]bool)
	for i, a := range s.Actors {
		if a.ID == "" {
			return fmt.Errorf("actors[%d]: id is required", i)
		}
		if actors[a.ID] {
			return fmt.Errorf("actors[%d]: duplicate id %q", i, a.ID)
		}
		actors[a.ID] = true
	}

	items := make(map[string]bool)
	for i, it := range s.Items {
		if it.ID == "" || it.Type == "" {
			return fmt.Errorf("items[%d]: id and type are required", i)
		}
		if items[it.ID] {
			return fmt.Errorf("items[%d]: duplicate id %q", i, it.ID)
		}
		items[it.ID] = true
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateStep checks that exactly one action is set and that it carries
// its required fields.
func validateStep(index int, s *Step) error {
	set := 0
	for _, present := range []bool{
		s.Tick != 0, s.Event != nil, s.Check != nil, s.Eval != nil,
		s.Modify != nil, s.Equip != nil, s.Join != "", s.Leave != "",
	} {
		if present {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("steps[%d]: exactly one action is required, got %d", index, set)
	}

	switch {
	case s.Tick < 0:
		return fmt.Errorf("steps[%d]: tick must be positive", index)
	case s.Event != nil && s.Event.Name == "":
		return fmt.Errorf("steps[%d]: event name is required", index)
	case s.Check != nil && (s.Check.Effect == "" || s.Check.Item == "" || s.Check.Context == ""):
		return fmt.Errorf("steps[%d]: check requires effect, item and context", index)
	case s.Eval != nil && (s.Eval.Effect == "" || s.Eval.Variable == ""):
		return fmt.Errorf("steps[%d]: eval requires effect and variable", index)
	case s.Modify != nil && (s.Modify.Effect == "" || s.Modify.Variable == "" || s.Modify.Item == ""):
		return fmt.Errorf("steps[%d]: modify requires effect, variable and item", index)
	case s.Equip != nil && (s.Equip.Actor == "" || s.Equip.Slot == ""):
		return fmt.Errorf("steps[%d]: equip requires actor and slot", index)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Script == "" {
			return fmt.Errorf("assertions[%d]: script is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Scripts) == 0 {
			return fmt.Errorf("assertions[%d]: scripts list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Script == "" {
			return fmt.Errorf("assertions[%d]: script is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertItemData:
		if a.Item == "" || a.Key == "" {
			return fmt.Errorf("assertions[%d]: item and key are required for item_data", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
