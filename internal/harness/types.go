package harness

// Trace entry types.
const (
	EntryScript = "script" // a script invocation recorded by the executor
	EntryEvent  = "event"  // an external event was dispatched
	EntryCheck  = "check"  // a limitation check ran
	EntryEval   = "eval"   // a variable was evaluated
	EntryModify = "modify" // a Modifiable variable was written
)

// TraceEvent is one entry of a scenario trace.
//
// Source names what ran: the script source, the event name, the effect id
// of a check, or "<effect>.<variable>" for eval and modify. Result carries
// the dispatch token, "pass"/"fail", or the evaluated/written value.
type TraceEvent struct {
	Seq    int64          `json:"seq"`
	Step   int            `json:"step"`
	Type   string         `json:"type"`
	Tick   int64          `json:"tick,omitempty"`
	Source string         `json:"source"`
	Actor  string         `json:"actor,omitempty"`
	Vars   map[string]any `json:"vars,omitempty"`
	Result string         `json:"result,omitempty"`
	Reason string         `json:"reason,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall success: every step expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace contains every recorded entry in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// CatalogHash is the content hash of the loaded catalog.
	CatalogHash string `json:"catalog_hash"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends an entry, assigning the next sequence number.
func (r *Result) AddTrace(e TraceEvent) {
	e.Seq = int64(len(r.Trace) + 1)
	r.Trace = append(r.Trace, e)
}

// Scripts returns the sources of every script entry in order.
func (r *Result) Scripts() []string {
	var out []string
	for _, e := range r.Trace {
		if e.Type == EntryScript {
			out = append(out, e.Source)
		}
	}
	return out
}

// scalarVars keeps the variables that render deterministically in a trace:
// strings, numbers and bools. Host objects such as the actor and item are
// dropped.
func scalarVars(vars map[string]any) map[string]any {
	out := make(map[string]any, len(vars))
	for k, v := range vars {
		switch v.(type) {
		case string, bool, int, int64, float64:
			out[k] = v
		}
	}
	return out
}
