// Package expr compiles and evaluates the numeric formulas behind leveled
// variables, and the boolean actor predicates behind EXPRESSION limitations.
//
// Formulas use a textual placeholder syntax: "{level} * 2 + {bonus}". The
// evaluator strips the braces, extracts the referenced names, and compiles
// the stripped text once. Compiled programs are cached process-wide keyed by
// the stripped text; the set of distinct formulas is bounded by
// configuration, so the cache is never evicted.
//
// Evaluation is fail-soft: a compile or runtime failure is logged with the
// expression, the variable names and the supplied values, and the result is
// 0. Callers never see an error from Evaluate or Calculate. Preheat exists to
// surface formula errors at load time instead of at first use.
//
// Built-in functions: min(a, b), max(a, b), mod(a, b), random(a, b). The %
// operator is mod, so it accepts the float64 values every variable is bound
// as.
package expr

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"regexp"
	"sort"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// placeholderPattern matches {name} placeholders.
var placeholderPattern = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Compiled is a formula ready for evaluation. Values passed to Evaluate are
// bound to Names positionally.
type Compiled struct {
	Source  string
	Names   []string
	program *vm.Program
}

// Evaluator owns the compiled-expression caches.
//
// Thread-safety: Evaluator is safe for concurrent use. Compiled programs are
// immutable once cached and expr's VM allocates per run.
type Evaluator struct {
	mu         sync.RWMutex
	formulas   map[string]*vm.Program
	predicates map[string]*vm.Program
	logger     *slog.Logger
	random     func(lo, hi float64) float64
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithLogger sets the logger used for evaluation failures.
func WithLogger(l *slog.Logger) Option {
	return func(e *Evaluator) {
		e.logger = l
	}
}

// WithRandom replaces the source behind random(a, b). Used for deterministic tests.
func WithRandom(fn func(lo, hi float64) float64) Option {
	return func(e *Evaluator) {
		e.random = fn
	}
}

// New creates an Evaluator with empty caches.
func New(opts ...Option) *Evaluator {
	e := &Evaluator{
		formulas:   make(map[string]*vm.Program),
		predicates: make(map[string]*vm.Program),
		random:     uniform,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var defaultEvaluator = New()

// Default returns the process-wide evaluator.
func Default() *Evaluator {
	return defaultEvaluator
}

func (e *Evaluator) log() *slog.Logger {
	if e.logger != nil {
		return e.logger
	}
	return slog.Default()
}

// Strip removes placeholder delimiters and returns the stripped text together
// with the referenced names in first-appearance order.
//
//	Strip("{level} * 2 + {bonus}") // "level * 2 + bonus", ["level", "bonus"]
func Strip(expression string) (string, []string) {
	var names []string
	seen := make(map[string]bool)
	for _, m := range placeholderPattern.FindAllStringSubmatch(expression, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return placeholderPattern.ReplaceAllString(expression, "$1"), names
}

// Compile compiles a formula. names lists the variables the caller will bind;
// placeholders referenced by the formula but missing from names are appended.
func (e *Evaluator) Compile(expression string, names []string) (*Compiled, error) {
	text, refs := Strip(expression)

	bound := make([]string, 0, len(names)+len(refs))
	seen := make(map[string]bool, len(names)+len(refs))
	for _, n := range append(append([]string{}, names...), refs...) {
		if !seen[n] {
			seen[n] = true
			bound = append(bound, n)
		}
	}

	e.mu.RLock()
	program, ok := e.formulas[text]
	e.mu.RUnlock()
	if ok {
		return &Compiled{Source: text, Names: bound, program: program}, nil
	}

	env := make(map[string]any, len(bound))
	for _, n := range bound {
		env[n] = float64(0)
	}
	program, err := expr.Compile(text, e.options(expr.Env(env))...)
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", text, err)
	}

	e.mu.Lock()
	if cached, ok := e.formulas[text]; ok {
		program = cached
	} else {
		e.formulas[text] = program
	}
	e.mu.Unlock()

	return &Compiled{Source: text, Names: bound, program: program}, nil
}

// Evaluate runs a compiled formula with values bound positionally to c.Names.
// Failures are logged and yield 0.
func (e *Evaluator) Evaluate(c *Compiled, values []float64) float64 {
	if c == nil || c.program == nil {
		e.log().Error("evaluate nil expression")
		return 0
	}
	if len(values) != len(c.Names) {
		e.log().Error("expression arity mismatch",
			"expression", c.Source,
			"names", c.Names,
			"values", values,
		)
		return 0
	}

	env := make(map[string]any, len(values))
	for i, n := range c.Names {
		env[n] = values[i]
	}

	out, err := expr.Run(c.program, env)
	if err != nil {
		e.log().Error("expression evaluation failed",
			"expression", c.Source,
			"names", c.Names,
			"values", values,
			"error", err,
		)
		return 0
	}

	result, ok := toFloat(out)
	if !ok {
		e.log().Error("expression produced a non-numeric result",
			"expression", c.Source,
			"names", c.Names,
			"values", values,
			"result", fmt.Sprintf("%v", out),
		)
		return 0
	}
	return result
}

// Calculate compiles (or reuses) and evaluates a formula in one call.
// Failures are logged and yield 0.
func (e *Evaluator) Calculate(expression string, vars map[string]float64) float64 {
	names := make([]string, 0, len(vars))
	for n := range vars {
		names = append(names, n)
	}
	sort.Strings(names)

	c, err := e.Compile(expression, names)
	if err != nil {
		e.log().Error("expression compilation failed",
			"expression", expression,
			"names", names,
			"values", vars,
			"error", err,
		)
		return 0
	}

	values := make([]float64, len(c.Names))
	for i, n := range c.Names {
		values[i] = vars[n]
	}
	return e.Evaluate(c, values)
}

// Preheat compiles a formula without evaluating it, so configuration errors
// surface at load time. The error is also logged.
func (e *Evaluator) Preheat(expression string, names ...string) error {
	if _, err := e.Compile(expression, names); err != nil {
		e.log().Warn("expression preheat failed",
			"expression", expression,
			"names", names,
			"error", err,
		)
		return err
	}
	return nil
}

// CacheSize returns the number of cached formula programs.
// Used for testing and diagnostics.
func (e *Evaluator) CacheSize() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.formulas)
}

// options returns the compile options shared by formulas and predicates.
func (e *Evaluator) options(opts ...expr.Option) []expr.Option {
	return append(opts, e.randomFunction(), modFunction(), expr.Operator("%", "mod"))
}

func modFunction() expr.Option {
	return expr.Function("mod", func(params ...any) (any, error) {
		if len(params) != 2 {
			return nil, fmt.Errorf("mod expects 2 arguments, got %d", len(params))
		}
		a, ok := toFloat(params[0])
		if !ok {
			return nil, fmt.Errorf("mod: non-numeric dividend %v", params[0])
		}
		b, ok := toFloat(params[1])
		if !ok {
			return nil, fmt.Errorf("mod: non-numeric divisor %v", params[1])
		}
		if b == 0 {
			return nil, errors.New("mod: division by zero")
		}
		return math.Mod(a, b), nil
	},
		new(func(float64, float64) float64),
		new(func(float64, int) float64),
		new(func(int, float64) float64),
		new(func(int, int) float64),
	)
}

func (e *Evaluator) randomFunction() expr.Option {
	return expr.Function("random", func(params ...any) (any, error) {
		if len(params) != 2 {
			return nil, fmt.Errorf("random expects 2 arguments, got %d", len(params))
		}
		lo, ok := toFloat(params[0])
		if !ok {
			return nil, fmt.Errorf("random: non-numeric lower bound %v", params[0])
		}
		hi, ok := toFloat(params[1])
		if !ok {
			return nil, fmt.Errorf("random: non-numeric upper bound %v", params[1])
		}
		if lo > hi {
			lo, hi = hi, lo
		}
		return e.random(lo, hi), nil
	})
}

func uniform(lo, hi float64) float64 {
	return lo + rand.Float64()*(hi-lo)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}
