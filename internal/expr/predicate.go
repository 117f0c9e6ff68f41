package expr

import (
	"fmt"
	"regexp"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/roach88/glyph/internal/host"
)

// attributePattern matches %name% actor attribute references.
var attributePattern = regexp.MustCompile(`%([A-Za-z_][A-Za-z0-9_]*)%`)

// Predicate evaluates an actor-bound boolean expression such as
// "%level% >= 10 && world != 'nether'".
//
// Bound names: every key of actor.Attributes(), plus actor_id and world.
// %name% references are accepted as an alias for the bare name. A nil actor
// passes trivially. Compile and runtime failures are logged and fail closed.
func (e *Evaluator) Predicate(expression string, actor host.Actor) bool {
	if actor == nil {
		return true
	}

	text := attributePattern.ReplaceAllString(expression, "$1")
	program, err := e.predicate(text)
	if err != nil {
		e.log().Error("predicate compilation failed",
			"expression", expression,
			"actor", actor.ID(),
			"error", err,
		)
		return false
	}

	env := make(map[string]any)
	for k, v := range actor.Attributes() {
		env[k] = v
	}
	env["actor_id"] = actor.ID()
	env["world"] = actor.World()

	out, err := expr.Run(program, env)
	if err != nil {
		e.log().Error("predicate evaluation failed",
			"expression", expression,
			"actor", actor.ID(),
			"error", err,
		)
		return false
	}

	switch v := out.(type) {
	case bool:
		return v
	default:
		if f, ok := toFloat(v); ok {
			return f != 0
		}
		e.log().Error("predicate produced a non-boolean result",
			"expression", expression,
			"actor", actor.ID(),
			"result", fmt.Sprintf("%v", out),
		)
		return false
	}
}

func (e *Evaluator) predicate(text string) (*vm.Program, error) {
	e.mu.RLock()
	program, ok := e.predicates[text]
	e.mu.RUnlock()
	if ok {
		return program, nil
	}

	program, err := expr.Compile(text, e.options(expr.AllowUndefinedVariables())...)
	if err != nil {
		return nil, fmt.Errorf("compile predicate %q: %w", text, err)
	}

	e.mu.Lock()
	e.predicates[text] = program
	e.mu.Unlock()
	return program, nil
}
