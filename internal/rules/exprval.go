package rules

import (
	"os"

	"github.com/hookwarden/hookwarden/internal/event"
	"github.com/hookwarden/hookwarden/internal/exprlang"
)

// ExprEnv builds the evaluation environment shared by enablement and
// validator expressions. Plain variables expose event identity; the
// closures reach into the process environment and the tool payload.
func ExprEnv(e *event.Event) map[string]any {
	return map[string]any{
		"kind":       string(e.Kind),
		"tool":       e.ToolName,
		"session_id": e.SessionID,
		"cwd":        e.Cwd,
		"prompt":     e.Prompt,
		"env": func(name string) string {
			return os.Getenv(name)
		},
		"has": func(path string) bool {
			return e.Has(path)
		},
		"field": func(path string) any {
			v, ok := e.Lookup(path)
			if !ok {
				return nil
			}
			return v
		},
	}
}

// ruleEnabled evaluates a rule's enablement for one event. The static
// toggle is checked first; then the enabled_when expression, if any. An
// expression that fails to evaluate disables the rule for this event, so
// a broken condition can never silently widen a rule's reach.
func ruleEnabled(cr *CompiledRule, e *event.Event) bool {
	if !cr.Rule.IsEnabled() {
		return false
	}
	if cr.EnabledWhen == nil {
		return true
	}
	ok, err := exprlang.Eval(cr.EnabledWhen, ExprEnv(e))
	if err != nil {
		log.Warn("Rule %q: enabled_when evaluation failed, disabling for this event: %v", cr.Rule.Name, err)
		return false
	}
	return ok
}
