package rules

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/hookwarden/hookwarden/internal/event"
	"github.com/hookwarden/hookwarden/internal/exprlang"
	"github.com/hookwarden/hookwarden/internal/pattern"
	"github.com/hookwarden/hookwarden/internal/types"
)

// Outcome is one matched rule's verdict before mode resolution. A blocking
// outcome carries a reason; a non-blocking one may carry context to
// inject. Action names the step that settled the rule and Duration covers
// the whole action chain, both recorded in the audit trail.
type Outcome struct {
	Rule     *CompiledRule
	Block    bool
	Reason   string
	Context  string
	Action   string
	Duration time.Duration
}

// Action names for the audit trail.
const (
	ActionNone          = "none"
	ActionRequireFields = "require_fields"
	ActionBlock         = "block"
	ActionBlockPattern  = "block_pattern"
	ActionInject        = "inject"
	ActionValidator     = "validator"
)

// ActionConfig carries the globals the executor needs. Per-rule validator
// settings override these.
type ActionConfig struct {
	ScriptTimeout time.Duration
	FailPolicy    types.FailPolicy
	// FieldFailPolicy governs required-field failures: closed blocks,
	// open logs and moves on.
	FieldFailPolicy types.FailPolicy
}

// ExecuteActions runs a matched rule's actions in their fixed order:
// required fields, then static block, then pattern block, then context
// injection, then the validator. The first decisive action wins and
// suppresses everything after it: a block stops the chain, and so does a
// successful injection, so a validator never runs for an event the rule
// already settled.
func ExecuteActions(ctx context.Context, cr *CompiledRule, e *event.Event, payload []byte, cfg ActionConfig) (out Outcome) {
	r := &cr.Rule
	out = Outcome{Rule: cr, Action: ActionNone}
	start := time.Now()
	defer func() { out.Duration = time.Since(start) }()

	if len(r.RequireFields) > 0 {
		if err := CheckRequiredFields(r.RequireFields, e); err != nil {
			if cfg.FieldFailPolicy == types.FailOpen {
				log.Warn("Rule %q: required field check failed, continuing (fail open): %v", r.Name, err)
			} else {
				out.Action = ActionRequireFields
				out.Block = true
				out.Reason = fmt.Sprintf("%s: %v", r.GetMessage(), err)
				return out
			}
		}
	}

	if r.Block {
		out.Action = ActionBlock
		out.Block = true
		out.Reason = r.GetMessage()
		return out
	}

	if cr.BlockRe != nil {
		if v, ok := e.Lookup(r.BlockPattern.Field); ok {
			if s, ok := v.(string); ok && pattern.Match(cr.BlockRe, event.NormalizeText(s)) {
				out.Action = ActionBlockPattern
				out.Block = true
				out.Reason = r.GetMessage()
				return out
			}
		}
	}

	if !r.Inject.IsEmpty() {
		if text, err := resolveInjection(ctx, r.Inject, cfg.ScriptTimeout); err != nil {
			log.Warn("Rule %q: injection failed, skipping: %v", r.Name, err)
		} else if text != "" {
			out.Action = ActionInject
			out.Context = text
			return out
		}
	}

	if r.Validator != nil {
		out.Action = ActionValidator
		block, reason := runValidator(ctx, cr, e, payload, cfg)
		if block {
			out.Block = true
			out.Reason = reason
		} else {
			out.Context = reason
		}
	}

	return out
}

// resolveInjection produces the context text for an inject action. The
// first configured source wins: literal text, then command output, then
// file content.
func resolveInjection(ctx context.Context, inj *Inject, timeout time.Duration) (string, error) {
	switch {
	case inj.Text != "":
		return inj.Text, nil
	case inj.Command != "":
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		cmd := exec.CommandContext(ctx, "sh", "-c", inj.Command)
		var buf limitedBuffer
		buf.max = maxScriptOutput
		cmd.Stdout = &buf
		if err := cmd.Run(); err != nil {
			return "", fmt.Errorf("inject command failed: %w", err)
		}
		return strings.TrimRight(buf.String(), "\n"), nil
	default:
		data, err := os.ReadFile(inj.File)
		if err != nil {
			return "", fmt.Errorf("inject file unreadable: %w", err)
		}
		return strings.TrimRight(string(data), "\n"), nil
	}
}

// runValidator evaluates the rule's validator and maps the result to a
// verdict. On a pass the second return is stdout context, if any; on a
// block it is the reason. An indeterminate run (timeout, spawn failure,
// expression error) falls back to the fail policy: closed blocks, open
// continues.
func runValidator(ctx context.Context, cr *CompiledRule, e *event.Event, payload []byte, cfg ActionConfig) (block bool, text string) {
	v := cr.Rule.Validator

	policy := cfg.FailPolicy
	if v.FailPolicy != "" {
		policy = v.FailPolicy
	}

	if cr.ValidatorExpr != nil {
		ok, err := exprlang.Eval(cr.ValidatorExpr, ExprEnv(e))
		if err != nil {
			return validatorFailed(cr, policy, fmt.Sprintf("expression error: %v", err))
		}
		if !ok {
			return true, cr.Rule.GetMessage()
		}
		return false, ""
	}

	timeout := cfg.ScriptTimeout
	if v.TimeoutSecs > 0 {
		timeout = time.Duration(v.TimeoutSecs) * time.Second
	}

	path, cleanup, err := ResolveScript(v)
	defer cleanup()
	if err != nil {
		return validatorFailed(cr, policy, err.Error())
	}

	res := RunScript(ctx, path, payload, timeout)
	switch res.Outcome {
	case OutcomeCompleted:
		if res.ExitCode == 0 {
			return false, strings.TrimRight(res.Stdout, "\n")
		}
		reason := strings.TrimSpace(res.Stderr)
		if reason == "" {
			reason = cr.Rule.GetMessage()
		}
		return true, reason
	case OutcomeTimedOut:
		return validatorFailed(cr, policy, fmt.Sprintf("script timed out after %s", timeout))
	default:
		return validatorFailed(cr, policy, fmt.Sprintf("script failed to start: %v", res.Err))
	}
}

func validatorFailed(cr *CompiledRule, policy types.FailPolicy, detail string) (bool, string) {
	if policy == types.FailOpen {
		log.Warn("Rule %q: validator indeterminate, continuing (fail open): %s", cr.Rule.Name, detail)
		return false, ""
	}
	log.Warn("Rule %q: validator indeterminate, blocking (fail closed): %s", cr.Rule.Name, detail)
	return true, fmt.Sprintf("%s (validator could not run: %s)", cr.Rule.GetMessage(), detail)
}

func joinContext(a, b string) string {
	if a == "" {
		return b
	}
	if b == "" {
		return a
	}
	return a + "\n\n" + b
}
