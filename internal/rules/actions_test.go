package rules

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hookwarden/hookwarden/internal/types"
)

func testActionConfig() ActionConfig {
	return ActionConfig{
		ScriptTimeout:   5 * time.Second,
		FailPolicy:      types.FailClosed,
		FieldFailPolicy: types.FailClosed,
	}
}

func TestExecuteActionsRequiredFieldsBlockFirst(t *testing.T) {
	// A rule with both field requirements and an unconditional block must
	// report the field failure, not the generic block.
	cr := mustCompile(t, Rule{
		Name:          "need-url",
		RequireFields: []FieldRequirement{{Path: "url", Type: types.FieldString}},
		Block:         true,
		Message:       "no fetching",
	})

	out := ExecuteActions(context.Background(), cr, bashEvent("ls"), []byte("{}"), testActionConfig())
	if !out.Block {
		t.Fatal("expected block")
	}
	if !strings.Contains(out.Reason, "missing required field") {
		t.Errorf("reason %q should name the missing field", out.Reason)
	}
}

func TestExecuteActionsRequiredFieldsFailOpen(t *testing.T) {
	cr := mustCompile(t, Rule{
		Name:          "need-url",
		RequireFields: []FieldRequirement{{Path: "url"}},
	})

	cfg := testActionConfig()
	cfg.FieldFailPolicy = types.FailOpen
	out := ExecuteActions(context.Background(), cr, bashEvent("ls"), []byte("{}"), cfg)
	if out.Block {
		t.Error("fail-open field policy should not block")
	}
}

func TestExecuteActionsStaticBlock(t *testing.T) {
	cr := mustCompile(t, Rule{
		Name:    "no-bash",
		Block:   true,
		Message: "shell access is disabled here",
	})

	out := ExecuteActions(context.Background(), cr, bashEvent("ls"), []byte("{}"), testActionConfig())
	if !out.Block || out.Reason != "shell access is disabled here" {
		t.Errorf("got block=%v reason=%q", out.Block, out.Reason)
	}
}

func TestExecuteActionsBlockSuppressesLaterActions(t *testing.T) {
	// A static block must short-circuit: no injection, and no validator
	// spawn. The validator script would create a sentinel file if it ran.
	sentinel := filepath.Join(t.TempDir(), "ran")
	cr := mustCompile(t, Rule{
		Name:   "block-wins",
		Block:  true,
		Inject: &Inject{Text: "should not appear"},
		Validator: &ValidatorConfig{
			Inline: "#!/bin/sh\ntouch " + sentinel + "\nexit 0\n",
		},
	})

	out := ExecuteActions(context.Background(), cr, bashEvent("ls"), []byte("{}"), testActionConfig())
	if !out.Block {
		t.Fatal("expected block")
	}
	if out.Context != "" {
		t.Error("blocked outcome must not carry context")
	}
	if _, err := os.Stat(sentinel); err == nil {
		t.Error("validator ran despite an earlier block")
	}
}

func TestExecuteActionsBlockPattern(t *testing.T) {
	cr := mustCompile(t, Rule{
		Name:         "no-prod-push",
		BlockPattern: &BlockPattern{Field: "command", Pattern: `git push.*--force`},
		Message:      "force pushes are not allowed",
	})

	out := ExecuteActions(context.Background(), cr, bashEvent("git push origin main --force"), []byte("{}"), testActionConfig())
	if !out.Block || out.Reason != "force pushes are not allowed" {
		t.Errorf("got block=%v reason=%q", out.Block, out.Reason)
	}

	out = ExecuteActions(context.Background(), cr, bashEvent("git push origin main"), []byte("{}"), testActionConfig())
	if out.Block {
		t.Error("plain push should not block")
	}

	// Missing field or non-string value is a non-match, not a block.
	out = ExecuteActions(context.Background(), cr, writeEvent("/tmp/a.go"), []byte("{}"), testActionConfig())
	if out.Block {
		t.Error("event without the field should not block")
	}
}

func TestExecuteActionsInjectText(t *testing.T) {
	cr := mustCompile(t, Rule{
		Name:   "workspace-note",
		Inject: &Inject{Text: "Remember: this repo uses tabs."},
	})

	out := ExecuteActions(context.Background(), cr, bashEvent("ls"), []byte("{}"), testActionConfig())
	if out.Block {
		t.Fatal("inject-only rule must not block")
	}
	if out.Context != "Remember: this repo uses tabs." {
		t.Errorf("context = %q", out.Context)
	}
}

func TestExecuteActionsInjectPrecedence(t *testing.T) {
	// Text wins over command and file even when all three are set.
	cr := mustCompile(t, Rule{
		Name: "multi-source",
		Inject: &Inject{
			Text:    "from text",
			Command: "echo from-command",
			File:    "/nonexistent",
		},
	})

	out := ExecuteActions(context.Background(), cr, bashEvent("ls"), []byte("{}"), testActionConfig())
	if out.Context != "from text" {
		t.Errorf("context = %q, want text source", out.Context)
	}
}

func TestExecuteActionsInjectCommand(t *testing.T) {
	cr := mustCompile(t, Rule{
		Name:   "branch-note",
		Inject: &Inject{Command: "echo on-branch-main"},
	})

	out := ExecuteActions(context.Background(), cr, bashEvent("ls"), []byte("{}"), testActionConfig())
	if out.Context != "on-branch-main" {
		t.Errorf("context = %q", out.Context)
	}
}

func TestExecuteActionsInjectFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "note.txt")
	if err := os.WriteFile(path, []byte("project context here\n"), 0600); err != nil {
		t.Fatal(err)
	}

	cr := mustCompile(t, Rule{
		Name:   "file-note",
		Inject: &Inject{File: path},
	})

	out := ExecuteActions(context.Background(), cr, bashEvent("ls"), []byte("{}"), testActionConfig())
	if out.Context != "project context here" {
		t.Errorf("context = %q", out.Context)
	}
}

func TestExecuteActionsInjectFileMissingSkips(t *testing.T) {
	cr := mustCompile(t, Rule{
		Name:   "gone-note",
		Inject: &Inject{File: "/nonexistent/note.txt"},
	})

	out := ExecuteActions(context.Background(), cr, bashEvent("ls"), []byte("{}"), testActionConfig())
	if out.Block || out.Context != "" {
		t.Errorf("missing inject file should yield a neutral outcome, got block=%v context=%q", out.Block, out.Context)
	}
}

func TestExecuteActionsExpressionValidator(t *testing.T) {
	cr := mustCompile(t, Rule{
		Name:      "bash-only",
		Validator: &ValidatorConfig{Expression: `tool == "Bash"`},
		Message:   "only shell events pass",
	})

	out := ExecuteActions(context.Background(), cr, bashEvent("ls"), []byte("{}"), testActionConfig())
	if out.Block {
		t.Error("expression true should allow")
	}

	out = ExecuteActions(context.Background(), cr, writeEvent("/tmp/a.go"), []byte("{}"), testActionConfig())
	if !out.Block || out.Reason != "only shell events pass" {
		t.Errorf("got block=%v reason=%q", out.Block, out.Reason)
	}
}

func TestExecuteActionsExpressionErrorFailPolicies(t *testing.T) {
	// Referencing an unknown variable fails at evaluation time. Closed
	// blocks, open continues.
	closed := mustCompile(t, Rule{
		Name:      "broken-closed",
		Validator: &ValidatorConfig{Expression: `no_such_var == 1`},
	})
	out := ExecuteActions(context.Background(), closed, bashEvent("ls"), []byte("{}"), testActionConfig())
	if !out.Block {
		t.Error("fail-closed expression error should block")
	}

	open := mustCompile(t, Rule{
		Name: "broken-open",
		Validator: &ValidatorConfig{
			Expression: `no_such_var == 1`,
			FailPolicy: types.FailOpen,
		},
	})
	out = ExecuteActions(context.Background(), open, bashEvent("ls"), []byte("{}"), testActionConfig())
	if out.Block {
		t.Error("fail-open expression error should continue")
	}
}

func TestExecuteActionsInjectSuppressesValidator(t *testing.T) {
	// A successful injection settles the rule: the validator must not run,
	// and in particular a denying validator cannot flip the outcome to a
	// block. The script would create a sentinel file if it ran.
	sentinel := filepath.Join(t.TempDir(), "ran")
	cr := mustCompile(t, Rule{
		Name:   "inject-and-validate",
		Inject: &Inject{Text: "use the staging cluster"},
		Validator: &ValidatorConfig{
			Inline: "#!/bin/sh\ntouch " + sentinel + "\nexit 1\n",
		},
	})

	out := ExecuteActions(context.Background(), cr, bashEvent("ls"), []byte("{}"), testActionConfig())
	if out.Block {
		t.Fatal("injection outcome must not block")
	}
	if out.Context != "use the staging cluster" {
		t.Errorf("context = %q", out.Context)
	}
	if out.Action != ActionInject {
		t.Errorf("action = %q, want %q", out.Action, ActionInject)
	}
	if _, err := os.Stat(sentinel); err == nil {
		t.Error("validator ran despite an earlier injection")
	}
}

func TestExecuteActionsValidatorRunsWhenInjectionFails(t *testing.T) {
	// A failed injection is not decisive, so the chain continues to the
	// validator.
	cr := mustCompile(t, Rule{
		Name:   "fallback-validate",
		Inject: &Inject{File: "/nonexistent/note.txt"},
		Validator: &ValidatorConfig{
			Inline: "#!/bin/sh\necho checked\nexit 0\n",
		},
	})

	out := ExecuteActions(context.Background(), cr, bashEvent("ls"), []byte("{}"), testActionConfig())
	if out.Block {
		t.Fatal("unexpected block")
	}
	if out.Context != "checked" {
		t.Errorf("context = %q", out.Context)
	}
	if out.Action != ActionValidator {
		t.Errorf("action = %q, want %q", out.Action, ActionValidator)
	}
}

func TestExecuteActionsOutcomeMetadata(t *testing.T) {
	cr := mustCompile(t, Rule{Name: "no-bash", Block: true})

	out := ExecuteActions(context.Background(), cr, bashEvent("ls"), []byte("{}"), testActionConfig())
	if out.Action != ActionBlock {
		t.Errorf("action = %q, want %q", out.Action, ActionBlock)
	}
	if out.Duration <= 0 {
		t.Error("outcome duration should be recorded")
	}

	noop := mustCompile(t, Rule{Name: "observe"})
	out = ExecuteActions(context.Background(), noop, bashEvent("ls"), []byte("{}"), testActionConfig())
	if out.Action != ActionNone {
		t.Errorf("action = %q, want %q", out.Action, ActionNone)
	}
}
