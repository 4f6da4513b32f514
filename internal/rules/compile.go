package rules

import (
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/gobwas/glob"

	"github.com/hookwarden/hookwarden/internal/config"
	"github.com/hookwarden/hookwarden/internal/event"
	"github.com/hookwarden/hookwarden/internal/exprlang"
	"github.com/hookwarden/hookwarden/internal/pattern"
)

// CompiledRule carries a rule with all load-time work done: compiled
// patterns, globs and expressions. Evaluation never compiles anything for
// statically-declared rules, so an invalid pattern can only surface as a
// ConfigError, never mid-event.
type CompiledRule struct {
	Rule Rule

	EnabledWhen   *exprlang.Program
	Dirs          []glob.Glob
	CommandRes    []*regexp.Regexp
	PromptRes     []*regexp.Regexp
	BlockRe       *regexp.Regexp
	ValidatorExpr *exprlang.Program
}

// CompileRule validates a rule and compiles its patterns and expressions.
// Regex compilation goes through the cache when one is provided. Every
// failure is a ConfigError naming the rule.
func CompileRule(r Rule, cache *pattern.Cache) (CompiledRule, error) {
	fail := func(format string, args ...any) (CompiledRule, error) {
		return CompiledRule{}, &ConfigError{Rule: r.Name, Err: fmt.Errorf(format, args...)}
	}

	compileRe := func(p string) (*regexp.Regexp, error) {
		if cache != nil {
			return cache.Get(p)
		}
		return pattern.Compile(p)
	}

	if r.Name == "" {
		return CompiledRule{}, &ConfigError{Rule: "(unnamed)", Err: fmt.Errorf("rule name is required")}
	}
	if r.Mode != "" && !r.GetMode().Valid() {
		return fail("invalid mode %q (valid: enforce, warn, audit)", r.Mode)
	}

	cr := CompiledRule{Rule: r}

	// Enablement expression.
	if r.EnabledWhen != "" {
		p, err := exprlang.Compile(r.EnabledWhen)
		if err != nil {
			return fail("enabled_when: %w", err)
		}
		cr.EnabledWhen = p
	}

	// Matcher patterns.
	for i, d := range r.Match.Dirs {
		g, err := glob.Compile(d, '/')
		if err != nil {
			return fail("match.dirs[%d] %q: %w", i, d, err)
		}
		cr.Dirs = append(cr.Dirs, g)
	}
	for i, p := range r.Match.CommandMatch {
		re, err := compileRe(p)
		if err != nil {
			return fail("match.command_match[%d]: %w", i, err)
		}
		cr.CommandRes = append(cr.CommandRes, re)
	}
	for i, p := range r.Match.PromptMatch {
		re, err := compileRe(p)
		if err != nil {
			return fail("match.prompt_match[%d]: %w", i, err)
		}
		cr.PromptRes = append(cr.PromptRes, re)
	}
	for i, op := range r.Match.Operations {
		if !op.Valid() {
			return fail("match.operations[%d]: unknown operation %q", i, op)
		}
	}
	for i, p := range r.Match.FieldsExist {
		if err := event.ValidatePath(p); err != nil {
			return fail("match.fields_exist[%d]: %w", i, err)
		}
	}
	for p, ft := range r.Match.FieldTypes {
		if err := event.ValidatePath(p); err != nil {
			return fail("match.field_types: %w", err)
		}
		if !ft.Valid() {
			return fail("match.field_types[%s]: unknown type %q", p, ft)
		}
	}

	// Action fields.
	for i, req := range r.RequireFields {
		if err := event.ValidatePath(req.Path); err != nil {
			return fail("require_fields[%d]: %w", i, err)
		}
		if req.Type != "" && !req.Type.Valid() {
			return fail("require_fields[%d]: unknown type %q", i, req.Type)
		}
	}

	if r.BlockPattern != nil {
		if r.BlockPattern.Field == "" {
			return fail("block_pattern: field is required")
		}
		if err := event.ValidatePath(r.BlockPattern.Field); err != nil {
			return fail("block_pattern: %w", err)
		}
		re, err := compileRe(r.BlockPattern.Pattern)
		if err != nil {
			return fail("block_pattern: %w", err)
		}
		cr.BlockRe = re
	}

	if r.Validator != nil {
		if err := validateValidator(r.Validator); err != nil {
			return fail("validator: %w", err)
		}
		if r.Validator.Expression != "" {
			p, err := exprlang.Compile(r.Validator.Expression)
			if err != nil {
				return fail("validator.expression: %w", err)
			}
			cr.ValidatorExpr = p
		}
	}

	return cr, nil
}

func validateValidator(v *ValidatorConfig) error {
	variants := 0
	if v.Script != "" {
		variants++
	}
	if v.Inline != "" {
		variants++
	}
	if v.Expression != "" {
		variants++
	}
	if variants == 0 {
		return fmt.Errorf("one of script, inline or expression is required")
	}
	if variants > 1 {
		return fmt.Errorf("script, inline and expression are mutually exclusive")
	}

	if v.SHA256 != "" {
		if v.Script == "" {
			return fmt.Errorf("sha256 only applies to external scripts")
		}
		if len(v.SHA256) != 64 {
			return fmt.Errorf("sha256 must be 64 hex characters")
		}
		if _, err := hex.DecodeString(v.SHA256); err != nil {
			return fmt.Errorf("sha256 is not valid hex: %w", err)
		}
	}

	// No heuristic language detection: inline bodies must declare their
	// interpreter up front.
	if v.Inline != "" && !strings.HasPrefix(v.Inline, "#!") {
		return fmt.Errorf("inline script must begin with an interpreter directive (#!)")
	}

	if v.TimeoutSecs < 0 {
		return fmt.Errorf("timeout_secs must not be negative")
	}
	if v.TimeoutSecs > config.MaxScriptTimeoutSecs {
		return fmt.Errorf("timeout_secs exceeds maximum %d", config.MaxScriptTimeoutSecs)
	}
	if v.FailPolicy != "" && !v.FailPolicy.Valid() {
		return fmt.Errorf("invalid fail_policy %q (valid: open, closed)", v.FailPolicy)
	}

	return nil
}
