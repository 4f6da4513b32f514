package rules

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gobwas/glob"

	"github.com/hookwarden/hookwarden/internal/event"
	"github.com/hookwarden/hookwarden/internal/pattern"
	"github.com/hookwarden/hookwarden/internal/types"
)

// Matches reports whether the rule applies to the event. Populated matcher
// fields are ANDed together; within a list-valued field, any entry
// suffices. An unset field places no constraint, so a rule with an empty
// matcher set applies to every event.
func (cr *CompiledRule) Matches(e *event.Event) bool {
	m := &cr.Rule.Match

	if len(m.Tools) > 0 && !containsExact(m.Tools, e.ToolName) {
		return false
	}

	if len(m.Extensions) > 0 && !matchExtension(m.Extensions, e.FilePath()) {
		return false
	}

	if len(cr.Dirs) > 0 {
		path := e.FilePath()
		if path == "" || !matchDirs(cr.Dirs, path) {
			return false
		}
	}

	if len(m.Operations) > 0 {
		op, ok := event.Classify(e)
		if !ok || !containsOp(m.Operations, op) {
			return false
		}
	}

	if len(cr.CommandRes) > 0 {
		// Absent field means no match; a present-but-empty command still
		// goes through the patterns so anchors like ^$ can apply.
		v, ok := e.Lookup("command")
		cmd, isStr := v.(string)
		if !ok || !isStr || !matchAny(cr.CommandRes, event.NormalizeText(cmd)) {
			return false
		}
	}

	if len(cr.PromptRes) > 0 {
		if !e.HasPrompt() || !matchAny(cr.PromptRes, event.NormalizeText(e.Prompt)) {
			return false
		}
	}

	if len(m.FieldsExist) > 0 {
		found := false
		for _, p := range m.FieldsExist {
			if e.Has(p) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	for p, want := range m.FieldTypes {
		v, ok := e.Lookup(p)
		if !ok || !want.Matches(v) {
			return false
		}
	}

	return true
}

func containsExact(list StringOrArray, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsOp(list []types.Operation, op types.Operation) bool {
	for _, v := range list {
		if v == op {
			return true
		}
	}
	return false
}

// matchExtension compares the event file's extension to the configured
// list. Entries are accepted with or without a leading dot; the comparison
// is case-sensitive, so .go does not cover .GO unless both are listed.
func matchExtension(list StringOrArray, path string) bool {
	if path == "" {
		return false
	}
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	for _, want := range list {
		if strings.TrimPrefix(want, ".") == ext {
			return true
		}
	}
	return false
}

func matchDirs(globs []glob.Glob, path string) bool {
	for _, g := range globs {
		if g.Match(path) {
			return true
		}
	}
	return false
}

func matchAny(res []*regexp.Regexp, s string) bool {
	for _, re := range res {
		if pattern.Match(re, s) {
			return true
		}
	}
	return false
}
