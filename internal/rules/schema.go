package rules

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/hookwarden/hookwarden/internal/types"
)

// RuleSet is the top-level YAML structure of one rule file.
type RuleSet struct {
	Version int    `yaml:"version" json:"version"`
	Rules   []Rule `yaml:"rules" json:"rules"`
}

// Rule is one policy statement. Rules are immutable after load and are
// reloaded wholesale on config change.
type Rule struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Enabled is a static toggle (default true). EnabledWhen is an
	// expression evaluated per event; parse errors are configuration
	// errors, evaluation errors disable the rule for that event.
	Enabled     *bool  `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	EnabledWhen string `yaml:"enabled_when,omitempty" json:"enabled_when,omitempty"`

	// Priority: higher wins, default 0. Ties break by file order.
	Priority int        `yaml:"priority,omitempty" json:"priority,omitempty"`
	Mode     types.Mode `yaml:"mode,omitempty" json:"mode,omitempty"` // default enforce

	Match MatcherSet `yaml:"match,omitempty" json:"match,omitempty"`

	// Actions, in fixed precedence order.
	RequireFields []FieldRequirement `yaml:"require_fields,omitempty" json:"require_fields,omitempty"`
	Block         bool               `yaml:"block,omitempty" json:"block,omitempty"`
	BlockPattern  *BlockPattern      `yaml:"block_pattern,omitempty" json:"block_pattern,omitempty"`
	Inject        *Inject            `yaml:"inject,omitempty" json:"inject,omitempty"`
	Validator     *ValidatorConfig   `yaml:"validator,omitempty" json:"validator,omitempty"`

	// Message is the human-readable block reason for block/block_pattern.
	Message string `yaml:"message,omitempty" json:"message,omitempty"`

	// Runtime fields, set by the loader.
	Source    string `yaml:"-" json:"source,omitempty"`
	FilePath  string `yaml:"-" json:"file_path,omitempty"`
	FileOrder int    `yaml:"-" json:"file_order,omitempty"`
	HitCount  int64  `yaml:"-" json:"hit_count,omitempty"`
}

// IsEnabled returns the static enabled toggle (default true).
func (r *Rule) IsEnabled() bool {
	if r.Enabled == nil {
		return true
	}
	return *r.Enabled
}

// GetMode returns the rule mode, defaulting to enforce.
func (r *Rule) GetMode() types.Mode {
	if r.Mode == "" {
		return types.ModeEnforce
	}
	return r.Mode
}

// GetMessage returns the block reason, with a generic default.
func (r *Rule) GetMessage() string {
	if r.Message != "" {
		return r.Message
	}
	return fmt.Sprintf("Blocked by rule %q", r.Name)
}

// MatcherSet is a conjunction of optional matcher fields. An unset field
// never disqualifies a rule; a list-valued field matches if any entry
// matches. An entirely empty set matches every event. That is intentional:
// it is how catch-all rules (audit everything, inject workspace context)
// are written.
type MatcherSet struct {
	// Tools and Extensions are case-sensitive exact membership.
	Tools      StringOrArray `yaml:"tools,omitempty" json:"tools,omitempty"`
	Extensions StringOrArray `yaml:"extensions,omitempty" json:"extensions,omitempty"`

	// Dirs are glob patterns matched against the event's file path.
	Dirs StringOrArray `yaml:"dirs,omitempty" json:"dirs,omitempty"`

	// Operations match the pre-classified operation kind of the event.
	Operations []types.Operation `yaml:"operations,omitempty" json:"operations,omitempty"`

	// CommandMatch and PromptMatch are regex patterns against the command
	// string and prompt text. An absent payload field means "did not
	// match", not an error.
	CommandMatch StringOrArray `yaml:"command_match,omitempty" json:"command_match,omitempty"`
	PromptMatch  StringOrArray `yaml:"prompt_match,omitempty" json:"prompt_match,omitempty"`

	// FieldsExist matches when any listed payload path resolves.
	FieldsExist []string `yaml:"fields_exist,omitempty" json:"fields_exist,omitempty"`

	// FieldTypes matches when every declared path resolves to the declared
	// primitive type.
	FieldTypes map[string]types.FieldType `yaml:"field_types,omitempty" json:"field_types,omitempty"`
}

// IsEmpty reports whether no matcher field is populated.
func (m *MatcherSet) IsEmpty() bool {
	return len(m.Tools) == 0 &&
		len(m.Extensions) == 0 &&
		len(m.Dirs) == 0 &&
		len(m.Operations) == 0 &&
		len(m.CommandMatch) == 0 &&
		len(m.PromptMatch) == 0 &&
		len(m.FieldsExist) == 0 &&
		len(m.FieldTypes) == 0
}

// FieldRequirement declares a payload path that must be present, with an
// optional primitive type tag. YAML accepts either a bare string path or a
// mapping with path and type.
type FieldRequirement struct {
	Path string          `json:"path"`
	Type types.FieldType `json:"type,omitempty"`
}

// UnmarshalYAML accepts "file_path" or {path: file_path, type: string}.
func (f *FieldRequirement) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Value == "" {
			return fmt.Errorf("empty field path not allowed")
		}
		f.Path = node.Value
		return nil
	case yaml.MappingNode:
		type plain struct {
			Path string          `yaml:"path"`
			Type types.FieldType `yaml:"type"`
		}
		var p plain
		if err := node.Decode(&p); err != nil {
			return err
		}
		if p.Path == "" {
			return fmt.Errorf("require_fields entry needs a path")
		}
		f.Path = p.Path
		f.Type = p.Type
		return nil
	default:
		return fmt.Errorf("require_fields entry must be a string or mapping")
	}
}

// BlockPattern blocks when the referenced payload field matches a pattern.
type BlockPattern struct {
	Field   string `yaml:"field" json:"field"`
	Pattern string `yaml:"pattern" json:"pattern"`
}

// Inject declares a context injection. The three sources are mutually
// exclusive by precedence: text, then command output, then file content.
// The first configured source wins even if several are set.
type Inject struct {
	Text    string `yaml:"text,omitempty" json:"text,omitempty"`
	Command string `yaml:"command,omitempty" json:"command,omitempty"`
	File    string `yaml:"file,omitempty" json:"file,omitempty"`
}

// IsEmpty reports whether no injection source is configured.
func (i *Inject) IsEmpty() bool {
	return i == nil || (i.Text == "" && i.Command == "" && i.File == "")
}

// ValidatorConfig declares the rule's validator. Exactly one of Script,
// Inline or Expression must be set; SHA256 optionally pins an external
// script's content.
type ValidatorConfig struct {
	Script     string `yaml:"script,omitempty" json:"script,omitempty"`
	SHA256     string `yaml:"sha256,omitempty" json:"sha256,omitempty"`
	Inline     string `yaml:"inline,omitempty" json:"inline,omitempty"`
	Expression string `yaml:"expression,omitempty" json:"expression,omitempty"`

	// TimeoutSecs overrides the global script timeout for this rule.
	TimeoutSecs int `yaml:"timeout_secs,omitempty" json:"timeout_secs,omitempty"`

	// FailPolicy overrides the global fail policy for this rule.
	FailPolicy types.FailPolicy `yaml:"fail_policy,omitempty" json:"fail_policy,omitempty"`
}

// StringOrArray handles YAML fields that accept a string or a []string.
type StringOrArray []string

func (s *StringOrArray) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Value == "" {
			return fmt.Errorf("empty value not allowed")
		}
		*s = []string{node.Value}
		return nil
	case yaml.SequenceNode:
		var arr []string
		if err := node.Decode(&arr); err != nil {
			return err
		}
		if len(arr) == 0 {
			return fmt.Errorf("empty list not allowed")
		}
		for i, v := range arr {
			if v == "" {
				return fmt.Errorf("entry[%d]: empty value not allowed", i)
			}
		}
		*s = arr
		return nil
	default:
		return fmt.Errorf("must be string or array, got kind %v", node.Kind)
	}
}

// Decision is the terminal per-event outcome. Continue optionally carries
// injected context; Block carries a human-readable reason.
type Decision struct {
	Continue bool
	Context  string
	Reason   string
}

// ContinueDecision is the neutral outcome: continue, nothing injected.
func ContinueDecision() Decision {
	return Decision{Continue: true}
}

// BlockDecision blocks with the given reason.
func BlockDecision(reason string) Decision {
	return Decision{Continue: false, Reason: reason}
}

// InjectDecision continues with injected context.
func InjectDecision(context string) Decision {
	return Decision{Continue: true, Context: context}
}

// MarshalJSON implements the output contract:
// {"continue": bool, "context": string|null, "reason": string|null}.
func (d Decision) MarshalJSON() ([]byte, error) {
	out := struct {
		Continue bool    `json:"continue"`
		Context  *string `json:"context"`
		Reason   *string `json:"reason"`
	}{Continue: d.Continue}
	if d.Context != "" {
		out.Context = &d.Context
	}
	if d.Reason != "" {
		out.Reason = &d.Reason
	}
	return json.Marshal(out)
}

// ConfigError is a load-time rule validation failure. The affected rule is
// withheld from evaluation; strict loading turns it into a hard error.
type ConfigError struct {
	Rule string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("rule %q: %v", e.Rule, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}
