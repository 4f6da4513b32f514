// Package config loads the global engine settings: rule locations, script
// timeout and fail-policy defaults, audit log path. Rule files themselves
// are parsed by the rules loader, not here.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/hookwarden/hookwarden/internal/logger"
	"github.com/hookwarden/hookwarden/internal/types"
)

var log = logger.New("config")

// Settings is the global engine configuration. YAML file first, then
// HOOKWARDEN_* environment overrides, then CLI flags; Validate runs after
// all overrides are applied.
type Settings struct {
	// RulesDir holds rule files (*.yaml), loaded in lexical file order.
	RulesDir string `yaml:"rules_dir" envconfig:"RULES_DIR"`

	// AuditLog is the JSON-Lines audit file path. Empty disables auditing.
	AuditLog string `yaml:"audit_log" envconfig:"AUDIT_LOG"`

	// ScriptTimeoutSecs is the default wall-clock budget for validator
	// scripts. Per-rule overrides are capped at MaxScriptTimeoutSecs.
	ScriptTimeoutSecs int `yaml:"script_timeout_secs" envconfig:"SCRIPT_TIMEOUT_SECS" validate:"min=1,max=300"`

	// FailPolicy governs script/expression validators that cannot produce
	// a verdict: "closed" blocks, "open" continues.
	FailPolicy types.FailPolicy `yaml:"fail_policy" envconfig:"FAIL_POLICY"`

	// FieldFailPolicy governs required-field checks against missing or
	// mistyped payload paths.
	FieldFailPolicy types.FailPolicy `yaml:"field_fail_policy" envconfig:"FIELD_FAIL_POLICY"`

	// PatternCacheSize bounds the runtime pattern cache.
	PatternCacheSize int `yaml:"pattern_cache_size" envconfig:"PATTERN_CACHE_SIZE" validate:"min=1,max=10000"`

	// SchemaCheck toggles the fail-open structural event validation layer.
	SchemaCheck bool `yaml:"schema_check" envconfig:"SCHEMA_CHECK"`

	LogLevel string `yaml:"log_level" envconfig:"LOG_LEVEL"`
	NoColor  bool   `yaml:"no_color" envconfig:"NO_COLOR"`
}

// MaxScriptTimeoutSecs caps per-rule timeout overrides.
const MaxScriptTimeoutSecs = 300

// DefaultDir returns the hookwarden home directory (~/.hookwarden).
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".hookwarden"
	}
	return filepath.Join(home, ".hookwarden")
}

// DefaultSettingsPath returns the default settings file path.
func DefaultSettingsPath() string {
	return filepath.Join(DefaultDir(), "config.yaml")
}

// DefaultSettings returns the built-in defaults.
func DefaultSettings() *Settings {
	return &Settings{
		RulesDir:          filepath.Join(DefaultDir(), "rules.d"),
		AuditLog:          filepath.Join(DefaultDir(), "audit.jsonl"),
		ScriptTimeoutSecs: 5,
		FailPolicy:        types.FailClosed,
		FieldFailPolicy:   types.FailClosed,
		PatternCacheSize:  100,
		SchemaCheck:       true,
		LogLevel:          "warn",
	}
}

// Load reads settings from a YAML file and applies environment overrides.
// A missing file is not an error: defaults apply. Load does not call
// Validate; callers apply CLI overrides first, then validate.
func Load(path string) (*Settings, error) {
	s := DefaultSettings()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(s); err != nil {
			if isUnknownFieldError(err) {
				log.Warn("settings file has unknown fields (ignored): %v", err)
				s = DefaultSettings()
				if err2 := yaml.Unmarshal(data, s); err2 != nil {
					return nil, fmt.Errorf("settings parse error: %w", err2)
				}
			} else {
				return nil, fmt.Errorf("settings parse error: %w", err)
			}
		}
	case os.IsNotExist(err):
		// defaults apply
	default:
		return nil, err
	}

	if err := envconfig.Process("hookwarden", s); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}

	return s, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks all settings and returns a numbered multi-error report.
func (s *Settings) Validate() error {
	var errs []string

	if err := validate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				errs = append(errs, fmt.Sprintf("%s: failed %q constraint (got %v)", fe.Field(), fe.Tag(), fe.Value()))
			}
		} else {
			errs = append(errs, err.Error())
		}
	}

	if !s.FailPolicy.Valid() {
		errs = append(errs, fmt.Sprintf("fail_policy: must be \"open\" or \"closed\" (got %q)", s.FailPolicy))
	}
	if !s.FieldFailPolicy.Valid() {
		errs = append(errs, fmt.Sprintf("field_fail_policy: must be \"open\" or \"closed\" (got %q)", s.FieldFailPolicy))
	}
	if _, err := logger.ParseLevel(s.LogLevel); err != nil {
		errs = append(errs, fmt.Sprintf("log_level: %v", err))
	}

	if len(errs) == 0 {
		return nil
	}
	var sb strings.Builder
	sb.WriteString("settings validation failed:\n")
	for i, e := range errs {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, e)
	}
	return errors.New(sb.String())
}

func isUnknownFieldError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "not found in type")
}
