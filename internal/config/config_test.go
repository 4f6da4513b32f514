package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hookwarden/hookwarden/internal/types"
)

func TestDefaultSettingsValidate(t *testing.T) {
	if err := DefaultSettings().Validate(); err != nil {
		t.Errorf("defaults must validate: %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("missing file must fall back to defaults: %v", err)
	}
	if s.ScriptTimeoutSecs != 5 {
		t.Errorf("ScriptTimeoutSecs = %d, want default 5", s.ScriptTimeoutSecs)
	}
	if s.FailPolicy != types.FailClosed {
		t.Errorf("FailPolicy = %q, want closed", s.FailPolicy)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
script_timeout_secs: 10
fail_policy: open
log_level: debug
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	s, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if s.ScriptTimeoutSecs != 10 {
		t.Errorf("ScriptTimeoutSecs = %d, want 10", s.ScriptTimeoutSecs)
	}
	if s.FailPolicy != types.FailOpen {
		t.Errorf("FailPolicy = %q, want open", s.FailPolicy)
	}
	if err := s.Validate(); err != nil {
		t.Errorf("loaded settings must validate: %v", err)
	}
}

func TestLoadUnknownFieldsIsLenient(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "script_timeout_secs: 7\ntypo_field: true\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	s, err := Load(path)
	if err != nil {
		t.Fatalf("unknown fields must warn, not fail: %v", err)
	}
	if s.ScriptTimeoutSecs != 7 {
		t.Errorf("ScriptTimeoutSecs = %d, want 7", s.ScriptTimeoutSecs)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("HOOKWARDEN_SCRIPT_TIMEOUT_SECS", "30")
	s, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if s.ScriptTimeoutSecs != 30 {
		t.Errorf("ScriptTimeoutSecs = %d, want env override 30", s.ScriptTimeoutSecs)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	s := DefaultSettings()
	s.FailPolicy = "maybe"
	s.ScriptTimeoutSecs = 0
	s.LogLevel = "loud"

	err := s.Validate()
	if err == nil {
		t.Fatal("expected validation failure")
	}
	for _, want := range []string{"fail_policy", "log_level"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %s: %v", want, err)
		}
	}
}
