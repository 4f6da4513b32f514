package exprlang

import "testing"

func testEnv() map[string]any {
	payload := map[string]any{
		"file_path": "/tmp/x.go",
		"command":   "git push",
	}
	return map[string]any{
		"tool": "Bash",
		"kind": "PreToolUse",
		"env": func(name string) string {
			if name == "CI" {
				return "true"
			}
			return ""
		},
		"has": func(path string) bool {
			_, ok := payload[path]
			return ok
		},
		"field": func(path string) any {
			return payload[path]
		},
	}
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name   string
		source string
	}{
		{"empty", ""},
		{"unbalanced", `tool == "Bash" &&`},
		{"garbage", `@@!`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Compile(tt.source); err == nil {
				t.Errorf("Compile(%q) should fail", tt.source)
			}
		})
	}
}

func TestEval(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   bool
	}{
		{"tool equality", `tool == "Bash"`, true},
		{"tool mismatch", `tool == "Write"`, false},
		{"env comparison", `env("CI") == "true"`, true},
		{"env missing", `env("NOPE") != ""`, false},
		{"field presence", `has("file_path")`, true},
		{"field absence", `has("url")`, false},
		{"field value", `field("command") == "git push"`, true},
		{"conjunction", `tool == "Bash" && has("command")`, true},
		{"negation", `!(kind == "PostToolUse")`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Compile(tt.source)
			if err != nil {
				t.Fatalf("Compile(%q) error: %v", tt.source, err)
			}
			got, err := Eval(p, testEnv())
			if err != nil {
				t.Fatalf("Eval(%q) error: %v", tt.source, err)
			}
			if got != tt.want {
				t.Errorf("Eval(%q) = %v, want %v", tt.source, got, tt.want)
			}
		})
	}
}

func TestEvalErrorOnUnknownVariable(t *testing.T) {
	p, err := Compile(`nonexistent == "x"`)
	if err != nil {
		t.Fatalf("compile should succeed without declared env: %v", err)
	}
	if _, err := Eval(p, testEnv()); err == nil {
		t.Error("unknown variable must surface as an evaluation error")
	}
}
