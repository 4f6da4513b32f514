// Package event models one hook notification from the coding agent and the
// read-only accessors rule evaluation needs: dot-path payload lookup,
// operation classification and text normalization.
package event

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/hookwarden/hookwarden/internal/types"
)

// MaxPathDepth is the maximum number of segments in a dot-delimited field
// path. Deeper paths are a configuration error, rejected at load time.
const MaxPathDepth = 5

// maxEventBytes caps the stdin document size. A hook payload is a tool
// invocation, not a file transfer.
const maxEventBytes = 4 << 20

// Event is one tool-invocation or prompt-submission notification.
// Immutable for the lifetime of one evaluation.
type Event struct {
	Kind      types.EventKind `json:"hook_event_name" validate:"required"`
	SessionID string          `json:"session_id" validate:"required"`
	ToolName  string          `json:"tool_name,omitempty"`
	ToolInput map[string]any  `json:"tool_input,omitempty"`
	Prompt    string          `json:"prompt,omitempty"`
	Cwd       string          `json:"cwd,omitempty"`
	Timestamp time.Time       `json:"timestamp,omitempty"`
}

// Decode reads a single JSON event document from r.
func Decode(r io.Reader) (*Event, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxEventBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read event: %w", err)
	}
	if len(data) > maxEventBytes {
		return nil, fmt.Errorf("event document exceeds %d bytes", maxEventBytes)
	}
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("parse event: %w", err)
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	return &ev, nil
}

// Command returns the command string from the payload, or "" if absent.
func (e *Event) Command() string {
	s, _ := e.lookupString("command")
	return s
}

// FilePath returns the file path from the payload, or "" if absent.
func (e *Event) FilePath() string {
	s, _ := e.lookupString("file_path")
	return s
}

// HasPrompt reports whether the event carries a prompt field.
// Prompt-submission events always do, even when the text is empty.
func (e *Event) HasPrompt() bool {
	return e.Prompt != "" || e.Kind == types.EventUserPromptSubmit
}

func (e *Event) lookupString(key string) (string, bool) {
	v, ok := e.Lookup(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// ValidatePath checks that a dot-delimited field path is well-formed and
// within the depth limit. Used at config load, not per event.
func ValidatePath(path string) error {
	if path == "" {
		return fmt.Errorf("empty field path")
	}
	segments := strings.Split(path, ".")
	if len(segments) > MaxPathDepth {
		return fmt.Errorf("field path %q exceeds maximum depth %d", path, MaxPathDepth)
	}
	for _, seg := range segments {
		if seg == "" {
			return fmt.Errorf("field path %q has an empty segment", path)
		}
	}
	return nil
}

// Lookup resolves a dot-delimited path against the tool input payload.
// Returns (nil, false) when any segment is missing or a non-object value is
// traversed. Paths deeper than MaxPathDepth never resolve; callers validate
// depth at load time, this is a backstop.
func (e *Event) Lookup(path string) (any, bool) {
	if e.ToolInput == nil {
		return nil, false
	}
	segments := strings.Split(path, ".")
	if len(segments) > MaxPathDepth {
		return nil, false
	}

	var cur any = e.ToolInput
	for _, seg := range segments {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Has reports whether the path resolves to any value.
func (e *Event) Has(path string) bool {
	_, ok := e.Lookup(path)
	return ok
}
