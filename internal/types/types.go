// Package types defines common type-safe enums used across the codebase.
package types

import "encoding/json"

// EventKind identifies the hook event that triggered an evaluation.
type EventKind string

const (
	EventPreToolUse        EventKind = "PreToolUse"
	EventPostToolUse       EventKind = "PostToolUse"
	EventUserPromptSubmit  EventKind = "UserPromptSubmit"
	EventSessionStart      EventKind = "SessionStart"
	EventSessionEnd        EventKind = "SessionEnd"
	EventPermissionRequest EventKind = "PermissionRequest"
	EventNotification      EventKind = "Notification"
	EventStop              EventKind = "Stop"
	EventSubagentStop      EventKind = "SubagentStop"
	EventPreCompact        EventKind = "PreCompact"
	EventSetup             EventKind = "Setup"
)

// ValidEventKinds is the set of all recognized event kinds.
var ValidEventKinds = map[EventKind]bool{
	EventPreToolUse:        true,
	EventPostToolUse:       true,
	EventUserPromptSubmit:  true,
	EventSessionStart:      true,
	EventSessionEnd:        true,
	EventPermissionRequest: true,
	EventNotification:      true,
	EventStop:              true,
	EventSubagentStop:      true,
	EventPreCompact:        true,
	EventSetup:             true,
}

// Valid returns true if the EventKind is a known value.
func (k EventKind) Valid() bool {
	return ValidEventKinds[k]
}

// Mode governs how a rule's block outcome is applied.
type Mode string

const (
	// ModeEnforce blocks for real.
	ModeEnforce Mode = "enforce"
	// ModeWarn converts blocks into injected context; never blocks.
	ModeWarn Mode = "warn"
	// ModeAudit records the outcome and changes nothing.
	ModeAudit Mode = "audit"
)

// Valid returns true if the Mode is a known value.
func (m Mode) Valid() bool {
	return m == ModeEnforce || m == ModeWarn || m == ModeAudit
}

// Precedence orders modes for conflict resolution: enforce > warn > audit.
// Lower value means higher precedence.
func (m Mode) Precedence() int {
	switch m {
	case ModeEnforce:
		return 0
	case ModeWarn:
		return 1
	default:
		return 2
	}
}

// FailPolicy controls behavior when a validator cannot produce a verdict
// (spawn failure, timeout, evaluation error).
type FailPolicy string

const (
	// FailClosed blocks when the verdict is unknown.
	FailClosed FailPolicy = "closed"
	// FailOpen continues when the verdict is unknown.
	FailOpen FailPolicy = "open"
)

// Valid returns true if the FailPolicy is a known value.
func (p FailPolicy) Valid() bool {
	return p == FailClosed || p == FailOpen
}

// Operation is the derived classification of what an event does.
type Operation string

const (
	OpCreate Operation = "create"
	OpEdit   Operation = "edit"
	OpRead   Operation = "read"
	OpDelete Operation = "delete"
)

// ValidOperations is the set of all valid operation classifications.
var ValidOperations = map[Operation]bool{
	OpCreate: true,
	OpEdit:   true,
	OpRead:   true,
	OpDelete: true,
}

// Valid returns true if the Operation is a known value.
func (o Operation) Valid() bool {
	return ValidOperations[o]
}

// FieldType is a primitive type tag for payload field validation.
type FieldType string

const (
	FieldString  FieldType = "string"
	FieldNumber  FieldType = "number"
	FieldBoolean FieldType = "boolean"
	FieldArray   FieldType = "array"
	FieldObject  FieldType = "object"
)

// Valid returns true if the FieldType is a known value.
func (t FieldType) Valid() bool {
	switch t {
	case FieldString, FieldNumber, FieldBoolean, FieldArray, FieldObject:
		return true
	}
	return false
}

// Matches reports whether a decoded JSON value carries this primitive type.
func (t FieldType) Matches(v any) bool {
	switch t {
	case FieldString:
		_, ok := v.(string)
		return ok
	case FieldNumber:
		switch v.(type) {
		case float64, int, int64, json.Number:
			return true
		}
		return false
	case FieldBoolean:
		_, ok := v.(bool)
		return ok
	case FieldArray:
		_, ok := v.([]any)
		return ok
	case FieldObject:
		_, ok := v.(map[string]any)
		return ok
	}
	return false
}
