package event

import (
	"strings"

	"github.com/hookwarden/hookwarden/internal/types"
)

// wellKnownTools maps agent tool names to their operation classification.
// Matching is case-sensitive: tool names are protocol identifiers.
var wellKnownTools = map[string]types.Operation{
	"Read":         types.OpRead,
	"Glob":         types.OpRead,
	"Grep":         types.OpRead,
	"LS":           types.OpRead,
	"NotebookRead": types.OpRead,
	"WebFetch":     types.OpRead,
	"Write":        types.OpCreate,
	"NotebookEdit": types.OpEdit,
	"Edit":         types.OpEdit,
	"MultiEdit":    types.OpEdit,
}

// Classify derives the operation kind of an event from the tool name and
// payload shape. The matcher engine only compares the pre-classified value;
// this is the event-normalization side of that contract.
//
// Returns ("", false) when no classification applies (prompt events,
// unknown MCP tools); operation matchers then simply do not match.
func Classify(e *Event) (types.Operation, bool) {
	if op, ok := wellKnownTools[e.ToolName]; ok {
		// A Write to a path that carries existing content markers is still
		// a create from the agent's perspective; no filesystem probing here.
		return op, true
	}

	if e.ToolName == "Bash" {
		return classifyCommand(e.Command())
	}

	return "", false
}

// classifyCommand inspects the leading words of a shell command. This is a
// coarse classification for operation matchers, not a shell parser; rules
// needing precision should use command_match.
func classifyCommand(cmd string) (types.Operation, bool) {
	fields := strings.Fields(cmd)
	if len(fields) == 0 {
		return "", false
	}
	switch fields[0] {
	case "rm", "rmdir", "unlink", "shred":
		return types.OpDelete, true
	case "touch", "mkdir", "tee", "install":
		return types.OpCreate, true
	case "cat", "less", "head", "tail", "grep", "find", "ls", "stat":
		return types.OpRead, true
	case "sed", "patch", "truncate", "chmod", "chown", "mv", "cp":
		return types.OpEdit, true
	}
	return "", false
}
