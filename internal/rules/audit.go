package rules

import (
	"time"

	"github.com/hookwarden/hookwarden/internal/event"
	"github.com/hookwarden/hookwarden/internal/types"
)

// AuditRecord is one JSONL line in the audit log: which event arrived,
// which rules matched, what each one did, and what was decided. One record
// is written per evaluated event, matched rules or not.
type AuditRecord struct {
	Timestamp  time.Time       `json:"timestamp"`
	SessionID  string          `json:"session_id"`
	Event      types.EventKind `json:"event"`
	Tool       string          `json:"tool,omitempty"`
	Rules      []AuditRuleHit  `json:"rules,omitempty"`
	Continue   bool            `json:"continue"`
	Reason     string          `json:"reason,omitempty"`
	Injected   bool            `json:"injected,omitempty"`
	DurationMS float64         `json:"duration_ms"`
}

// AuditRuleHit records one matched rule's contribution.
type AuditRuleHit struct {
	Name       string     `json:"name"`
	Mode       types.Mode `json:"mode"`
	Priority   int        `json:"priority,omitempty"`
	Source     string     `json:"source,omitempty"`
	Action     string     `json:"action"`
	Blocked    bool       `json:"blocked,omitempty"`
	DurationMS float64    `json:"duration_ms"`
}

func newAuditRecord(e *event.Event, outcomes []Outcome, d Decision, elapsed time.Duration) AuditRecord {
	rec := AuditRecord{
		Timestamp:  time.Now().UTC(),
		SessionID:  e.SessionID,
		Event:      e.Kind,
		Tool:       e.ToolName,
		Continue:   d.Continue,
		Reason:     d.Reason,
		Injected:   d.Context != "",
		DurationMS: float64(elapsed) / float64(time.Millisecond),
	}
	for i := range outcomes {
		o := &outcomes[i]
		rec.Rules = append(rec.Rules, AuditRuleHit{
			Name:       o.Rule.Rule.Name,
			Mode:       o.Rule.Rule.GetMode(),
			Priority:   o.Rule.Rule.Priority,
			Source:     o.Rule.Rule.Source,
			Action:     o.Action,
			Blocked:    o.Block,
			DurationMS: float64(o.Duration) / float64(time.Millisecond),
		})
	}
	return rec
}
