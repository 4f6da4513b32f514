package rules

import (
	"fmt"
	"sort"

	"github.com/hookwarden/hookwarden/internal/types"
)

// Resolve folds per-rule outcomes into one decision. Outcomes are ordered
// by mode (enforce before warn before audit), then priority descending,
// then file order; the first enforce block wins outright. Warn blocks are
// demoted to injected warnings, audit outcomes change nothing, and the
// surviving context fragments are concatenated in resolved order.
func Resolve(outcomes []Outcome) Decision {
	sorted := make([]Outcome, len(outcomes))
	copy(sorted, outcomes)
	sort.SliceStable(sorted, func(i, j int) bool {
		ri, rj := &sorted[i].Rule.Rule, &sorted[j].Rule.Rule
		pi, pj := ri.GetMode().Precedence(), rj.GetMode().Precedence()
		if pi != pj {
			return pi < pj
		}
		if ri.Priority != rj.Priority {
			return ri.Priority > rj.Priority
		}
		return ri.FileOrder < rj.FileOrder
	})

	var context string
	for i := range sorted {
		o := &sorted[i]
		switch o.Rule.Rule.GetMode() {
		case types.ModeEnforce:
			if o.Block {
				return BlockDecision(o.Reason)
			}
			context = joinContext(context, o.Context)
		case types.ModeWarn:
			if o.Block {
				context = joinContext(context, fmt.Sprintf("Warning: %s", o.Reason))
			} else {
				context = joinContext(context, o.Context)
			}
		case types.ModeAudit:
			// Recorded in the audit log; never alters the decision.
		}
	}

	if context != "" {
		return InjectDecision(context)
	}
	return ContinueDecision()
}
