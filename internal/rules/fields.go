package rules

import (
	"fmt"
	"strings"

	"github.com/hookwarden/hookwarden/internal/event"
)

// CheckRequiredFields verifies every declared payload path against the
// event. It reports all problems at once rather than stopping at the
// first, so the agent sees the full shape of what is missing.
func CheckRequiredFields(reqs []FieldRequirement, e *event.Event) error {
	var problems []string
	for _, req := range reqs {
		v, ok := e.Lookup(req.Path)
		if !ok {
			problems = append(problems, fmt.Sprintf("missing required field %q", req.Path))
			continue
		}
		if req.Type != "" && !req.Type.Matches(v) {
			problems = append(problems, fmt.Sprintf("field %q is not of type %s", req.Path, req.Type))
		}
	}
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%s", strings.Join(problems, "; "))
}
