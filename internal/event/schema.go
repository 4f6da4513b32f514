package event

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate is built once; validator caches struct metadata internally.
var validate = validator.New(validator.WithRequiredStructEnabled())

// CheckSchema validates the structural shape of an event: required fields
// present, event kind recognized. The caller decides whether a failure
// blocks or merely warns.
func CheckSchema(e *Event) error {
	if err := validate.Struct(e); err != nil {
		return fmt.Errorf("event schema: %w", err)
	}
	if !e.Kind.Valid() {
		return fmt.Errorf("event schema: unrecognized event kind %q", e.Kind)
	}
	return nil
}
