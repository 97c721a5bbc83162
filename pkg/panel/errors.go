package panel

import "fmt"

// InvalidParameterError reports a generating parameter that fails validation.
// Validation runs before any random draw, so a failed call consumes no
// entropy and produces no partial dataset.
type InvalidParameterError struct {
	Field  string
	Reason string
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("panel: invalid parameter %s: %s", e.Field, e.Reason)
}
