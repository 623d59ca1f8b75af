package features

import "fmt"

// ValidationError reports a field that is present but malformed or outside
// its allowed values.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// MissingFieldError reports a required key absent from the payload.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("The key '%s' is missing in the input data.", e.Field)
}
