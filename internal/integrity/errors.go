package integrity

import "fmt"

// InvalidInputError is returned when a URL or key material cannot be used for
// derivation. It fails the single call and never affects session state.
type InvalidInputError struct {
	Input  string
	Reason string
	Err    error
}

func (e *InvalidInputError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid input %q: %s: %v", e.Input, e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid input %q: %s", e.Input, e.Reason)
}

func (e *InvalidInputError) Unwrap() error {
	return e.Err
}

func invalidInput(input, reason string) *InvalidInputError {
	return &InvalidInputError{Input: input, Reason: reason}
}
