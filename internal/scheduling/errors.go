package scheduling

import "fmt"

// SchedulingError reports that a plan could not be produced. Raw holds the
// model reply, when there was one, for diagnostics.
type SchedulingError struct {
	Stage Stage
	Raw   string
	Err   error
}

func (e *SchedulingError) Error() string {
	return fmt.Sprintf("scheduling failed at %s: %v", e.Stage, e.Err)
}

func (e *SchedulingError) Unwrap() error {
	return e.Err
}

// Diagnostic is a short excerpt of the raw reply suitable for showing to a
// user next to the error.
func (e *SchedulingError) Diagnostic() string {
	const max = 300
	if len(e.Raw) <= max {
		return e.Raw
	}
	return e.Raw[:max] + "..."
}
