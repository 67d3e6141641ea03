// InvalidObservationError and its deterministic diagnostic report
package validator

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// Sentinels matched by errors.Is against an *InvalidObservationError.
// An InvalidObservationError never wraps a cause; these only classify it.
var (
	ErrNotStarted     = errors.New("observation has not been started yet")
	ErrAlreadyStarted = errors.New("observation has already been started")
	ErrAlreadyStopped = errors.New("observation has already been stopped")
)

const errorQualifier = "validator.InvalidObservationError"

// InvalidObservationError reports a signal that the observation's state did not allow.
type InvalidObservationError struct {
	Kind         SignalKind
	Precondition Precondition
	// Observation is the name of the observation the signal was emitted on.
	Observation string
	// History holds every signal seen on the observation, the rejected one last.
	History []Entry
}

// Error returns the fixed message, e.g. "Invalid stop: Observation has already been stopped".
func (e *InvalidObservationError) Error() string {
	return "Invalid " + e.Kind.phrase() + ": " + e.Precondition.reason()
}

// Is matches the sentinel for the failed precondition.
func (e *InvalidObservationError) Is(target error) bool {
	switch target {
	case ErrNotStarted:
		return e.Precondition == NotStarted
	case ErrAlreadyStarted:
		return e.Precondition == AlreadyStarted
	case ErrAlreadyStopped:
		return e.Precondition == AlreadyStopped
	}
	return false
}

// Report renders the qualified message followed by one "<KIND>: <call site>"
// line per history entry, with no trailing newline.
func (e *InvalidObservationError) Report() string {
	var b strings.Builder
	b.WriteString(errorQualifier)
	b.WriteString(": ")
	b.WriteString(e.Error())
	for _, entry := range e.History {
		b.WriteByte('\n')
		b.WriteString(entry.String())
	}
	return b.String()
}

// Format prints the report for %+v and the message otherwise.
func (e *InvalidObservationError) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			_, _ = io.WriteString(s, e.Report())
			return
		}
		_, _ = io.WriteString(s, e.Error())
	case 's':
		_, _ = io.WriteString(s, e.Error())
	case 'q':
		_, _ = fmt.Fprintf(s, "%q", e.Error())
	}
}
