// Signal kinds, lifecycle states and the preconditions a signal can violate
package validator

// SignalKind identifies one lifecycle signal.
type SignalKind int

// Signal kinds in the order they usually occur.
const (
	SignalStart SignalKind = iota
	SignalStop
	SignalError
	SignalEvent
	SignalScopeOpen
	SignalScopeReset
	SignalScopeClose
)

var signalNames = [...]string{
	SignalStart:      "START",
	SignalStop:       "STOP",
	SignalError:      "ERROR",
	SignalEvent:      "EVENT",
	SignalScopeOpen:  "SCOPE_OPEN",
	SignalScopeReset: "SCOPE_RESET",
	SignalScopeClose: "SCOPE_CLOSE",
}

// signalPhrases name the signal inside violation messages.
var signalPhrases = [...]string{
	SignalStart:      "start",
	SignalStop:       "stop",
	SignalError:      "error signal",
	SignalEvent:      "event signal",
	SignalScopeOpen:  "scope opening",
	SignalScopeReset: "scope resetting",
	SignalScopeClose: "scope closing",
}

func (k SignalKind) String() string {
	if k < 0 || int(k) >= len(signalNames) {
		return "UNKNOWN"
	}
	return signalNames[k]
}

func (k SignalKind) phrase() string {
	if k < 0 || int(k) >= len(signalPhrases) {
		return "signal"
	}
	return signalPhrases[k]
}

// State is the lifecycle state of an observation.
type State int

// Lifecycle states. StateStopped is terminal.
const (
	StateNotStarted State = iota
	StateStarted
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "NOT_STARTED"
	case StateStarted:
		return "STARTED"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// Precondition is the requirement a rejected signal failed.
type Precondition int

// Preconditions. NotStarted means the signal came too early,
// AlreadyStopped means it came after completion.
const (
	NotStarted Precondition = iota
	AlreadyStarted
	AlreadyStopped
)

func (p Precondition) String() string {
	switch p {
	case NotStarted:
		return "not_started"
	case AlreadyStarted:
		return "already_started"
	case AlreadyStopped:
		return "already_stopped"
	default:
		return "unknown"
	}
}

func (p Precondition) reason() string {
	switch p {
	case NotStarted:
		return "Observation has not been started yet"
	case AlreadyStarted:
		return "Observation has already been started"
	default:
		return "Observation has already been stopped"
	}
}

// check returns the failed precondition for a signal in state s, if any.
func check(s State, k SignalKind) (Precondition, bool) {
	switch k {
	case SignalStart:
		if s != StateNotStarted {
			return AlreadyStarted, false
		}
	default:
		switch s {
		case StateNotStarted:
			return NotStarted, false
		case StateStopped:
			return AlreadyStopped, false
		}
	}
	return 0, true
}
