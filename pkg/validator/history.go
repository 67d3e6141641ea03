// Append-only signal log kept per observation
package validator

import "slices"

// Entry is one recorded signal.
type Entry struct {
	Kind SignalKind
	Site CallSite
}

// String renders the entry as "<KIND>: <call site>".
func (e Entry) String() string {
	return e.Kind.String() + ": " + e.Site.String()
}

// Log is an ordered record of signals. The zero value is empty and ready to use.
// Not safe for concurrent use; the validator guards it with the tracker lock.
type Log struct {
	entries []Entry
}

func (l *Log) append(e Entry) {
	l.entries = append(l.entries, e)
}

// Len returns the number of recorded entries.
func (l *Log) Len() int {
	return len(l.entries)
}

// Entries returns a copy of the recorded entries in arrival order.
func (l *Log) Entries() []Entry {
	return slices.Clone(l.entries)
}

// Kinds returns the signal kinds in arrival order.
func (l *Log) Kinds() []SignalKind {
	kinds := make([]SignalKind, len(l.entries))
	for i, e := range l.entries {
		kinds[i] = e.Kind
	}
	return kinds
}
