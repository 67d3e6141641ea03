// YAML script types, loading, and validation for lifecycle replay
// A script holds cases; each case declares observations and an ordered list of signal steps
package script

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ExpectValid is the expected outcome of a case that must raise no violation.
const ExpectValid = "valid"

// Step actions.
const (
	ActionStart      = "start"
	ActionStop       = "stop"
	ActionError      = "error"
	ActionEvent      = "event"
	ActionOpenScope  = "open_scope"
	ActionResetScope = "reset_scope"
	ActionCloseScope = "close_scope"
	ActionObserve    = "observe"
)

// Script is the top-level YAML document.
type Script struct {
	Cases []Case `yaml:"cases"`
}

// Case is one independent replay with its own observations.
type Case struct {
	Name         string              `yaml:"name"`
	Expect       string              `yaml:"expect,omitempty"`
	Observations []ObservationConfig `yaml:"observations"`
	Steps        []Step              `yaml:"steps"`
}

// ObservationConfig declares an observation a case's steps can address by name.
type ObservationConfig struct {
	Name           string            `yaml:"name"`
	ContextualName string            `yaml:"contextual_name,omitempty"`
	Parent         string            `yaml:"parent,omitempty"`
	Null           bool              `yaml:"null,omitempty"`
	Attributes     map[string]string `yaml:"attributes,omitempty"`
}

// Step is a single signal. Exactly one action field is set; it names the
// observation, or for reset_scope and close_scope the scope id.
type Step struct {
	Start      string `yaml:"start,omitempty"`
	Stop       string `yaml:"stop,omitempty"`
	Error      string `yaml:"error,omitempty"`
	Event      string `yaml:"event,omitempty"`
	OpenScope  string `yaml:"open_scope,omitempty"`
	ResetScope string `yaml:"reset_scope,omitempty"`
	CloseScope string `yaml:"close_scope,omitempty"`
	Observe    string `yaml:"observe,omitempty"`

	// As names the scope created by open_scope.
	As string `yaml:"as,omitempty"`
	// Name is the event name for event, or an event emitted inside observe.
	Name string `yaml:"name,omitempty"`
	// Message is the error text for error.
	Message string `yaml:"message,omitempty"`
	// Fail makes the observe body return an error with this text.
	Fail string `yaml:"fail,omitempty"`
}

// Action returns the step's action and its target.
// ok is false unless exactly one action field is set.
func (s Step) Action() (action, target string, ok bool) {
	fields := []struct{ action, target string }{
		{ActionStart, s.Start},
		{ActionStop, s.Stop},
		{ActionError, s.Error},
		{ActionEvent, s.Event},
		{ActionOpenScope, s.OpenScope},
		{ActionResetScope, s.ResetScope},
		{ActionCloseScope, s.CloseScope},
		{ActionObserve, s.Observe},
	}
	n := 0
	for _, f := range fields {
		if f.target != "" {
			action, target = f.action, f.target
			n++
		}
	}
	if n != 1 {
		return "", "", false
	}
	return action, target, true
}

// ExpectedOutcome returns Expect, defaulting to ExpectValid.
func (c Case) ExpectedOutcome() string {
	if c.Expect == "" {
		return ExpectValid
	}
	return c.Expect
}

// StepCount returns the total number of steps across all cases.
func (s *Script) StepCount() int {
	n := 0
	for _, c := range s.Cases {
		n += len(c.Steps)
	}
	return n
}

// Load reads and parses a YAML script file.
func Load(path string) (*Script, error) {
	data, err := os.ReadFile(path) //nolint:gosec // user-supplied script path is expected
	if err != nil {
		return nil, fmt.Errorf("reading script: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML script. Unknown keys are rejected.
func Parse(data []byte) (*Script, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var s Script
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("parsing script: %w", err)
	}
	return &s, nil
}

// Validate checks a script for structural errors.
func Validate(s *Script) error {
	if len(s.Cases) == 0 {
		return fmt.Errorf("at least one case is required")
	}
	caseNames := make(map[string]bool)
	for i, c := range s.Cases {
		if c.Name == "" {
			return fmt.Errorf("case %d: name is required", i+1)
		}
		if caseNames[c.Name] {
			return fmt.Errorf("case %q: duplicate name", c.Name)
		}
		caseNames[c.Name] = true
		if err := validateCase(c); err != nil {
			return fmt.Errorf("case %q: %w", c.Name, err)
		}
	}
	return nil
}

func validateCase(c Case) error {
	if len(c.Observations) == 0 {
		return fmt.Errorf("at least one observation is required")
	}
	if len(c.Steps) == 0 {
		return fmt.Errorf("at least one step is required")
	}

	// Parents must be declared before their children
	known := make(map[string]bool)
	for _, o := range c.Observations {
		if o.Name == "" {
			return fmt.Errorf("observation name is required")
		}
		if known[o.Name] {
			return fmt.Errorf("observation %q: duplicate name", o.Name)
		}
		if o.Parent != "" && !known[o.Parent] {
			return fmt.Errorf("observation %q: parent %q must be declared earlier", o.Name, o.Parent)
		}
		known[o.Name] = true
	}

	scopes := make(map[string]bool)
	for i, step := range c.Steps {
		action, target, ok := step.Action()
		if !ok {
			return fmt.Errorf("step %d: exactly one action is required", i+1)
		}
		switch action {
		case ActionResetScope, ActionCloseScope:
			if !scopes[target] {
				return fmt.Errorf("step %d: %s references unknown scope %q", i+1, action, target)
			}
		default:
			if !known[target] {
				return fmt.Errorf("step %d: %s references unknown observation %q", i+1, action, target)
			}
		}
		if action == ActionOpenScope {
			if step.As == "" {
				return fmt.Errorf("step %d: open_scope requires as", i+1)
			}
			if scopes[step.As] {
				return fmt.Errorf("step %d: scope %q already declared", i+1, step.As)
			}
			scopes[step.As] = true
		} else if step.As != "" {
			return fmt.Errorf("step %d: as is only valid for open_scope", i+1)
		}
		if action == ActionEvent && step.Name == "" {
			return fmt.Errorf("step %d: event requires name", i+1)
		}
		if step.Fail != "" && action != ActionObserve {
			return fmt.Errorf("step %d: fail is only valid for observe", i+1)
		}
	}
	return nil
}
