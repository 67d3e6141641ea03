// Replay drives scripted signal sequences through an observation registry
// Each case gets fresh observations; a case stops at its first violation
package script

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/andrewh/obscheck/pkg/observation"
	"github.com/andrewh/obscheck/pkg/validator"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// Result is the outcome of one case.
type Result struct {
	Case    string `json:"case"`
	Expect  string `json:"expect"`
	Outcome string `json:"outcome"`
	Pass    bool   `json:"pass"`
	// Steps is the number of steps executed, including a rejected one.
	Steps  int    `json:"steps"`
	Report string `json:"report,omitempty"`

	Violation *validator.InvalidObservationError `json:"-"`
}

// Summary is the outcome of one script run.
type Summary struct {
	RunID   uuid.UUID `json:"run_id"`
	Script  string    `json:"script,omitempty"`
	Started time.Time `json:"started"`
	Results []Result  `json:"results"`
}

// Failed returns the number of cases whose outcome did not match.
func (s *Summary) Failed() int {
	n := 0
	for _, r := range s.Results {
		if !r.Pass {
			n++
		}
	}
	return n
}

// bodyFailure is the error a scripted observe body returns on purpose.
type bodyFailure struct{ msg string }

func (f *bodyFailure) Error() string { return f.msg }

// Run replays every case of s through reg.
// It returns early with the results so far if ctx is cancelled.
func Run(ctx context.Context, s *Script, reg *observation.Registry) (*Summary, error) {
	sum := &Summary{
		RunID:   uuid.New(),
		Started: time.Now(),
	}
	for _, c := range s.Cases {
		if err := ctx.Err(); err != nil {
			return sum, fmt.Errorf("replay interrupted: %w", err)
		}
		sum.Results = append(sum.Results, runCase(ctx, c, reg))
	}
	return sum, nil
}

type caseRun struct {
	observations map[string]observation.Observation
	scopes       map[string]observation.Scope
}

func runCase(ctx context.Context, c Case, reg *observation.Registry) Result {
	res := Result{Case: c.Name, Expect: c.ExpectedOutcome(), Outcome: ExpectValid}
	run := &caseRun{
		observations: make(map[string]observation.Observation, len(c.Observations)),
		scopes:       make(map[string]observation.Scope),
	}
	for _, oc := range c.Observations {
		run.observations[oc.Name] = run.create(oc, reg)
	}

	for _, step := range c.Steps {
		res.Steps++
		err := run.exec(ctx, step)
		var (
			verr *validator.InvalidObservationError
			fail *bodyFailure
		)
		if errors.As(err, &verr) {
			res.Outcome = verr.Error()
			res.Report = verr.Report()
			res.Violation = verr
			break
		}
		// Anything but a violation or a scripted body failure ends the case too
		if err != nil && !errors.As(err, &fail) {
			res.Outcome = fmt.Sprintf("step %d failed: %v", res.Steps, err)
			break
		}
	}
	res.Pass = res.Outcome == res.Expect
	return res
}

func (r *caseRun) create(oc ObservationConfig, reg *observation.Registry) observation.Observation {
	if oc.Null {
		return observation.NewNull(reg)
	}
	var opts []observation.Option
	if oc.ContextualName != "" {
		opts = append(opts, observation.WithContextualName(oc.ContextualName))
	}
	if oc.Parent != "" {
		opts = append(opts, observation.WithParent(r.observations[oc.Parent]))
	}
	if len(oc.Attributes) > 0 {
		keys := make([]string, 0, len(oc.Attributes))
		for k := range oc.Attributes {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		kvs := make([]attribute.KeyValue, 0, len(keys))
		for _, k := range keys {
			kvs = append(kvs, attribute.String(k, oc.Attributes[k]))
		}
		opts = append(opts, observation.WithLowCardinality(kvs...))
	}
	return observation.CreateNotStarted(oc.Name, reg, opts...)
}

func (r *caseRun) exec(ctx context.Context, step Step) error {
	action, target, ok := step.Action()
	if !ok {
		return fmt.Errorf("step has no single action")
	}

	if action == ActionResetScope || action == ActionCloseScope {
		scope, ok := r.scopes[target]
		if !ok {
			return fmt.Errorf("unknown scope %q", target)
		}
		if action == ActionResetScope {
			return scope.Reset()
		}
		return scope.Close()
	}

	obs, ok := r.observations[target]
	if !ok {
		return fmt.Errorf("unknown observation %q", target)
	}
	switch action {
	case ActionStart:
		return obs.Start()
	case ActionStop:
		return obs.Stop()
	case ActionError:
		msg := step.Message
		if msg == "" {
			msg = "scripted error"
		}
		return obs.Error(errors.New(msg))
	case ActionEvent:
		return obs.Event(observation.EventOf(step.Name))
	case ActionOpenScope:
		scope, err := obs.OpenScope()
		if err != nil {
			return err
		}
		r.scopes[step.As] = scope
		return nil
	case ActionObserve:
		return obs.Observe(ctx, func(ctx context.Context) error {
			if step.Name != "" {
				if err := observation.FromContext(ctx).Event(observation.EventOf(step.Name)); err != nil {
					return err
				}
			}
			if step.Fail != "" {
				return &bodyFailure{msg: step.Fail}
			}
			return nil
		})
	}
	return fmt.Errorf("unknown action %q", action)
}
