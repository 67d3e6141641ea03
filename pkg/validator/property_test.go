// Property-based tests for the lifecycle validator using pgregory.net/rapid
// Random signal sequences are checked against an independent state model
package validator

import (
	"errors"
	"fmt"
	"testing"

	"github.com/andrewh/obscheck/pkg/observation"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// modelState is the reference lifecycle the validator must agree with.
type modelState struct {
	started bool
	stopped bool
}

// expect returns the precondition the model says kind violates, if any.
func (m modelState) expect(kind SignalKind) (Precondition, bool) {
	switch kind {
	case SignalStart:
		if m.started {
			return AlreadyStarted, false
		}
		return 0, true
	}
	if !m.started {
		return NotStarted, false
	}
	if m.stopped {
		return AlreadyStopped, false
	}
	return 0, true
}

func (m *modelState) apply(kind SignalKind) {
	switch kind {
	case SignalStart:
		m.started = true
	case SignalStop:
		m.stopped = true
	}
}

var genKind = rapid.Custom(func(t *rapid.T) SignalKind {
	return SignalKind(rapid.IntRange(int(SignalStart), int(SignalScopeClose)).Draw(t, "kind"))
})

func TestPropertyValidatorMatchesModel(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		obs := observation.CreateNotStarted("prop", NewTestRegistry(WithCallSites(false)))
		var (
			model  modelState
			scopes []observation.Scope
			sent   []SignalKind
		)

		n := rapid.IntRange(1, 40).Draw(t, "n")
		for i := range n {
			kind := genKind.Draw(t, fmt.Sprintf("kind%d", i))

			var err error
			switch kind {
			case SignalStart:
				err = obs.Start()
			case SignalStop:
				err = obs.Stop()
			case SignalError:
				err = obs.Error(errors.New("boom"))
			case SignalEvent:
				err = obs.Event(observation.EventOf("tick"))
			case SignalScopeOpen:
				var scope observation.Scope
				scope, err = obs.OpenScope()
				if err == nil {
					scopes = append(scopes, scope)
				}
			case SignalScopeReset, SignalScopeClose:
				if len(scopes) == 0 {
					continue
				}
				last := scopes[len(scopes)-1]
				if kind == SignalScopeReset {
					err = last.Reset()
				} else if err = last.Close(); err == nil {
					scopes = scopes[:len(scopes)-1]
				}
			}
			sent = append(sent, kind)

			pre, ok := model.expect(kind)
			if ok {
				require.NoError(t, err, "signal %d (%s)", i, kind)
				model.apply(kind)
				continue
			}
			var verr *InvalidObservationError
			require.ErrorAs(t, err, &verr, "signal %d (%s)", i, kind)
			require.Equal(t, kind, verr.Kind)
			require.Equal(t, pre, verr.Precondition)
			require.Len(t, verr.History, len(sent))
			require.Equal(t, kind, verr.History[len(verr.History)-1].Kind)
		}

		if len(sent) == 0 {
			return
		}
		snap, ok := Inspect(obs.Context())
		require.True(t, ok)
		require.Len(t, snap.History, len(sent))
		for i, e := range snap.History {
			require.Equal(t, sent[i], e.Kind, "history entry %d", i)
		}
		require.Equal(t, len(scopes), snap.OpenScopes)
	})
}

func TestPropertyErrorsAndEventsInterleave(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		obs, err := observation.Start("prop", NewTestRegistry(WithCallSites(false)))
		require.NoError(t, err)

		signals := rapid.SliceOfN(rapid.Bool(), 0, 30).Draw(t, "errorOrEvent")
		for _, isErr := range signals {
			if isErr {
				require.NoError(t, obs.Error(errors.New("boom")))
			} else {
				require.NoError(t, obs.Event(observation.EventOf("tick")))
			}
		}
		require.NoError(t, obs.Stop())

		snap, ok := Inspect(obs.Context())
		require.True(t, ok)
		require.Equal(t, StateStopped, snap.State)
		require.Len(t, snap.History, len(signals)+2)
	})
}
