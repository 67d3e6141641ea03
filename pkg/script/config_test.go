// Tests for YAML script loading and validation
// Covers valid scripts, structural errors, and step action parsing
package script

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestScript(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "script.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const doubleStopScript = `
cases:
  - name: double stop
    expect: "Invalid stop: Observation has already been stopped"
    observations:
      - name: http.request
        contextual_name: GET /users
        attributes:
          method: GET
    steps:
      - start: http.request
      - stop: http.request
      - stop: http.request
`

func TestLoad(t *testing.T) {
	t.Parallel()

	t.Run("valid script", func(t *testing.T) {
		t.Parallel()
		s, err := Load(writeTestScript(t, doubleStopScript))
		require.NoError(t, err)
		require.NoError(t, Validate(s))
		require.Len(t, s.Cases, 1)

		c := s.Cases[0]
		assert.Equal(t, "double stop", c.Name)
		assert.Equal(t, "Invalid stop: Observation has already been stopped", c.ExpectedOutcome())
		require.Len(t, c.Observations, 1)
		assert.Equal(t, "GET /users", c.Observations[0].ContextualName)
		assert.Equal(t, map[string]string{"method": "GET"}, c.Observations[0].Attributes)
		assert.Len(t, c.Steps, 3)
		assert.Equal(t, 3, s.StepCount())
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()
		_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "reading script")
	})

	t.Run("malformed yaml", func(t *testing.T) {
		t.Parallel()
		_, err := Load(writeTestScript(t, "cases: [\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parsing script")
	})

	t.Run("unknown step kind", func(t *testing.T) {
		t.Parallel()
		_, err := Parse([]byte(`
cases:
  - name: bad
    observations: [{name: a}]
    steps:
      - begin: a
`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "begin")
	})
}

func TestExpectedOutcomeDefault(t *testing.T) {
	t.Parallel()
	assert.Equal(t, ExpectValid, Case{}.ExpectedOutcome())
	assert.Equal(t, "x", Case{Expect: "x"}.ExpectedOutcome())
}

func TestStepAction(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		step   Step
		action string
		target string
		ok     bool
	}{
		{"start", Step{Start: "a"}, ActionStart, "a", true},
		{"stop", Step{Stop: "a"}, ActionStop, "a", true},
		{"error", Step{Error: "a", Message: "boom"}, ActionError, "a", true},
		{"event", Step{Event: "a", Name: "e"}, ActionEvent, "a", true},
		{"open scope", Step{OpenScope: "a", As: "s"}, ActionOpenScope, "a", true},
		{"reset scope", Step{ResetScope: "s"}, ActionResetScope, "s", true},
		{"close scope", Step{CloseScope: "s"}, ActionCloseScope, "s", true},
		{"observe", Step{Observe: "a", Fail: "x"}, ActionObserve, "a", true},
		{"none", Step{Name: "e"}, "", "", false},
		{"two actions", Step{Start: "a", Stop: "a"}, "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			action, target, ok := tt.step.Action()
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.action, action)
			assert.Equal(t, tt.target, target)
		})
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "no cases",
			yaml:    `cases: []`,
			wantErr: "at least one case is required",
		},
		{
			name: "missing case name",
			yaml: `
cases:
  - observations: [{name: a}]
    steps: [{start: a}]
`,
			wantErr: "case 1: name is required",
		},
		{
			name: "duplicate case name",
			yaml: `
cases:
  - name: c
    observations: [{name: a}]
    steps: [{start: a}]
  - name: c
    observations: [{name: a}]
    steps: [{start: a}]
`,
			wantErr: `case "c": duplicate name`,
		},
		{
			name: "no observations",
			yaml: `
cases:
  - name: c
    steps: [{start: a}]
`,
			wantErr: "at least one observation is required",
		},
		{
			name: "no steps",
			yaml: `
cases:
  - name: c
    observations: [{name: a}]
`,
			wantErr: "at least one step is required",
		},
		{
			name: "duplicate observation",
			yaml: `
cases:
  - name: c
    observations: [{name: a}, {name: a}]
    steps: [{start: a}]
`,
			wantErr: `observation "a": duplicate name`,
		},
		{
			name: "parent declared later",
			yaml: `
cases:
  - name: c
    observations: [{name: child, parent: root}, {name: root}]
    steps: [{start: root}]
`,
			wantErr: `parent "root" must be declared earlier`,
		},
		{
			name: "unknown observation",
			yaml: `
cases:
  - name: c
    observations: [{name: a}]
    steps: [{start: b}]
`,
			wantErr: `step 1: start references unknown observation "b"`,
		},
		{
			name: "unknown scope",
			yaml: `
cases:
  - name: c
    observations: [{name: a}]
    steps: [{start: a}, {close_scope: s1}]
`,
			wantErr: `step 2: close_scope references unknown scope "s1"`,
		},
		{
			name: "open scope without as",
			yaml: `
cases:
  - name: c
    observations: [{name: a}]
    steps: [{open_scope: a}]
`,
			wantErr: "open_scope requires as",
		},
		{
			name: "duplicate scope id",
			yaml: `
cases:
  - name: c
    observations: [{name: a}]
    steps:
      - {open_scope: a, as: s1}
      - {open_scope: a, as: s1}
`,
			wantErr: `step 2: scope "s1" already declared`,
		},
		{
			name: "as on other step",
			yaml: `
cases:
  - name: c
    observations: [{name: a}]
    steps: [{start: a, as: s1}]
`,
			wantErr: "as is only valid for open_scope",
		},
		{
			name: "two actions",
			yaml: `
cases:
  - name: c
    observations: [{name: a}]
    steps: [{start: a, stop: a}]
`,
			wantErr: "step 1: exactly one action is required",
		},
		{
			name: "event without name",
			yaml: `
cases:
  - name: c
    observations: [{name: a}]
    steps: [{event: a}]
`,
			wantErr: "event requires name",
		},
		{
			name: "fail outside observe",
			yaml: `
cases:
  - name: c
    observations: [{name: a}]
    steps: [{stop: a, fail: boom}]
`,
			wantErr: "fail is only valid for observe",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s, err := Parse([]byte(tt.yaml))
			require.NoError(t, err)
			err = Validate(s)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
