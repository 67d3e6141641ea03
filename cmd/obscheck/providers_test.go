// Tests for export target resolution and signal parsing
package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorAddr(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		settings settings
		want     string
	}{
		{name: "http default", settings: settings{Protocol: "http/protobuf"}, want: "localhost:4318"},
		{name: "grpc default", settings: settings{Protocol: "grpc"}, want: "localhost:4317"},
		{name: "host only", settings: settings{Protocol: "grpc", Endpoint: "collector"}, want: "collector:4317"},
		{name: "host and port", settings: settings{Protocol: "http/protobuf", Endpoint: "collector:9999"}, want: "collector:9999"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, newExportTarget(tt.settings, nil).collectorAddr())
		})
	}
}

func TestExportTargetPrintsOnlyWithStdout(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	assert.Nil(t, newExportTarget(settings{}, &buf).out)
	assert.Same(t, &buf, newExportTarget(settings{Stdout: true}, &buf).out)
}

func TestParseSignals(t *testing.T) {
	t.Parallel()

	set, err := parseSignals(" traces, ,logs")
	require.NoError(t, err)
	assert.Equal(t, signalSet{signalTraces: true, signalLogs: true}, set)

	set, err = parseSignals("")
	require.NoError(t, err)
	assert.Empty(t, set)

	_, err = parseSignals("traces,profiles")
	require.EqualError(t, err, `unknown signal "profiles", valid signals: traces, metrics, logs`)
}
