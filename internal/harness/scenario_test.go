package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalScenario = `
name: minimal
description: "one line"
steps:
  - at: 1
    create: { type: raw_command, config: { cmd: "echo hi" } }
  - at: 2
    append: { widget: 1, text: "hi" }
`

func TestLoadScenario_ValidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "minimal.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalScenario), 0o644))

	s, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "minimal", s.Name)
	require.Len(t, s.Steps, 2)
	require.NotNil(t, s.Steps[0].Create)
	assert.Equal(t, "echo hi", s.Steps[0].Create.Config["cmd"])
	require.NotNil(t, s.Steps[1].Append)
	assert.Equal(t, int64(2), s.Steps[1].At)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestParseScenario_RejectsUnknownFields(t *testing.T) {
	_, err := ParseScenario([]byte(minimalScenario + "asertions: []\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "asertions")
}

func TestParseScenario_Validation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "missing name",
			yaml:    "description: d\nsteps: [{at: 0, archive: {widget: 1}}]\n",
			wantErr: "name is required",
		},
		{
			name:    "missing description",
			yaml:    "name: n\nsteps: [{at: 0, archive: {widget: 1}}]\n",
			wantErr: "description is required",
		},
		{
			name:    "no steps",
			yaml:    "name: n\ndescription: d\n",
			wantErr: "steps list is required",
		},
		{
			name:    "two actions in one step",
			yaml:    "name: n\ndescription: d\nsteps: [{at: 0, archive: {widget: 1}, append: {widget: 1, text: x}}]\n",
			wantErr: "exactly one of",
		},
		{
			name:    "empty append",
			yaml:    "name: n\ndescription: d\nsteps: [{at: 0, append: {widget: 1}}]\n",
			wantErr: "append needs text or lines",
		},
		{
			name:    "create without type",
			yaml:    "name: n\ndescription: d\nsteps: [{at: 0, create: {}}]\n",
			wantErr: "create.type is required",
		},
		{
			name:    "unknown assertion",
			yaml:    "name: n\ndescription: d\nsteps: [{at: 0, archive: {widget: 1}}]\nassertions: [{type: vibes}]\n",
			wantErr: `unknown type "vibes"`,
		},
		{
			name:    "trace_contains without line",
			yaml:    "name: n\ndescription: d\nsteps: [{at: 0, archive: {widget: 1}}]\nassertions: [{type: trace_contains}]\n",
			wantErr: "requires line",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadScenarios_SortedAndFiltered(t *testing.T) {
	all, err := LoadScenarios("testdata/scenarios", "")
	require.NoError(t, err)
	names := make([]string, len(all))
	for i, s := range all {
		names[i] = s.Name
	}
	assert.Equal(t, []string{"edit_during_capture", "seek_archived_snapshot", "tie_break_rate"}, names)

	some, err := LoadScenarios("testdata/scenarios", "tie_*")
	require.NoError(t, err)
	require.Len(t, some, 1)
	assert.Equal(t, "tie_break_rate", some[0].Name)
}
