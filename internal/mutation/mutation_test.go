// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package mutation

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qte77/RDI-AgentBeats-TestBehaveAlign/internal/model"
)

func TestParseReport(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   model.MutationResult
	}{
		{
			name:   "ratio shape all killed",
			output: "Running mutation tests...\n4/4 mutants killed\n",
			want:   model.MutationResult{Killed: 4, Survived: 0, Total: 4, MutationScore: 1.0},
		},
		{
			name:   "ratio shape partial",
			output: "3/4 mutants killed",
			want:   model.MutationResult{Killed: 3, Survived: 1, Total: 4, MutationScore: 0.75},
		},
		{
			name:   "singular mutant",
			output: "1/1 mutant killed",
			want:   model.MutationResult{Killed: 1, Survived: 0, Total: 1, MutationScore: 1.0},
		},
		{
			name:   "killed/survived lines",
			output: "Summary:\nKilled: 2\nSurvived: 2\n",
			want:   model.MutationResult{Killed: 2, Survived: 2, Total: 4, MutationScore: 0.5},
		},
		{
			name:   "zero mutants guards division",
			output: "0/0 mutants killed",
			want:   model.MutationResult{Killed: 0, Survived: 0, Total: 0, MutationScore: 0.0},
		},
		{
			name:   "unrecognized format",
			output: "mutmut exploded unexpectedly",
			want:   model.MutationResult{Killed: 0, Survived: 0, Total: 0, MutationScore: 0.0, Error: "unrecognized mutmut report format"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseReport(tt.output)
			assert.Equal(t, tt.want.Killed, got.Killed)
			assert.Equal(t, tt.want.Survived, got.Survived)
			assert.Equal(t, tt.want.Total, got.Total)
			assert.Equal(t, tt.want.MutationScore, got.MutationScore)
			if tt.want.Error != "" {
				assert.Equal(t, tt.want.Error, got.Error)
			} else {
				assert.Empty(t, got.Error)
			}
		})
	}
}

func TestDriver_Run_UnavailableTool(t *testing.T) {
	d := &Driver{MutmutPath: "this-binary-does-not-exist-anywhere"}

	result, err := d.Run(context.Background(), "def test_x(): pass", "def f(): return 1", model.TrackTDD)

	require.NoError(t, err)
	assert.Equal(t, 0, result.Total)
	assert.NotEmpty(t, result.Error)
}

func TestDriver_Run_WritesWorkspaceFiles(t *testing.T) {
	stub := filepath.Join(t.TempDir(), "fake-mutmut.sh")
	// The stub reports a result only if all three workspace files exist in
	// its working directory.
	script := "#!/bin/sh\n[ -f correct.py ] && [ -f test_generated.py ] && [ -f pyproject.toml ] || exit 3\necho '4/4 mutants killed'\n"
	require.NoError(t, os.WriteFile(stub, []byte(script), 0755))

	d := &Driver{MutmutPath: stub}

	result, err := d.Run(context.Background(), "def test_x(): pass", "def f(): return 1", model.TrackTDD)

	require.NoError(t, err)
	assert.Equal(t, 4, result.Killed)
	assert.Equal(t, 1.0, result.MutationScore)
	assert.Empty(t, result.Error)
}

func TestMutmutConfigFor(t *testing.T) {
	assert.Equal(t, "[tool.mutmut]\ntimeout = 10\n", mutmutConfigFor(10))
}
