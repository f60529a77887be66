package db

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunMigrateCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")

	tests := []struct {
		action string
		want   string
	}{
		{"status", "schema version: 0 (dirty: false)\n"},
		{"up", "schema version: 2 (dirty: false)\n"},
		{"down", "schema version: 1 (dirty: false)\n"},
		{"up", "schema version: 2 (dirty: false)\n"},
		{"status", "schema version: 2 (dirty: false)\n"},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		require.NoError(t, RunMigrateCommand(tt.action, path, &out), tt.action)
		assert.Equal(t, tt.want, out.String(), tt.action)
	}
}

func TestRunMigrateCommand_UnknownAction(t *testing.T) {
	var out bytes.Buffer
	err := RunMigrateCommand("force", filepath.Join(t.TempDir(), "runs.db"), &out)
	assert.ErrorContains(t, err, `unknown migrate action "force"`)
	assert.Empty(t, out.String())
}
