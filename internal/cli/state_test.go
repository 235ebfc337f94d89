package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stateCmd(t *testing.T, format, path string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	return runCommand(t, root, append([]string{"--format", format, "state"}, append(args, "--state", path)...)...)
}

func TestStateSetGetList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")

	out, err := stateCmd(t, "text", path, "set", "steps=750", "name=Ana")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Stored 2 value(s)")

	out, err = stateCmd(t, "text", path, "get", "steps")
	require.NoError(t, err)
	assert.Equal(t, "750\n", out)

	out, err = stateCmd(t, "text", path, "get", "name")
	require.NoError(t, err)
	assert.Equal(t, "Ana\n", out)

	out, err = stateCmd(t, "text", path, "list")
	require.NoError(t, err)
	assert.Equal(t, "name = Ana (string)\nsteps = 750 (float)\n", out)
}

func TestStateListJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	_, err := stateCmd(t, "text", path, "set", "steps=7.5", "name=Ana")
	require.NoError(t, err)

	out, err := stateCmd(t, "json", path, "list")
	require.NoError(t, err)

	var resp struct {
		Status string       `json:"status"`
		Data   []StateEntry `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, []StateEntry{
		{Key: "name", Type: "string", Value: "Ana"},
		{Key: "steps", Type: "float", Value: 7.5},
	}, resp.Data)
}

func TestStateRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	_, err := stateCmd(t, "text", path, "set", "a=1", "b=2")
	require.NoError(t, err)

	out, err := stateCmd(t, "text", path, "rm", "a", "missing")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Removed 2 key(s)")

	out, err = stateCmd(t, "text", path, "list")
	require.NoError(t, err)
	assert.Equal(t, "b = 2 (float)\n", out)
}

func TestStateGetMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")

	out, err := stateCmd(t, "text", path, "get", "nope")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, `no state value "nope"`)
}

func TestStateEmptyList(t *testing.T) {
	out, err := stateCmd(t, "text", filepath.Join(t.TempDir(), "state.db"), "list")
	require.NoError(t, err)
	assert.Equal(t, "No state values.\n", out)
}

func TestStateSetInvalidAssignment(t *testing.T) {
	_, err := stateCmd(t, "text", filepath.Join(t.TempDir(), "state.db"), "set", "novalue")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid assignment")
}

func TestStateRequiresPath(t *testing.T) {
	root := NewRootCommand()
	_, err := runCommand(t, root, "state", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `required flag(s) "state" not set`)
}
