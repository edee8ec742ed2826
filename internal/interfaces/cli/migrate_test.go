package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateCmd_Subcommands(t *testing.T) {
	cmd := newMigrateCmd()
	names := make(map[string]bool)
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	for _, name := range []string{"up", "down", "version", "force"} {
		assert.True(t, names[name], "expected subcommand %q", name)
	}
}

func TestMigrateForce_InvalidVersion(t *testing.T) {
	env := newTestEnv(t, "")
	_, err := env.run(t, "", "migrate", "force", "latest")
	require.Error(t, err)
	assert.Equal(t, ExitUsage, ExitCodeForError(err))
}

func TestMigrationStatus_TableRows(t *testing.T) {
	s := migrationStatus{Version: 2, Dirty: false}
	assert.Equal(t, [][]string{{"2", "false"}}, s.TableRows())
}
