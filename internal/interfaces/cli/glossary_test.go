package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/doctalk/internal/infrastructure/storage/glossaryfile"
	"github.com/turtacn/doctalk/internal/intelligence/glossary"
)

func TestGlossaryStatsCmd(t *testing.T) {
	env := newTestEnv(t, "")
	out, err := env.run(t, "", "glossary", "stats")
	require.NoError(t, err)

	var stats glossary.Stats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, 4, stats.Terms)
	assert.Equal(t, 1, stats.Aliases)
	assert.Equal(t, 1, stats.Acronyms)
}

func TestGlossaryCheckCmd_Valid(t *testing.T) {
	env := newTestEnv(t, "")
	_, err := env.run(t, "", "glossary", "check")
	assert.NoError(t, err)
}

func TestGlossaryCheckCmd_DuplicateAlias(t *testing.T) {
	env := newTestEnv(t, "")
	bad := filepath.Join(env.dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte(`
terms:
  - canonical: myocardial infarction
    category: diagnosis
    aliases: [cardiac event]
  - canonical: cardiac arrest
    category: diagnosis
    aliases: [cardiac event]
`), 0o600))

	_, err := env.run(t, "", "glossary", "check", "--file", bad)
	require.Error(t, err)
	assert.Equal(t, ExitConfig, ExitCodeForError(err))
}

func TestGlossaryCheckCmd_UnknownCategory(t *testing.T) {
	env := newTestEnv(t, "")
	bad := filepath.Join(env.dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("terms:\n  - canonical: fever\n    category: feeling\n"), 0o600))

	_, err := env.run(t, "", "glossary", "check", "-f", bad)
	require.Error(t, err)
	assert.Equal(t, ExitConfig, ExitCodeForError(err))
}

func TestGlossaryExportCmd_RoundTrip(t *testing.T) {
	env := newTestEnv(t, "")
	out, err := env.run(t, "", "glossary", "export")
	require.NoError(t, err)

	exported, err := glossaryfile.Parse([]byte(out))
	require.NoError(t, err)
	original, err := glossaryfile.Parse([]byte(testGlossary))
	require.NoError(t, err)
	assert.Equal(t, original, exported)
}

func TestGlossaryImportCmd_RequiresFile(t *testing.T) {
	env := newTestEnv(t, "")
	_, err := env.run(t, "", "glossary", "import")
	require.Error(t, err)
	assert.Equal(t, ExitUsage, ExitCodeForError(err))
}
