package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/turtacn/doctalk/pkg/types/clinical"
)

const testGlossary = `
terms:
  - canonical: myocardial infarction
    category: diagnosis
    why: heart muscle damage
    aliases: [heart attack]
  - canonical: mitral insufficiency
    category: diagnosis
  - canonical: chest pain
    category: diagnosis
  - canonical: troponin
    category: test
acronyms:
  - acronym: MI
    expansions: [myocardial infarction, mitral insufficiency]
`

type testEnv struct {
	dir        string
	configPath string
	glossary   string
}

// newTestEnv writes a glossary and a config file using it.  extra is
// appended to the config YAML.
func newTestEnv(t *testing.T, extra string) *testEnv {
	t.Helper()
	dir := t.TempDir()
	env := &testEnv{
		dir:        dir,
		configPath: filepath.Join(dir, "doctalk.yaml"),
		glossary:   filepath.Join(dir, "glossary.yaml"),
	}
	require.NoError(t, os.WriteFile(env.glossary, []byte(testGlossary), 0o600))

	cfg := "log:\n  level: error\nglossary:\n  source: file\n  path: " + env.glossary + "\n" + extra
	require.NoError(t, os.WriteFile(env.configPath, []byte(cfg), 0o600))
	return env
}

// run executes the root command with the env's config.
func (e *testEnv) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	return runRoot(t, stdin, append([]string{"--config", e.configPath, "--no-color"}, args...)...)
}

func runRoot(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func decodeSpans(t *testing.T, out string) []clinical.Span {
	t.Helper()
	var spans []clinical.Span
	require.NoError(t, json.Unmarshal([]byte(out), &spans), out)
	return spans
}

func findSpan(spans []clinical.Span, surface string) (clinical.Span, bool) {
	for _, sp := range spans {
		if sp.Surface == surface {
			return sp, true
		}
	}
	return clinical.Span{}, false
}

// writeConfig replaces the env's config file.
func (e *testEnv) writeConfig(t *testing.T, yaml string) {
	t.Helper()
	require.NoError(t, os.WriteFile(e.configPath, []byte(yaml), 0o600))
}

// writeFile creates name in the env directory and returns its path.
func (e *testEnv) writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(e.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}
