package cli

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/doctalk/internal/intelligence/spandetect"
)

func decodeResults(t *testing.T, out string) []spandetect.Result {
	t.Helper()
	var results []spandetect.Result
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		var r spandetect.Result
		require.NoError(t, json.Unmarshal(sc.Bytes(), &r), sc.Text())
		results = append(results, r)
	}
	return results
}

func TestBatchCmd_PreservesInputOrder(t *testing.T) {
	env := newTestEnv(t, "")
	input := strings.Join([]string{
		`{"doc_id":"a","text":"troponin pending"}`,
		``,
		`{"doc_id":"b","text":"denies chest pain"}`,
		`{"text":"nothing of note"}`,
		`{"doc_id":"c","text":"heart attack"}`,
	}, "\n")

	out, err := env.run(t, input, "batch", "--chunk-size", "2")
	require.NoError(t, err)

	results := decodeResults(t, out)
	require.Len(t, results, 4)
	assert.Equal(t, "a", results[0].DocID)
	assert.Equal(t, "b", results[1].DocID)
	assert.True(t, results[1].Spans[0].Negated)
	assert.Equal(t, "", results[2].DocID)
	assert.NotNil(t, results[2].Spans)
	assert.Empty(t, results[2].Spans)
	assert.Equal(t, "myocardial infarction", results[3].Spans[0].Canonical)
}

func TestBatchCmd_InvalidLine(t *testing.T) {
	env := newTestEnv(t, "")
	_, err := env.run(t, "{not json}\n", "batch")
	require.Error(t, err)
	assert.Equal(t, ExitUsage, ExitCodeForError(err))
	assert.Contains(t, err.Error(), "invalid input line")
}

func TestBatchCmd_InvalidChunkSize(t *testing.T) {
	env := newTestEnv(t, "")
	_, err := env.run(t, "", "batch", "--chunk-size", "0")
	assert.Equal(t, ExitUsage, ExitCodeForError(err))
}

func TestBatchCmd_FilesAndMetricsTextfile(t *testing.T) {
	dir := t.TempDir()
	promFile := filepath.Join(dir, "doctalk.prom")
	env := newTestEnv(t, "metrics:\n  enabled: true\n  textfile: "+promFile+"\n")

	in := filepath.Join(env.dir, "in.jsonl")
	outPath := filepath.Join(env.dir, "out.jsonl")
	require.NoError(t, os.WriteFile(in, []byte(`{"doc_id":"a","text":"troponin pending"}`+"\n"), 0o600))

	_, err := env.run(t, "", "batch", "--input", in, "--out", outPath)
	require.NoError(t, err)

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	require.Len(t, decodeResults(t, string(data)), 1)

	prom, err := os.ReadFile(promFile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "doctalk_")
}
