package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testManifest = `
output: docs.ragfile
sections:
  - name: keyword
    kind: keyword
    padding: 8
    input: keyword.jsonl
  - name: embedding
    kind: embedding
    padding: 16
    precision: 32
    input: embedding.jsonl
`

// run executes the command tree with args and returns its stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

// buildFixture writes the manifest and inputs into a temp dir, builds the
// file and returns its path.
func buildFixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"build.yaml": testManifest,
		"keyword.jsonl": `{"key": "cat", "content": "a furry animal"}
{"key": "dog", "content": "a loyal animal"}
`,
		"embedding.jsonl": `{"key": "emb-1", "vector": [1, 2, 3, 4]}` + "\n",
	}
	for name, data := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(data), 0644))
	}

	out, err := run(t, "build", "-c", filepath.Join(dir, "build.yaml"))
	require.NoError(t, err)
	path := filepath.Join(dir, "docs.ragfile")
	assert.Equal(t, "wrote 2 sections to "+path+"\n", out)
	return path
}

func decodeLines(t *testing.T, out string) []outputRecord {
	t.Helper()
	var recs []outputRecord
	for line := range strings.Lines(out) {
		var rec outputRecord
		require.NoError(t, json.Unmarshal([]byte(line), &rec))
		recs = append(recs, rec)
	}
	return recs
}

func TestBuildAndInspect(t *testing.T) {
	path := buildFixture(t)

	out, err := run(t, "inspect", path)
	require.NoError(t, err)

	var desc struct {
		Version  string `json:"version"`
		Size     int64  `json:"size"`
		Sections []struct {
			Name    string `json:"name"`
			Kind    string `json:"kind"`
			Records int    `json:"records"`
			Digest  string `json:"digest"`
		} `json:"sections"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &desc))
	assert.Equal(t, "1.0.0", desc.Version)
	require.Len(t, desc.Sections, 2)
	assert.Equal(t, "keyword", desc.Sections[0].Name)
	assert.Equal(t, 2, desc.Sections[0].Records)
	assert.Len(t, desc.Sections[0].Digest, 16)
	assert.Equal(t, "embedding", desc.Sections[1].Kind)
	assert.Equal(t, 1, desc.Sections[1].Records)

	out, err = run(t, "inspect", "--digest", "", path)
	require.NoError(t, err)
	assert.NotContains(t, out, "digest")

	_, err = run(t, "inspect", "--digest", "md5", path)
	assert.Error(t, err)
}

func TestBuildOutputOverride(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "build.yaml"), []byte(`
output: ignored.ragfile
sections:
  - name: keyword
    kind: keyword
    padding: 4
    input: in.jsonl
`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "in.jsonl"), []byte(`{"key": "a", "content": "b"}`), 0644))

	target := filepath.Join(dir, "other.ragfile")
	_, err := run(t, "build", "-c", filepath.Join(dir, "build.yaml"), "-o", target)
	require.NoError(t, err)
	assert.FileExists(t, target)
	assert.NoFileExists(t, filepath.Join(dir, "ignored.ragfile"))
}

func TestBuildRejectsBadInput(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "build.yaml"), []byte(testManifest), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "keyword.jsonl"), []byte(`{"key": "cat"}`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "embedding.jsonl"), nil, 0644))

	_, err := run(t, "build", "-c", filepath.Join(dir, "build.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no content")

	// A failed build publishes nothing.
	assert.NoFileExists(t, filepath.Join(dir, "docs.ragfile"))
	assert.NoFileExists(t, filepath.Join(dir, "docs.ragfile.tmp"))
}

func TestBuildMissingManifest(t *testing.T) {
	_, err := run(t, "build", "-c", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestVerify(t *testing.T) {
	path := buildFixture(t)

	out, err := run(t, "verify", path)
	require.NoError(t, err)
	assert.Equal(t, path+": ok\n", out)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[0] = 'X'
	bad := filepath.Join(filepath.Dir(path), "bad.ragfile")
	require.NoError(t, os.WriteFile(bad, data, 0644))

	out, err = run(t, "verify", path, bad)
	require.Error(t, err)
	assert.Equal(t, "1 of 2 files failed verification", err.Error())
	assert.Contains(t, out, path+": ok\n")
	assert.Contains(t, out, bad+": ")
	assert.NotContains(t, out, bad+": ok")
}

func TestDump(t *testing.T) {
	path := buildFixture(t)

	out, err := run(t, "dump", path, "keyword")
	require.NoError(t, err)
	recs := decodeLines(t, out)
	require.Len(t, recs, 2)
	assert.Equal(t, "cat", recs[0].Key)
	require.NotNil(t, recs[0].Content)
	assert.Equal(t, "a furry animal", *recs[0].Content)
	assert.Less(t, recs[0].Offset, recs[1].Offset)
	assert.Empty(t, recs[0].Strategy)

	out, err = run(t, "dump", "-n", "1", path, "keyword")
	require.NoError(t, err)
	assert.Len(t, decodeLines(t, out), 1)

	out, err = run(t, "dump", path, "embedding")
	require.NoError(t, err)
	recs = decodeLines(t, out)
	require.Len(t, recs, 1)
	assert.Equal(t, "emb-1", recs[0].Key)
	assert.Equal(t, []float64{1, 2, 3, 4}, recs[0].Vector)
	assert.Nil(t, recs[0].Content)

	_, err = run(t, "dump", path, "graph")
	assert.Error(t, err)
}

func TestSearch(t *testing.T) {
	path := buildFixture(t)

	out, err := run(t, "search", path, "DOG")
	require.NoError(t, err)
	recs := decodeLines(t, out)
	require.Len(t, recs, 1)
	assert.Equal(t, "keyword", recs[0].Strategy)
	assert.Equal(t, "dog", recs[0].Key)

	_, err = run(t, "search", "--case-sensitive", path, "DOG")
	assert.EqualError(t, err, `no records match "DOG"`)

	out, err = run(t, "search", "--strategy", "keyword", path, "cat")
	require.NoError(t, err)
	assert.Len(t, decodeLines(t, out), 1)

	_, err = run(t, "search", "--strategy", "embedding", path, "emb-1")
	assert.Error(t, err)
}

func TestMetricsFile(t *testing.T) {
	path := buildFixture(t)
	metrics := filepath.Join(t.TempDir(), "ragfile.prom")

	_, err := run(t, "--metrics-file", metrics, "verify", path)
	require.NoError(t, err)

	data, err := os.ReadFile(metrics)
	require.NoError(t, err)
	assert.Contains(t, string(data), "ragfile_records_read_total")
	assert.Contains(t, string(data), "ragfile_read_bytes_total")
}

func TestInvalidLogLevel(t *testing.T) {
	_, err := run(t, "--log-level", "loud", "verify", "x")
	assert.Error(t, err)
}

func TestBuildManifestLogLevel(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "build.yaml"), []byte(`
output: docs.ragfile
logging:
  level: loud
sections:
  - name: keyword
    kind: keyword
    padding: 4
    input: in.jsonl
`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "in.jsonl"), []byte(`{"key": "a", "content": "b"}`), 0644))
	manifest := filepath.Join(dir, "build.yaml")

	// The manifest level is used when the flag is absent.
	_, err := run(t, "build", "-c", manifest)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
	assert.NoFileExists(t, filepath.Join(dir, "docs.ragfile"))

	// An explicit flag wins over the manifest.
	_, err = run(t, "--log-level", "error", "build", "-c", manifest)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "docs.ragfile"))
}

func TestDumpRaw(t *testing.T) {
	path := buildFixture(t)

	out, err := run(t, "dump", "--raw", path, "keyword")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "# keyword ["), out)
	// The preamble's kind byte opens the dump.
	assert.Contains(t, out, "00000000  01 ")
	assert.Contains(t, out, "|")
}
