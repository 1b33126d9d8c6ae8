package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseRuntimeArgs(t *testing.T) {
	t.Parallel()

	args, err := parseRuntimeArgs([]string{"a=1", "flag=true", "empty="})
	require.NoError(t, err)
	require.Equal(t, map[string]string{"a": "1", "flag": "true", "empty": ""}, args)

	_, err = parseRuntimeArgs([]string{"novalue"})
	require.Error(t, err)

	args, err = parseRuntimeArgs(nil)
	require.NoError(t, err)
	require.Nil(t, args)
}

func TestRunCommandEndToEnd(t *testing.T) {
	dir := t.TempDir()
	outPath := filepath.Join(dir, "out.jsonl")

	pipeline := `
name: smoke
stages:
  - name: src
    type: batchsource
    plugin: inline
    properties:
      records: '[{"a": 1}, {"a": 2}, {"b": 3}]'
  - name: keep
    type: transform
    plugin: require
    properties:
      fields: a
  - name: out
    type: batchsink
    plugin: jsonl
    properties:
      path: ` + outPath + `
connections:
  - from: src
    to: keep
  - from: keep
    to: out
`
	pipelinePath := filepath.Join(dir, "pipeline.yaml")
	require.NoError(t, os.WriteFile(pipelinePath, []byte(pipeline), 0o644))

	cmd := newRootCmd()
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stdout)
	cmd.SetArgs([]string{"run", "--pipeline", pipelinePath, "--log-level", "error"})

	require.NoError(t, cmd.Execute())

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)

	var rows []map[string]any
	for _, line := range bytes.Split(bytes.TrimSpace(data), []byte("\n")) {
		var row map[string]any
		require.NoError(t, json.Unmarshal(line, &row))
		rows = append(rows, row)
	}
	require.Len(t, rows, 2)
	require.Equal(t, float64(1), rows[0]["a"])
	require.Equal(t, float64(2), rows[1]["a"])

	require.Contains(t, stdout.String(), "pipeline smoke")
	require.Contains(t, stdout.String(), "keep")
}
