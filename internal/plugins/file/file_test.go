package file

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/conveyor/internal/plugin"
	"github.com/alexisbeaulieu97/conveyor/internal/record"
)

func TestSourceReadsJSONLines(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "in.jsonl")
	content := "{\"a\": 1}\n\nnot json\n{\"a\": 2}\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	instance, err := NewSource(map[string]string{"path": path})
	require.NoError(t, err)
	source := instance.(*Source)

	emitter := plugin.NewRecordEmitter("src")
	require.NoError(t, source.Read(context.Background(), emitter))

	recs := emitter.Records()
	require.Len(t, recs, 3)
	require.Equal(t, record.KindOutput, recs[0].Kind())
	require.Equal(t, record.KindError, recs[1].Kind())
	require.Equal(t, 3, recs[1].Error().Code) // line number of the bad row
	require.Equal(t, record.KindOutput, recs[2].Kind())
}

func TestSinkRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.jsonl")
	instance, err := NewSink(map[string]string{"path": path})
	require.NoError(t, err)
	sink := instance.(*Sink)

	require.NoError(t, sink.Write(context.Background(), []any{
		map[string]any{"a": 1},
	}))
	require.NoError(t, sink.Write(context.Background(), []any{
		map[string]any{"a": 2},
	}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.JSONEq(t, `{"a": 1}`, string(splitLines(data)[0]))
	require.JSONEq(t, `{"a": 2}`, string(splitLines(data)[1]))
}

func TestReportSinkWritesCount(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "report.json")
	instance, err := NewReportSink(map[string]string{"path": path})
	require.NoError(t, err)
	report := instance.(*ReportSink)

	require.NoError(t, report.Run(context.Background(), []any{1, 2, 3}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var summary map[string]any
	require.NoError(t, json.Unmarshal(data, &summary))
	require.Equal(t, float64(3), summary["records"])
}

func TestFactoriesRequirePath(t *testing.T) {
	t.Parallel()

	for _, factory := range []func(map[string]string) (any, error){NewSource, NewSink, NewReportSink} {
		_, err := factory(map[string]string{})
		require.Error(t, err)
	}
}

func splitLines(data []byte) [][]byte {
	var lines [][]byte
	start := 0
	for i, b := range data {
		if b == '\n' {
			if i > start {
				lines = append(lines, data[start:i])
			}
			start = i + 1
		}
	}
	return lines
}
