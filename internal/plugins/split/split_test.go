package split

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/conveyor/internal/plugin"
	"github.com/alexisbeaulieu97/conveyor/internal/record"
)

func TestFieldSplitterRoutes(t *testing.T) {
	t.Parallel()

	instance, err := New(map[string]string{
		"field":        "tier",
		"routes":       "gold=vip,silver=standard",
		"default_port": "rest",
	})
	require.NoError(t, err)
	splitter := instance.(*FieldSplitter)

	emitter := plugin.NewRecordEmitter("split")
	require.NoError(t, splitter.Transform(context.Background(), map[string]any{"tier": "gold"}, emitter))
	require.NoError(t, splitter.Transform(context.Background(), map[string]any{"tier": "bronze"}, emitter))

	recs := emitter.Records()
	require.Len(t, recs, 2)
	require.Equal(t, "vip", recs[0].Port())
	require.Equal(t, "rest", recs[1].Port())
}

func TestFieldSplitterWithoutDefaultRejects(t *testing.T) {
	t.Parallel()

	instance, err := New(map[string]string{"field": "tier", "routes": "gold=vip"})
	require.NoError(t, err)
	splitter := instance.(*FieldSplitter)

	emitter := plugin.NewRecordEmitter("split")
	require.NoError(t, splitter.Transform(context.Background(), map[string]any{"tier": "bronze"}, emitter))

	recs := emitter.Records()
	require.Len(t, recs, 1)
	require.Equal(t, record.KindError, recs[0].Kind())
}

func TestNewRejectsBadRoutes(t *testing.T) {
	t.Parallel()

	_, err := New(map[string]string{"field": "tier", "routes": "goldvip"})
	require.Error(t, err)

	_, err = New(map[string]string{"routes": "gold=vip"})
	require.Error(t, err)
}
