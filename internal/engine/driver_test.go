package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/conveyor/internal/collection/memory"
	"github.com/alexisbeaulieu97/conveyor/internal/metrics"
	"github.com/alexisbeaulieu97/conveyor/internal/plan"
	"github.com/alexisbeaulieu97/conveyor/internal/record"
	conveyorerrors "github.com/alexisbeaulieu97/conveyor/pkg/errors"
)

func runContext(args map[string]string) *RunContext {
	ctx := NewRunContext("default", args)
	return ctx
}

func mustPlan(t *testing.T, stages []*plan.StageSpec, connections []plan.Connection) *plan.Plan {
	t.Helper()
	p, err := plan.New(stages, connections)
	require.NoError(t, err)
	return p
}

func TestRunPipelineLinearETL(t *testing.T) {
	t.Parallel()

	p := mustPlan(t,
		[]*plan.StageSpec{
			{Name: "src", PluginType: plan.KindSource, PluginName: "inline"},
			{Name: "double", PluginType: plan.KindTransform, PluginName: "double"},
			{Name: "out", PluginType: plan.KindSink, PluginName: "collect"},
		},
		[]plan.Connection{
			{From: "src", To: "double"},
			{From: "double", To: "out"},
		},
	)

	sink := &collectSink{}
	plugins := testPlugins{
		"src":    &inlineSource{records: []any{row("a", 1), row("a", 2)}},
		"double": &fieldDoubler{field: "a"},
		"out":    sink,
	}

	runner := NewRunner(memory.New(), nil)
	err := runner.RunPipeline(context.Background(), p, plan.KindSource, runContext(nil), nil, plugins, noCollectors())
	require.NoError(t, err)
	require.Equal(t, []any{row("a", 2), row("a", 4)}, sink.collected())
}

func TestRunPipelineFanOutWithErrorRouting(t *testing.T) {
	t.Parallel()

	p := mustPlan(t,
		[]*plan.StageSpec{
			{Name: "src", PluginType: plan.KindSource, PluginName: "inline"},
			{Name: "filter", PluginType: plan.KindTransform, PluginName: "reject"},
			{Name: "sink_ok", PluginType: plan.KindSink, PluginName: "collect"},
			{Name: "error_xform", PluginType: plan.KindErrorTransform, PluginName: "flatten"},
			{Name: "sink_err", PluginType: plan.KindSink, PluginName: "collect"},
		},
		[]plan.Connection{
			{From: "src", To: "filter"},
			{From: "filter", To: "sink_ok"},
			{From: "filter", To: "error_xform"},
			{From: "error_xform", To: "sink_err"},
		},
	)

	sinkOK := &collectSink{}
	sinkErr := &collectSink{}
	plugins := testPlugins{
		"src":         &inlineSource{records: []any{row("a", 0), row("a", 1)}},
		"filter":      &zeroRejecter{field: "a"},
		"sink_ok":     sinkOK,
		"error_xform": errorFlattener{},
		"sink_err":    sinkErr,
	}

	collectors := map[string]metrics.Collector{"filter": metrics.NewCounting()}
	runner := NewRunner(memory.New(), nil)
	err := runner.RunPipeline(context.Background(), p, plan.KindSource, runContext(nil), nil, plugins, collectors)
	require.NoError(t, err)

	require.Equal(t, []any{row("a", 1)}, sinkOK.collected())

	errRows := sinkErr.collected()
	require.Len(t, errRows, 1)
	errRow := errRows[0].(map[string]any)
	require.Equal(t, "zero value", errRow["message"])
	require.Equal(t, "filter", errRow["stage"])
	require.Equal(t, row("a", 0), errRow["record"])

	filterStats := collectors["filter"].(*metrics.Counting)
	require.Equal(t, int64(2), filterStats.InputCount())
	require.Equal(t, int64(1), filterStats.OutputCount())
	require.Equal(t, int64(1), filterStats.ErrorCount())
}

func TestRunPipelineSplitterPorts(t *testing.T) {
	t.Parallel()

	p := mustPlan(t,
		[]*plan.StageSpec{
			{Name: "src", PluginType: plan.KindSource, PluginName: "inline"},
			{Name: "split", PluginType: plan.KindSplitter, PluginName: "parity"},
			{Name: "sink_even", PluginType: plan.KindSink, PluginName: "collect"},
			{Name: "sink_odd", PluginType: plan.KindSink, PluginName: "collect"},
		},
		[]plan.Connection{
			{From: "src", To: "split"},
			{From: "split", To: "sink_even", Port: "evens"},
			{From: "split", To: "sink_odd", Port: "odds"},
		},
	)

	sinkEven := &collectSink{}
	sinkOdd := &collectSink{}
	plugins := testPlugins{
		"src":       &inlineSource{records: []any{row("a", 1), row("a", 2), row("a", 3)}},
		"split":     &paritySplitter{field: "a", even: "evens", odd: "odds"},
		"sink_even": sinkEven,
		"sink_odd":  sinkOdd,
	}

	runner := NewRunner(memory.New(), nil)
	err := runner.RunPipeline(context.Background(), p, plan.KindSource, runContext(nil), nil, plugins, noCollectors())
	require.NoError(t, err)
	require.Equal(t, []any{row("a", 2)}, sinkEven.collected())
	require.Equal(t, []any{row("a", 1), row("a", 3)}, sinkOdd.collected())
}

func TestRunPipelineUnionsMultipleInputsInDeclarationOrder(t *testing.T) {
	t.Parallel()

	p := mustPlan(t,
		[]*plan.StageSpec{
			{Name: "zeta", PluginType: plan.KindSource, PluginName: "inline"},
			{Name: "alpha", PluginType: plan.KindSource, PluginName: "inline"},
			{Name: "double", PluginType: plan.KindTransform, PluginName: "double"},
			{Name: "out", PluginType: plan.KindSink, PluginName: "collect"},
		},
		[]plan.Connection{
			{From: "zeta", To: "double"},
			{From: "alpha", To: "double"},
			{From: "double", To: "out"},
		},
	)

	sink := &collectSink{}
	plugins := testPlugins{
		"zeta":   &inlineSource{records: []any{row("a", 1)}},
		"alpha":  &inlineSource{records: []any{row("a", 10)}},
		"double": &fieldDoubler{field: "a"},
		"out":    sink,
	}

	runner := NewRunner(memory.New(), nil)
	err := runner.RunPipeline(context.Background(), p, plan.KindSource, runContext(nil), nil, plugins, noCollectors())
	require.NoError(t, err)
	// zeta's edge was declared first, so its records lead the union
	require.Equal(t, []any{row("a", 2), row("a", 20)}, sink.collected())
}

func TestRunPipelineExplicitJoinEndToEnd(t *testing.T) {
	t.Parallel()

	p := mustPlan(t,
		[]*plan.StageSpec{
			{Name: "users", PluginType: plan.KindSource, PluginName: "inline"},
			{Name: "orders", PluginType: plan.KindSource, PluginName: "inline"},
			{Name: "join", PluginType: plan.KindJoiner, PluginName: "key"},
			{Name: "out", PluginType: plan.KindSink, PluginName: "collect"},
		},
		[]plan.Connection{
			{From: "users", To: "join"},
			{From: "orders", To: "join"},
			{From: "join", To: "out"},
		},
	)

	sink := &collectSink{}
	plugins := testPlugins{
		"users":  &inlineSource{records: []any{row("id", 1, "name", "ada"), row("id", 2, "name", "bob")}},
		"orders": &inlineSource{records: []any{row("id", 1, "total", 30)}},
		"join": &keyJoiner{
			keys:     map[string]string{"users": "id", "orders": "id"},
			required: []string{"users", "orders"},
		},
		"out": sink,
	}

	runner := NewRunner(memory.New(), nil)
	err := runner.RunPipeline(context.Background(), p, plan.KindSource, runContext(nil), nil, plugins, noCollectors())
	require.NoError(t, err)
	require.Equal(t, []any{row("id", 1, "name", "ada", "total", 30)}, sink.collected())
}

func TestRunPipelineAlertsReachPublisher(t *testing.T) {
	t.Parallel()

	p := mustPlan(t,
		[]*plan.StageSpec{
			{Name: "src", PluginType: plan.KindSource, PluginName: "inline"},
			{Name: "publish", PluginType: plan.KindAlertPublisher, PluginName: "collect"},
			{Name: "out", PluginType: plan.KindSink, PluginName: "collect"},
		},
		[]plan.Connection{
			{From: "src", To: "publish"},
			{From: "src", To: "out"},
		},
	)

	publisher := &collectPublisher{}
	sink := &collectSink{}
	plugins := testPlugins{
		"src": &inlineSource{
			records: []any{row("a", 1)},
			alerts:  []*record.Alert{{Payload: map[string]string{"severity": "high"}}},
		},
		"publish": publisher,
		"out":     sink,
	}

	runner := NewRunner(memory.New(), nil)
	err := runner.RunPipeline(context.Background(), p, plan.KindSource, runContext(nil), nil, plugins, noCollectors())
	require.NoError(t, err)
	require.Len(t, publisher.alerts, 1)
	require.Equal(t, "src", publisher.alerts[0].Stage)
	require.Equal(t, []any{row("a", 1)}, sink.collected())
}

func TestRunPipelineSkipsCrossPhaseInputs(t *testing.T) {
	t.Parallel()

	// "bootstrap" lives in another phase; the source's only in-phase role is
	// to start this phase
	p := mustPlan(t,
		[]*plan.StageSpec{
			{Name: "src", PluginType: plan.KindSource, PluginName: "inline"},
			{Name: "out", PluginType: plan.KindSink, PluginName: "collect"},
		},
		[]plan.Connection{
			{From: "bootstrap", To: "src"},
			{From: "src", To: "out"},
		},
	)

	sink := &collectSink{}
	plugins := testPlugins{
		"src": &inlineSource{records: []any{row("a", 5)}},
		"out": sink,
	}

	runner := NewRunner(memory.New(), nil)
	err := runner.RunPipeline(context.Background(), p, plan.KindSource, runContext(nil), nil, plugins, noCollectors())
	require.NoError(t, err)
	require.Equal(t, []any{row("a", 5)}, sink.collected())
}

func TestRunPipelineMissingInput(t *testing.T) {
	t.Parallel()

	p := mustPlan(t,
		[]*plan.StageSpec{
			{Name: "lonely", PluginType: plan.KindTransform, PluginName: "double"},
			{Name: "out", PluginType: plan.KindSink, PluginName: "collect"},
		},
		[]plan.Connection{{From: "lonely", To: "out"}},
	)

	plugins := testPlugins{"lonely": &fieldDoubler{field: "a"}, "out": &collectSink{}}
	runner := NewRunner(memory.New(), nil)
	err := runner.RunPipeline(context.Background(), p, plan.KindSource, runContext(nil), nil, plugins, noCollectors())

	var missing *conveyorerrors.MissingInputError
	require.ErrorAs(t, err, &missing)
	require.Equal(t, "lonely", missing.Stage)
}

func TestRunPipelineUnsupportedPluginKind(t *testing.T) {
	t.Parallel()

	p := mustPlan(t,
		[]*plan.StageSpec{
			{Name: "src", PluginType: plan.KindSource, PluginName: "inline"},
			{Name: "weird", PluginType: plan.Kind("streamingsource"), PluginName: "weird"},
		},
		[]plan.Connection{{From: "src", To: "weird"}},
	)

	plugins := testPlugins{
		"src":   &inlineSource{records: []any{row("a", 1)}},
		"weird": struct{}{},
	}
	runner := NewRunner(memory.New(), nil)
	err := runner.RunPipeline(context.Background(), p, plan.KindSource, runContext(nil), nil, plugins, noCollectors())

	var unsupported *conveyorerrors.UnsupportedPluginError
	require.ErrorAs(t, err, &unsupported)
}

func TestRunPipelineSingleStagePhase(t *testing.T) {
	t.Parallel()

	p := mustPlan(t, []*plan.StageSpec{{Name: "src", PluginType: plan.KindSource, PluginName: "inline"}}, nil)
	runner := NewRunner(memory.New(), nil)
	plugins := testPlugins{"src": &inlineSource{records: []any{row("a", 1)}}}
	err := runner.RunPipeline(context.Background(), p, plan.KindSource, runContext(nil), nil, plugins, noCollectors())
	require.NoError(t, err) // a connection-free phase still dispatches its stages
}
