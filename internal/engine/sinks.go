package engine

import (
	"context"
	"fmt"

	"github.com/alexisbeaulieu97/conveyor/internal/collection"
	conveyorerrors "github.com/alexisbeaulieu97/conveyor/pkg/errors"
)

// sinkRunnable is one deferred sink action: the thunk captures the upstream
// collection handle and the sink function.
type sinkRunnable struct {
	stage string
	task  collection.SinkTask
}

// runSinks flushes the sink queue. Sequential mode runs in enqueue order and
// stops at the first failure. Parallel mode starts one worker per sink,
// awaits results in enqueue order, and surfaces the first failure by enqueue
// order after shutting the pool down. No rollback is attempted either way.
func (r *Runner) runSinks(ctx context.Context, sinks []sinkRunnable, parallel bool) error {
	if !parallel {
		for _, sink := range sinks {
			r.log.WithStage(sink.stage).Debug("running sink")
			if err := sink.task(ctx); err != nil {
				return conveyorerrors.NewSinkError(sink.stage, err)
			}
		}
		return nil
	}

	poolCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]chan error, len(sinks))
	for i, sink := range sinks {
		ch := make(chan error, 1)
		results[i] = ch
		worker := fmt.Sprintf("pipeline-sink-task-%d", i)
		go func(sink sinkRunnable, ch chan<- error) {
			r.log.WithFields(map[string]any{"worker": worker, "stage": sink.stage}).Debug("running sink")
			ch <- sink.task(poolCtx)
		}(sink, ch)
	}

	var firstErr error
	var firstStage string
	for i, ch := range results {
		select {
		case err := <-ch:
			if err != nil {
				firstErr = err
				firstStage = sinks[i].stage
			}
		case <-ctx.Done():
			// interrupted: stop awaiting, abandon the remaining workers
			return ctx.Err()
		}
		if firstErr != nil {
			break
		}
	}

	// force shutdown: cancel whatever is still running
	cancel()

	if firstErr != nil {
		return conveyorerrors.NewSinkError(firstStage, firstErr)
	}
	return nil
}
