package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/alexisbeaulieu97/conveyor/internal/macros"
	"github.com/alexisbeaulieu97/conveyor/internal/metrics"
	"github.com/alexisbeaulieu97/conveyor/internal/plugin"
	"github.com/alexisbeaulieu97/conveyor/internal/record"
)

// testPlugins is a plugin.Context serving fixed instances by stage name.
type testPlugins map[string]any

func (t testPlugins) NewPluginInstance(stageName string, _ *macros.Evaluator) (any, error) {
	instance, ok := t[stageName]
	if !ok {
		return nil, fmt.Errorf("no test plugin for stage %s", stageName)
	}
	return instance, nil
}

// inlineSource emits fixed records, optionally with errors and alerts.
type inlineSource struct {
	records []any
	errors  []*record.ErrorRecord
	alerts  []*record.Alert
}

func (s *inlineSource) Read(_ context.Context, emitter plugin.Emitter) error {
	for _, rec := range s.records {
		emitter.Emit(rec)
	}
	for _, errRec := range s.errors {
		emitter.EmitError(errRec)
	}
	for _, alert := range s.alerts {
		emitter.EmitAlert(alert)
	}
	return nil
}

// fieldDoubler doubles the named int field of each row.
type fieldDoubler struct {
	field string
}

func (t *fieldDoubler) Transform(_ context.Context, rec any, emitter plugin.Emitter) error {
	row := rec.(map[string]any)
	out := make(map[string]any, len(row))
	for k, v := range row {
		out[k] = v
	}
	out[t.field] = row[t.field].(int) * 2
	emitter.Emit(out)
	return nil
}

// zeroRejecter passes rows whose field is non-zero and routes the rest as
// error records.
type zeroRejecter struct {
	field string
}

func (t *zeroRejecter) Transform(_ context.Context, rec any, emitter plugin.Emitter) error {
	row := rec.(map[string]any)
	if row[t.field] == 0 {
		emitter.EmitError(&record.ErrorRecord{Record: rec, Message: "zero value", Code: 1})
		return nil
	}
	emitter.Emit(rec)
	return nil
}

// paritySplitter routes rows to the even or odd port by the named field.
type paritySplitter struct {
	field string
	even  string
	odd   string
}

func (t *paritySplitter) Transform(_ context.Context, rec any, emitter plugin.MultiEmitter) error {
	row := rec.(map[string]any)
	if row[t.field].(int)%2 == 0 {
		emitter.EmitPort(t.even, rec)
	} else {
		emitter.EmitPort(t.odd, rec)
	}
	return nil
}

// errorFlattener turns error records into rows.
type errorFlattener struct{}

func (errorFlattener) Transform(_ context.Context, errRec *record.ErrorRecord, emitter plugin.Emitter) error {
	emitter.Emit(map[string]any{
		"message": errRec.Message,
		"code":    errRec.Code,
		"stage":   errRec.Stage,
		"record":  errRec.Record,
	})
	return nil
}

// collectSink gathers everything written to it.
type collectSink struct {
	mu      sync.Mutex
	records []any
	err     error
}

func (s *collectSink) Write(_ context.Context, records []any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, records...)
	return nil
}

func (s *collectSink) collected() []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]any(nil), s.records...)
}

// collectPublisher gathers published alerts.
type collectPublisher struct {
	mu     sync.Mutex
	alerts []*record.Alert
}

func (p *collectPublisher) Publish(_ context.Context, alerts []*record.Alert) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alerts = append(p.alerts, alerts...)
	return nil
}

// keyJoiner is an explicit joiner keyed on one field per input.
type keyJoiner struct {
	keys     map[string]string
	required []string
}

func (j *keyJoiner) JoinOn(stageName string, rec any) (any, error) {
	field, ok := j.keys[stageName]
	if !ok {
		return nil, fmt.Errorf("no join key for input %s", stageName)
	}
	return rec.(map[string]any)[field], nil
}

func (j *keyJoiner) RequiredInputs() []string {
	return j.required
}

func (j *keyJoiner) Merge(_ any, elements []plugin.JoinElement, emitter plugin.Emitter) error {
	merged := make(map[string]any)
	for _, element := range elements {
		for k, v := range element.Record.(map[string]any) {
			merged[k] = v
		}
	}
	emitter.Emit(merged)
	return nil
}

// row builds a map row from alternating key/value arguments.
func row(kv ...any) map[string]any {
	out := make(map[string]any, len(kv)/2)
	for i := 0; i < len(kv); i += 2 {
		out[kv[i].(string)] = kv[i+1]
	}
	return out
}

func noCollectors() map[string]metrics.Collector {
	return nil
}
