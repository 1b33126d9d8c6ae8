package engine

import (
	"context"
	"sync"

	"github.com/alexisbeaulieu97/conveyor/internal/collection"
	"github.com/alexisbeaulieu97/conveyor/internal/metrics"
	"github.com/alexisbeaulieu97/conveyor/internal/plan"
	"github.com/alexisbeaulieu97/conveyor/internal/plugin"
)

// opLog records backend operations so tests can assert call order.
type opLog struct {
	mu       sync.Mutex
	ops      []string
	joinReqs []*collection.JoinRequest
}

func (l *opLog) add(op string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ops = append(l.ops, op)
}

func (l *opLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.ops...)
}

func (l *opLog) addJoin(req *collection.JoinRequest) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.joinReqs = append(l.joinReqs, req)
}

// fakeCollection logs every operation and returns derived fakes.
type fakeCollection struct {
	log  *opLog
	name string
}

func (f *fakeCollection) derive(op string) *fakeCollection {
	f.log.add(op)
	return &fakeCollection{log: f.log, name: f.name}
}

func (f *fakeCollection) Transform(*plan.StageSpec, plugin.Transform, metrics.Collector) collection.Collection {
	return f.derive("transform")
}

func (f *fakeCollection) MultiOutputTransform(*plan.StageSpec, plugin.SplitterTransform, metrics.Collector) collection.Collection {
	return f.derive("multiOutputTransform")
}

func (f *fakeCollection) FlatMap(*plan.StageSpec, collection.FlatMapFunc) collection.Collection {
	return f.derive("flatMap")
}

func (f *fakeCollection) Compute(*plan.StageSpec, plugin.Compute, metrics.Collector) collection.Collection {
	return f.derive("compute")
}

func (f *fakeCollection) Window(*plan.StageSpec, plugin.Windower) collection.Collection {
	return f.derive("window")
}

func (f *fakeCollection) Aggregate(*plan.StageSpec, plugin.Aggregator, int, metrics.Collector) collection.Collection {
	return f.derive("aggregate")
}

func (f *fakeCollection) ReduceAggregate(*plan.StageSpec, plugin.ReducibleAggregator, int, metrics.Collector) collection.Collection {
	return f.derive("reduceAggregate")
}

func (f *fakeCollection) PublishAlerts(context.Context, *plan.StageSpec, plugin.AlertPublisher, metrics.Collector) error {
	f.log.add("publishAlerts")
	return nil
}

func (f *fakeCollection) Union(collection.Collection) collection.Collection {
	return f.derive("union")
}

func (f *fakeCollection) Cache() collection.Collection {
	return f.derive("cache")
}

func (f *fakeCollection) Join(req *collection.JoinRequest) collection.Collection {
	f.log.addJoin(req)
	return f.derive("join")
}

func (f *fakeCollection) CreateStoreTask(*plan.StageSpec, collection.SinkFunc) collection.SinkTask {
	f.log.add("createStoreTask")
	return func(context.Context) error { return nil }
}

// fakePairs logs keyed-pair operations.
type fakePairs struct {
	log  *opLog
	name string
}

func (f *fakePairs) MapValues(collection.MapValuesFunc) collection.PairCollection {
	f.log.add("mapValues(" + f.name + ")")
	return &fakePairs{log: f.log, name: f.name}
}

func (f *fakePairs) Join(other collection.PairCollection, _ int) collection.PairCollection {
	o := other.(*fakePairs)
	f.log.add("join(" + f.name + "," + o.name + ")")
	return &fakePairs{log: f.log, name: f.name + "+" + o.name}
}

func (f *fakePairs) LeftOuterJoin(other collection.PairCollection, _ int) collection.PairCollection {
	o := other.(*fakePairs)
	f.log.add("leftOuterJoin(" + f.name + "," + o.name + ")")
	return &fakePairs{log: f.log, name: f.name + "+" + o.name}
}

func (f *fakePairs) FullOuterJoin(other collection.PairCollection, _ int) collection.PairCollection {
	o := other.(*fakePairs)
	f.log.add("fullOuterJoin(" + f.name + "," + o.name + ")")
	return &fakePairs{log: f.log, name: f.name + "+" + o.name}
}

// fakeBackend implements collection.Backend over the fakes.
type fakeBackend struct {
	log *opLog
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{log: &opLog{}}
}

func (b *fakeBackend) collection(name string) *fakeCollection {
	return &fakeCollection{log: b.log, name: name}
}

func (b *fakeBackend) GetSource(spec *plan.StageSpec, _ plugin.Source, _ metrics.Collector) (collection.Collection, error) {
	b.log.add("getSource(" + spec.Name + ")")
	return b.collection(spec.Name), nil
}

func (b *fakeBackend) AddJoinKey(_ *plan.StageSpec, _ plugin.Joiner, inputStage string, _ collection.Collection, _ metrics.Collector) (collection.PairCollection, error) {
	b.log.add("addJoinKey(" + inputStage + ")")
	return &fakePairs{log: b.log, name: inputStage}, nil
}

func (b *fakeBackend) MergeJoinResults(spec *plan.StageSpec, _ plugin.Joiner, _ collection.PairCollection, _ metrics.Collector) (collection.Collection, error) {
	b.log.add("mergeJoinResults")
	return b.collection(spec.Name + ".merged"), nil
}
