package engine

import (
	"fmt"

	"github.com/alexisbeaulieu97/conveyor/internal/collection"
)

// EmittedRecords holds every collection a stage emitted, split by kind. Built
// exactly once per stage and never mutated afterwards.
type EmittedRecords struct {
	Output      collection.Collection
	OutputPorts map[string]collection.Collection
	Errors      collection.Collection
	Alerts      collection.Collection
}

type emittedBuilder struct {
	output      collection.Collection
	outputPorts map[string]collection.Collection
	errors      collection.Collection
	alerts      collection.Collection
}

func newEmittedBuilder() *emittedBuilder {
	return &emittedBuilder{outputPorts: make(map[string]collection.Collection)}
}

func (b *emittedBuilder) setOutput(c collection.Collection) *emittedBuilder {
	b.output = c
	return b
}

func (b *emittedBuilder) addPort(port string, c collection.Collection) *emittedBuilder {
	b.outputPorts[port] = c
	return b
}

func (b *emittedBuilder) setErrors(c collection.Collection) *emittedBuilder {
	b.errors = c
	return b
}

func (b *emittedBuilder) setAlerts(c collection.Collection) *emittedBuilder {
	b.alerts = c
	return b
}

func (b *emittedBuilder) build() *EmittedRecords {
	return &EmittedRecords{
		Output:      b.output,
		OutputPorts: b.outputPorts,
		Errors:      b.errors,
		Alerts:      b.alerts,
	}
}

// recordsRegistry maps stage name to its emitted records. Entries are
// single-assignment; a rewrite is a driver bug.
type recordsRegistry struct {
	records map[string]*EmittedRecords
}

func newRecordsRegistry() *recordsRegistry {
	return &recordsRegistry{records: make(map[string]*EmittedRecords)}
}

func (r *recordsRegistry) put(stage string, emitted *EmittedRecords) error {
	if _, exists := r.records[stage]; exists {
		return fmt.Errorf("emitted records for stage %s written twice", stage)
	}
	r.records[stage] = emitted
	return nil
}

func (r *recordsRegistry) get(stage string) *EmittedRecords {
	return r.records[stage]
}
