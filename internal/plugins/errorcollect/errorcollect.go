// Package errorcollect provides an error transform that flattens rejected
// records into rows so they can be written to a regular sink.
package errorcollect

import (
	"context"

	"github.com/alexisbeaulieu97/conveyor/internal/plan"
	"github.com/alexisbeaulieu97/conveyor/internal/plugin"
	"github.com/alexisbeaulieu97/conveyor/internal/record"
)

// Flatten turns each error record into a row carrying the failure context
// alongside the original record.
type Flatten struct{}

// New builds a Flatten; it takes no properties.
func New(map[string]string) (any, error) {
	return Flatten{}, nil
}

// Transform flattens one error record.
func (Flatten) Transform(_ context.Context, errRec *record.ErrorRecord, emitter plugin.Emitter) error {
	emitter.Emit(map[string]any{
		"error_message": errRec.Message,
		"error_code":    errRec.Code,
		"error_stage":   errRec.Stage,
		"record":        errRec.Record,
	})
	return nil
}

// Register adds the plugin to a registry.
func Register(reg *plugin.Registry) error {
	return reg.Register(plan.KindErrorTransform, "flatten", New)
}
