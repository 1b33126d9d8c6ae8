// Package alert provides an alert publisher that writes alerts to the
// structured log.
package alert

import (
	"context"

	"github.com/alexisbeaulieu97/conveyor/internal/logger"
	"github.com/alexisbeaulieu97/conveyor/internal/plan"
	"github.com/alexisbeaulieu97/conveyor/internal/plugin"
	"github.com/alexisbeaulieu97/conveyor/internal/record"
)

// LogPublisher logs each alert with its payload.
type LogPublisher struct {
	log *logger.Logger
}

// NewFactory builds the plugin factory bound to the given logger.
func NewFactory(log *logger.Logger) plugin.Factory {
	return func(map[string]string) (any, error) {
		if log == nil {
			log = logger.Discard()
		}
		return &LogPublisher{log: log}, nil
	}
}

// Publish writes one log entry per alert.
func (p *LogPublisher) Publish(_ context.Context, alerts []*record.Alert) error {
	for _, alert := range alerts {
		fields := map[string]any{"stage": alert.Stage}
		for key, value := range alert.Payload {
			fields[key] = value
		}
		p.log.WithFields(fields).Warn("pipeline alert")
	}
	return nil
}

var _ plugin.AlertPublisher = (*LogPublisher)(nil)

// Register adds the plugin to a registry.
func Register(reg *plugin.Registry, log *logger.Logger) error {
	return reg.Register(plan.KindAlertPublisher, "log", NewFactory(log))
}
