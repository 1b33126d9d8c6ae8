package main

import (
	"github.com/alexisbeaulieu97/conveyor/internal/logger"
	"github.com/alexisbeaulieu97/conveyor/internal/plugin"
	"github.com/alexisbeaulieu97/conveyor/internal/plugins/aggregate"
	"github.com/alexisbeaulieu97/conveyor/internal/plugins/alert"
	"github.com/alexisbeaulieu97/conveyor/internal/plugins/connector"
	"github.com/alexisbeaulieu97/conveyor/internal/plugins/dedupe"
	"github.com/alexisbeaulieu97/conveyor/internal/plugins/errorcollect"
	"github.com/alexisbeaulieu97/conveyor/internal/plugins/file"
	"github.com/alexisbeaulieu97/conveyor/internal/plugins/inline"
	"github.com/alexisbeaulieu97/conveyor/internal/plugins/joiner"
	"github.com/alexisbeaulieu97/conveyor/internal/plugins/split"
	"github.com/alexisbeaulieu97/conveyor/internal/plugins/sqlite"
	"github.com/alexisbeaulieu97/conveyor/internal/plugins/transform"
	"github.com/alexisbeaulieu97/conveyor/internal/plugins/window"
)

// registerPlugins wires the builtin plugin set into a fresh registry.
func registerPlugins(log *logger.Logger) (*plugin.Registry, error) {
	reg := plugin.NewRegistry()

	registrations := []func(*plugin.Registry) error{
		inline.Register,
		file.Register,
		sqlite.Register,
		transform.Register,
		split.Register,
		errorcollect.Register,
		aggregate.Register,
		joiner.Register,
		window.Register,
		dedupe.Register,
		connector.Register,
	}
	for _, register := range registrations {
		if err := register(reg); err != nil {
			return nil, err
		}
	}

	if err := alert.Register(reg, log); err != nil {
		return nil, err
	}
	return reg, nil
}
