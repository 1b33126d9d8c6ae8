// Package split provides a splitter transform that routes rows to ports by
// the value of a field.
package split

import (
	"context"
	"fmt"
	"strings"

	"github.com/alexisbeaulieu97/conveyor/internal/plan"
	"github.com/alexisbeaulieu97/conveyor/internal/plugin"
	"github.com/alexisbeaulieu97/conveyor/internal/record"
)

// FieldSplitter routes each row to the port mapped from its field value.
// Unmapped values go to the default port when one is configured and become
// error records otherwise.
type FieldSplitter struct {
	field       string
	routes      map[string]string
	defaultPort string
}

// New builds a FieldSplitter. "field" names the routing field; "routes" maps
// values to ports as "value=port" pairs separated by commas; "default_port"
// is optional.
func New(props map[string]string) (any, error) {
	field := props["field"]
	if field == "" {
		return nil, fmt.Errorf("split requires a field property")
	}
	raw := props["routes"]
	if raw == "" {
		return nil, fmt.Errorf("split requires a routes property")
	}
	routes := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		value, port, found := strings.Cut(strings.TrimSpace(pair), "=")
		if !found || value == "" || port == "" {
			return nil, fmt.Errorf("invalid route %q", pair)
		}
		routes[value] = port
	}
	return &FieldSplitter{field: field, routes: routes, defaultPort: props["default_port"]}, nil
}

// Transform routes one row.
func (s *FieldSplitter) Transform(_ context.Context, rec any, emitter plugin.MultiEmitter) error {
	row, ok := rec.(map[string]any)
	if !ok {
		emitter.EmitError(&record.ErrorRecord{Record: rec, Message: fmt.Sprintf("record %T is not a row", rec)})
		return nil
	}
	value := fmt.Sprintf("%v", row[s.field])
	port, ok := s.routes[value]
	if !ok {
		if s.defaultPort == "" {
			emitter.EmitError(&record.ErrorRecord{
				Record:  rec,
				Message: fmt.Sprintf("no port for %s value %q", s.field, value),
			})
			return nil
		}
		port = s.defaultPort
	}
	emitter.EmitPort(port, rec)
	return nil
}

// Register adds the plugin to a registry.
func Register(reg *plugin.Registry) error {
	return reg.Register(plan.KindSplitter, "byfield", New)
}
