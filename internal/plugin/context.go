package plugin

import (
	"fmt"

	"github.com/alexisbeaulieu97/conveyor/internal/macros"
	"github.com/alexisbeaulieu97/conveyor/internal/plan"
	conveyorerrors "github.com/alexisbeaulieu97/conveyor/pkg/errors"
)

// Context materializes configured plugin instances for the engine. Failures
// propagate to the caller unchanged.
type Context interface {
	NewPluginInstance(stageName string, eval *macros.Evaluator) (any, error)
}

// RegistryContext is the registry-backed Context: it resolves a stage's
// factory, expands property macros, and constructs the instance.
type RegistryContext struct {
	registry *Registry
	plan     *plan.Plan
}

// NewRegistryContext binds a registry to one plan.
func NewRegistryContext(registry *Registry, p *plan.Plan) *RegistryContext {
	return &RegistryContext{registry: registry, plan: p}
}

// NewPluginInstance builds the plugin configured for the named stage.
func (c *RegistryContext) NewPluginInstance(stageName string, eval *macros.Evaluator) (any, error) {
	spec := c.plan.Stage(stageName)
	if spec == nil {
		return nil, conveyorerrors.NewPluginError(stageName, fmt.Errorf("stage is not part of this plan"))
	}

	factory, err := c.registry.Lookup(spec.PluginType, spec.PluginName)
	if err != nil {
		return nil, err
	}

	props := spec.Properties
	if eval != nil {
		props, err = eval.ExpandAll(props)
		if err != nil {
			return nil, conveyorerrors.NewPluginError(spec.PluginName, err)
		}
	}

	instance, err := factory(props)
	if err != nil {
		return nil, conveyorerrors.NewPluginError(spec.PluginName, err)
	}
	return instance, nil
}
