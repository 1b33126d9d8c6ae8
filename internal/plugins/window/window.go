// Package window provides a count-based windower.
package window

import (
	"fmt"
	"strconv"

	"github.com/alexisbeaulieu97/conveyor/internal/plan"
	"github.com/alexisbeaulieu97/conveyor/internal/plugin"
)

// CountWindow slices a batch into sliding windows of fixed record counts.
type CountWindow struct {
	width int
	slide int
}

// New builds a CountWindow from the "width" and optional "slide" properties.
func New(props map[string]string) (any, error) {
	width, err := strconv.Atoi(props["width"])
	if err != nil || width < 1 {
		return nil, fmt.Errorf("countwindow requires a positive width property")
	}
	slide := width
	if raw, ok := props["slide"]; ok {
		slide, err = strconv.Atoi(raw)
		if err != nil || slide < 1 {
			return nil, fmt.Errorf("countwindow slide must be a positive number")
		}
	}
	return &CountWindow{width: width, slide: slide}, nil
}

// Width returns the window size in records.
func (w *CountWindow) Width() int { return w.width }

// Slide returns the window stride in records.
func (w *CountWindow) Slide() int { return w.slide }

var _ plugin.Windower = (*CountWindow)(nil)

// Register adds the plugin to a registry.
func Register(reg *plugin.Registry) error {
	return reg.Register(plan.KindWindower, "countwindow", New)
}
