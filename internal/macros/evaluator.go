package macros

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var macroPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Evaluator expands ${...} references in plugin properties against the run's
// runtime arguments. Two references are reserved: ${namespace} and
// ${logicalStartTime}, the latter optionally with a Go time layout after a
// colon, e.g. ${logicalStartTime:2006-01-02}.
type Evaluator struct {
	args             map[string]string
	namespace        string
	logicalStartTime time.Time
}

// NewEvaluator builds an Evaluator over the run's arguments.
func NewEvaluator(args map[string]string, namespace string, logicalStartTime time.Time) *Evaluator {
	return &Evaluator{args: args, namespace: namespace, logicalStartTime: logicalStartTime}
}

// Expand substitutes every macro reference in the value. Unknown references
// are an error so misspelled arguments fail loudly at instantiation time.
func (e *Evaluator) Expand(value string) (string, error) {
	var expandErr error
	expanded := macroPattern.ReplaceAllStringFunc(value, func(match string) string {
		name := match[2 : len(match)-1]
		resolved, err := e.resolve(name)
		if err != nil && expandErr == nil {
			expandErr = err
		}
		return resolved
	})
	if expandErr != nil {
		return "", expandErr
	}
	return expanded, nil
}

// ExpandAll expands every value of a property map, returning a new map.
func (e *Evaluator) ExpandAll(props map[string]string) (map[string]string, error) {
	if len(props) == 0 {
		return props, nil
	}
	expanded := make(map[string]string, len(props))
	for key, value := range props {
		v, err := e.Expand(value)
		if err != nil {
			return nil, fmt.Errorf("property %s: %w", key, err)
		}
		expanded[key] = v
	}
	return expanded, nil
}

func (e *Evaluator) resolve(name string) (string, error) {
	if name == "namespace" {
		return e.namespace, nil
	}
	if name == "logicalStartTime" {
		return e.logicalStartTime.Format(time.RFC3339), nil
	}
	if layout, ok := strings.CutPrefix(name, "logicalStartTime:"); ok {
		return e.logicalStartTime.Format(layout), nil
	}
	if v, ok := e.args[name]; ok {
		return v, nil
	}
	return "", fmt.Errorf("undefined macro %q", name)
}
