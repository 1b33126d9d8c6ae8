package config

import (
	"regexp"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/alexisbeaulieu97/conveyor/internal/plan"
	conveyorerrors "github.com/alexisbeaulieu97/conveyor/pkg/errors"
)

var stageNamePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_.-]*$`)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		//nolint:errcheck
		validate.RegisterValidation("stage_name", func(fl validator.FieldLevel) bool {
			return stageNamePattern.MatchString(fl.Field().String())
		})
		//nolint:errcheck
		validate.RegisterValidation("plugin_kind", func(fl validator.FieldLevel) bool {
			_, err := plan.ParseKind(fl.Field().String())
			return err == nil
		})
	})
	return validate
}

// ValidateDocument runs struct validation plus the cross-stage rules the
// tags cannot express.
func ValidateDocument(doc *Document) error {
	if err := validatorInstance().Struct(doc); err != nil {
		if fieldErrors, ok := err.(validator.ValidationErrors); ok && len(fieldErrors) > 0 {
			first := fieldErrors[0]
			return conveyorerrors.NewValidationError(first.Namespace(), "failed "+first.Tag()+" validation", err)
		}
		return conveyorerrors.NewValidationError("", err.Error(), err)
	}

	seen := make(map[string]bool, len(doc.Stages))
	for _, stage := range doc.Stages {
		if seen[stage.Name] {
			return conveyorerrors.NewValidationError("stages", "duplicate stage name \""+stage.Name+"\"", nil)
		}
		seen[stage.Name] = true
	}

	for _, conn := range doc.Connections {
		if !seen[conn.To] {
			return conveyorerrors.NewValidationError("connections", "connection to unknown stage \""+conn.To+"\"", nil)
		}
	}

	return nil
}
