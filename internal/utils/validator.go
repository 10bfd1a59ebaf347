package utils

import (
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	apperrors "github.com/openlms/quiz-statistics-service/internal/errors"
	"github.com/openlms/quiz-statistics-service/internal/models"
)

var fingerprintPattern = regexp.MustCompile(`^[0-9a-f]{32}$`)

// Validator validates request structs using struct tags plus the custom
// validators this service needs.
type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	v := validator.New()

	// Report json field names instead of Go field names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	v.RegisterValidation("grading_policy", validateGradingPolicy)
	v.RegisterValidation("fingerprint", validateFingerprint)

	return &Validator{validate: v}
}

// Validate checks the struct tags and converts failures to the shared
// validation error type.
func (v *Validator) Validate(s interface{}) error {
	if err := v.validate.Struct(s); err != nil {
		if errs := apperrors.ToValidationErrors(err); len(errs) > 0 {
			return errs
		}
		return err
	}
	return nil
}

func validateGradingPolicy(fl validator.FieldLevel) bool {
	return models.GradingPolicy(fl.Field().String()).Valid()
}

func validateFingerprint(fl validator.FieldLevel) bool {
	return fingerprintPattern.MatchString(fl.Field().String())
}
