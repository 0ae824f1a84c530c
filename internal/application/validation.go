package application

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/example/roombook/internal/scheduler"
)

// inputValidate checks the struct tags on service inputs.
var inputValidate *validator.Validate

func init() {
	inputValidate = validator.New(validator.WithRequiredStructEnabled())
	inputValidate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
}

// validateStruct runs the tag rules on input and converts failures into a
// ValidationError keyed by the JSON field name.
func validateStruct(input any) *ValidationError {
	vErr := &ValidationError{}
	err := inputValidate.Struct(input)
	if err == nil {
		return vErr
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		vErr.add("input", err.Error())
		return vErr
	}
	for _, fe := range fieldErrs {
		vErr.add(fe.Field(), fieldMessage(fe))
	}
	return vErr
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at most %s characters", fe.Param())
		}
		return "must be at most " + fe.Param()
	case "min":
		return "must be at least " + fe.Param()
	case "oneof":
		return "must be one of: " + strings.Join(strings.Fields(fe.Param()), ", ")
	default:
		return "is invalid"
	}
}

// validateInterval reports missing or inverted bounds.
func validateInterval(iv scheduler.Interval) *ValidationError {
	vErr := &ValidationError{}
	if iv.Start.IsZero() {
		vErr.add("start_time", "is required")
	}
	if iv.End.IsZero() {
		vErr.add("end_time", "is required")
	}
	if vErr.HasErrors() {
		return vErr
	}
	if err := iv.Validate(); err != nil {
		vErr.add("end_time", "must be after start_time")
	}
	return vErr
}
