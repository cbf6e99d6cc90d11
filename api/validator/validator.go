package validator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator checks request and response payloads before they cross the API
// boundary.
type Validator struct {
	cli *validator.Validate
}

// FieldError describes one field that failed validation. Field is the JSON
// name of the field.
type FieldError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

func (e FieldError) String() string {
	return e.Field + ": " + e.Message
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "required_if":
		return "is required for " + strings.ReplaceAll(fe.Param(), " ", " = ")
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "oneof":
		return "must be one of " + fe.Param()
	default:
		return fe.Error()
	}
}

func (v *Validator) formatError(err error) []FieldError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []FieldError{{Field: "", Tag: "invalid", Message: err.Error()}}
	}

	out := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Field()
		if ns := fe.Namespace(); strings.Contains(ns, ".") {
			// Drop the root struct name but keep the path inside it.
			field = ns[strings.Index(ns, ".")+1:]
		}
		out = append(out, FieldError{
			Field:   field,
			Tag:     fe.Tag(),
			Message: message(fe),
		})
	}
	return out
}

// ValidateStruct validates s against its validate tags.
func (v *Validator) ValidateStruct(s any) []FieldError {
	if err := v.cli.Struct(s); err != nil {
		return v.formatError(err)
	}
	return nil
}

// Validate checks a single value against the given validation tags.
func (v *Validator) Validate(value any, tag string) []FieldError {
	if err := v.cli.Var(value, tag); err != nil {
		return v.formatError(err)
	}
	return nil
}

// New returns a Validator that reports fields by their JSON names.
func New() *Validator {
	cli := validator.New(validator.WithRequiredStructEnabled())
	cli.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return &Validator{cli: cli}
}
