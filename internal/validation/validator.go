// Package validation wraps validator/v10 and converts its failures into domain errors.
package validation

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/mytheresa/go-storefront/internal/errors"
	"github.com/mytheresa/go-storefront/internal/security"
)

// Validator wraps go-playground/validator with domain error conversion.
type Validator struct {
	v *validator.Validate
}

// New creates a validator that reports fields by their form or json name and understands the
// "token64" tag for 64-character hex tokens and the "maxbytes" tag for byte-length limits.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		for _, key := range []string{"form", "json"} {
			name, _, _ := strings.Cut(fld.Tag.Get(key), ",")
			if name == "-" {
				return ""
			}
			if name != "" {
				return name
			}
		}
		return fld.Name
	})

	_ = v.RegisterValidation("token64", func(fl validator.FieldLevel) bool {
		return security.IsToken(fl.Field().String())
	})

	_ = v.RegisterValidation("maxbytes", func(fl validator.FieldLevel) bool {
		limit, err := strconv.Atoi(fl.Param())
		if err != nil {
			return false
		}
		return len(fl.Field().String()) <= limit
	})

	return &Validator{v: v}
}

// Validate validates a struct. Field failures come back as a VALIDATION error whose details map
// field name to message.
func (v *Validator) Validate(s any) error {
	if err := v.v.Struct(s); err != nil {
		return v.formatError(err)
	}
	return nil
}

// FieldErrors extracts the per-field messages from an error returned by Validate.
func FieldErrors(err error) map[string]string {
	var domainErr *errors.Error
	if errors.As(err, &domainErr) {
		if fields, ok := domainErr.Details.(map[string]string); ok {
			return fields
		}
	}
	return nil
}

func (v *Validator) formatError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}

	fieldErrors := make(map[string]string, len(validationErrs))
	for _, e := range validationErrs {
		if _, seen := fieldErrors[e.Field()]; !seen {
			fieldErrors[e.Field()] = friendlyMessage(e)
		}
	}

	return errors.Validation("please correct the highlighted fields").WithDetails(fieldErrors)
}

func friendlyMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return fmt.Sprintf("must be at least %s characters", e.Param())
	case "max":
		return fmt.Sprintf("must not exceed %s characters", e.Param())
	case "alphanum":
		return "may only contain letters and digits"
	case "oneof":
		return "must be one of: " + e.Param()
	case "eqfield":
		return "does not match"
	case "gt":
		return "must be greater than " + e.Param()
	case "gte":
		return "must be greater than or equal to " + e.Param()
	case "lte":
		return "must be less than or equal to " + e.Param()
	case "maxbytes":
		return fmt.Sprintf("is too long (at most %s bytes)", e.Param())
	case "token64":
		return "is not a valid token"
	default:
		return "is invalid"
	}
}
