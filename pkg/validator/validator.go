// Package validator turns request validation failures into tagged field
// errors.
package validator

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"volunteer-coordination/internal/apperrors"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	once       sync.Once
	standalone *validator.Validate
)

// Configure adds the json field naming and the custom tags to v.
func Configure(v *validator.Validate) {
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("objectid", func(fl validator.FieldLevel) bool {
		return primitive.IsValidObjectID(fl.Field().String())
	})
}

// UseWithGin configures the validator behind gin's binding tags.
func UseWithGin() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		Configure(v)
	}
}

// Struct validates s outside of gin binding.
func Struct(s any) error {
	once.Do(func() {
		standalone = validator.New(validator.WithRequiredStructEnabled())
		Configure(standalone)
	})
	return Translate(standalone.Struct(s))
}

// Translate maps binding and validation failures to a VALIDATION_FAILED
// error with one entry per offending field. *apperrors.Error values pass
// through unchanged.
func Translate(err error) error {
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]apperrors.FieldError, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, apperrors.FieldError{
				Field:   fe.Field(),
				Tag:     fe.Tag(),
				Message: message(fe),
			})
		}
		return apperrors.Validation("invalid request", fields...)
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return apperrors.Validation("invalid request", apperrors.FieldError{
			Field:   typeErr.Field,
			Tag:     "type",
			Message: fmt.Sprintf("%s must be a %s", typeErr.Field, typeErr.Type),
		})
	}

	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) || err.Error() == "EOF" {
		return apperrors.Validation("request body must be valid JSON")
	}

	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return apperrors.Validation(err.Error())
}

func message(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min", "gte":
		if fe.Kind() == reflect.String || fe.Kind() == reflect.Slice {
			return fmt.Sprintf("%s must have at least %s items or characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max", "lte":
		if fe.Kind() == reflect.String || fe.Kind() == reflect.Slice {
			return fmt.Sprintf("%s must have at most %s items or characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "objectid":
		return field + " must be a valid id"
	case "email":
		return field + " must be a valid email"
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
