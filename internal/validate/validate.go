// Package validate runs struct-tag precondition checks and reports the first
// failing field as an InvalidArgument error.
package validate

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	ckerrors "github.com/objectfs/cloudkit/pkg/errors"
)

var (
	once     sync.Once
	validate *validator.Validate
)

func instance() *validator.Validate {
	once.Do(func() {
		validate = validator.New()
		validate.RegisterTagNameFunc(fieldName)
		// Registration only fails for an empty tag or nil func.
		_ = validate.RegisterValidation("seconds", wholeSeconds)
	})
	return validate
}

// fieldName reports fields by their yaml name so errors match configuration keys.
func fieldName(fld reflect.StructField) string {
	for _, tag := range []string{"yaml", "json"} {
		name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name != "" {
			return name
		}
	}
	return fld.Name
}

// wholeSeconds accepts durations the providers can express, which count in seconds.
func wholeSeconds(fl validator.FieldLevel) bool {
	return time.Duration(fl.Field().Int())%time.Second == 0
}

// Struct validates s and returns nil or an InvalidArgument error naming the first bad field.
func Struct(s interface{}) error {
	err := instance().Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return ckerrors.NewError(ckerrors.ErrCodeInternalError, "validation failed").WithCause(err)
	}

	fe := verrs[0]
	return ckerrors.InvalidArgument(fe.Field(), describe(fe)).WithCause(err)
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "must not be empty"
	case "endswith":
		return fmt.Sprintf("must end with %s", fe.Param())
	case "min", "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max", "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "seconds":
		return "must be a whole number of seconds"
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
