package http

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

var validate = newValidator()

// newValidator reports fields by their JSON or query name so errors match
// what the client sent.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"json", "query", "form"} {
			name := strings.SplitN(f.Tag.Get(tag), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name != "" {
				return name
			}
		}
		return f.Name
	})
	return v
}

// ReadAndValidateRequest binds the request, fills `default` tags and runs
// the validator. It returns a []ValidationError or nil.
func ReadAndValidateRequest(c echo.Context, req interface{}) interface{} {
	if err := c.Bind(req); err != nil {
		return toValidationErrors(err)
	}
	if err := defaults.Set(req); err != nil {
		return toValidationErrors(err)
	}
	if err := validate.StructCtx(c.Request().Context(), req); err != nil {
		return toValidationErrors(err)
	}
	return nil
}

func toValidationErrors(err error) []ValidationError {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		out := make([]ValidationError, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			msg, params := describe(fe)
			out = append(out, ValidationError{
				Code:    "ERR_" + strings.ToUpper(fe.Tag()),
				Field:   fe.Field(),
				Message: msg,
				Params:  params,
			})
		}
		return out
	}

	msg := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg = fmt.Sprint(he.Message)
	}
	return []ValidationError{{Code: "ERR_BIND", Message: msg}}
}

var comparisons = map[string]struct {
	text  string
	param string
}{
	"gt":  {"greater than", "value"},
	"gte": {"at least", "min"},
	"lt":  {"less than", "value"},
	"lte": {"at most", "max"},
	"min": {"at least", "min"},
	"max": {"at most", "max"},
}

func describe(fe validator.FieldError) (string, map[string]interface{}) {
	field := fe.Field()
	if cmp, ok := comparisons[fe.Tag()]; ok {
		unit := ""
		switch fe.Kind() {
		case reflect.String:
			unit = " characters"
		case reflect.Slice, reflect.Map, reflect.Array:
			unit = " items"
		}
		return fmt.Sprintf("%s must be %s %s%s", field, cmp.text, fe.Param(), unit),
			map[string]interface{}{cmp.param: fe.Param()}
	}

	switch fe.Tag() {
	case "required":
		return field + " is required", nil
	case "oneof":
		opts := strings.Fields(fe.Param())
		return fmt.Sprintf("%s must be one of: %s", field, strings.Join(opts, ", ")),
			map[string]interface{}{"options": opts}
	}
	return fmt.Sprintf("%s failed validation: %s", field, fe.Tag()), nil
}
