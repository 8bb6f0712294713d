package httputil

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validate is the shared struct validator. Field names in errors use the
// json (or query) tag rather than the Go field name.
var Validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"json", "query"} {
			name := strings.SplitN(f.Tag.Get(tag), ",", 2)[0]
			if name != "" && name != "-" {
				return name
			}
		}
		return f.Name
	})
	return v
}

// FieldErrors flattens validator errors to field → failed rule.
func FieldErrors(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		out[fe.Field()] = fe.Tag()
	}
	return out
}

// DecodeValid decodes a JSON body and validates it. On failure it writes a
// 400 with per-field details and returns false.
func DecodeValid(w http.ResponseWriter, r *http.Request, dst any) bool {
	if !Decode(w, r, dst) {
		return false
	}
	if err := Validate.Struct(dst); err != nil {
		JSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation failed", Details: FieldErrors(err)})
		return false
	}
	return true
}
