package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"

	"github.com/sakif/snipshare/internal/apperror"
)

const maxBodyBytes = 1 << 20

// invalidRequest carries every field-level problem found in one request body.
// It unwraps to apperror.ErrValidation.
type invalidRequest struct {
	details []FieldError
}

func (e *invalidRequest) Error() string {
	parts := make([]string, len(e.details))
	for i, d := range e.details {
		parts[i] = d.Field + ": " + d.Message
	}
	return "invalid request: " + strings.Join(parts, "; ")
}

func (e *invalidRequest) Unwrap() error { return apperror.ErrValidation }

// newValidator reports fields by their JSON names and adds two rules:
// "notblank" (not empty after trimming) and "password" (at least one
// upper-case letter, one lower-case letter and one digit; length is checked
// separately with min/max).
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.RegisterValidation("notblank", validators.NotBlank)
	_ = v.RegisterValidation("password", func(fl validator.FieldLevel) bool {
		var upper, lower, digit bool
		for _, r := range fl.Field().String() {
			switch {
			case unicode.IsUpper(r):
				upper = true
			case unicode.IsLower(r):
				lower = true
			case unicode.IsDigit(r):
				digit = true
			}
		}
		return upper && lower && digit
	})

	return v
}

// decode reads a JSON body into dst and validates it.
func decode(w http.ResponseWriter, r *http.Request, v *validator.Validate, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperror.ValidationFailed("", "request body is too large")
		}
		return apperror.ValidationFailed("", "invalid JSON body")
	}

	if err := v.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("handler: validating request: %w", err)
		}
		details := make([]FieldError, 0, len(verrs))
		for _, fe := range verrs {
			details = append(details, FieldError{Field: fieldPath(fe), Message: describe(fe)})
		}
		return &invalidRequest{details: details}
	}
	return nil
}

// fieldPath drops the struct name from the namespace: "createSnippetRequest.tags[2]" → "tags[2]".
func fieldPath(fe validator.FieldError) string {
	if _, rest, ok := strings.Cut(fe.Namespace(), "."); ok {
		return rest
	}
	return fe.Field()
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("must contain at least %s items", fe.Param())
		}
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("must contain at most %s items", fe.Param())
		}
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "password":
		return "must contain an upper-case letter, a lower-case letter and a digit"
	case "notblank":
		return "must not be blank"
	}
	return "is invalid"
}
