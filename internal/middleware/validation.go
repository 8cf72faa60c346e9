package middleware

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"unicode"

	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	apierrors "keyforge/internal/errors"
)

// MaxHWIDLength bounds the hardware id accepted from clients
const MaxHWIDLength = 256

// Validator decodes request bodies and checks them against their validate tags
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a validator that reports fields by their JSON names
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	_ = v.RegisterValidation("keyid", isKeyID)
	_ = v.RegisterValidation("hwid", isHWID)

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		for _, tag := range []string{"json", "query"} {
			name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name != "" {
				return name
			}
		}
		return fld.Name
	})

	return &Validator{validate: v}
}

// DecodeJSON reads a JSON body into dst and validates it. An empty body
// leaves dst at its zero value before validation.
func (m *Validator) DecodeJSON(r *http.Request, dst interface{}) error {
	if r.Body != nil {
		if err := render.DecodeJSON(r.Body, dst); err != nil && !errors.Is(err, io.EOF) {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				return apierrors.ErrPayloadTooLarge
			}
			return apierrors.InvalidRequestWithError(err)
		}
	}
	return m.ValidateStruct(dst)
}

// ValidateStruct validates a struct and returns an APIError listing every invalid field
func (m *Validator) ValidateStruct(v interface{}) error {
	err := m.validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apierrors.InvalidRequestWithError(err)
	}

	out := make([]apierrors.ValidationError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, apierrors.ValidationError{
			Field:   fe.Field(),
			Message: formatValidationError(fe),
		})
	}
	return apierrors.NewValidationErrors(out)
}

func formatValidationError(err validator.FieldError) string {
	field := err.Field()
	param := err.Param()

	switch err.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, param)
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, param)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(param, " ", ", "))
	case "keyid":
		return fmt.Sprintf("%s must be a key id of letters and digits", field)
	case "hwid":
		return fmt.Sprintf("%s must be printable text without spaces, at most %d characters", field, MaxHWIDLength)
	default:
		return fmt.Sprintf("%s failed %s validation", field, err.Tag())
	}
}

// isKeyID accepts ids of ASCII letters and digits, up to 64 characters
func isKeyID(fl validator.FieldLevel) bool {
	id := fl.Field().String()
	if id == "" || len(id) > 64 {
		return false
	}
	for _, ch := range id {
		if !((ch >= 'A' && ch <= 'Z') || (ch >= 'a' && ch <= 'z') || (ch >= '0' && ch <= '9')) {
			return false
		}
	}
	return true
}

// isHWID accepts printable hardware ids without whitespace
func isHWID(fl validator.FieldLevel) bool {
	hwid := strings.TrimSpace(fl.Field().String())
	if hwid == "" || len(hwid) > MaxHWIDLength {
		return false
	}
	for _, ch := range hwid {
		if unicode.IsSpace(ch) || !unicode.IsPrint(ch) {
			return false
		}
	}
	return true
}
