package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"badgehub/internal/badgeid"
	"badgehub/internal/models"
	"badgehub/internal/nostr"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	_ = v.RegisterValidation("pubkey", func(fl validator.FieldLevel) bool {
		_, err := nostr.DecodePublicKey(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("badgeid", func(fl validator.FieldLevel) bool {
		_, ok := badgeid.Parse(fl.Field().String())
		return ok
	})
	_ = v.RegisterValidation("display_action", func(fl validator.FieldLevel) bool {
		return models.DisplayAction(fl.Field().String()).Valid()
	})
	return v
}

// FieldError describes one failed constraint.
type FieldError struct {
	Field string `json:"field"`
	Tag   string `json:"tag"`
	Value string `json:"value,omitempty"`
}

// Errors is returned by ValidateStruct when constraints fail.
type Errors []FieldError

func (e Errors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, fe := range e {
		msgs = append(msgs, fmt.Sprintf("field '%s' failed validation: %s", fe.Field, fe.Tag))
	}
	return strings.Join(msgs, "; ")
}

// ValidateStruct validates a struct using go-playground/validator
func ValidateStruct(s interface{}) error {
	if s == nil {
		return nil
	}

	// Check if it's a pointer to a struct
	val := reflect.ValueOf(s)
	if val.Kind() == reflect.Ptr {
		if val.IsNil() {
			return nil
		}
		val = val.Elem()
	}

	if val.Kind() != reflect.Struct {
		return fmt.Errorf("validator: expected a struct, got %T", s)
	}

	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		out := make(Errors, 0, len(ve))
		for _, e := range ve {
			out = append(out, FieldError{
				Field: e.Field(),
				Tag:   e.Tag(),
				Value: fmt.Sprint(e.Value()),
			})
		}
		return out
	}
	return fmt.Errorf("validation failed: %w", err)
}

// ValidateVar checks a single value against a tag expression such as
// "pubkey" or "required,badgeid".
func ValidateVar(value interface{}, tag string) error {
	return validate.Var(value, tag)
}
