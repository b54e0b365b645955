package notification

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/sungwon/notification-pipeline/internal/errclass"
)

// FieldError describes one field that failed validation.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

// ValidationError is returned when a decoded payload does not conform to the
// NotificationQueuePayload contract.
type ValidationError struct {
	Fields []FieldError
	Err    error
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		if e.Err != nil {
			return "invalid payload: " + e.Err.Error()
		}
		return "invalid payload"
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+" ("+f.Rule+")")
	}
	return "invalid payload: " + strings.Join(parts, ", ")
}

func (e *ValidationError) Unwrap() error { return e.Err }

// ErrorKind implements errclass.Kinded.
func (e *ValidationError) ErrorKind() errclass.Kind { return errclass.KindValidation }

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their wire names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	// trimmed rejects identifiers with surrounding whitespace, which also
	// rejects whitespace-only identifiers that pass "required".
	_ = v.RegisterValidation("trimmed", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return s == strings.TrimSpace(s)
	})

	return v
}

// Validate checks a decoded payload against the NotificationQueuePayload
// contract. raw is whatever the envelope decoder produced; it is re-encoded
// and decoded into Payload so that type mismatches (a numeric userId, a
// non-object additionalData) fail as well as rule violations.
func Validate(raw any) (Payload, error) {
	var p Payload

	data, err := json.Marshal(raw)
	if err != nil {
		return p, &ValidationError{Err: fmt.Errorf("encode payload: %w", err)}
	}

	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return p, &ValidationError{Err: errors.New("payload is null")}
	}

	if err := json.Unmarshal(data, &p); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return Payload{}, &ValidationError{
				Fields: []FieldError{{Field: typeErr.Field, Rule: "type"}},
				Err:    err,
			}
		}
		return Payload{}, &ValidationError{Err: err}
	}

	if err := validate.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return Payload{}, &ValidationError{Err: err}
		}
		fields := make([]FieldError, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, FieldError{Field: fe.Field(), Rule: fe.Tag()})
		}
		return Payload{}, &ValidationError{Fields: fields, Err: err}
	}

	return p, nil
}
