package models

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern = regexp.MustCompile(`^\+?[\d\s-]{10,15}$`)
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	_ = v.RegisterValidation("contact_email", matches(emailPattern))
	_ = v.RegisterValidation("phone", matches(phonePattern))
	return v
}

func matches(re *regexp.Regexp) validator.Func {
	return func(fl validator.FieldLevel) bool {
		return re.MatchString(fl.Field().String())
	}
}

var customerMessages = map[string]string{
	"name":    "Name is required",
	"email":   "Invalid email format",
	"phoneNo": "Invalid phone number (10-15 digits, may include +, spaces, or -)",
}

// FieldError describes one rejected input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationResult is the outcome of validating a request body.
type ValidationResult struct {
	Valid  bool         `json:"valid"`
	Errors []FieldError `json:"errors,omitempty"`
}

func (r *ValidationResult) add(field, msg string) {
	r.Valid = false
	r.Errors = append(r.Errors, FieldError{Field: field, Message: msg})
}

// ValidateCustomer checks the customer fields and reports every failing rule.
func ValidateCustomer(req CustomerRequest) ValidationResult {
	res := ValidationResult{Valid: true}

	var fieldErrs validator.ValidationErrors
	if err := validate.Struct(req); errors.As(err, &fieldErrs) {
		for _, fe := range fieldErrs {
			res.add(fe.Field(), customerMessages[fe.Field()])
		}
	}
	return res
}
