// internal/utils/validator.go
package utils

import (
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/aetflow/aet-backend/internal/models"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterValidation("plate", validatePlate)
	validate.RegisterValidation("state_code", validateStateCode)
	validate.RegisterValidation("cnpj", validateCNPJ)
}

func ValidateStruct(s interface{}) error {
	return validate.Struct(s)
}

// validatePlate accepts anything that still has 7 alphanumerics after
// stripping separators: old AAA9999 and Mercosul AAA9A99 layouts alike.
func validatePlate(fl validator.FieldLevel) bool {
	plate := fl.Field().String()
	if plate == "" {
		return true
	}
	n := 0
	for i := 0; i < len(plate); i++ {
		c := plate[i]
		if (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
			n++
		}
	}
	return n == 7
}

func validateStateCode(fl validator.FieldLevel) bool {
	_, ok := models.CanonicalState(fl.Field().String())
	return ok
}

// validateCNPJ checks the 14 digits and both check digits.
func validateCNPJ(fl validator.FieldLevel) bool {
	raw := fl.Field().String()
	if raw == "" {
		return true
	}
	digits := make([]int, 0, 14)
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			digits = append(digits, int(r-'0'))
		case r == '.' || r == '/' || r == '-':
		default:
			return false
		}
	}
	if len(digits) != 14 {
		return false
	}

	check := func(n int) int {
		weights := []int{6, 5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}[13-n:]
		sum := 0
		for i, w := range weights {
			sum += digits[i] * w
		}
		if rem := sum % 11; rem >= 2 {
			return 11 - rem
		}
		return 0
	}
	return digits[12] == check(12) && digits[13] == check(13)
}

// Validation tags for common fields
type ValidationError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

func GetValidationErrors(err error) []ValidationError {
	var validationErrors []ValidationError

	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		for _, e := range validationErrs {
			validationErrors = append(validationErrors, ValidationError{
				Field:   strings.ToLower(e.Field()),
				Tag:     e.Tag(),
				Message: getValidationMessage(e),
			})
		}
	}

	return validationErrors
}

func getValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return e.Field() + " is required"
	case "min":
		return e.Field() + " must have at least " + e.Param() + " items"
	case "max":
		return e.Field() + " must be at most " + e.Param()
	case "oneof":
		return e.Field() + " must be one of: " + e.Param()
	case "plate":
		return "Plate must have 7 letters and digits (AAA9999 or AAA9A99)"
	case "state_code":
		return e.Field() + " must be a Brazilian state code or DNIT"
	case "cnpj":
		return "Invalid CNPJ"
	default:
		return e.Field() + " is invalid"
	}
}
