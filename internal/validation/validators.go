package validation

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/rubenelhore/simonkey-identity/internal/models"
)

var (
	// Validate is a shared validator instance
	Validate *validator.Validate
)

func init() {
	Validate = validator.New()

	// Register custom validators for enums
	if err := Validate.RegisterValidation("account_class", validateAccountClass); err != nil {
		panic(fmt.Sprintf("failed to register account_class validator: %v", err))
	}
}

// validateAccountClass validates that a string is a valid AccountClass enum value
func validateAccountClass(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	switch models.AccountClass(value) {
	case models.AccountClassStandard, models.AccountClassPrivileged:
		return true
	default:
		return false
	}
}

// ValidateAccountClass validates an AccountClass string value
func ValidateAccountClass(value string) error {
	switch models.AccountClass(value) {
	case models.AccountClassStandard, models.AccountClassPrivileged:
		return nil
	default:
		return fmt.Errorf("invalid account_class: %s (must be 'standard' or 'privileged-precedence')", value)
	}
}
