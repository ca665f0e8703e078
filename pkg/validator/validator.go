package validator

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var addressRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:/-]{0,254}$`)

// isCollectionName checks a collection name the way document databases do:
// non-empty, no NUL byte, no '$', and not in the reserved "system." namespace.
func isCollectionName(fl validator.FieldLevel) bool {
	name := fl.Field().String()
	if name == "" || len(name) > 255 {
		return false
	}
	if strings.ContainsAny(name, "\x00$") {
		return false
	}
	return !strings.HasPrefix(name, "system.")
}

// isBusAddress checks that a string can be used as a message bus address.
func isBusAddress(fl validator.FieldLevel) bool {
	return addressRegex.MatchString(fl.Field().String())
}

// RegisterCustomValidators registers custom validation functions with the validator.
func RegisterCustomValidators(validate *validator.Validate) error {
	if err := validate.RegisterValidation("collection_name", isCollectionName); err != nil {
		return fmt.Errorf("register collection_name: %w", err)
	}
	if err := validate.RegisterValidation("bus_address", isBusAddress); err != nil {
		return fmt.Errorf("register bus_address: %w", err)
	}
	return nil
}
