package validation

import (
	"regexp"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validatorOnce sync.Once
	validateInst  *validator.Validate

	limitKeyPattern = regexp.MustCompile(`^[a-z0-9_-]+$`)
)

// validatorInstance returns the process-wide validator.Validate singleton,
// registering Rockestra's domain-specific tags exactly once.
func validatorInstance() *validator.Validate {
	validatorOnce.Do(func() {
		v := validator.New()

		_ = v.RegisterValidation("qos_tier", func(fl validator.FieldLevel) bool {
			switch fl.Field().String() {
			case "Full", "Conserve", "Emergency":
				return true
			default:
				return false
			}
		})

		_ = v.RegisterValidation("limit_key", func(fl validator.FieldLevel) bool {
			s := fl.Field().String()
			if s == "" {
				return true
			}
			return limitKeyPattern.MatchString(s)
		})

		validateInst = v
	})
	return validateInst
}

// GetValidator exposes the shared validator instance for other packages
// (e.g. internal/bootstrap) that validate their own tagged structs.
func GetValidator() *validator.Validate {
	return validatorInstance()
}
