package validation

import (
	"regexp"

	"github.com/go-playground/validator/v10"
)

var (
	Validator = validator.New()

	mobilePattern = regexp.MustCompile(`^\+?[0-9]{7,15}$`)
)

func init() {
	_ = Validator.RegisterValidation("mobile", func(fl validator.FieldLevel) bool {
		return mobilePattern.MatchString(fl.Field().String())
	})
}

func ValidateStruct(s interface{}) error {
	return Validator.Struct(s)
}
