package validator

import (
	"regexp"

	"github.com/go-playground/validator/v10"
)

var (
	callIDRegex  = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)
	jobNameRegex = regexp.MustCompile(`^[0-9a-zA-Z._-]{1,200}$`)
)

func callIDValidator(fl validator.FieldLevel) bool {
	val, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}

	return callIDRegex.MatchString(val)
}

func jobNameValidator(fl validator.FieldLevel) bool {
	val, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}

	// same alphabet the runner accepts for job names
	return jobNameRegex.MatchString(val)
}
