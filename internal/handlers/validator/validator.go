package validator

import (
	"github.com/go-playground/validator/v10"
)

type ValidationRule struct {
	Rule func(v *validator.Validate)
}

type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	return &Validator{validate: validator.New(validator.WithRequiredStructEnabled())}
}

func (v *Validator) Register(rules ...ValidationRule) {
	for _, r := range rules {
		r.Rule(v.validate)
	}
}

func (v *Validator) Struct(s any) error {
	return v.validate.Struct(s)
}
