package validator

import "github.com/go-playground/validator/v10"

func registerFn(tag string, fn func(fl validator.FieldLevel) bool) func(v *validator.Validate) {
	return func(v *validator.Validate) {
		_ = v.RegisterValidation(tag, fn)
	}
}

func NewBatchJobValidationRules() []ValidationRule {
	return []ValidationRule{
		{
			Rule: registerFn("call_id", callIDValidator),
		},
	}
}

func NewNotificationValidationRules() []ValidationRule {
	return []ValidationRule{
		{
			Rule: registerFn("job_name", jobNameValidator),
		},
	}
}
