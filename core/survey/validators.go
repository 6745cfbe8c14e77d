package survey

import (
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/feeded/core"
)

var (
	formTypeTag  = "formtype"
	formTypeText = "{0} must be one of hot, cold"
)

func init() {
	_ = core.Validate.RegisterValidation(formTypeTag, formTypeValidation)
	core.RegisterCustomTranslation(core.Validate, core.Translator, formTypeTag, formTypeText)
}

// formTypeValidation accepts hot and cold.
func formTypeValidation(fl validator.FieldLevel) bool {
	return FormType(fl.Field().String()).IsValid()
}
