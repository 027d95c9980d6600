package student

import (
	"regexp"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/podesk/core"
)

var (
	lrnTag   = "lrn"
	lrnText  = "LRN must be exactly 12 digits"
	lrnRegex = regexp.MustCompile(`^\d{12}$`)
)

// InitValidators registers the student validators and their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(lrnTag, lrnValidation)
	core.RegisterCustomTranslation(validate, translator, lrnTag, lrnText)
}

func lrnValidation(fl validator.FieldLevel) bool {
	return lrnRegex.MatchString(fl.Field().String())
}
