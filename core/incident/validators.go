package incident

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/podesk/core"
)

var (
	offenseTag  = "offense"
	offenseText = "unknown offense code"
)

// InitValidators registers the incident validators; offense codes are checked against catalog.
func InitValidators(validate *validator.Validate, translator ut.Translator, catalog *Catalog) {
	_ = validate.RegisterValidation(offenseTag, func(fl validator.FieldLevel) bool {
		_, ok := catalog.Get(fl.Field().String())
		return ok
	})
	core.RegisterCustomTranslation(validate, translator, offenseTag, offenseText)
}
