package core

import (
	"reflect"
	"regexp"
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

var alphaNumUnderRegex = regexp.MustCompile(`^\w+$`)

type tagText struct {
	tag, text string
	override  bool
}

// messages shared by every package; {0} is the field, {1} the tag param.
var sharedTexts = []tagText{
	{tag: "alphanum_", text: "only alphanumeric characters and underscores are allowed"},
	{tag: "required", text: "this field is required", override: true},
	{tag: "required_with", text: "this field is required", override: true},
	{tag: "uuid", text: "{0} must be a valid ID", override: true},
	{tag: "oneof", text: "{0} must be one of: {1}", override: true},
}

// InitValidators sets up validate for the API: English messages keyed by JSON field names.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = validate.RegisterValidation("alphanum_", func(fl validator.FieldLevel) bool {
		return alphaNumUnderRegex.MatchString(fl.Field().String())
	})
	for _, tt := range sharedTexts {
		RegisterCustomTranslation(validate, translator, tt.tag, tt.text, tt.override)
	}
}

// RegisterCustomTranslation registers text as the message of tag.
// text may reference the field as {0} and the tag param as {1}.
func RegisterCustomTranslation(validate *validator.Validate, translator ut.Translator, tag, text string, override ...bool) {
	ovrd := len(override) > 0 && override[0]
	_ = validate.RegisterTranslation(
		tag, translator,
		func(t ut.Translator) error { return t.Add(tag, text, ovrd) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field(), strings.Join(strings.Fields(fe.Param()), ", "))
			return s
		},
	)
}
