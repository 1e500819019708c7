package core

import (
	"net/url"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

var (
	Validate   *validator.Validate
	Translator ut.Translator

	// custom validation tags & texts
	versionTagTag   = "versiontag"
	versionTagText  = "only alphanumeric characters, dots, dashes and underscores are allowed"
	versionTagRegex = regexp.MustCompile(`^[\w.\-]+$`)

	navURLTag  = "navurl"
	navURLText = "must be an absolute path or an http(s) URL"

	requiredTag     = "required"
	requiredWithTag = "required_with"
	requiredText    = "this field is required"
)

func init() {
	_en := en.New()
	uni := ut.New(_en, _en)
	Translator, _ = uni.GetTranslator("en")
	Validate = validator.New()
	InitValidators(Validate, Translator)
}

// InitValidators instantiates the validator for use.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	// Use JSON tag names for errors instead of Go struct names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// register custom validators
	_ = validate.RegisterValidation(versionTagTag, versionTagValidation)
	RegisterCustomTranslation(validate, translator, versionTagTag, versionTagText)

	_ = validate.RegisterValidation(navURLTag, navURLValidation)
	RegisterCustomTranslation(validate, translator, navURLTag, navURLText)

	RegisterCustomTranslation(validate, translator, requiredTag, requiredText, true)
	RegisterCustomTranslation(validate, translator, requiredWithTag, requiredText, true)
}

// RegisterCustomTranslation registers a custom translation for the specified validation tag.
func RegisterCustomTranslation(validate *validator.Validate, translator ut.Translator, tag, text string, override ...bool) {
	var ovrd bool
	if len(override) > 0 {
		ovrd = override[0]
	}
	_ = validate.RegisterTranslation(
		tag, translator,
		func(t ut.Translator) error { return t.Add(tag, text, ovrd) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}

// Custom Global Validators

// versionTagValidation only allows names that are safe to use as cache generation names.
func versionTagValidation(fl validator.FieldLevel) bool {
	return versionTagRegex.MatchString(fl.Field().String())
}

// navURLValidation allows absolute paths ("/leads/42") and http(s) URLs.
func navURLValidation(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if strings.HasPrefix(s, "//") {
		return false
	}
	if strings.HasPrefix(s, "/") {
		_, err := url.Parse(s)
		return err == nil
	}
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
