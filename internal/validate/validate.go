// Package validate checks request payloads with go-playground/validator and
// converts failures into apierr validation details.
package validate

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	entranslations "github.com/go-playground/validator/v10/translations/en"
	"github.com/wolfeidau/tsrunner/internal/apierr"
)

// BodyLoc is the first element of every detail location.
const BodyLoc = "body"

// Validator validates structs using their validate tags. Field names in
// details are taken from the json tags so clients see the wire names.
type Validator struct {
	validate *validator.Validate
	trans    ut.Translator
}

// New creates a Validator with English messages.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		switch name {
		case "-":
			return ""
		case "":
			return fld.Name
		}
		return name
	})

	english := en.New()
	trans, _ := ut.New(english, english).GetTranslator("en")
	if err := entranslations.RegisterDefaultTranslations(v, trans); err != nil {
		// only fails on a broken translation table, which is a build problem
		panic(err)
	}

	return &Validator{validate: v, trans: trans}
}

// Struct validates s. It returns nil or an *apierr.Error of kind validation.
func (v *Validator) Struct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apierr.Unexpected(err)
	}

	details := make([]apierr.Detail, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		details = append(details, apierr.Detail{
			Loc:  fieldLoc(fe.Namespace()),
			Msg:  fe.Translate(v.trans),
			Type: fe.Tag(),
		})
	}
	return apierr.Validation(details...)
}

// Decode unmarshals a JSON payload into dst, reporting malformed input as a
// validation failure.
func Decode(data []byte, dst any) error {
	err := json.Unmarshal(data, dst)
	if err == nil {
		return nil
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		loc := []string{BodyLoc}
		if typeErr.Field != "" {
			loc = append(loc, strings.Split(typeErr.Field, ".")...)
		}
		return apierr.Validation(apierr.Detail{
			Loc:  loc,
			Msg:  "value must be of type " + typeErr.Type.String(),
			Type: "type_error",
		})
	}

	return apierr.Validation(apierr.Detail{
		Loc:  []string{BodyLoc},
		Msg:  "invalid JSON body",
		Type: "json_invalid",
	})
}

// DecodeAndValidate is Decode followed by Struct.
func (v *Validator) DecodeAndValidate(data []byte, dst any) error {
	if err := Decode(data, dst); err != nil {
		return err
	}
	return v.Struct(dst)
}

// fieldLoc turns "LoginRequest.username" into ["body", "username"].
func fieldLoc(namespace string) []string {
	parts := strings.Split(namespace, ".")
	return append([]string{BodyLoc}, parts[1:]...)
}
