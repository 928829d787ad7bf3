package presenca

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// NewValidator usa o nome do campo JSON nas mensagens e registra a regra "digits"
// (string não vazia só com dígitos).
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("digits", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return s != "" && OnlyDigits(s) == s
	})
	return v
}

// firstFieldError devolve o primeiro campo reprovado, na ordem da struct.
func firstFieldError(err error) (validator.FieldError, bool) {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) && len(ve) > 0 {
		return ve[0], true
	}
	return nil, false
}
