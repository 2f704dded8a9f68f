package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/metalav/auditorias-bfa-go/internal/domain"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report JSON field names instead of Go field names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateStruct runs the struct tags of req and converts the first failure
// into an ErrValidation.
func validateStruct(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &domain.ErrValidation{Message: err.Error()}
	}

	fe := verrs[0]
	return &domain.ErrValidation{Field: fe.Field(), Message: validationMessage(fe)}
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "obrigatório"
	case "email":
		return "e-mail inválido"
	case "url":
		return "URL inválida"
	case "uuid", "uuid4":
		return "identificador inválido"
	case "oneof":
		return fmt.Sprintf("deve ser um de: %s", fe.Param())
	case "min":
		return fmt.Sprintf("tamanho mínimo %s", fe.Param())
	case "len":
		return fmt.Sprintf("deve ter %s caracteres", fe.Param())
	case "gte":
		return fmt.Sprintf("deve ser maior ou igual a %s", fe.Param())
	}
	return fmt.Sprintf("inválido (%s)", fe.Tag())
}
