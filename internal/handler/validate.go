package handler

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/mmeshcher/parking-system/internal/validation"
)

// fieldErrors сопоставляет поле запроса с кодом и текстом ошибки.
var fieldErrors = map[string]struct{ code, message string }{
	"code":      {"invalid_slot_code", "slot code must have exactly 4 characters"},
	"status":    {"invalid_slot_status", "status must be FREE or OCCUPIED"},
	"name":      {"invalid_name", "name must have between 5 and 100 characters"},
	"cpf":       {"invalid_cpf", "cpf must be formatted as 000.000.000-00 with valid check digits"},
	"clientCpf": {"invalid_cpf", "cpf must be formatted as 000.000.000-00 with valid check digits"},
	"plate":     {"invalid_plate", "plate must match AAA-0000"},
	"brand":     {"invalid_vehicle", "brand, model and color are required"},
	"model":     {"invalid_vehicle", "brand, model and color are required"},
	"color":     {"invalid_vehicle", "brand, model and color are required"},
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	rules := map[string]func(string) bool{
		"cpf":        validation.IsValidCPF,
		"plate":      validation.IsValidPlate,
		"slotcode":   validation.IsValidSlotCode,
		"clientname": validation.IsValidClientName,
	}
	for tag, fn := range rules {
		// Ошибка возможна только при пустом теге или nil-функции.
		_ = v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
			return fn(fl.Field().String())
		})
	}

	return v
}

// validateRequest проверяет запрос и возвращает код и текст первой ошибки.
func (h *Handler) validateRequest(req any) (code, message string, ok bool) {
	err := h.validate.Struct(req)
	if err == nil {
		return "", "", true
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		if fe, found := fieldErrors[verrs[0].Field()]; found {
			return fe.code, fe.message, false
		}
		return "invalid_" + verrs[0].Field(), verrs[0].Error(), false
	}
	return "invalid_request", err.Error(), false
}
