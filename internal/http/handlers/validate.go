package handlers

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"stylegan-api/internal/stylegan"
)

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("seed", func(fl validator.FieldLevel) bool {
		ref, err := stylegan.ParseReference(fl.Field().String())
		return err == nil && ref.Kind != stylegan.RefExisting
	})
	_ = v.RegisterValidation("seed_or_image", func(fl validator.FieldLevel) bool {
		_, err := stylegan.ParseReference(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("style_band", func(fl validator.FieldLevel) bool {
		_, err := stylegan.ParseBand(fl.Field().String())
		return err == nil
	})
	return v
}

// validationMessage flattens validator errors into one readable line.
func validationMessage(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), strings.Split(fe.Namespace(), ".")[0]+".")
		switch fe.Tag() {
		case "seed":
			parts = append(parts, fmt.Sprintf("%s must be empty or a seed in [0, 4294967295]", field))
		case "seed_or_image":
			parts = append(parts, fmt.Sprintf("%s must be empty, a seed or an image id", field))
		case "style_band":
			parts = append(parts, fmt.Sprintf("%s must be one of Coarse, Middle, Fine", field))
		case "required":
			parts = append(parts, fmt.Sprintf("%s is required", field))
		default:
			parts = append(parts, fmt.Sprintf("%s failed %s=%s", field, fe.Tag(), fe.Param()))
		}
	}
	return strings.Join(parts, "; ")
}

// textField accepts a JSON string or number, so {"seed": 42} and
// {"seed": "42"} mean the same thing.
type textField string

func (t *textField) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*t = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*t = textField(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected a string or a number")
	}
	if _, err := strconv.ParseUint(n.String(), 10, 64); err != nil {
		return fmt.Errorf("expected a non-negative integer, got %s", n)
	}
	*t = textField(n.String())
	return nil
}
