package validator

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/mwork/moments-api/internal/domain/visibility"
)

// Validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()

	// Use JSON tag names in error messages
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// Register custom validations
	registerCustomValidations()
}

func registerCustomValidations() {
	// Connected tier: FRIEND, CLOSE_FRIEND or SPECIAL
	validate.RegisterValidation("tier", func(fl validator.FieldLevel) bool {
		tier, err := visibility.ParseTier(fl.Field().String())
		return err == nil && tier.IsConnected()
	})

	validate.RegisterValidation("visibility_label", func(fl validator.FieldLevel) bool {
		_, err := visibility.ParseLabel(fl.Field().String())
		return err == nil
	})
}

// Validate validates a struct and returns a map of field errors
func Validate(s interface{}) map[string]string {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	errors := make(map[string]string)
	for _, err := range err.(validator.ValidationErrors) {
		field := err.Field()
		switch err.Tag() {
		case "required":
			errors[field] = "This field is required"
		case "email":
			errors[field] = "Invalid email format"
		case "min":
			errors[field] = "Value is too short (min: " + err.Param() + ")"
		case "max":
			errors[field] = "Value is too long (max: " + err.Param() + ")"
		case "gte":
			errors[field] = "Value must be at least " + err.Param()
		case "lte":
			errors[field] = "Value must be at most " + err.Param()
		case "url":
			errors[field] = "Invalid URL format"
		case "uuid":
			errors[field] = "Invalid UUID"
		case "dive":
			errors[field] = "Invalid list item"
		case "tier":
			errors[field] = "Invalid tier. Must be: FRIEND, CLOSE_FRIEND or SPECIAL"
		case "visibility_label":
			errors[field] = "Invalid visibility. Must be: FRIENDS, CLOSE_FRIENDS_ONLY or SPECIAL_ONLY"
		default:
			errors[field] = "Invalid value"
		}
	}

	return errors
}
