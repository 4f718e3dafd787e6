package controllers

import (
	"errors"
	"strings"

	"atmcore/apperrors"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// newValidator создает валидатор с проверками, специфичными для банкомата
func newValidator() *validator.Validate {
	validate := validator.New()

	// Сумма должна содержать не более двух знаков после запятой
	_ = validate.RegisterValidation("cents", func(fl validator.FieldLevel) bool {
		return decimal.NewFromFloat(fl.Field().Float()).Exponent() >= -2
	})

	return validate
}

// bindAndValidate разбирает JSON тело запроса и проверяет DTO
func bindAndValidate(c *gin.Context, validate *validator.Validate, dto interface{}) error {
	if err := c.ShouldBindJSON(dto); err != nil {
		return apperrors.Wrap(apperrors.KindValidation, "malformed request body", err)
	}
	if err := validate.Struct(dto); err != nil {
		var validationErrors validator.ValidationErrors
		if !errors.As(err, &validationErrors) {
			return apperrors.Wrap(apperrors.KindValidation, "invalid request", err)
		}

		var errorMessages []string
		for _, e := range validationErrors {
			switch e.Tag() {
			case "required":
				errorMessages = append(errorMessages, e.Field()+" is required")
			case "len":
				errorMessages = append(errorMessages, e.Field()+" must be exactly "+e.Param()+" digits")
			case "numeric":
				errorMessages = append(errorMessages, e.Field()+" must contain only digits")
			case "gte", "lte":
				errorMessages = append(errorMessages, e.Field()+" is out of range")
			case "cents":
				errorMessages = append(errorMessages, e.Field()+" must have at most 2 decimal places")
			default:
				errorMessages = append(errorMessages, e.Field()+" is invalid")
			}
		}
		return apperrors.New(apperrors.KindValidation, strings.Join(errorMessages, "; "))
	}
	return nil
}
