// Package utils holds small shared helpers.
package utils

import (
	"fmt"
	"strings"

	apperrors "chatflow-backend/pkg/errors"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateStruct runs the struct's validation tags and converts
// failures into one validation error listing every bad field.
func ValidateStruct(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	validationErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return apperrors.NewValidationError(err.Error())
	}

	details := make(map[string]interface{}, len(validationErrs))
	fields := make([]string, 0, len(validationErrs))
	for _, fe := range validationErrs {
		fields = append(fields, fe.Field())
		details[fe.Field()] = fmt.Sprintf("failed %s validation", fe.Tag())
	}

	return apperrors.NewValidationError(
		fmt.Sprintf("invalid fields: %s", strings.Join(fields, ", ")),
	).WithDetails(details)
}
