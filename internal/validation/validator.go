// Storepulse - Multi-Tenant Content Metrics Aggregation
// Copyright 2026 Storepulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/storepulse/storepulse

// Package validation wraps go-playground/validator v10 behind a thread-safe
// singleton with storepulse-specific rules. The custom "store_id" tag
// enforces the tenant identifier shape used across the API and database.
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// storeIDPattern is the canonical tenant identifier: 1-50 characters of
// letters, digits, underscore, or hyphen.
var storeIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,50}$`)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// FieldError is one field's validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

// RequestError aggregates the field failures of one request payload.
type RequestError struct {
	Fields []FieldError
}

func (e *RequestError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Message)
	}
	return strings.Join(msgs, "; ")
}

// Validator returns the singleton instance. Struct metadata is cached, so
// sharing one instance is both safe and faster.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())

		// Tag "store_id": the tenant identifier shape.
		_ = validate.RegisterValidation("store_id", func(fl validator.FieldLevel) bool {
			return storeIDPattern.MatchString(fl.Field().String())
		})
	})
	return validate
}

// ValidateStruct validates v's `validate` tags, returning a *RequestError
// with per-field messages on failure.
func ValidateStruct(v any) error {
	err := Validator().Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	out := &RequestError{Fields: make([]FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Message: fieldMessage(fe),
		})
	}
	return out
}

// ValidStoreID reports whether id is a well-formed store identifier.
func ValidStoreID(id string) bool {
	return storeIDPattern.MatchString(id)
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "store_id":
		return fmt.Sprintf("%s must be 1-50 characters of letters, digits, underscore, or hyphen", fe.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
	}
}
