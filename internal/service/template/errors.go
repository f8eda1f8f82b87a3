package template

import "errors"

var (
	// ErrNotFound is returned when no template matches the lookup.
	ErrNotFound = errors.New("template not found")

	// ErrValidation is returned when a template fails structural or
	// Liquid syntax validation.
	ErrValidation = errors.New("template validation failed")
)
