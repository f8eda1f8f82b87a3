package campaign

import "errors"

// Sentinel errors for the campaign service layer.
var (
	ErrNotFound          = errors.New("campaign not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNotPending        = errors.New("campaign is not pending approval")
	ErrAlreadySending    = errors.New("campaign is already sending or sent")
	ErrValidation        = errors.New("campaign validation failed")
)
