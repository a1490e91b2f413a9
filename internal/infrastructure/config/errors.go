package config

import "errors"

// Sentinel errors for configuration loading and validation.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrMissingRequired is returned when a required setting has no value.
	ErrMissingRequired = errors.New("config: missing required value")

	// ErrInvalidValue is returned when a setting is present but out of range.
	ErrInvalidValue = errors.New("config: invalid value")

	// ErrUnknownRegion is returned when the region selector has no endpoint mapping.
	ErrUnknownRegion = errors.New("config: unknown region")
)
