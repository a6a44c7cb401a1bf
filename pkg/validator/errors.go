package validator

import "errors"

var (
	ErrEmptyURL      = errors.New("URL cannot be empty")
	ErrInvalidURL    = errors.New("invalid URL format")
	ErrInvalidScheme = errors.New("URL must use http or https scheme")
	ErrInvalidHost   = errors.New("URL must have a valid host")
	ErrInvalidPath   = errors.New("path must start with /")
)
