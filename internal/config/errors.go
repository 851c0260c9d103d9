package config

import "errors"

var (
	ErrUnknownParameter = errors.New("unknown parameter")
	ErrValueTooLarge    = errors.New("value does not fit the parameter")
)
