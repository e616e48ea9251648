package domain

import "errors"

var (
	ErrInvalidAppID            = errors.New("invalid app id given")
	ErrForbiddenKey            = errors.New("config key is protected")
	ErrNotFound                = errors.New("not found")
	ErrAppImageNotFound        = errors.New("app image not found")
	ErrIconReplacementDisabled = errors.New("icon replacement is disabled")
)
