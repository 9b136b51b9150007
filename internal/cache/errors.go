package cache

import "errors"

var (
	ErrInvalidName = errors.New("invalid volume name")
	ErrVolume      = errors.New("volume unavailable")
)
