package snapshot

import "errors"

var (
	ErrSnapshot = errors.New("snapshot failed")
	ErrPattern  = errors.New("invalid exclusion pattern")
)
