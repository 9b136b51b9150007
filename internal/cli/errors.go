package cli

import "errors"

var ErrJobsFailed = errors.New("jobs failed")
