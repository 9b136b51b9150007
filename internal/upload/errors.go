package upload

import "errors"

var ErrUpload = errors.New("context upload failed")
