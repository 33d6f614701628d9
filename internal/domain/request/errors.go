package request

import "errors"

// ErrValidation marks a malformed or incomplete inbound request.
var ErrValidation = errors.New("invalid request")
