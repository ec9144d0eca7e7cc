package tracking

import "errors"

// ErrModelNotFound no registered version matches the request
var ErrModelNotFound = errors.New("model version not found")
