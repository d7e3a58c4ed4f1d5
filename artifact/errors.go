package artifact

import "errors"

// ErrNotFound is returned when no artifact (or no such version) exists for
// the requested session / filename pair.
var ErrNotFound = errors.New("artifact not found")
