package scoring

import "errors"

// ErrResultNotFound means no finalized result exists for the session yet.
var ErrResultNotFound = errors.New("result not found")
