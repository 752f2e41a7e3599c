package bearer

import "errors"

// ErrMalformedToken is returned when a token fails structural decoding.
// It is distinct from "session not found" so callers can short-circuit
// before touching storage.
var ErrMalformedToken = errors.New("malformed token")
