package bridge

import "errors"

// errors.go provides the sentinel error types for the bridge package
//
// error type checking:
//   an error can be checked if it is any of these using errors.Is(err, ErrType)

// used for the websocket remote
var (
	ErrRemoteClosed = errors.New("remote closed")
	ErrReadTimeout  = errors.New("read timed out")
	ErrAuthFailed   = errors.New("auth failed")
)

// used for session auth tokens
var (
	ErrMissingClaim = errors.New("missing claim in auth token")
)
