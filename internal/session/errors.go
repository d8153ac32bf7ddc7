package session

import "errors"

// Registry error types
var (
	ErrCodeSpaceExhausted = errors.New("could not generate a unique session code")
	ErrRandomSource       = errors.New("random source failed")
)
