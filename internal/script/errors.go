package script

import (
	"errors"
	"fmt"
)

// Engine errors.
var (
	ErrFunctionNotFound = errors.New("script: function not found")
	ErrEngineClosed     = errors.New("script: engine closed")
)

// Error wraps a Lua load or runtime error with where it happened.
type Error struct {
	Source string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("script: %s: %v", e.Source, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
