package fetcher

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrEmptyEmoji   = errors.New("empty emoji")
)

// TransportError is a failed request: either the request never completed
// (Err set) or the server answered with an error status (Status and Type set).
type TransportError struct {
	Op     string
	Status int
	Type   string
	Fields map[string]string
	Err    error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprint(e.Op, ": ", e.Err)
	}
	return fmt.Sprint(e.Op, ": ", e.Status, " ", e.Type)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Temporary reports whether retrying the same request may succeed.
func (e *TransportError) Temporary() bool {
	return e.Err != nil || e.Status == 429 || e.Status >= 500
}
