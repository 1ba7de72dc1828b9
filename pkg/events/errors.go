package events

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyFrame    = errors.New("empty frame")
	ErrUnknownOpCode = errors.New("unknown opcode")
	ErrMissingFields = errors.New("missing fields")
)

// DecodeError reports a frame that could not be turned into a point patch.
// Whatever scoping fields could still be read are kept so the caller can
// narrow the revalidation it falls back to.
type DecodeError struct {
	Table     Table
	Op        Op
	ChannelId string
	PostId    string
	CommentId string
	Err       error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s %s: %v", e.Table, e.Op, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
