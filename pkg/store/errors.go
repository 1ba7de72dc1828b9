package store

import "errors"

var (
	ErrInvalidDate = errors.New("invalid date")
	ErrNotAuthor   = errors.New("not the author")
)
