package users

import "errors"

var (
	ErrInvalidTokenFormat    = errors.New("invalid token format")
	ErrInvalidTokenSignature = errors.New("invalid token signature")
	ErrTokenExpired          = errors.New("token expired")
	ErrMissingSubject        = errors.New("token has no subject")
)
