package posts

import "errors"

var (
	ErrPostNotFound          = errors.New("post not found")
	ErrCommentNotFound       = errors.New("comment not found")
	ErrReactionAlreadyExists = errors.New("reaction already exists")
	ErrReactionNotFound      = errors.New("reaction not found")
)
