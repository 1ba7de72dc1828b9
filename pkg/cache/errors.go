package cache

import "errors"

var (
	ErrFeedNotLoaded    = errors.New("feed not loaded")
	ErrTargetNotLoaded  = errors.New("target not loaded")
	ErrMutationInFlight = errors.New("mutation already in flight")
	ErrUnknownMutation  = errors.New("unknown or settled mutation")
)
