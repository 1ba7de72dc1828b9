package feed

import "errors"

var (
	ErrFeedNotLoaded = errors.New("feed not loaded")
	ErrLoadInFlight  = errors.New("page load already in flight")
)
