package mutations

import (
	"errors"

	"github.com/meower-media/feedsync/pkg/cache"
)

var (
	// ErrWriteFailed wraps the transport error of a write whose optimistic
	// patch was rolled back. The user may resubmit.
	ErrWriteFailed = errors.New("write failed, change reverted")

	ErrMutationInFlight = cache.ErrMutationInFlight
	ErrTargetNotLoaded  = cache.ErrTargetNotLoaded
	ErrFeedNotLoaded    = cache.ErrFeedNotLoaded
)
