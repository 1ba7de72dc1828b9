package v0_rest

import "errors"

var (
	ErrBadRequest         = errors.New("badRequest")         // 400
	ErrInvalidDate        = errors.New("invalidDate")        // 400
	ErrUnsupportedMedia   = errors.New("unsupportedMedia")   // 400
	ErrUnauthorized       = errors.New("Unauthorized")       // 401
	ErrIPBlocked          = errors.New("ipBlocked")          // 403
	ErrMissingPermissions = errors.New("missingPermissions") // 403
	ErrNotFound           = errors.New("notFound")           // 404
	ErrReactionExists     = errors.New("reactionExists")     // 409
	ErrTooLarge           = errors.New("tooLarge")           // 413
	ErrRatelimited        = errors.New("tooManyRequests")    // 429
	ErrInternal           = errors.New("Internal")           // 500
)
