package events

import "errors"

var ErrSessionEnded = errors.New("session ended")
