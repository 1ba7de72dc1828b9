package networks

import "errors"

var ErrInvalidNetwork = errors.New("invalid network")
