package prometheus

import "github.com/cockroachdb/errors"

var (
	ErrInvalidConfig = errors.New("prometheus: invalid config")
	ErrClientClosed  = errors.New("prometheus: client closed")
)
