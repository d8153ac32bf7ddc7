package router

import (
	"fmt"

	"readingroom/pkg/types"
)

// Router-specific errors
var (
	ErrRateLimitExceeded = fmt.Errorf("%w: too many events from this connection", types.ErrRateLimited)
	ErrMissingEvent      = fmt.Errorf("%w: event name is required", types.ErrInvalidPayload)
)
