package hub

import (
	"errors"
	"fmt"

	"readingroom/pkg/types"
)

// Hub lifecycle errors
var (
	ErrHubAlreadyRunning = errors.New("hub is already running")
	ErrHubNotRunning     = errors.New("hub is not running")
)

// ErrConnectionGone is returned when the acting connection closed before the operation ran
var ErrConnectionGone = fmt.Errorf("%w: connection is no longer open", types.ErrNotFound)
