package proxy

import (
	"context"
	"errors"
	"fmt"

	"readingroom/pkg/types"
)

// ErrNoCredentialSource is returned when a call names neither a session nor a key
var ErrNoCredentialSource = fmt.Errorf("%w: a session code or explicit key is required", types.ErrUnprocessable)

// ErrMalformedMaterial is returned when generated tasks or word details have the wrong JSON shape
var ErrMalformedMaterial = fmt.Errorf("%w: provider returned malformed material", types.ErrUpstream)

// upstreamError folds a provider failure into the upstream category.
// Timeouts keep their own sentinel so the HTTP layer can answer 504.
func upstreamError(kind string, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %s", types.ErrUpstreamTimeout, kind)
	case errors.Is(err, types.ErrUpstream):
		return err
	default:
		return fmt.Errorf("%w: %s: %v", types.ErrUpstream, kind, err)
	}
}
