package provider

import (
	"fmt"

	"readingroom/pkg/types"
)

// Gateway errors. Both wrap the upstream category.
var (
	ErrGatewayStatus   = fmt.Errorf("%w: provider gateway returned an error status", types.ErrUpstream)
	ErrGatewayResponse = fmt.Errorf("%w: provider gateway returned an unreadable response", types.ErrUpstream)
)
