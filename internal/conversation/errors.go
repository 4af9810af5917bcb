package conversation

import (
	"errors"

	"github.com/wolfman30/isp-support-bot/internal/billing"
)

var (
	// ErrValidation marks an inbound turn that cannot be processed as given.
	ErrValidation = errors.New("conversation: invalid input")
	// ErrNoContent means a lookup succeeded but produced nothing usable to deliver.
	ErrNoContent = errors.New("conversation: nothing to deliver")

	ErrNotFound              = billing.ErrNotFound
	ErrDownstreamUnavailable = billing.ErrDownstreamUnavailable
)
