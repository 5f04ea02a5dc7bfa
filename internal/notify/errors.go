package notify

import "errors"

var (
	// ErrDelivery is returned when a message could not be handed to the transport.
	ErrDelivery = errors.New("notify: delivery failed")
)
