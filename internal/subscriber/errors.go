package subscriber

import "errors"

// Domain errors for the subscriber package.
//
//	if errors.Is(err, subscriber.ErrStorage) {
//	    // registry could not be read or written
//	}
var (
	// ErrStorage is returned when the backing store cannot be loaded or saved.
	ErrStorage = errors.New("subscriber: storage failure")

	// ErrInvalidID is returned for a zero chat id.
	ErrInvalidID = errors.New("subscriber: invalid id")
)
