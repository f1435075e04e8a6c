package controller

import "errors"

// Controller-origin error taxonomy. The connection endpoint sends any error
// PlayerEvent returns to the sender as an error event, without classifying
// it; PlayerEvent itself turns DiscardedEvent into an empty event list, as
// it does ordinary no-ops.
var (
	ErrPlayerJoinRefused   = errors.New("player join refused")
	ErrGameOver            = errors.New("session already started or finished")
	ErrEventTypeNotDefined = errors.New("event type not defined")
	ErrInvalidMessage      = errors.New("invalid message payload")
	ErrInvalidOperation    = errors.New("invalid operation")
	ErrInvalidModeChoice   = errors.New("invalid mode choice")
	ErrDiscardedEvent      = errors.New("discarded event")
)
