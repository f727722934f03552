package errors

import "fmt"

var (
	// Rejected before any side effect, reported to the sender only.
	ErrValidation = fmt.Errorf("validation failed")
	ErrForbidden  = fmt.Errorf("forbidden")

	// Storage unreachable or write rejected. Retry is the client's call.
	ErrPersistence = fmt.Errorf("persistence failure")

	ErrNotFound            = fmt.Errorf("not found")
	ErrDuplicateConnection = fmt.Errorf("connection already registered")
	ErrConnClosed          = fmt.Errorf("connection closed")
	ErrSlowConsumer        = fmt.Errorf("outbound buffer full")

	ErrWorkerPanic         = fmt.Errorf("worker panic")
	ErrPermanentDisconnect = fmt.Errorf("reconnect attempts exhausted")
)
