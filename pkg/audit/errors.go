package audit

import "errors"

var (
	// ErrEventValidation indicates event validation failed
	ErrEventValidation = errors.New("event validation failed")

	// ErrBufferFull indicates the async buffer is full and the event was dropped
	ErrBufferFull = errors.New("async buffer is full")

	// ErrLoggerClosed indicates the event arrived after Close
	ErrLoggerClosed = errors.New("audit logger is closed")
)
