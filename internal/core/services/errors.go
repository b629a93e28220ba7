package services

import "errors"

// Worker errors
var (
	ErrWorkerNotFound     = errors.New("worker: not found")
	ErrWorkerInvalidInput = errors.New("worker: invalid input")
)

// History errors
var (
	ErrHistoryNotFound     = errors.New("history: not found")
	ErrHistoryInvalidInput = errors.New("history: invalid input")
)

// Feed errors
var (
	ErrFeedUnknownCommand = errors.New("feed: unknown command")
	ErrFeedSessionClosed  = errors.New("feed: session closed")
)
