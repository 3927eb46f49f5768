package main

import (
	"errors"
	"fmt"
)

var (
	ErrConfig = errors.New("invalid configuration")

	ErrAuthRequestFailed = errors.New("login request failed")
	ErrTokenNotFound     = errors.New("no session cookie found in response headers")

	ErrFetchRequestFailed = errors.New("schedule request failed")
	ErrDecodeResponse     = errors.New("unexpected schedule response shape")

	// ErrNoSlots means the provider returned no working hours or no events for the requested day.
	ErrNoSlots         = errors.New("no slots for the requested day")
	ErrAmbiguousDay    = errors.New("schedule contains more than one day")
	ErrInvalidInterval = errors.New("invalid interval")

	ErrBookingRequestFailed = errors.New("booking request failed")
)

// StatusError is returned when the provider answers with a non-2xx status.
type StatusError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %v (status %d)", e.Op, e.Err, e.StatusCode)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}
