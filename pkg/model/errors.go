package model

import (
	"context"
	"errors"
)

// Sentinel errors that providers wrap their native failures with.
var (
	ErrTransient    = errors.New("transient provider failure")
	ErrUnauthorized = errors.New("provider authorization failed")
	ErrInvalid      = errors.New("provider rejected request")
)

// ErrorKind classifies a provider failure.
type ErrorKind string

const (
	KindNone         ErrorKind = ""
	KindTransient    ErrorKind = "transient"
	KindUnauthorized ErrorKind = "unauthorized"
	KindInvalid      ErrorKind = "invalid"
	KindUnknown      ErrorKind = "unknown"
)

// KindOf returns the kind of err. Deadline and cancellation errors count as transient.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrTransient),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return KindTransient
	case errors.Is(err, ErrInvalid):
		return KindInvalid
	default:
		return KindUnknown
	}
}
