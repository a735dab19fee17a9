package domain

import "errors"

var (
	ErrStreamNotFound  = errors.New("stream not found")
	ErrQuotaExceeded   = errors.New("concurrent stream quota exceeded")
	ErrInvalidState    = errors.New("operation not allowed in current stream state")
	ErrInvalidInput    = errors.New("invalid input")
	ErrAuthFailure     = errors.New("authentication failed")
	ErrSessionNotFound = errors.New("session not found")
	ErrEngineClosed    = errors.New("stream engine closed")
)
