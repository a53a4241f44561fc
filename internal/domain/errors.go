package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidPayload  = errors.New("invalid payload")
	ErrQuotaExceeded   = errors.New("quota exceeded")
	ErrProviderFailure = errors.New("provider failure")
	ErrUnknownTarget   = errors.New("unknown render target")
)
