package errs

import "errors"

var (
	ErrRecordNotFound   = errors.New("record not found")
	ErrMalformedMessage = errors.New("malformed message")
	ErrEndpointRemoved  = errors.New("endpoint removed")
)
