package shortener

import "errors"

var (
	ErrNotFound            = errors.New("link not found")
	ErrExpired             = errors.New("link expired")
	ErrCodeTaken           = errors.New("code already in use")
	ErrInvalidCode         = errors.New("invalid code")
	ErrInvalidExpiryPeriod = errors.New("unrecognized expiry period")
	ErrEmptyDestination    = errors.New("destination must not be empty")
	ErrCodeSpaceExhausted  = errors.New("could not allocate a unique code")
	ErrStorageUnavailable  = errors.New("storage unavailable")
)
