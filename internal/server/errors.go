package server

import "errors"

// Sentinel errors for the mutation and authorization paths. Handlers map
// these onto HTTP statuses; everything else is a 500.
var (
	ErrUnauthorized  = errors.New("UNAUTHORIZED: Missing or invalid credential")
	ErrPixelNotFound = errors.New("PIXEL_NOT_FOUND: No pixel at that position")
	ErrUserExists    = errors.New("USER_EXISTS: Email already registered")
	ErrEmailInvalid  = errors.New("EMAIL_INVALID: Not a usable email address")
)
