package auth

import "errors"

var (
	ErrNotFound           = errors.New("auth: not found")
	ErrAlreadyExists      = errors.New("auth: already exists")
	ErrInvalidInput       = errors.New("auth: invalid input")
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrLocked             = errors.New("auth: account temporarily locked")
	ErrInvalidToken       = errors.New("auth: invalid token")
	ErrSessionExpired     = errors.New("auth: session expired")
)
