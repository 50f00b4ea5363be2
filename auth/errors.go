package auth

import "errors"

// Authentication errors
var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrExpiredToken       = errors.New("token has expired")
	ErrInvalidToken       = errors.New("invalid token")
	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("user already exists")
	ErrWeakPassword       = errors.New("password does not meet requirements")
	ErrEmptyPassword      = errors.New("password cannot be empty")
	ErrPasswordTooShort   = errors.New("password is too short")
	ErrInvalidEmail       = errors.New("invalid email format")
	ErrInvalidAPIKey      = errors.New("invalid api key")
	ErrSelfDelete         = errors.New("cannot delete your own account")
)
