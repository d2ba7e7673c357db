package domain

import "errors"

var (
	// ErrUserNotFound is returned when a user lookup finds no row
	ErrUserNotFound = errors.New("user not found")

	// ErrUserExists is returned when creating a user whose username is taken
	ErrUserExists = errors.New("user already exists")

	// ErrGameNotFound is returned when a tracked game lookup finds no row
	ErrGameNotFound = errors.New("game not found")

	// ErrInvalidCredentials is returned when authentication fails
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrLoginLocked is returned when an IP exceeded the failed-login budget
	ErrLoginLocked = errors.New("too many login attempts")

	// ErrSelfShare is returned when a user tries to share a library with themselves
	ErrSelfShare = errors.New("cannot share a library with yourself")

	// ErrNotShared is returned when accessing a library that was not shared
	// with the requesting user
	ErrNotShared = errors.New("library not shared with you")

	// ErrDirectoryNotConfigured is returned when a directory operation is
	// requested but the directory settings are incomplete
	ErrDirectoryNotConfigured = errors.New("directory service not configured")

	// ErrPriceNotFound is returned when the pricing provider has no price for
	// an app id
	ErrPriceNotFound = errors.New("price not available")
)
