// Package repository holds the errors shared by the storage backends.
package repository

import "errors"

var (
	// ErrAccountExists is returned when registering an address twice.
	ErrAccountExists = errors.New("account already exists")
	// ErrAccountNotFound is returned by account lookups for unknown addresses.
	ErrAccountNotFound = errors.New("account not found")
	// ErrRefreshTokenNotFound is returned when a refresh token is unknown or
	// was already used.
	ErrRefreshTokenNotFound = errors.New("refresh token not found")
)
