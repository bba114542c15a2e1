package domain

import "errors"

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("wrong password")
	ErrUserExists         = errors.New("user already exists")

	ErrPalletNotFound    = errors.New("pallet not found")
	ErrPalletUnavailable = errors.New("pallet is not available")
	ErrNothingHeld       = errors.New("no pallet held by user")
	ErrAlreadyHolding    = errors.New("user already holds a pallet")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInconsistentState = errors.New("inconsistent pallet state")

	ErrVersionConflict = errors.New("record modified concurrently, retry")
	ErrBusy            = errors.New("pallet is busy, try again")
)

// ErrInvalidInput marks a request that is structurally valid but semantically unusable.
var ErrInvalidInput = errors.New("invalid input")
