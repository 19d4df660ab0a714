package models

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation error")
	ErrDuplicate    = errors.New("already exists")
	ErrConflict     = errors.New("concurrent update conflict")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
	// ErrPersistence hides storage causes from callers; the cause is logged where it happens.
	ErrPersistence = errors.New("persistence failure")
)
