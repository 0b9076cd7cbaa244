package dao

import "errors"

// Sentinel errors shared by DAO implementations so that callers can detect
// conditions via errors.Is instead of string comparison.
var (
	// ErrNotFound is returned when the requested entity does not exist.
	ErrNotFound = errors.New("dao: not found")

	// ErrInvalidID indicates an empty or otherwise unusable key.
	ErrInvalidID = errors.New("dao: invalid id")

	// ErrNilEntity is returned on an attempt to persist a nil pointer.
	ErrNilEntity = errors.New("dao: nil entity")
)
