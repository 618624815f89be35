package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflicting transition")
	ErrInvalidTarget    = errors.New("invalid target status")
	ErrInvalidRequest   = errors.New("invalid request")
	ErrTransientStorage = errors.New("transient storage failure")
	ErrAmountMismatch   = errors.New("amount mismatch")
	ErrUnauthorized     = errors.New("unauthorized")
)

// ConflictError is returned when a donation already holds a terminal status
// different from the one requested.
type ConflictError struct {
	DonationID string
	Current    DonationStatus
	Requested  DonationStatus
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("donation %s is %s, cannot move to %s", e.DonationID, e.Current, e.Requested)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}
