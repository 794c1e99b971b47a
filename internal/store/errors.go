package store

import "errors"

var (
	// ErrSessionNotFound indicates the session row could not be found.
	ErrSessionNotFound = errors.New("session not found")

	// ErrPatientNotFound indicates the patient is absent or soft-deleted.
	ErrPatientNotFound = errors.New("patient not found")

	// ErrProtocolNotFound indicates no matching active protocol exists.
	ErrProtocolNotFound = errors.New("protocol not found")
)
