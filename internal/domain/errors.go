package domain

import "fmt"

// ErrorCode is the machine-readable code carried on every failure response.
type ErrorCode string

const (
	CodeValidation           ErrorCode = "VALIDATION_ERROR"
	CodeSessionNotFound      ErrorCode = "SESSION_NOT_FOUND"
	CodePatientNotFound      ErrorCode = "PATIENT_NOT_FOUND"
	CodeProtocolNotFound     ErrorCode = "PROTOCOL_NOT_FOUND"
	CodeDuplicateSession     ErrorCode = "DUPLICATE_SESSION"
	CodeVideoAlreadyUploaded ErrorCode = "VIDEO_ALREADY_UPLOADED"
	CodeSessionNotRetriable  ErrorCode = "SESSION_NOT_RETRIABLE"
	CodeInternal             ErrorCode = "INTERNAL_ERROR"
)

// ConflictInfo identifies the existing resource on a conflict so the caller
// can switch to a resume/check-status flow instead of retrying blind.
type ConflictInfo struct {
	SessionID string        `json:"sessionId"`
	Status    SessionStatus `json:"status"`
}

// Error is the classified form every collaborator failure takes before it
// reaches a caller. Only INTERNAL_ERROR surfaces as an opaque 500.
type Error struct {
	Code     ErrorCode
	Message  string
	Conflict *ConflictInfo
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewValidationError(msg string) *Error {
	return &Error{Code: CodeValidation, Message: msg}
}

func NewNotFoundError(code ErrorCode, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

func NewConflictError(code ErrorCode, msg string, info ConflictInfo) *Error {
	return &Error{Code: code, Message: msg, Conflict: &info}
}

func NewInternalError(msg string) *Error {
	return &Error{Code: CodeInternal, Message: msg}
}
