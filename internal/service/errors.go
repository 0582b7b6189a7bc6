package service

import "fmt"

type Code string

const (
	CodeValidation   Code = "VALIDATION_ERROR"
	CodeMembership   Code = "MEMBERSHIP_ERROR"
	CodeClosedDay    Code = "CLOSED_DAY"
	CodeOutsideHours Code = "OUTSIDE_OPERATING_HOURS"
	CodeNotFound     Code = "NOT_FOUND"
	CodeForbidden    Code = "FORBIDDEN"
	CodeUnauthorized Code = "UNAUTHORIZED"
)

const (
	ErrMsgMissingFields     = "Missing required fields"
	ErrMsgEndBeforeStart    = "End time must be after start time"
	ErrMsgStartInPast       = "Start time must be in the future"
	ErrMsgBadPeople         = "numberOfPeople must be at least 1"
	ErrMsgBadOffset         = "timezoneOffset must be between -840 and 840 minutes"
	ErrMsgFacilityNotFound  = "Facility not found"
	ErrMsgHouseholdNotFound = "Household not found"
	ErrMsgWrongBuilding     = "Household does not belong to the facility's building"
	ErrMsgNotMember         = "You are not a member of this household"
	ErrMsgClosedDay         = "Facility is closed on this day"
	ErrMsgOutsideHours      = "Requested time is outside operating hours"
	ErrMsgInvalidCreds      = "invalid credentials"
)

// Error is a failure the caller can act on. Anything else returned by a
// service is unexpected.
type Error struct {
	Code    Code
	Message string
	Details string
}

func (e *Error) Error() string {
	if e.Details == "" {
		return e.Message
	}
	return e.Message + ": " + e.Details
}

func NewValidation(message string) *Error {
	return &Error{Code: CodeValidation, Message: message}
}

func NewValidationf(format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

func NewMembership(message string) *Error {
	return &Error{Code: CodeMembership, Message: message}
}

func NewNotFound(message string) *Error {
	return &Error{Code: CodeNotFound, Message: message}
}

func NewForbidden(message string) *Error {
	return &Error{Code: CodeForbidden, Message: message}
}

func NewUnauthorized(message string) *Error {
	return &Error{Code: CodeUnauthorized, Message: message}
}
