package feedback

import (
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation   Code = "VALIDATION_ERROR"
	CodeNotFound     Code = "NOT_FOUND"
	CodeUnknownState Code = "UNKNOWN_STATE"
)

// Error terminates a request. Backend and dispatch failures never surface
// as an Error; they are absorbed into the response.
type Error struct {
	Code    Code
	Message string
	Err     error

	// ZoneID and SessionID echo the normalized request once it is known.
	ZoneID    string
	SessionID string
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus maps the code to a response status.
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUnknownState:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func validationError(msg string) *Error {
	return &Error{Code: CodeValidation, Message: msg}
}

func notFound(format string, args ...any) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) withRequest(r Request) *Error {
	e.ZoneID = r.ZoneID
	e.SessionID = r.SessionID
	return e
}
