// Package apierr is the error taxonomy shared by the HTTP and stream edges.
//
// Every failure that reaches a client is one of three kinds: a validation
// failure on the request payload, a service failure with a user facing
// message, or an unexpected fault whose cause is logged and never returned.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// UnexpectedMessage is the only text a client ever sees for an unexpected fault.
const UnexpectedMessage = "Произошла не предвиденная ошибка. Попробуйте позже."

// Kind classifies an Error.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindService
	KindUnexpected
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindService:
		return "service"
	case KindUnexpected:
		return "unexpected"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Detail is one entry of the error detail list sent to clients.
type Detail struct {
	Loc  []string `json:"loc,omitempty"`
	Msg  string   `json:"msg"`
	Type string   `json:"type,omitempty"`
}

// Error is a classified failure.
type Error struct {
	Kind    Kind
	Status  int      // HTTP status for service failures
	Message string   // user facing message
	Details []Detail // field level details for validation failures
	Err     error    // cause, logged only
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Validation returns a validation failure carrying field level details.
func Validation(details ...Detail) *Error {
	return &Error{
		Kind:    KindValidation,
		Status:  http.StatusUnprocessableEntity,
		Message: "validation failed",
		Details: details,
	}
}

// Service returns a service failure with the default 400 status.
func Service(msg string) *Error {
	return ServiceStatus(http.StatusBadRequest, msg)
}

// ServiceStatus returns a service failure with an explicit HTTP status.
func ServiceStatus(status int, msg string) *Error {
	return &Error{Kind: KindService, Status: status, Message: msg}
}

// WithCause returns a copy of e carrying err as its logged cause.
func (e *Error) WithCause(err error) *Error {
	c := *e
	c.Err = err
	return &c
}

// Unexpected wraps an unclassified fault.
func Unexpected(err error) *Error {
	return &Error{
		Kind:    KindUnexpected,
		Status:  http.StatusInternalServerError,
		Message: UnexpectedMessage,
		Err:     err,
	}
}

// From classifies any error. A nil error stays nil, an *Error anywhere in the
// chain is returned as is, and everything else is unexpected.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return Unexpected(err)
}

// HTTPStatus maps the error to a response status.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindService:
		if e.Status == 0 {
			return http.StatusBadRequest
		}
		return e.Status
	default:
		return http.StatusInternalServerError
	}
}

// DetailList returns the detail entries sent to clients.
func (e *Error) DetailList() []Detail {
	switch e.Kind {
	case KindValidation:
		return e.Details
	case KindService:
		return []Detail{{Msg: e.Message}}
	default:
		return []Detail{{Msg: UnexpectedMessage}}
	}
}

// Stream close codes.
const (
	CloseNormal          = 1000
	ClosePolicyViolation = 1008
	CloseError           = 4000
	CloseServerFault     = 4005
)

// CloseCode maps the error to the code a job stream is closed with.
func (e *Error) CloseCode() int {
	switch e.Kind {
	case KindValidation, KindService:
		return CloseError
	default:
		return CloseServerFault
	}
}
