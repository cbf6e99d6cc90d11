package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/GetStream/chatsync/api/validator"
)

// A NetworkError is returned when a request never produced an HTTP response,
// for example because of a refused connection or a timeout.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// An AuthError is returned for 401 responses and for failed logins. Err holds
// the underlying cause when there is one.
type AuthError struct {
	Status  int
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "unauthorized"
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *AuthError) Unwrap() error { return e.Err }

// A ValidationError is returned for 4xx responses other than 401 and for
// payloads rejected before they are sent. Status is zero for local
// rejections.
type ValidationError struct {
	Status  int
	Message string
	Fields  []validator.FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.String()
	}
	return e.Message + ": " + strings.Join(parts, ", ")
}

// A ServerError is returned for 5xx responses and for response bodies that
// do not match the expected schema.
type ServerError struct {
	Status  int
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error (%d): %s", e.Status, e.Message)
}

// A RefreshError is returned when a change was accepted but the follow-up
// read of conversation ID failed.
type RefreshError struct {
	ID  string
	Err error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("refresh conversation %s: %v", e.ID, e.Err)
}

func (e *RefreshError) Unwrap() error { return e.Err }

// StatusOf returns the HTTP status carried by err, or 0 if err did not come
// from an HTTP response.
func StatusOf(err error) int {
	var (
		authErr   *AuthError
		valErr    *ValidationError
		serverErr *ServerError
	)
	switch {
	case errors.As(err, &authErr):
		return authErr.Status
	case errors.As(err, &valErr):
		return valErr.Status
	case errors.As(err, &serverErr):
		return serverErr.Status
	}
	return 0
}

// responseError maps an error response onto the error taxonomy. The body is
// expected to look like {"error": "..."} but plain text is accepted too.
func responseError(status int, body []byte) error {
	var payload struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		msg = payload.Error
	}
	if msg == "" {
		msg = http.StatusText(status)
	}

	switch {
	case status == http.StatusUnauthorized:
		return &AuthError{Status: status, Message: msg}
	case status >= 400 && status < 500:
		return &ValidationError{Status: status, Message: msg}
	default:
		return &ServerError{Status: status, Message: msg}
	}
}

func invalid(msg string, fields []validator.FieldError) error {
	return &ValidationError{Message: msg, Fields: fields}
}
