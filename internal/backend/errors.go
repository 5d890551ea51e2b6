package backend

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

// CodeNotFound is returned for single-row queries that matched no row (or
// more than one).
const CodeNotFound = "PGRST116"

// Error is an error response from the backend.
type Error struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Hint    string `json:"hint,omitempty"`
}

// Error returns the server message unchanged.
func (e *Error) Error() string {
	return e.Message
}

// UserMessage is the text shown to the user for this error.
func (e *Error) UserMessage() string {
	return e.Message
}

// IsNotFound reports whether err is a "no rows" response from a single-row query.
func IsNotFound(err error) bool {
	var be *Error
	return errors.As(err, &be) && be.Code == CodeNotFound
}

func decodeError(status int, body []byte) error {
	e := &Error{Status: status}
	if err := json.Unmarshal(body, e); err != nil || e.Message == "" {
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = http.StatusText(status)
		}
		e.Message = msg
	}
	return e
}
