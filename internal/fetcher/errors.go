package fetcher

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"tradewatch/internal/feed"
)

// Error is a classified transport failure.
type Error struct {
	kind   feed.ErrorKind
	status int
	Op     string
	Err    error
}

func (e *Error) Error() string {
	if e.status != 0 {
		return fmt.Sprintf("%s: engine error (%d): %v", e.Op, e.status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Kind reports the failure class.
func (e *Error) Kind() feed.ErrorKind { return e.kind }

// StatusCode returns the HTTP status for server errors, 0 otherwise.
func (e *Error) StatusCode() int { return e.status }

func networkError(op string, err error) error {
	return &Error{kind: feed.NetworkError, Op: op, Err: err}
}

func decodeError(op string, err error) error {
	return &Error{kind: feed.DecodeError, Op: op, Err: err}
}

type errorResponse struct {
	Detail  any    `json:"detail"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

func serverError(op string, status int, payload []byte) error {
	return &Error{kind: feed.ServerError, status: status, Op: op, Err: parseHTTPError(payload)}
}

func parseHTTPError(payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		switch d := apiErr.Detail.(type) {
		case string:
			if d != "" {
				return errors.New(d)
			}
		case nil:
		default:
			if raw, err := json.Marshal(d); err == nil {
				return errors.New(string(raw))
			}
		}
		if apiErr.Message != "" {
			return errors.New(apiErr.Message)
		}
		if apiErr.Error != "" {
			return errors.New(apiErr.Error)
		}
	}
	if body := strings.TrimSpace(string(payload)); body != "" {
		return errors.New(body)
	}
	return errors.New("empty response body")
}
