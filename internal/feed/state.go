package feed

import (
	"context"
	"errors"
	"time"
)

// Status is the lifecycle phase of a feed.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// ErrorKind classifies fetch failures.
type ErrorKind string

const (
	NetworkError ErrorKind = "network"
	ServerError  ErrorKind = "server"
	DecodeError  ErrorKind = "decode"
)

// ErrorInfo is the recorded form of a failed fetch.
type ErrorInfo struct {
	Kind       ErrorKind
	Message    string
	StatusCode int
	At         time.Time
}

func (e ErrorInfo) Error() string {
	return string(e.Kind) + ": " + e.Message
}

// State is the latest settled view of one feed. Values are copied in and out
// of the Store so readers never share memory with writers.
type State struct {
	Status        Status
	LastValue     any
	LastError     *ErrorInfo
	LastUpdatedAt time.Time
}

// HasValue reports whether the feed has succeeded at least once.
func (s State) HasValue() bool {
	return !s.LastUpdatedAt.IsZero()
}

// Loading returns the in-flight form of s, keeping previous data.
func (s State) Loading() State {
	s.Status = StatusLoading
	return s
}

// Succeeded returns the state after a successful fetch.
func (s State) Succeeded(value any, at time.Time) State {
	return State{
		Status:        StatusSuccess,
		LastValue:     value,
		LastUpdatedAt: at,
	}
}

// Failed returns the state after a failed fetch. LastValue and LastUpdatedAt are kept.
func (s State) Failed(info *ErrorInfo) State {
	s.Status = StatusError
	s.LastError = info
	return s
}

type kinded interface {
	Kind() ErrorKind
}

type statusCoded interface {
	StatusCode() int
}

// Classify converts a fetch error into ErrorInfo. Errors that carry no kind,
// including context deadlines and cancellation, are treated as network errors.
func Classify(err error, at time.Time) *ErrorInfo {
	if err == nil {
		return nil
	}
	info := &ErrorInfo{Kind: NetworkError, Message: err.Error(), At: at}

	var k kinded
	if errors.As(err, &k) {
		info.Kind = k.Kind()
	}
	var sc statusCoded
	if errors.As(err, &sc) {
		info.StatusCode = sc.StatusCode()
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		info.Kind = NetworkError
	}
	return info
}
