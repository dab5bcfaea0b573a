package api

import (
	"errors"
	"fmt"
)

// Kind classifies a backend call failure.
type Kind int

const (
	// KindTransport means the backend was unreachable.
	KindTransport Kind = iota + 1
	// KindServer means the backend answered with a non-success status.
	KindServer
	// KindData means the response was missing an expected field or could
	// not be parsed.
	KindData
)

// String returns a human-readable kind name.
func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindServer:
		return "server"
	case KindData:
		return "data"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Error is the uniform failure descriptor returned by every client call.
// Callers branch on Kind rather than parsing messages.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s failure: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf extracts the failure kind from an error chain, or 0 when the error
// did not originate from a backend call.
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return 0
}

func transportErr(op string, err error) error {
	return &Error{Kind: KindTransport, Op: op, Err: err}
}

func serverErr(op string, status int, body []byte) error {
	return &Error{Kind: KindServer, Op: op, Err: fmt.Errorf("HTTP error %d: %s", status, string(body))}
}

func dataErr(op string, err error) error {
	return &Error{Kind: KindData, Op: op, Err: err}
}
