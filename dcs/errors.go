package dcs

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTime reports a value that could not be understood as a
	// date or date-time.
	ErrInvalidTime = errors.New("dcs: unrecognized date or date-time value")

	// ErrInvalidRange reports window parameters that cannot describe a
	// non-empty time range.
	ErrInvalidRange = errors.New("dcs: invalid time range")

	// ErrInvalidPeriod reports an unsupported integration period.
	ErrInvalidPeriod = errors.New("dcs: invalid integration period")
)

// TransportError wraps a network-level failure: connection refused,
// timeout, canceled context, or an exhausted rate-limit wait budget.
// These are never retried by the client.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("dcs: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RequestError is a non-success, non-rate-limit response from the
// server, carrying the HTTP status and the server's message.
type RequestError struct {
	Status  int
	Message string
}

func (e *RequestError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("dcs: server returned status %d", e.Status)
	}
	return fmt.Sprintf("dcs: server returned status %d: %s", e.Status, e.Message)
}

// ChannelError reports a register or virtual meter identifier that is
// malformed, or that the server does not know or will not expose to
// the signed-in user. Status is zero when the identifier failed local
// parsing.
type ChannelError struct {
	Channel Channel
	Status  int
}

func (e *ChannelError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("dcs: malformed channel identifier %q", string(e.Channel))
	}
	return fmt.Sprintf("dcs: channel %q unknown or not authorized (status %d)", string(e.Channel), e.Status)
}

// MalformedResponseError reports a response body that could not be
// decoded into the expected shape.
type MalformedResponseError struct {
	Err error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("dcs: malformed response body: %v", e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }
