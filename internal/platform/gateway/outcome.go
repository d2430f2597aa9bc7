package gateway

import (
	"fmt"
)

// Kind classifies a single transport attempt.
type Kind int

const (
	KindSuccess Kind = iota
	KindRetriable
	KindAbortable
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindRetriable:
		return "retriable"
	case KindAbortable:
		return "abortable"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Outcome is the result of one attempt. Response is nil when the request
// never produced one (connection failure, timeout).
type Outcome struct {
	Kind     Kind
	Response *Response
	Cause    error
}

func success(resp *Response) Outcome {
	return Outcome{Kind: KindSuccess, Response: resp}
}

func retriable(resp *Response, cause error) Outcome {
	return Outcome{Kind: KindRetriable, Response: resp, Cause: cause}
}

func abortable(resp *Response, cause error) Outcome {
	return Outcome{Kind: KindAbortable, Response: resp, Cause: cause}
}

// RetriableError is returned when every allowed attempt failed with a
// retriable outcome and the caller asked for failure on error.
type RetriableError struct {
	Attempts int
	Response *Response
	Cause    error
}

func (e *RetriableError) Error() string {
	return fmt.Sprintf("external call failed after %d attempts: %v", e.Attempts, e.Cause)
}

func (e *RetriableError) Unwrap() error { return e.Cause }

// AbortableError is returned for a non-retriable failure when the caller
// asked for failure on error.
type AbortableError struct {
	Response *Response
	Cause    error
}

func (e *AbortableError) Error() string {
	return fmt.Sprintf("external call aborted: %v", e.Cause)
}

func (e *AbortableError) Unwrap() error { return e.Cause }

// StatusError is the cause recorded for a non-2xx response.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.URL, e.StatusCode)
}
