package gateway

import (
	"encoding/json"
	"fmt"
)

type requestOptions struct {
	body           []byte
	contentType    string
	headers        map[string]string
	username       string
	password       string
	basicAuth      bool
	raiseForStatus bool
	abortCheck     func(*Response) error
	err            error
}

// RequestOption customizes one call.
type RequestOption func(*requestOptions)

// WithJSON encodes v as the request body.
func WithJSON(v any) RequestOption {
	return func(o *requestOptions) {
		b, err := json.Marshal(v)
		if err != nil {
			o.err = fmt.Errorf("failed to encode request body: %w", err)
			return
		}
		o.body = b
		o.contentType = "application/json"
	}
}

func WithBasicAuth(username, password string) RequestOption {
	return func(o *requestOptions) {
		o.username = username
		o.password = password
		o.basicAuth = true
	}
}

func WithHeader(key, value string) RequestOption {
	return func(o *requestOptions) {
		if o.headers == nil {
			o.headers = make(map[string]string)
		}
		o.headers[key] = value
	}
}

// WithRaiseForStatus controls whether a final failed outcome is returned as
// an error (the default) or as a plain Response with Cause set.
func WithRaiseForStatus(raise bool) RequestOption {
	return func(o *requestOptions) {
		o.raiseForStatus = raise
	}
}

// WithAbortCheck inspects an otherwise successful response; a non-nil error
// turns the attempt into an abortable failure.
func WithAbortCheck(check func(*Response) error) RequestOption {
	return func(o *requestOptions) {
		o.abortCheck = check
	}
}

func buildOptions(opts []RequestOption) *requestOptions {
	o := &requestOptions{raiseForStatus: true}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
