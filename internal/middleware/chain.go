// Package middleware provides the http.RoundTripper chain shared by
// the DCS client: request correlation, a courtesy rate limit, request
// logging, Prometheus metrics and metadata response caching.
package middleware

import "net/http"

// RoundTripperFunc adapts a function to http.RoundTripper.
type RoundTripperFunc func(*http.Request) (*http.Response, error)

func (f RoundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// Wrapper decorates a RoundTripper with additional behavior.
type Wrapper func(http.RoundTripper) http.RoundTripper

// Chain builds a single RoundTripper from multiple wrappers. The
// first wrapper sees the request first.
func Chain(base http.RoundTripper, wrappers ...Wrapper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	rt := base
	for i := len(wrappers) - 1; i >= 0; i-- {
		rt = wrappers[i](rt)
	}
	return rt
}
