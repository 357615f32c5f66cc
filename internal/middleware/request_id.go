package middleware

import (
	"net/http"

	"github.com/google/uuid"
)

// RequestIDHeader carries the correlation id stamped on each request.
const RequestIDHeader = "X-Request-Id"

// RequestID stamps each outbound request with a fresh correlation id
// so server-side and client-side logs can be matched up.
func RequestID() Wrapper {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			r := req.Clone(req.Context())
			r.Header.Set(RequestIDHeader, uuid.NewString())
			return next.RoundTrip(r)
		})
	}
}
