package middleware

import (
	"net/http"

	"golang.org/x/time/rate"
)

// RateLimit queues outbound requests behind a local limiter. This is
// a courtesy throttle on top of the server's own 429 signaling; Wait
// is used rather than Allow because a client should queue, not
// reject.
func RateLimit(l *rate.Limiter) Wrapper {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			if err := l.Wait(req.Context()); err != nil {
				return nil, err
			}
			return next.RoundTrip(req)
		})
	}
}
