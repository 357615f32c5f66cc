package middleware

import (
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// Logging records every exchange with its correlation id, duration
// and outcome.
func Logging(log *logrus.Logger) Wrapper {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			start := time.Now()

			resp, err := next.RoundTrip(req)

			fields := logrus.Fields{
				"request_id": req.Header.Get(RequestIDHeader),
				"method":     req.Method,
				"path":       req.URL.Path,
				"duration":   time.Since(start).String(),
			}
			if err != nil {
				log.WithFields(fields).WithError(err).Warn("request failed")
				return nil, err
			}
			fields["status"] = resp.StatusCode
			log.WithFields(fields).Debug("request completed")
			return resp, nil
		})
	}
}
