package dcs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jarvisms/godcs/internal/middleware"
)

// executor performs single HTTP exchanges against the server. It must
// only be invoked while holding the session's exclusive-access lock.
//
// Rate-limit responses are handled here and never escape: the server's
// Retry-After advisory is honored and the request retried. Retries are
// unbounded in count but bounded in accumulated wait by maxRetryWait,
// a deliberate deviation from treating the advisory as authoritative
// forever — a misbehaving server should not park a client
// indefinitely.
type executor struct {
	client       *http.Client
	log          *logrus.Logger
	defaultWait  time.Duration
	maxRetryWait time.Duration
}

// do issues req, retrying after the advised delay on 429. Any other
// non-2xx status becomes a RequestError; network failures become a
// TransportError. Neither is retried.
func (e *executor) do(ctx context.Context, req *http.Request) (*http.Response, error) {
	op := req.Method + " " + req.URL.Path
	var waited time.Duration
	for {
		attempt := req.Clone(ctx)
		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, &TransportError{Op: op, Err: err}
			}
			attempt.Body = body
		}

		resp, err := e.client.Do(attempt)
		if err != nil {
			return nil, &TransportError{Op: op, Err: err}
		}

		if resp.StatusCode != http.StatusTooManyRequests {
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return resp, nil
			}
			msg := readErrorMessage(resp.Body)
			resp.Body.Close()
			return nil, &RequestError{Status: resp.StatusCode, Message: msg}
		}

		// Rate limited: honor the server's advisory before retrying.
		delay, ok := retryAfter(resp.Header)
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		resp.Body.Close()
		if !ok {
			delay = e.defaultWait
		}
		if waited+delay > e.maxRetryWait {
			return nil, &TransportError{
				Op:  op,
				Err: fmt.Errorf("rate-limit backoff would exceed %s", e.maxRetryWait),
			}
		}

		e.log.WithFields(logrus.Fields{
			"path": req.URL.Path,
			"wait": delay.String(),
		}).Info("rate limited by server, waiting")
		middleware.RateLimitWait.Add(delay.Seconds())

		if err := sleep(ctx, delay); err != nil {
			return nil, &TransportError{Op: "rate-limit wait", Err: err}
		}
		waited += delay
	}
}

// retryAfter parses a Retry-After header carrying either delay
// seconds or an HTTP date.
func retryAfter(h http.Header) (time.Duration, bool) {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second, true
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d, true
		}
		return 0, true
	}
	return 0, false
}

func readErrorMessage(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 4<<10))
	return strings.TrimSpace(string(b))
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
