package middleware

// This in-memory cache is for metadata listings (meters, virtual
// meters, meter trees) which change rarely relative to how often
// callers enumerate them. golang-lru evicts the least recently
// accessed entries, bounding memory use.

import (
	"bytes"
	"io"
	"net/http"

	lru "github.com/hashicorp/golang-lru"
)

type cacheEntry struct {
	status int
	header http.Header
	body   []byte
}

// Cache memoizes successful GET responses for requests accepted by
// cacheable, keyed by URL.
func Cache(size int, cacheable func(*http.Request) bool) (Wrapper, error) {
	c, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			if req.Method != http.MethodGet || !cacheable(req) {
				return next.RoundTrip(req)
			}

			key := req.URL.String()
			if v, ok := c.Get(key); ok {
				e := v.(*cacheEntry)
				return cachedResponse(req, e), nil
			}

			resp, err := next.RoundTrip(req)
			if err != nil || resp.StatusCode != http.StatusOK {
				return resp, err
			}

			body, err := io.ReadAll(resp.Body)
			resp.Body.Close()
			if err != nil {
				return nil, err
			}
			c.Add(key, &cacheEntry{
				status: resp.StatusCode,
				header: resp.Header.Clone(),
				body:   body,
			})
			resp.Body = io.NopCloser(bytes.NewReader(body))
			return resp, nil
		})
	}, nil
}

func cachedResponse(req *http.Request, e *cacheEntry) *http.Response {
	return &http.Response{
		Status:        http.StatusText(e.status),
		StatusCode:    e.status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        e.header.Clone(),
		Body:          io.NopCloser(bytes.NewReader(e.body)),
		ContentLength: int64(len(e.body)),
		Request:       req,
	}
}
