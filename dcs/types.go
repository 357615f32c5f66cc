package dcs

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"time"
)

// Reading is one decoded meter reading. Value may be ±Inf or NaN when
// the server reports a non-finite sentinel.
type Reading struct {
	Timestamp time.Time
	Value     float64
	Status    int
}

// UnmarshalJSON decodes the server's reading element, converting the
// naive-UTC timestamp and the Infinity/NaN value sentinels.
func (r *Reading) UnmarshalJSON(b []byte) error {
	var raw struct {
		Timestamp string          `json:"timestamp"`
		Value     json.RawMessage `json:"value"`
		Status    int             `json:"status"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	ts, err := parseWireTime(raw.Timestamp)
	if err != nil {
		return err
	}
	v, err := parseWireValue(raw.Value)
	if err != nil {
		return err
	}
	r.Timestamp = ts
	r.Value = v
	r.Status = raw.Status
	return nil
}

// parseWireValue decodes a reading value. JSON numbers cannot carry
// non-finite values, so the server serializes those as the strings
// "Infinity", "-Infinity" and "NaN"; null also maps to NaN.
func parseWireValue(raw json.RawMessage) (float64, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return math.NaN(), nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return 0, err
		}
		switch s {
		case "Infinity", "+Infinity":
			return math.Inf(1), nil
		case "-Infinity":
			return math.Inf(-1), nil
		case "NaN":
			return math.NaN(), nil
		}
		return 0, fmt.Errorf("unexpected value sentinel %q", s)
	}
	var f float64
	if err := json.Unmarshal(trimmed, &f); err != nil {
		return 0, err
	}
	return f, nil
}

// recordSource is the polymorphic record sequence behind a
// ReadingsResult: pre-materialized, produced incrementally as the
// response body arrives, or chained across query windows. next
// returns io.EOF when the sequence is exhausted.
type recordSource interface {
	next() (Reading, error)
	close() error
}

// ReadingsResult is the decoded outcome of one readings query. The
// header fields describe the channel; the record sequence is consumed
// through Next/Reading/Err, uniformly for materialized and streaming
// results. Streaming results are forward-only and single-pass:
// restart by re-issuing the query.
type ReadingsResult struct {
	Name   string
	Start  time.Time
	End    time.Time
	Period Period
	Unit   string

	src  recordSource
	cur  Reading
	err  error
	done bool
}

// NewResult builds a fully materialized result. It is intended for
// code that fabricates results, such as tests of consumers.
func NewResult(name string, start, end time.Time, period Period, unit string, readings []Reading) *ReadingsResult {
	return &ReadingsResult{
		Name:   name,
		Start:  start,
		End:    end,
		Period: period,
		Unit:   unit,
		src:    &sliceSource{recs: readings},
	}
}

// Next advances to the next reading. It returns false at the end of
// the sequence or on error; consult Err afterwards.
func (r *ReadingsResult) Next() bool {
	if r.done || r.err != nil {
		return false
	}
	rec, err := r.src.next()
	if err == io.EOF {
		r.done = true
		r.src.close()
		return false
	}
	if err != nil {
		r.err = err
		r.done = true
		r.src.close()
		return false
	}
	r.cur = rec
	return true
}

// Reading returns the record produced by the last successful Next.
func (r *ReadingsResult) Reading() Reading { return r.cur }

// Err returns the first error encountered while producing records.
func (r *ReadingsResult) Err() error { return r.err }

// Close releases the underlying response body, if any. It is safe to
// call more than once and after exhaustion.
func (r *ReadingsResult) Close() error {
	r.done = true
	return r.src.close()
}

// All drains the remaining records into a slice, failing if the
// sequence fails.
func (r *ReadingsResult) All() ([]Reading, error) {
	var out []Reading
	for r.Next() {
		out = append(out, r.cur)
	}
	if r.err != nil {
		return nil, r.err
	}
	return out, nil
}

type sliceSource struct {
	recs []Reading
	i    int
}

func (s *sliceSource) next() (Reading, error) {
	if s.i >= len(s.recs) {
		return Reading{}, io.EOF
	}
	r := s.recs[s.i]
	s.i++
	return r, nil
}

func (s *sliceSource) close() error {
	s.i = len(s.recs)
	return nil
}

// streamSource yields readings one element at a time from an open
// response body positioned inside the readings array.
type streamSource struct {
	body   io.ReadCloser
	dec    *json.Decoder
	closed bool
}

func (s *streamSource) next() (Reading, error) {
	if s.closed {
		return Reading{}, io.EOF
	}
	if s.dec.More() {
		var rec Reading
		if err := s.dec.Decode(&rec); err != nil {
			s.close()
			return Reading{}, &MalformedResponseError{Err: err}
		}
		return rec, nil
	}
	// End of the array: consume the closing bracket and whatever
	// trailing header fields follow it.
	err := s.finish()
	s.close()
	if err != nil {
		return Reading{}, &MalformedResponseError{Err: err}
	}
	return Reading{}, io.EOF
}

func (s *streamSource) finish() error {
	for {
		if _, err := s.dec.Token(); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}

func (s *streamSource) close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.body.Close()
}
