package dcs

import (
	"context"
	"fmt"
	"io"
	"time"
)

// Window is one bounded sub-range of a larger readings query.
type Window struct {
	Start time.Time
	End   time.Time
}

// SplitRange partitions [start, end) into contiguous, non-overlapping
// windows of at most maxWindow, in ascending order. The final window
// may be shorter. A range that fits within maxWindow yields exactly
// one window equal to the input, which lets the windowed path subsume
// the single-query path.
func SplitRange(start, end time.Time, maxWindow time.Duration) ([]Window, error) {
	if start.IsZero() || end.IsZero() || !end.After(start) {
		return nil, fmt.Errorf("%w: end must be after start", ErrInvalidRange)
	}
	if maxWindow <= 0 {
		return nil, fmt.Errorf("%w: non-positive window size %s", ErrInvalidRange, maxWindow)
	}

	var windows []Window
	for cur := start; cur.Before(end); cur = cur.Add(maxWindow) {
		wEnd := cur.Add(maxWindow)
		if wEnd.After(end) {
			wEnd = end
		}
		windows = append(windows, Window{Start: cur, End: wEnd})
	}
	return windows, nil
}

// LargeReadings answers an arbitrarily large time-range query by
// splitting it into windows of at most maxWindow, fetched one at a
// time in ascending order through the session's exclusive gate, and
// stitched into a single time-ordered result. The combined header
// metadata comes from the first window and the reported range spans
// the full request.
//
// In eager mode a failure on any window aborts the whole call and no
// partial result is returned. In streaming mode later windows are
// fetched as the caller consumes the sequence, and a window failure
// surfaces through Err.
func (s *Session) LargeReadings(ctx context.Context, q ReadingsQuery, maxWindow time.Duration) (*ReadingsResult, error) {
	windows, err := SplitRange(q.Start, q.End, maxWindow)
	if err != nil {
		return nil, err
	}
	if len(windows) == 1 {
		return s.Readings(ctx, q)
	}

	fetch := func(w Window) (*ReadingsResult, error) {
		wq := q
		wq.Start, wq.End = w.Start, w.End
		return s.Readings(ctx, wq)
	}

	first, err := fetch(windows[0])
	if err != nil {
		return nil, err
	}

	res := &ReadingsResult{
		Name:   first.Name,
		Start:  q.Start,
		End:    q.End,
		Period: first.Period,
		Unit:   first.Unit,
		src: &windowSource{
			fetch:   fetch,
			windows: windows[1:],
			cur:     first,
		},
	}
	if q.Stream {
		return res, nil
	}

	recs, err := res.All()
	if err != nil {
		res.Close()
		return nil, err
	}
	return NewResult(res.Name, q.Start, q.End, res.Period, res.Unit, recs), nil
}

// windowSource chains per-window results, fetching each window only
// when the previous one is exhausted. Sub-results are consumed
// strictly in ascending window order; a monotonic timestamp guard
// drops the boundary record a window repeats from its predecessor,
// since the server treats range ends inclusively for cumulative
// readings.
type windowSource struct {
	fetch   func(Window) (*ReadingsResult, error)
	windows []Window
	cur     *ReadingsResult
	last    time.Time
	started bool
	closed  bool
}

func (w *windowSource) next() (Reading, error) {
	for {
		if w.closed {
			return Reading{}, io.EOF
		}
		if w.cur == nil {
			if len(w.windows) == 0 {
				return Reading{}, io.EOF
			}
			res, err := w.fetch(w.windows[0])
			if err != nil {
				return Reading{}, err
			}
			w.windows = w.windows[1:]
			w.cur = res
		}
		if w.cur.Next() {
			rec := w.cur.Reading()
			if w.started && !rec.Timestamp.After(w.last) {
				continue
			}
			w.started = true
			w.last = rec.Timestamp
			return rec, nil
		}
		if err := w.cur.Err(); err != nil {
			return Reading{}, err
		}
		w.cur.Close()
		w.cur = nil
	}
}

func (w *windowSource) close() error {
	w.closed = true
	if w.cur != nil {
		w.cur.Close()
		w.cur = nil
	}
	w.windows = nil
	return nil
}
