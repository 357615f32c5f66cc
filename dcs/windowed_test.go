package dcs_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jarvisms/godcs/dcs"
)

type fixedReading struct {
	ts     time.Time
	value  float64
	status int
}

// windowedServer serves a fixed half-hourly dataset, answering each
// readings query with every record inside [start, end] treated
// inclusively at both ends, the way cumulative readings are reported.
type windowedServer struct {
	data []fixedReading

	mu     sync.Mutex
	ranges [][2]time.Time
	failAt int // 1-based request index to fail at, 0 disables
}

func (ws *windowedServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/account/login/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"username": "alice", "role": "operator"})
	})
	mux.HandleFunc("/api/registerReadings/list/", func(w http.ResponseWriter, r *http.Request) {
		parse := func(s string) time.Time {
			t, _ := time.ParseInLocation("2006-01-02T15:04:05", s, time.UTC)
			return t
		}
		start := parse(r.URL.Query().Get("start"))
		end := parse(r.URL.Query().Get("end"))

		ws.mu.Lock()
		ws.ranges = append(ws.ranges, [2]time.Time{start, end})
		fail := ws.failAt > 0 && len(ws.ranges) == ws.failAt
		ws.mu.Unlock()
		if fail {
			http.Error(w, "temporary failure", http.StatusInternalServerError)
			return
		}

		var parts []string
		for _, rec := range ws.data {
			if rec.ts.Before(start) || rec.ts.After(end) {
				continue
			}
			parts = append(parts, fmt.Sprintf(
				`{"timestamp": %q, "value": %g, "status": %d}`,
				rec.ts.Format("2006-01-02T15:04:05"), rec.value, rec.status))
		}
		fmt.Fprintf(w, `{
			"name": "Main Incomer kWh",
			"startTime": %q,
			"endTime": %q,
			"periodType": "halfHour",
			"unit": "kWh",
			"readings": [%s]
		}`,
			start.Format("2006-01-02T15:04:05"),
			end.Format("2006-01-02T15:04:05"),
			strings.Join(parts, ","))
	})
	return mux
}

func (ws *windowedServer) seenRanges() [][2]time.Time {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return append([][2]time.Time(nil), ws.ranges...)
}

func halfHourly(start time.Time, values ...float64) []fixedReading {
	data := make([]fixedReading, len(values))
	for i, v := range values {
		data[i] = fixedReading{ts: start.Add(time.Duration(i) * 30 * time.Minute), value: v}
	}
	return data
}

func TestLargeReadingsStitchesWindows(t *testing.T) {
	start := time.Date(2021, 9, 20, 18, 0, 0, 0, time.UTC)
	ws := &windowedServer{data: []fixedReading{
		{ts: start, value: 9.04, status: 0},
		{ts: start.Add(30 * time.Minute), value: 18.04, status: 1},
		{ts: start.Add(time.Hour), value: 43.08, status: 1},
		{ts: start.Add(90 * time.Minute), value: 59.0, status: 0},
	}}
	srv := httptest.NewServer(ws.handler())
	defer srv.Close()
	session := connectTo(t, srv)

	end := start.Add(2 * time.Hour)
	res, err := session.LargeReadings(context.Background(),
		dcs.NewReadingsQuery("R839", start, end), 90*time.Minute)
	require.NoError(t, err)
	defer res.Close()

	// Combined header spans the full requested range
	assert.Equal(t, "Main Incomer kWh", res.Name)
	assert.Equal(t, dcs.PeriodHalfHour, res.Period)
	assert.True(t, res.Start.Equal(start))
	assert.True(t, res.End.Equal(end))

	recs, err := res.All()
	require.NoError(t, err)

	// The record the second window repeats at the 19:30 boundary is
	// dropped, leaving the four distinct readings in order.
	require.Len(t, recs, 4)
	assert.Equal(t, []float64{9.04, 18.04, 43.08, 59.0},
		[]float64{recs[0].Value, recs[1].Value, recs[2].Value, recs[3].Value})
	for i, rec := range recs {
		assert.True(t, rec.Timestamp.Equal(start.Add(time.Duration(i)*30*time.Minute)))
	}

	// Windows are fetched sequentially in ascending order
	ranges := ws.seenRanges()
	require.Len(t, ranges, 2)
	assert.True(t, ranges[0][0].Equal(start))
	assert.True(t, ranges[0][1].Equal(start.Add(90*time.Minute)))
	assert.True(t, ranges[1][0].Equal(start.Add(90*time.Minute)))
	assert.True(t, ranges[1][1].Equal(end))
}

func TestLargeReadingsMatchesSingleFetch(t *testing.T) {
	start := time.Date(2021, 9, 20, 0, 0, 0, 0, time.UTC)
	ws := &windowedServer{data: halfHourly(start,
		0, 2, 4, 8, 16, 23, 42, 50, 61, 70, 85, 99, 120)}
	srv := httptest.NewServer(ws.handler())
	defer srv.Close()
	session := connectTo(t, srv)

	end := start.Add(6 * time.Hour)
	q := dcs.NewReadingsQuery("R839", start, end)

	single, err := session.Readings(context.Background(), q)
	require.NoError(t, err)
	want, err := single.All()
	require.NoError(t, err)

	windowed, err := session.LargeReadings(context.Background(), q, 100*time.Minute)
	require.NoError(t, err)
	got, err := windowed.All()
	require.NoError(t, err)

	// Splitting must be invisible in the stitched output
	assert.Equal(t, want, got)
}

func TestLargeReadingsSingleWindowPassThrough(t *testing.T) {
	start := time.Date(2021, 9, 20, 18, 0, 0, 0, time.UTC)
	ws := &windowedServer{data: halfHourly(start, 1, 2, 3)}
	srv := httptest.NewServer(ws.handler())
	defer srv.Close()
	session := connectTo(t, srv)

	res, err := session.LargeReadings(context.Background(),
		dcs.NewReadingsQuery("R839", start, start.Add(time.Hour)), 24*time.Hour)
	require.NoError(t, err)

	recs, err := res.All()
	require.NoError(t, err)
	assert.Len(t, recs, 3)
	require.Len(t, ws.seenRanges(), 1)
}

func TestLargeReadingsStreaming(t *testing.T) {
	start := time.Date(2021, 9, 20, 0, 0, 0, 0, time.UTC)
	ws := &windowedServer{data: halfHourly(start, 0, 1, 2, 3, 4, 5, 6, 7, 8)}
	srv := httptest.NewServer(ws.handler())
	defer srv.Close()
	session := connectTo(t, srv)

	q := dcs.NewReadingsQuery("R839", start, start.Add(4*time.Hour))
	q.Stream = true

	res, err := session.LargeReadings(context.Background(), q, time.Hour)
	require.NoError(t, err)
	defer res.Close()

	// Later windows are only fetched as the caller consumes records
	require.Len(t, ws.seenRanges(), 1)

	var last time.Time
	var count int
	for res.Next() {
		rec := res.Reading()
		if count > 0 {
			assert.True(t, rec.Timestamp.After(last), "timestamps must be strictly ascending")
		}
		last = rec.Timestamp
		count++
	}
	require.NoError(t, res.Err())
	assert.Equal(t, 9, count)
	assert.Len(t, ws.seenRanges(), 4)
}

func TestLargeReadingsEagerFailureReturnsNothing(t *testing.T) {
	start := time.Date(2021, 9, 20, 0, 0, 0, 0, time.UTC)
	ws := &windowedServer{
		data:   halfHourly(start, 0, 1, 2, 3, 4, 5, 6, 7, 8),
		failAt: 3,
	}
	srv := httptest.NewServer(ws.handler())
	defer srv.Close()
	session := connectTo(t, srv)

	_, err := session.LargeReadings(context.Background(),
		dcs.NewReadingsQuery("R839", start, start.Add(4*time.Hour)), time.Hour)
	require.Error(t, err)

	var reqErr *dcs.RequestError
	assert.ErrorAs(t, err, &reqErr)
}

func TestLargeReadingsStreamingFailureSurfacesThroughErr(t *testing.T) {
	start := time.Date(2021, 9, 20, 0, 0, 0, 0, time.UTC)
	ws := &windowedServer{
		data:   halfHourly(start, 0, 1, 2, 3, 4, 5, 6, 7, 8),
		failAt: 2,
	}
	srv := httptest.NewServer(ws.handler())
	defer srv.Close()
	session := connectTo(t, srv)

	q := dcs.NewReadingsQuery("R839", start, start.Add(4*time.Hour))
	q.Stream = true

	res, err := session.LargeReadings(context.Background(), q, time.Hour)
	require.NoError(t, err)
	defer res.Close()

	var count int
	for res.Next() {
		count++
	}
	require.Error(t, res.Err())
	// Records from the first window arrived before the failure
	assert.Equal(t, 3, count)
}

func TestLargeReadingsInvalidRange(t *testing.T) {
	start := time.Date(2021, 9, 20, 18, 0, 0, 0, time.UTC)
	ws := &windowedServer{}
	srv := httptest.NewServer(ws.handler())
	defer srv.Close()
	session := connectTo(t, srv)

	_, err := session.LargeReadings(context.Background(),
		dcs.NewReadingsQuery("R839", start, start.Add(-time.Hour)), time.Hour)
	assert.ErrorIs(t, err, dcs.ErrInvalidRange)

	_, err = session.LargeReadings(context.Background(),
		dcs.NewReadingsQuery("R839", start, start.Add(time.Hour)), 0)
	assert.ErrorIs(t, err, dcs.ErrInvalidRange)
}
