package dcs

import (
	"fmt"
	"math"
	"time"
)

// PeriodReading is a Reading augmented with the consumption over the
// period starting at its timestamp.
type PeriodReading struct {
	Reading
	// PeriodValue is the difference to the next cumulative total. The
	// final reading has no successor, so its PeriodValue is NaN.
	PeriodValue float64
}

// PeriodData derives per-interval consumption from a time-ordered
// sequence of cumulative readings. Where the gap between two readings
// exceeds one period, linearly interpolated readings with status 1
// fill the gap. Monthly data is walked month by month since period
// lengths vary; all other granularities assume gaps are an integer
// number of periods.
func PeriodData(readings []Reading, period Period) ([]PeriodReading, error) {
	if !period.valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPeriod, period)
	}
	if len(readings) == 0 {
		return nil, nil
	}

	dur := period.Duration()
	out := make([]PeriodReading, 0, len(readings))
	before := readings[0]
	for _, after := range readings[1:] {
		gap := after.Timestamp.Sub(before.Timestamp)
		switch {
		case period != PeriodMonth && gap == dur,
			period == PeriodMonth && gap >= 28*24*time.Hour && gap <= 31*24*time.Hour:
			out = append(out, PeriodReading{
				Reading:     before,
				PeriodValue: after.Value - before.Value,
			})
		default:
			out = append(out, interpolateReadings(before, after, period)...)
		}
		before = after
	}
	out = append(out, PeriodReading{Reading: before, PeriodValue: math.NaN()})
	return out, nil
}

// interpolateReadings yields estimated readings at the expected
// timestamps between two anchors, including the start anchor and
// excluding the end anchor.
func interpolateReadings(start, end Reading, period Period) []PeriodReading {
	tDelta := end.Timestamp.Sub(start.Timestamp)
	vDelta := end.Value - start.Value
	var out []PeriodReading

	if period != PeriodMonth {
		dur := period.Duration()
		periods := int(tDelta / dur)
		periodValue := vDelta * float64(dur) / float64(tDelta)
		for n := 0; n < periods; n++ {
			since := time.Duration(n) * dur
			out = append(out, PeriodReading{
				Reading: Reading{
					Timestamp: start.Timestamp.Add(since),
					Value:     start.Value + vDelta*float64(since)/float64(tDelta),
					Status:    1,
				},
				PeriodValue: periodValue,
			})
		}
		return out
	}

	// Monthly period lengths differ, so walk calendar months.
	cur := start.Timestamp
	value := start.Value
	periodValue := 0.0
	for {
		next := cur.AddDate(0, 1, 0)
		value += periodValue
		periodValue = vDelta * float64(next.Sub(cur)) / float64(tDelta)
		out = append(out, PeriodReading{
			Reading:     Reading{Timestamp: cur, Value: value, Status: 1},
			PeriodValue: periodValue,
		})
		cur = next
		if !cur.Before(end.Timestamp) {
			break
		}
	}
	return out
}
