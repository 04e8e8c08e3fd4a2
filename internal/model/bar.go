package model

import "time"

// Bar represents a single daily candlestick bar. Time always carries an
// explicit zone; naive timestamps never survive past the cleaning step.
type Bar struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64 // shares traded; 0 when the provider omits volume
}

// Series is an ordered run of daily bars for one instrument.
type Series []Bar

// Coverage returns the first and last timestamps of the series.
// ok is false for an empty series.
func (s Series) Coverage() (min, max time.Time, ok bool) {
	if len(s) == 0 {
		return time.Time{}, time.Time{}, false
	}
	return s[0].Time, s[len(s)-1].Time, true
}

// Ascending reports whether timestamps are strictly increasing.
func (s Series) Ascending() bool {
	for i := 1; i < len(s); i++ {
		if !s[i-1].Time.Before(s[i].Time) {
			return false
		}
	}
	return true
}

// Equal compares two series bar by bar. Timestamps are compared as
// instants, so the same series read back in a different zone still matches.
func (s Series) Equal(other Series) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		a, b := s[i], other[i]
		if !a.Time.Equal(b.Time) {
			return false
		}
		if a.Open != b.Open || a.High != b.High || a.Low != b.Low || a.Close != b.Close || a.Volume != b.Volume {
			return false
		}
	}
	return true
}
