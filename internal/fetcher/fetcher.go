package fetcher

import (
	"context"
	"time"
)

// Remote is the boundary to an external daily-bar provider. It returns
// raw rows keyed by whatever column labels the provider uses; the schema
// normalizer downstream owns turning those into canonical records.
type Remote interface {
	FetchDaily(ctx context.Context, symbol string, start, end time.Time) ([]map[string]any, error)
	Name() string
}

// StubRemote returns controllable fixed data for tests and offline runs.
type StubRemote struct {
	Rows  []map[string]any
	Err   error
	Calls int
}

func (s *StubRemote) Name() string { return "stub" }

func (s *StubRemote) FetchDaily(_ context.Context, _ string, start, end time.Time) ([]map[string]any, error) {
	s.Calls++
	if s.Err != nil {
		return nil, s.Err
	}
	if s.Rows != nil {
		return s.Rows, nil
	}
	days := int(end.Sub(start).Hours()/24) + 1
	return GenerateRows(100, start, days), nil
}

// GenerateRows builds n consecutive daily rows starting at start, with
// provider-style title-case labels and a gentle upward drift.
func GenerateRows(basePrice float64, start time.Time, n int) []map[string]any {
	rows := make([]map[string]any, n)
	for i := 0; i < n; i++ {
		p := basePrice * (1 + float64(i)*0.001)
		rows[i] = map[string]any{
			"Date":   start.AddDate(0, 0, i).Unix(),
			"Open":   p * 0.999,
			"High":   p * 1.005,
			"Low":    p * 0.995,
			"Close":  p,
			"Volume": int64(1000000 + i*50000),
		}
	}
	return rows
}
