package series

import (
	"fmt"
	"sort"
	"time"

	"StockCache/internal/model"
	"StockCache/internal/schema"
)

// TimezoneError signals inconsistent timezone state: an attempt to
// localize an already-aware timestamp, or a batch mixing aware and naive
// timestamps.
type TimezoneError struct {
	Reason string
}

func (e *TimezoneError) Error() string {
	return fmt.Sprintf("timezone: %s", e.Reason)
}

// InsufficientDataError is returned when cleaning leaves fewer than two
// usable rows; such a series can be neither validated nor charted.
type InsufficientDataError struct {
	Rows int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: %d usable rows after cleaning, need at least 2", e.Rows)
}

// Report counts rows dropped per cleaning rule so the caller can log them.
type Report struct {
	BadTimestamp     int
	Duplicate        int
	MissingPrice     int
	NonPositiveClose int
}

// Dropped is the total number of rows removed.
func (r Report) Dropped() int {
	return r.BadTimestamp + r.Duplicate + r.MissingPrice + r.NonPositiveClose
}

func (r Report) String() string {
	return fmt.Sprintf("dropped %d rows (bad timestamp: %d, duplicate: %d, missing price: %d, close<=0: %d)",
		r.Dropped(), r.BadTimestamp, r.Duplicate, r.MissingPrice, r.NonPositiveClose)
}

// Clean turns a normalized batch into an ordered, deduplicated series in
// the target zone. It is pure: the input batch is left untouched.
//
// Rules, in order: parse timestamps (naive values are localized as UTC
// exactly once, aware values are only converted), truncate each timestamp
// to its calendar day in the target zone, sort ascending, drop duplicate
// days keeping the last occurrence, drop rows missing any price, drop
// rows with close <= 0, and require at least two survivors.
//
// Bars are daily: providers stamp them with intraday open times (Yahoo
// uses the market-open instant), but the unit of identity and coverage
// is the calendar date, so the open-time component is discarded here.
func Clean(records []schema.Record, loc *time.Location) (model.Series, Report, error) {
	var rep Report
	type stamped struct {
		t   time.Time
		rec schema.Record
	}

	parsed := make([]stamped, 0, len(records))
	sawAware, sawNaive := false, false
	for _, rec := range records {
		t, aware, err := ParseTimestamp(rec.Timestamp)
		if err != nil {
			rep.BadTimestamp++
			continue
		}
		if aware {
			sawAware = true
			t = t.In(loc)
		} else {
			sawNaive = true
			t, err = LocalizeNaive(t, loc)
			if err != nil {
				return nil, rep, err
			}
		}
		t = midnight(t, loc)
		parsed = append(parsed, stamped{t: t, rec: rec})
	}
	if sawAware && sawNaive {
		return nil, rep, &TimezoneError{Reason: "batch mixes aware and naive timestamps"}
	}

	// Stable sort keeps input order within equal timestamps, so the last
	// element of a duplicate run is the last occurrence in the source.
	sort.SliceStable(parsed, func(i, j int) bool { return parsed[i].t.Before(parsed[j].t) })

	out := make(model.Series, 0, len(parsed))
	for i, p := range parsed {
		if i+1 < len(parsed) && parsed[i+1].t.Equal(p.t) {
			rep.Duplicate++
			continue // a later occurrence supersedes this one
		}
		rec := p.rec
		if rec.Open == nil || rec.High == nil || rec.Low == nil || rec.Close == nil {
			rep.MissingPrice++
			continue
		}
		if *rec.Close <= 0 {
			rep.NonPositiveClose++
			continue
		}
		var vol int64
		if rec.Volume != nil {
			vol = *rec.Volume
		}
		out = append(out, model.Bar{
			Time:   p.t,
			Open:   *rec.Open,
			High:   *rec.High,
			Low:    *rec.Low,
			Close:  *rec.Close,
			Volume: vol,
		})
	}

	if len(out) < 2 {
		return nil, rep, &InsufficientDataError{Rows: len(out)}
	}
	return out, rep, nil
}

// CleanBars re-applies the ordering rules to an already-built series:
// truncate to calendar days, sort, dedupe keeping the last occurrence,
// drop close <= 0. Cleaning a clean series returns it unchanged.
func CleanBars(bars model.Series) (model.Series, Report, error) {
	var rep Report
	idx := make(model.Series, len(bars))
	copy(idx, bars)
	for i := range idx {
		idx[i].Time = midnight(idx[i].Time, idx[i].Time.Location())
	}
	sort.SliceStable(idx, func(i, j int) bool { return idx[i].Time.Before(idx[j].Time) })

	out := make(model.Series, 0, len(idx))
	for i, b := range idx {
		if i+1 < len(idx) && idx[i+1].Time.Equal(b.Time) {
			rep.Duplicate++
			continue
		}
		if b.Close <= 0 {
			rep.NonPositiveClose++
			continue
		}
		out = append(out, b)
	}
	if len(out) < 2 {
		return nil, rep, &InsufficientDataError{Rows: len(out)}
	}
	return out, rep, nil
}

// midnight truncates t to the start of its calendar day in loc.
func midnight(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// LocalizeNaive interprets the wall-clock fields of a naive timestamp as
// UTC and converts the result to the target zone. Passing an already
// aware value is a TimezoneError: localizing twice silently shifts every
// bar by the zone offset.
func LocalizeNaive(t time.Time, loc *time.Location) (time.Time, error) {
	if t.Location() != time.Local {
		return time.Time{}, &TimezoneError{
			Reason: fmt.Sprintf("refusing to localize aware timestamp %s", t.Format(time.RFC3339)),
		}
	}
	utc := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
	return utc.In(loc), nil
}

// Timestamp layouts accepted from providers. Offset-bearing layouts mark
// the value aware; date-only and space-separated forms are naive.
var (
	awareLayouts = []string{time.RFC3339Nano, time.RFC3339}
	naiveLayouts = []string{"2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"}
)

// ParseTimestamp converts a raw timestamp value into a time and reports
// whether it carried explicit timezone information. Epoch numbers are
// absolute instants and therefore always aware. Naive strings are
// returned in time.Local as a marker; LocalizeNaive is the only way to
// turn them into an aware instant.
func ParseTimestamp(v any) (t time.Time, aware bool, err error) {
	switch x := v.(type) {
	case nil:
		return time.Time{}, false, fmt.Errorf("missing timestamp")
	case time.Time:
		return x, true, nil
	case int64:
		return epochTime(x), true, nil
	case int:
		return epochTime(int64(x)), true, nil
	case float64:
		return epochTime(int64(x)), true, nil
	case string:
		for _, layout := range awareLayouts {
			if t, err := time.Parse(layout, x); err == nil {
				return t, true, nil
			}
		}
		for _, layout := range naiveLayouts {
			if t, err := time.ParseInLocation(layout, x, time.Local); err == nil {
				return t, false, nil
			}
		}
		return time.Time{}, false, fmt.Errorf("unparsable timestamp %q", x)
	default:
		return time.Time{}, false, fmt.Errorf("unsupported timestamp type %T", v)
	}
}

// epochTime interprets n as Unix seconds, or milliseconds for values too
// large to be a plausible date in seconds.
func epochTime(n int64) time.Time {
	if n >= 1e12 || n <= -1e12 {
		return time.UnixMilli(n).UTC()
	}
	return time.Unix(n, 0).UTC()
}
