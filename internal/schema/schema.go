package schema

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Canonical field names every downstream component works with.
const (
	FieldTimestamp = "timestamp"
	FieldOpen      = "open"
	FieldHigh      = "high"
	FieldLow       = "low"
	FieldClose     = "close"
	FieldVolume    = "volume"
)

// Required lists the fields that must resolve for a batch to be usable.
// Volume is optional.
var Required = []string{FieldTimestamp, FieldOpen, FieldHigh, FieldLow, FieldClose}

// aliases maps folded raw labels onto canonical fields. Providers disagree
// on the timestamp label; price labels only vary in case and whitespace.
var aliases = map[string]string{
	"timestamp": FieldTimestamp,
	"date":      FieldTimestamp,
	"time":      FieldTimestamp,
	"open":      FieldOpen,
	"high":      FieldHigh,
	"low":       FieldLow,
	"close":     FieldClose,
	"volume":    FieldVolume,
}

// SchemaError reports required fields that could not be resolved from the
// raw column labels.
type SchemaError struct {
	Missing []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema: unresolvable required fields: %s", strings.Join(e.Missing, ", "))
}

// Record is one normalized row. Prices and volume are pointers so the
// cleaner can tell an absent value from zero; the timestamp stays raw
// because parsing and timezone handling belong to the cleaner.
type Record struct {
	Timestamp any
	Open      *float64
	High      *float64
	Low       *float64
	Close     *float64
	Volume    *int64
}

// Normalize canonicalizes the column labels of a raw batch onto the fixed
// field set, discarding unrecognized columns. It is a pure transform: the
// input is never modified. A row whose labels cannot resolve every
// required field fails the whole batch with a SchemaError.
func Normalize(rows []map[string]any) ([]Record, error) {
	out := make([]Record, 0, len(rows))
	for _, row := range rows {
		rec := Record{}
		seen := make(map[string]bool, len(Required))
		for label, value := range row {
			field, ok := aliases[strings.ToLower(strings.TrimSpace(label))]
			if !ok {
				continue // unrecognized column
			}
			// First resolution wins when two raw labels fold onto the
			// same field ("Date" and "date" in one row).
			if seen[field] {
				continue
			}
			seen[field] = true
			switch field {
			case FieldTimestamp:
				rec.Timestamp = value
			case FieldOpen:
				rec.Open = toFloat(value)
			case FieldHigh:
				rec.High = toFloat(value)
			case FieldLow:
				rec.Low = toFloat(value)
			case FieldClose:
				rec.Close = toFloat(value)
			case FieldVolume:
				rec.Volume = toInt(value)
			}
		}
		if missing := missingFields(seen); len(missing) > 0 {
			return nil, &SchemaError{Missing: missing}
		}
		out = append(out, rec)
	}
	return out, nil
}

func missingFields(seen map[string]bool) []string {
	var missing []string
	for _, f := range Required {
		if !seen[f] {
			missing = append(missing, f)
		}
	}
	sort.Strings(missing)
	return missing
}

// toFloat coerces provider values to a float pointer; nil means absent.
// Empty strings and the usual NA spellings count as absent, matching what
// CSV-shaped providers emit for suspended trading days.
func toFloat(v any) *float64 {
	switch n := v.(type) {
	case nil:
		return nil
	case float64:
		if math.IsNaN(n) {
			return nil
		}
		return &n
	case float32:
		f := float64(n)
		return &f
	case int:
		f := float64(n)
		return &f
	case int64:
		f := float64(n)
		return &f
	case string:
		s := strings.TrimSpace(n)
		switch strings.ToLower(s) {
		case "", "n/a", "nan", "null":
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil
		}
		return &f
	default:
		return nil
	}
}

func toInt(v any) *int64 {
	f := toFloat(v)
	if f == nil {
		return nil
	}
	i := int64(*f)
	return &i
}
