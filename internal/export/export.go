package export

import (
	"strings"
	"time"

	"StockCache/internal/model"
)

// Saver writes a cleaned series to disk for the downstream charting
// step. The chart itself is not this program's business; it only
// promises an ordered, validated artifact in a format the renderer can
// load.
type Saver interface {
	Save(bars model.Series, path string) error
	Extension() string
}

// NewSaver creates an implementation by format (csv, json, parquet).
// Returns nil if the format is not supported.
func NewSaver(format string) Saver {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "csv":
		return CSVSaver{}
	case "json":
		return JSONSaver{}
	case "parquet":
		return ParquetSaver{}
	default:
		return nil
	}
}

// row is the flat on-disk shape shared by all formats. Timestamps keep
// their offset so the artifact stays timezone-aware.
type row struct {
	Timestamp string  `json:"timestamp" parquet:"timestamp"`
	Open      float64 `json:"open" parquet:"open"`
	High      float64 `json:"high" parquet:"high"`
	Low       float64 `json:"low" parquet:"low"`
	Close     float64 `json:"close" parquet:"close"`
	Volume    int64   `json:"volume" parquet:"volume"`
}

func toRows(bars model.Series) []row {
	rows := make([]row, len(bars))
	for i, b := range bars {
		rows[i] = row{
			Timestamp: b.Time.Format(time.RFC3339),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		}
	}
	return rows
}
