package export

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"strconv"

	"github.com/parquet-go/parquet-go"

	"StockCache/internal/model"
)

// CSVSaver writes the series as CSV with a header row.
type CSVSaver struct{}

func (CSVSaver) Extension() string { return "csv" }

func (CSVSaver) Save(bars model.Series, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"timestamp", "open", "high", "low", "close", "volume"}); err != nil {
		return err
	}
	for _, r := range toRows(bars) {
		if err := w.Write([]string{
			r.Timestamp,
			floatStr(r.Open),
			floatStr(r.High),
			floatStr(r.Low),
			floatStr(r.Close),
			strconv.FormatInt(r.Volume, 10),
		}); err != nil {
			return err
		}
	}
	return nil
}

func floatStr(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

// JSONSaver writes the series as an indented JSON array.
type JSONSaver struct{}

func (JSONSaver) Extension() string { return "json" }

func (JSONSaver) Save(bars model.Series, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(toRows(bars))
}

// ParquetSaver writes the series as Parquet.
type ParquetSaver struct{}

func (ParquetSaver) Extension() string { return "parquet" }

func (ParquetSaver) Save(bars model.Series, path string) error {
	return parquet.WriteFile(path, toRows(bars))
}
