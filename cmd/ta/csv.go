package main

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"

	ta "github.com/laakhay/ta/ta"
)

// loadCSVDataset reads timestamp,open,high,low,close,volume rows into
// a single-partition dataset. Timestamps may be Unix seconds, Unix
// milliseconds, or RFC 3339. A header row is skipped automatically.
func loadCSVDataset(path, symbol, timeframe string) (*ta.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open csv")
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "read csv")
	}
	if len(rows) == 0 {
		return nil, errors.New("csv file is empty")
	}
	if _, err := strconv.ParseFloat(rows[0][1], 64); err != nil {
		rows = rows[1:] // header
	}

	var timestamps []ta.Timestamp
	cols := make([][]float64, 5)
	for i, row := range rows {
		if len(row) < 6 {
			return nil, errors.Errorf("row %d: expected 6 columns, got %d", i+1, len(row))
		}
		ts, err := parseTimestamp(row[0])
		if err != nil {
			return nil, errors.Wrapf(err, "row %d", i+1)
		}
		timestamps = append(timestamps, ts)
		for c := 0; c < 5; c++ {
			v, err := strconv.ParseFloat(row[c+1], 64)
			if err != nil {
				return nil, errors.Wrapf(err, "row %d column %d", i+1, c+2)
			}
			cols[c] = append(cols[c], v)
		}
	}

	ds := ta.NewDataset()
	if err := ds.AddOHLCV(symbol, timeframe, timestamps, cols[0], cols[1], cols[2], cols[3], cols[4]); err != nil {
		return nil, err
	}
	return ds, nil
}

func parseTimestamp(s string) (ta.Timestamp, error) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		// Heuristic: values under 1e12 are seconds.
		if n < 1_000_000_000_000 {
			return n * 1000, nil
		}
		return n, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0, errors.Errorf("unparseable timestamp '%s'", s)
	}
	return t.UnixMilli(), nil
}
