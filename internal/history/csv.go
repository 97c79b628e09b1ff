// Package history records every shaping decision as a CSV row, one
// file per uplink. The file doubles as the input for offline analysis,
// so the column order is fixed.
package history

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"shaperctl/internal/model"
)

var header = []string{
	"timestamp",
	"kind",
	"latency_ms",
	"measured_mbps",
	"blended_mbps",
	"rate_mbps",
	"branch",
	"reason",
}

// WriteCSV writes records to CSV with a fixed column order.
func WriteCSV(w io.Writer, items []model.HistoryRecord) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write(header); err != nil {
		return err
	}
	for _, rec := range items {
		if err := writer.Write(toRow(rec)); err != nil {
			return err
		}
	}
	return writer.Error()
}

// Append adds one record to the history file, creating it (with a
// header) on first use.
func Append(path string, rec model.HistoryRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}

	writer := csv.NewWriter(file)
	if info.Size() == 0 {
		if err := writer.Write(header); err != nil {
			return err
		}
	}
	if err := writer.Write(toRow(rec)); err != nil {
		return err
	}
	writer.Flush()
	return writer.Error()
}

func toRow(rec model.HistoryRecord) []string {
	return []string{
		rec.Timestamp.UTC().Format(time.RFC3339Nano),
		rec.Kind,
		strconv.FormatFloat(rec.LatencyMs, 'f', 3, 64),
		strconv.FormatFloat(rec.MeasuredMbps, 'f', 3, 64),
		strconv.FormatFloat(rec.BlendedMbps, 'f', 3, 64),
		strconv.FormatFloat(rec.RateMbps, 'f', 3, 64),
		rec.Branch,
		rec.Reason,
	}
}
