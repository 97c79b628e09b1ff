package history

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"shaperctl/internal/model"
)

// ReadCSV loads history records from a CSV file.
func ReadCSV(path string) ([]model.HistoryRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return readCSV(file)
}

func readCSV(r io.Reader) ([]model.HistoryRecord, error) {
	reader := csv.NewReader(r)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	start := 0
	if len(records[0]) > 0 && records[0][0] == "timestamp" {
		start = 1
	}

	items := make([]model.HistoryRecord, 0, len(records)-start)
	for i := start; i < len(records); i++ {
		rec := records[i]
		if len(rec) < 8 {
			return nil, fmt.Errorf("invalid record at line %d", i+1)
		}
		ts, err := time.Parse(time.RFC3339Nano, rec[0])
		if err != nil {
			return nil, fmt.Errorf("invalid timestamp at line %d: %w", i+1, err)
		}
		latency, _ := strconv.ParseFloat(rec[2], 64)
		measured, _ := strconv.ParseFloat(rec[3], 64)
		blended, _ := strconv.ParseFloat(rec[4], 64)
		rate, _ := strconv.ParseFloat(rec[5], 64)
		items = append(items, model.HistoryRecord{
			Timestamp:    ts,
			Kind:         rec[1],
			LatencyMs:    latency,
			MeasuredMbps: measured,
			BlendedMbps:  blended,
			RateMbps:     rate,
			Branch:       rec[6],
			Reason:       rec[7],
		})
	}

	return items, nil
}
