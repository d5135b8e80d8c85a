package import_pkg

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/listing-matcher/internal/debug"
)

// batchSize is the number of rows written per transaction
const batchSize = 1000

// Stats summarises one import
type Stats struct {
	Imported int
	Skipped  int
	Errors   []string
}

// header maps lower-cased column names to their index
type header map[string]int

func newHeader(row []string) header {
	h := make(header, len(row))
	for i, name := range row {
		h[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))] = i
	}
	return h
}

// lookup returns the first present column among aliases
func (h header) lookup(aliases ...string) (int, bool) {
	for _, a := range aliases {
		if i, ok := h[a]; ok {
			return i, true
		}
	}
	return -1, false
}

// field returns a trimmed cell or "" when the column is missing
func field(record []string, idx int) string {
	if idx < 0 || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

// readCSV streams records after the header through mapFunc, flushing batches through flush
func readCSV[T any](localDebug bool, r io.Reader, mapFunc func(header, []string) (T, error), flush func([]T) error) (Stats, error) {
	debug.DebugHeader(localDebug)
	defer debug.DebugFooter(localDebug)

	var stats Stats
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	row, err := reader.Read()
	if err != nil {
		return stats, fmt.Errorf("failed to read header: %w", err)
	}
	h := newHeader(row)

	batch := make([]T, 0, batchSize)
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			stats.Skipped++
			stats.Errors = append(stats.Errors, fmt.Sprintf("line %d: %v", line, err))
			continue
		}

		item, err := mapFunc(h, record)
		if err != nil {
			stats.Skipped++
			stats.Errors = append(stats.Errors, fmt.Sprintf("line %d: %v", line, err))
			continue
		}

		batch = append(batch, item)
		if len(batch) == batchSize {
			if err := flush(batch); err != nil {
				return stats, err
			}
			stats.Imported += len(batch)
			batch = batch[:0]
			debug.DebugOutput(localDebug, "Imported %d records...", stats.Imported)
		}
	}

	if len(batch) > 0 {
		if err := flush(batch); err != nil {
			return stats, err
		}
		stats.Imported += len(batch)
	}

	debug.DebugOutput(localDebug, "Import complete: %d records imported, %d skipped", stats.Imported, stats.Skipped)
	return stats, nil
}

// parseFloat accepts both "." and "," as decimal separator
func parseFloat(s string) (float64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	if s == "" {
		return 0, fmt.Errorf("empty number")
	}
	return strconv.ParseFloat(s, 64)
}

// parseOptionalFloat returns nil for empty or malformed values
func parseOptionalFloat(s string) *float64 {
	s = strings.ReplaceAll(strings.TrimSpace(s), " ", "")
	if s == "" {
		return nil
	}
	f, err := parseFloat(s)
	if err != nil {
		return nil
	}
	return &f
}
