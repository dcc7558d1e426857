// Package csvlog maintains the append-only CSV benchmark log.
package csvlog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/yourorg/ollamabench/pkg/types"
)

// Header names the thirteen log columns in order.
var Header = []string{
	"timestamp", "model", "prompt", "temperature", "seed", "response",
	"total_duration", "load_duration", "prompt_eval_count",
	"prompt_eval_duration", "eval_count", "eval_duration", "tokens_per_sec",
}

var sanitizer = strings.NewReplacer(",", " ", "\r", " ", "\n", " ")

// Sanitize replaces separators that would break a row with spaces.
func Sanitize(s string) string {
	return sanitizer.Replace(s)
}

// Writer appends rows to a CSV log file.
type Writer struct {
	path string
	f    *os.File
	w    *csv.Writer
}

// Open opens path for append, creating it if needed, and writes the header
// only when the file is empty.
func Open(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat log %s: %w", path, err)
	}
	lw := &Writer{path: path, f: f, w: csv.NewWriter(f)}
	if info.Size() == 0 {
		if err := lw.write(Header); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("write header: %w", err)
		}
	}
	return lw, nil
}

// Path returns the log file path.
func (w *Writer) Path() string {
	return w.path
}

// Append writes one row and syncs it to disk before returning.
func (w *Writer) Append(row types.LogRow) error {
	if err := w.write(Record(row)); err != nil {
		return fmt.Errorf("append row: %w", err)
	}
	return nil
}

func (w *Writer) write(record []string) error {
	if err := w.w.Write(record); err != nil {
		return err
	}
	w.w.Flush()
	if err := w.w.Error(); err != nil {
		return err
	}
	return w.f.Sync()
}

func (w *Writer) Close() error {
	if w.f == nil {
		return errors.New("log is closed")
	}
	err := w.f.Close()
	w.f = nil
	return err
}

// Record renders a row as the thirteen CSV fields.
func Record(row types.LogRow) []string {
	return []string{
		row.Timestamp.UTC().Format(time.RFC3339Nano),
		row.Model,
		Sanitize(row.Prompt),
		strconv.FormatFloat(row.Temperature, 'f', -1, 64),
		strconv.FormatInt(row.Seed, 10),
		Sanitize(row.Response),
		strconv.FormatUint(row.TotalDuration, 10),
		strconv.FormatUint(row.LoadDuration, 10),
		strconv.FormatUint(row.PromptEvalCount, 10),
		strconv.FormatUint(row.PromptEvalDuration, 10),
		strconv.FormatUint(row.EvalCount, 10),
		strconv.FormatUint(row.EvalDuration, 10),
		types.FormatTokensPerSec(row.TokensPerSec),
	}
}

// ReadRows parses a log file back into rows, skipping the header.
func ReadRows(path string) ([]types.LogRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(Header)
	r.LazyQuotes = true

	var rows []types.LogRow
	for line := 1; ; line++ {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if line == 1 && rec[0] == Header[0] {
			continue
		}
		row, err := parseRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parseRecord(rec []string) (types.LogRow, error) {
	var row types.LogRow
	var err error
	if row.Timestamp, err = time.Parse(time.RFC3339Nano, rec[0]); err != nil {
		return row, fmt.Errorf("timestamp: %w", err)
	}
	row.Model = rec[1]
	row.Prompt = rec[2]
	if row.Temperature, err = strconv.ParseFloat(rec[3], 64); err != nil {
		return row, fmt.Errorf("temperature: %w", err)
	}
	if row.Seed, err = strconv.ParseInt(rec[4], 10, 64); err != nil {
		return row, fmt.Errorf("seed: %w", err)
	}
	row.Response = rec[5]
	counters := []*uint64{
		&row.TotalDuration, &row.LoadDuration, &row.PromptEvalCount,
		&row.PromptEvalDuration, &row.EvalCount, &row.EvalDuration,
	}
	for i, dst := range counters {
		if *dst, err = strconv.ParseUint(rec[6+i], 10, 64); err != nil {
			return row, fmt.Errorf("%s: %w", Header[6+i], err)
		}
	}
	if row.TokensPerSec, err = strconv.ParseFloat(rec[12], 64); err != nil {
		return row, fmt.Errorf("tokens_per_sec: %w", err)
	}
	return row, nil
}
