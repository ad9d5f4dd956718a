package sink

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"tickwatch/pkg/model"
)

// CSVLog appends signals to a CSV file, one row per signal.
// The file and its header survive restarts; rows are only ever appended.
type CSVLog struct {
	mu   sync.Mutex
	file *os.File
	w    *csv.Writer
}

// NewCSVLog opens (or creates) the signal log at path.
func NewCSVLog(path string) (*CSVLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open signal log: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat signal log: %w", err)
	}

	s := &CSVLog{file: f, w: csv.NewWriter(f)}
	if info.Size() == 0 {
		if err := s.w.Write([]string{"timestamp", "ticker", "signal", "price", "details"}); err != nil {
			f.Close()
			return nil, fmt.Errorf("write header: %w", err)
		}
		s.w.Flush()
		if err := s.w.Error(); err != nil {
			f.Close()
			return nil, err
		}
	}
	return s, nil
}

// Record appends one signal row and flushes it to disk.
func (s *CSVLog) Record(ctx context.Context, sig model.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := []string{
		sig.Time.Format(time.RFC3339),
		sig.Symbol,
		string(sig.Kind),
		strconv.FormatFloat(sig.Price, 'f', 2, 64),
		sig.Reason,
	}
	if err := s.w.Write(row); err != nil {
		return err
	}
	s.w.Flush()
	return s.w.Error()
}

// Close flushes pending rows and closes the file.
func (s *CSVLog) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		s.file.Close()
		return err
	}
	return s.file.Close()
}
