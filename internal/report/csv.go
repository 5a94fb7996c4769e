package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// CSVSink writes one record per row with a header line of column names.
type CSVSink struct {
	w      *csv.Writer
	closer io.Closer
}

// NewCSVSink writes to w. Close flushes but does not close w.
func NewCSVSink(w io.Writer) *CSVSink {
	return &CSVSink{w: csv.NewWriter(w)}
}

// CreateCSV creates (or truncates) a CSV file at path.
func CreateCSV(path string) (*CSVSink, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create csv: %w", err)
	}
	return &CSVSink{w: csv.NewWriter(f), closer: f}, nil
}

func (s *CSVSink) WriteHeader(h Header) error {
	if err := s.w.Write(h.Columns()); err != nil {
		return fmt.Errorf("csv header: %w", err)
	}
	s.w.Flush()
	return s.w.Error()
}

// WriteRow flushes after each record so rows survive an interrupted run.
func (s *CSVSink) WriteRow(r Row) error {
	if err := s.w.Write(r.Values()); err != nil {
		return fmt.Errorf("csv row %d: %w", r.Timestamp, err)
	}
	s.w.Flush()
	return s.w.Error()
}

func (s *CSVSink) Close() error {
	s.w.Flush()
	err := s.w.Error()
	if s.closer != nil {
		if cerr := s.closer.Close(); err == nil {
			err = cerr
		}
		s.closer = nil
	}
	return err
}
