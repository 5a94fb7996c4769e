// Package report defines the reporting sink contract and its file and
// in-memory implementations.
package report

import (
	"errors"
	"strconv"
)

// Header lists the columns a sink will receive.
type Header struct {
	Resources []string `json:"resources"`
	Pools     []string `json:"pools"`
}

// Columns expands the header into flat column names, timestamp first.
func (h Header) Columns() []string {
	cols := make([]string, 0, 1+4*len(h.Resources)+len(h.Pools))
	cols = append(cols, "timestamp")
	for _, name := range h.Resources {
		cols = append(cols, name+"_min", name+"_avg", name+"_max", name+"_current")
	}
	for _, name := range h.Pools {
		cols = append(cols, name+"_utilization")
	}
	return cols
}

// ResourceStats aggregates one resource over a reporting interval.
type ResourceStats struct {
	Min     float64 `json:"min"`
	Avg     float64 `json:"avg"`
	Max     float64 `json:"max"`
	Current float64 `json:"current"`
}

// Row is one reporting interval. Resources and Pools follow the header order.
type Row struct {
	Timestamp int64           `json:"timestamp"`
	Resources []ResourceStats `json:"resources"`
	Pools     []float64       `json:"pools"`
}

// Values flattens the row in Columns order, formatted for text output.
func (r Row) Values() []string {
	vals := make([]string, 0, 1+4*len(r.Resources)+len(r.Pools))
	vals = append(vals, strconv.FormatInt(r.Timestamp, 10))
	for _, s := range r.Resources {
		vals = append(vals, formatFloat(s.Min), formatFloat(s.Avg), formatFloat(s.Max), formatFloat(s.Current))
	}
	for _, u := range r.Pools {
		vals = append(vals, formatFloat(u))
	}
	return vals
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Sink receives the header once, then one row per reporting interval.
type Sink interface {
	WriteHeader(h Header) error
	WriteRow(r Row) error
	Close() error
}

// Multi fans rows out to several sinks in order.
type Multi []Sink

// WriteHeader implements Sink.
func (m Multi) WriteHeader(h Header) error {
	var errs []error
	for _, s := range m {
		if err := s.WriteHeader(h); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WriteRow implements Sink.
func (m Multi) WriteRow(r Row) error {
	var errs []error
	for _, s := range m {
		if err := s.WriteRow(r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close implements Sink.
func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops everything.
type Discard struct{}

func (Discard) WriteHeader(Header) error { return nil }
func (Discard) WriteRow(Row) error       { return nil }
func (Discard) Close() error             { return nil }
