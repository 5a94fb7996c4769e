package report

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// NamedRow is a row keyed by name instead of position. It is the JSONL
// line format and the live stream payload.
type NamedRow struct {
	Timestamp int64                    `json:"timestamp"`
	Resources map[string]ResourceStats `json:"resources"`
	Pools     map[string]float64       `json:"pools,omitempty"`
}

// Named keys r by the header's column names.
func (h Header) Named(r Row) (NamedRow, error) {
	if len(r.Resources) != len(h.Resources) || len(r.Pools) != len(h.Pools) {
		return NamedRow{}, fmt.Errorf("row %d does not match header", r.Timestamp)
	}
	out := NamedRow{
		Timestamp: r.Timestamp,
		Resources: make(map[string]ResourceStats, len(r.Resources)),
	}
	for i, st := range r.Resources {
		out.Resources[h.Resources[i]] = st
	}
	if len(r.Pools) > 0 {
		out.Pools = make(map[string]float64, len(r.Pools))
		for i, u := range r.Pools {
			out.Pools[h.Pools[i]] = u
		}
	}
	return out, nil
}

// JSONLSink writes zstd-compressed JSON lines, one object per row.
type JSONLSink struct {
	header Header

	f   io.Closer
	enc *zstd.Encoder
	w   *bufio.Writer
}

// NewJSONLSink compresses into w. Close finishes the zstd frame but leaves w open.
func NewJSONLSink(w io.Writer) (*JSONLSink, error) {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, err
	}
	return &JSONLSink{
		enc: enc,
		w:   bufio.NewWriterSize(enc, 64*1024),
	}, nil
}

// CreateJSONL creates <dir>/report-<runID>.jsonl.zst.
func CreateJSONL(dir, runID string) (*JSONLSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, fmt.Sprintf("report-%s.jsonl.zst", runID))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	s, err := NewJSONLSink(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	s.f = f
	return s, nil
}

func (s *JSONLSink) WriteHeader(h Header) error {
	s.header = h
	return nil
}

func (s *JSONLSink) WriteRow(r Row) error {
	out, err := s.header.Named(r)
	if err != nil {
		return fmt.Errorf("jsonl: %w", err)
	}
	b, err := json.Marshal(out)
	if err != nil {
		return err
	}
	if _, err := s.w.Write(b); err != nil {
		return err
	}
	return s.w.WriteByte('\n')
}

func (s *JSONLSink) Close() error {
	var err error
	if s.w != nil {
		err = s.w.Flush()
		s.w = nil
	}
	if s.enc != nil {
		if cerr := s.enc.Close(); err == nil {
			err = cerr
		}
		s.enc = nil
	}
	if s.f != nil {
		if cerr := s.f.Close(); err == nil {
			err = cerr
		}
		s.f = nil
	}
	return err
}

// ReadJSONL decodes every row from a compressed stream. Keys are returned
// as written; callers map them back with a Header.
func ReadJSONL(r io.Reader, h Header) ([]Row, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var rows []Row
	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		var in NamedRow
		if err := json.Unmarshal(sc.Bytes(), &in); err != nil {
			return nil, fmt.Errorf("jsonl line %d: %w", len(rows)+1, err)
		}
		row := Row{
			Timestamp: in.Timestamp,
			Resources: make([]ResourceStats, len(h.Resources)),
			Pools:     make([]float64, len(h.Pools)),
		}
		for i, name := range h.Resources {
			row.Resources[i] = in.Resources[name]
		}
		for i, name := range h.Pools {
			row.Pools[i] = in.Pools[name]
		}
		rows = append(rows, row)
	}
	return rows, sc.Err()
}
