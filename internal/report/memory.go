package report

// MemorySink buffers everything it receives.
type MemorySink struct {
	Header Header
	Rows   []Row
	Closed bool
}

// NewMemorySink creates an empty buffer.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (m *MemorySink) WriteHeader(h Header) error {
	m.Header = h
	return nil
}

func (m *MemorySink) WriteRow(r Row) error {
	m.Rows = append(m.Rows, r)
	return nil
}

func (m *MemorySink) Close() error {
	m.Closed = true
	return nil
}

// Last returns the most recent row.
func (m *MemorySink) Last() (Row, bool) {
	if len(m.Rows) == 0 {
		return Row{}, false
	}
	return m.Rows[len(m.Rows)-1], true
}
