package report

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVSink_Golden(t *testing.T) {
	var buf bytes.Buffer
	s := NewCSVSink(&buf)

	require.NoError(t, s.WriteHeader(testHeader))
	for _, r := range testRows() {
		require.NoError(t, s.WriteRow(r))
	}
	require.NoError(t, s.Close())

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "report_csv", buf.Bytes())
}

func TestCSVSink_FlushesEachRow(t *testing.T) {
	var buf bytes.Buffer
	s := NewCSVSink(&buf)

	require.NoError(t, s.WriteHeader(testHeader))
	assert.Contains(t, buf.String(), "timestamp,")
	require.NoError(t, s.WriteRow(testRows()[0]))
	assert.Contains(t, buf.String(), "1704099600,")
}

func TestCreateCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out.csv")
	s, err := CreateCSV(path)
	require.NoError(t, err)

	require.NoError(t, s.WriteHeader(Header{Resources: []string{"wood"}}))
	require.NoError(t, s.WriteRow(Row{Timestamp: 7, Resources: []ResourceStats{{Min: 1, Avg: 2, Max: 3, Current: 3}}}))
	require.NoError(t, s.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "timestamp,wood_min,wood_avg,wood_max,wood_current\n7,1,2,3,3\n", string(raw))
}
