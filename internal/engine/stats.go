package engine

import (
	"math"

	"github.com/talgya/reson/internal/economy"
	"github.com/talgya/reson/internal/report"
)

// accumulator tracks min/avg/max of one series over a reporting interval.
type accumulator struct {
	min, max, sum float64
	count         int
}

func newAccumulator() accumulator {
	return accumulator{min: math.Inf(1), max: math.Inf(-1)}
}

func (a *accumulator) add(v float64) {
	a.min = math.Min(a.min, v)
	a.max = math.Max(a.max, v)
	a.sum += v
	a.count++
}

func (a *accumulator) avg() float64 {
	if a.count == 0 {
		return 0
	}
	return a.sum / float64(a.count)
}

// intervalStats holds the running accumulators between two report rows.
type intervalStats struct {
	resources []accumulator // Ledger order
	pools     []accumulator // Registry pool order
}

func newIntervalStats(resources, pools int) *intervalStats {
	st := &intervalStats{
		resources: make([]accumulator, resources),
		pools:     make([]accumulator, pools),
	}
	st.reset()
	return st
}

func (st *intervalStats) reset() {
	for i := range st.resources {
		st.resources[i] = newAccumulator()
	}
	for i := range st.pools {
		st.pools[i] = newAccumulator()
	}
}

// sample records end-of-tick values.
func (st *intervalStats) sample(ledger *economy.Ledger, pools []*economy.Pool) {
	for i, r := range ledger.Resources() {
		st.resources[i].add(r.Amount)
	}
	for i, p := range pools {
		st.pools[i].add(p.Utilization())
	}
}

// row builds a report row from the accumulators and resets them.
func (st *intervalStats) row(now int64, ledger *economy.Ledger) report.Row {
	row := report.Row{
		Timestamp: now,
		Resources: make([]report.ResourceStats, len(st.resources)),
		Pools:     make([]float64, len(st.pools)),
	}
	for i, r := range ledger.Resources() {
		acc := st.resources[i]
		if acc.count == 0 {
			acc = accumulator{min: r.Amount, max: r.Amount, sum: r.Amount, count: 1}
		}
		row.Resources[i] = report.ResourceStats{
			Min:     acc.min,
			Avg:     acc.avg(),
			Max:     acc.max,
			Current: r.Amount,
		}
	}
	for i := range st.pools {
		row.Pools[i] = st.pools[i].avg()
	}
	st.reset()
	return row
}

// SimStats tracks aggregate run statistics.
type SimStats struct {
	Ticks       uint64 `json:"ticks"`
	Invocations uint64 `json:"invocations"` // Process firings, counting concurrency
	Rows        uint64 `json:"rows"`
	Anomalies   uint64 `json:"anomalies"`
}
