package engine

import (
	"bytes"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/reson/internal/economy"
	"github.com/talgya/reson/internal/report"
)

func newGoldie(t *testing.T) *goldie.Goldie {
	t.Helper()
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestSimulation_WoodScenario(t *testing.T) {
	sim, sink := woodScenario(t)

	require.NoError(t, sim.Run(3))
	assert.Equal(t, 25.0, amount(t, sim, "wood"))
	assert.Equal(t, int64(3), sim.Now())

	require.Len(t, sink.Rows, 3)
	assert.Equal(t, report.Header{Resources: []string{"wood"}}, sink.Header)
	for i, want := range []float64{15, 20, 25} {
		row := sink.Rows[i]
		assert.Equal(t, int64(i), row.Timestamp)
		assert.Equal(t, report.ResourceStats{Min: want, Avg: want, Max: want, Current: want}, row.Resources[0])
	}
	assert.Equal(t, SimStats{Ticks: 3, Invocations: 3, Rows: 3}, sim.Stats)
}

func TestSimulation_WoodScenarioCSV(t *testing.T) {
	sim, _ := woodScenario(t)
	var buf bytes.Buffer
	sim.SetSink(report.NewCSVSink(&buf))

	require.NoError(t, sim.Run(3))
	assert.Equal(t, "timestamp,wood_min,wood_avg,wood_max,wood_current\n"+
		"0,15,15,15,15\n"+
		"1,20,20,20,20\n"+
		"2,25,25,25,25\n", buf.String())
}

func TestSimulation_WoodCapsAtMax(t *testing.T) {
	sim, _ := woodScenario(t)

	require.NoError(t, sim.Run(30))
	assert.Equal(t, 100.0, amount(t, sim, "wood"))
	assert.Equal(t, uint64(18), sim.Stats.Invocations, "90 headroom / 5 per firing")
	assert.Empty(t, sim.Anomalies())
}

func TestSimulation_IntervalAggregates(t *testing.T) {
	sim, sink := woodScenario(t)
	sim.SetReportingInterval(2)

	require.NoError(t, sim.Run(5))
	require.Len(t, sink.Rows, 2, "the trailing half interval is not reported")

	assert.Equal(t, int64(1), sink.Rows[0].Timestamp)
	assert.Equal(t, report.ResourceStats{Min: 15, Avg: 17.5, Max: 20, Current: 20}, sink.Rows[0].Resources[0])
	assert.Equal(t, int64(3), sink.Rows[1].Timestamp)
	assert.Equal(t, report.ResourceStats{Min: 25, Avg: 27.5, Max: 30, Current: 30}, sink.Rows[1].Resources[0])
}

func TestSimulation_StepEqualsRun(t *testing.T) {
	stepped, _ := woodScenario(t)
	for i := 0; i < 4; i++ {
		require.NoError(t, stepped.Step())
	}
	ran, _ := woodScenario(t)
	require.NoError(t, ran.Run(4))

	assert.Equal(t, amount(t, ran, "wood"), amount(t, stepped, "wood"))
	assert.Equal(t, ran.Now(), stepped.Now())
	assert.Equal(t, ran.Stats, stepped.Stats)
}

func TestSimulation_PeriodAndDelta(t *testing.T) {
	well := unbounded("water", 0)
	pump := economy.NewProcess("pump")
	pump.Output = []economy.Quantity{qty("water", 1)}
	pump.Period = 10
	pump.PeriodDelta = 3
	sim, _ := newTestSim(t, []*economy.Resource{well}, []*economy.Process{pump})

	require.NoError(t, sim.Run(25)) // t = 0..24: fires at 3, 13, 23
	assert.Equal(t, 3.0, amount(t, sim, "water"))
}

func TestSimulation_WindowConstraint(t *testing.T) {
	light := unbounded("light", 0)
	lamp := economy.NewProcess("lamp")
	lamp.Output = []economy.Quantity{qty("light", 1)}
	lamp.Constraints = []economy.Constraint{{Modulo: 60, Ranges: []economy.Range{{Start: 50, End: 10}}}}
	sim, _ := newTestSim(t, []*economy.Resource{light}, []*economy.Process{lamp})

	require.NoError(t, sim.Run(120))
	// 0..10, 50..70, 110..119
	assert.Equal(t, float64(11+21+10), amount(t, sim, "light"))
}

func TestSimulation_CatalystSharedWithinTick(t *testing.T) {
	tools := unbounded("tools", 1)
	chairs := unbounded("chairs", 0)
	tables := unbounded("tables", 0)

	chairMaker := economy.NewProcess("chair_maker")
	chairMaker.Catalyst = []economy.Quantity{qty("tools", 1)}
	chairMaker.Output = []economy.Quantity{qty("chairs", 1)}
	tableMaker := economy.NewProcess("table_maker")
	tableMaker.Catalyst = []economy.Quantity{qty("tools", 1)}
	tableMaker.Output = []economy.Quantity{qty("tables", 1)}

	sim, _ := newTestSim(t, []*economy.Resource{tools, chairs, tables}, []*economy.Process{chairMaker, tableMaker})
	require.NoError(t, sim.Run(3))

	assert.Equal(t, 3.0, amount(t, sim, "chairs"), "earlier process takes the catalyst every tick")
	assert.Zero(t, amount(t, sim, "tables"))
	assert.Equal(t, 1.0, amount(t, sim, "tools"), "catalysts are never consumed")
}

func TestSimulation_InputsConsumedInOrder(t *testing.T) {
	grain := unbounded("grain", 3)
	flour := unbounded("flour", 0)
	feed := unbounded("feed", 0)

	mill := economy.NewProcess("mill")
	mill.Input = []economy.Quantity{qty("grain", 2)}
	mill.Output = []economy.Quantity{qty("flour", 1)}
	trough := economy.NewProcess("trough")
	trough.Input = []economy.Quantity{qty("grain", 2)}
	trough.Output = []economy.Quantity{qty("feed", 1)}

	sim, _ := newTestSim(t, []*economy.Resource{grain, flour, feed}, []*economy.Process{mill, trough})
	require.NoError(t, sim.Step())

	assert.Equal(t, 1.0, amount(t, sim, "flour"))
	assert.Zero(t, amount(t, sim, "feed"), "mill left too little grain")
	assert.Equal(t, 1.0, amount(t, sim, "grain"))
}

func TestSimulation_DecayAfterLife(t *testing.T) {
	bread := unbounded("bread", 0)
	bread.Life = 3
	bake := economy.NewProcess("bake")
	bake.Output = []economy.Quantity{qty("bread", 1)}
	bake.Period = 1000
	sim, _ := newTestSim(t, []*economy.Resource{bread}, []*economy.Process{bake})

	require.NoError(t, sim.Run(3)) // Baked at t=0
	assert.Equal(t, 1.0, amount(t, sim, "bread"))
	assert.Equal(t, 1.0, sim.Ledger.Resources()[0].Pending())

	require.NoError(t, sim.Step()) // t=3
	assert.Zero(t, amount(t, sim, "bread"))
	assert.Zero(t, sim.Ledger.Resources()[0].Pending())
	assert.Empty(t, sim.Anomalies())
}

func TestSimulation_StopDuringRun(t *testing.T) {
	sim, sink := woodScenario(t)
	stopper := &stopAfter{sim: sim, rows: 2}
	sim.SetSink(report.Multi{sink, stopper})

	require.NoError(t, sim.Run(1000))
	assert.Equal(t, uint64(2), sim.Stats.Ticks)
	assert.Len(t, sink.Rows, 2)
}

// stopAfter stops the simulation once it has seen enough rows.
type stopAfter struct {
	report.Discard
	sim  *Simulation
	rows int
	seen int
}

func (s *stopAfter) WriteRow(report.Row) error {
	s.seen++
	if s.seen >= s.rows {
		s.sim.Stop()
	}
	return nil
}

func TestSimulation_HeaderWrittenOnce(t *testing.T) {
	sim, _ := woodScenario(t)
	counter := &headerCounter{}
	sim.SetSink(counter)

	require.NoError(t, sim.Run(2))
	require.NoError(t, sim.Step())
	require.NoError(t, sim.Run(2))
	assert.Equal(t, 1, counter.headers)
}

type headerCounter struct {
	report.Discard
	headers int
}

func (h *headerCounter) WriteHeader(report.Header) error {
	h.headers++
	return nil
}

func TestSimulation_SetStartTime(t *testing.T) {
	sim, _ := woodScenario(t)
	start := time.Date(2024, time.January, 1, 9, 0, 0, 0, time.UTC)
	sim.SetStartTime(start)

	assert.Equal(t, start.Unix(), sim.Now())
	assert.True(t, start.Equal(sim.Time()))
}

func TestSimulation_Snapshot(t *testing.T) {
	sim, _ := woodScenario(t)
	require.NoError(t, sim.Run(3))

	newGoldie(t).Assert(t, "wood_snapshot", []byte(sim.Snapshot()))
}

func TestSimulation_SnapshotWithPool(t *testing.T) {
	sim, _ := sawScenario(t)
	require.NoError(t, sim.Step())

	newGoldie(t).Assert(t, "saw_snapshot", []byte(sim.Snapshot()))
}
