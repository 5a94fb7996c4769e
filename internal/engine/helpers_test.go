package engine

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/talgya/reson/internal/economy"
	"github.com/talgya/reson/internal/report"
)

func resource(name string, amount, max float64) *economy.Resource {
	r := economy.NewResource(name)
	r.Amount = amount
	if max > 0 {
		r.Max = max
	}
	return r
}

func unbounded(name string, amount float64) *economy.Resource {
	return resource(name, amount, math.Inf(1))
}

func qty(name string, amount float64) economy.Quantity {
	return economy.Quantity{Name: name, Amount: amount}
}

// newTestSim starts at the epoch with one-tick reporting into memory.
func newTestSim(t *testing.T, resources []*economy.Resource, processes []*economy.Process) (*Simulation, *report.MemorySink) {
	t.Helper()
	ordinary, onUse := economy.SplitProcesses(processes)
	sim := New(resources, ordinary, onUse)
	sim.SetStartTime(time.Unix(0, 0))
	sink := report.NewMemorySink()
	sim.SetSink(sink)
	return sim, sink
}

func amount(t *testing.T, sim *Simulation, name string) float64 {
	t.Helper()
	r, ok := sim.Ledger.Get(name)
	require.True(t, ok, "resource %q", name)
	return r.Amount
}

// woodScenario: wood {max 100, amount 10} and chop producing 5 wood per second.
func woodScenario(t *testing.T) (*Simulation, *report.MemorySink) {
	t.Helper()
	wood := resource("wood", 10, 100)
	wood.Unit = "logs"
	chop := economy.NewProcess("chop")
	chop.Output = []economy.Quantity{qty("wood", 5)}
	return newTestSim(t, []*economy.Resource{wood}, []*economy.Process{chop})
}

// sawScenario: a saw pool of capacity 1 burning 1 fuel per tick, and two
// cutters that each need 0.6 of it.
func sawScenario(t *testing.T) (*Simulation, *report.MemorySink) {
	t.Helper()
	fuel := unbounded("fuel", 10)
	fuel.Unit = "l"
	plank := unbounded("plank", 0)

	saw := economy.NewProcess("saw")
	saw.OnUse = 1
	saw.Input = []economy.Quantity{qty("fuel", 1)}

	var cutters []*economy.Process
	for _, name := range []string{"cut_a", "cut_b"} {
		p := economy.NewProcess(name)
		p.Input = []economy.Quantity{qty("saw", 0.6)}
		p.Output = []economy.Quantity{qty("plank", 1)}
		cutters = append(cutters, p)
	}
	return newTestSim(t, []*economy.Resource{fuel, plank}, append([]*economy.Process{saw}, cutters...))
}
