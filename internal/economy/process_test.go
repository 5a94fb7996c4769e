package economy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRange_Contains(t *testing.T) {
	tests := []struct {
		name string
		r    Range
		t    int64
		want bool
	}{
		{"inside", Range{10, 20}, 15, true},
		{"start inclusive", Range{10, 20}, 10, true},
		{"end inclusive", Range{10, 20}, 20, true},
		{"before", Range{10, 20}, 9, false},
		{"after", Range{10, 20}, 21, false},
		{"single value", Range{7, 7}, 7, true},
		{"wrap high side", Range{50, 10}, 55, true},
		{"wrap low side", Range{50, 10}, 5, true},
		{"wrap gap", Range{50, 10}, 30, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.r.Contains(tt.t))
		})
	}
}

func TestNewProcess_Defaults(t *testing.T) {
	p := NewProcess("chop")
	assert.Equal(t, int64(1), p.Period)
	assert.Equal(t, 1, p.MaxConcurrency)
	assert.False(t, p.IsPool())
}

func TestSplitProcesses(t *testing.T) {
	chop := NewProcess("chop")
	saw := NewProcess("saw")
	saw.OnUse = 1
	cut := NewProcess("cut")

	ordinary, onUse := SplitProcesses([]*Process{chop, saw, cut})
	assert.Equal(t, []*Process{chop, cut}, ordinary)
	assert.Equal(t, []*Process{saw}, onUse)
}

func TestPool_ReserveDrawUtilization(t *testing.T) {
	saw := NewProcess("saw")
	saw.OnUse = 2
	pool := &Pool{Process: saw}

	pool.Reserve()
	assert.True(t, pool.Reserved)
	assert.Equal(t, 2.0, pool.Available)

	pool.Draw(0.5)
	assert.Equal(t, 1.5, pool.Available)
	assert.InDelta(t, 0.25, pool.Utilization(), 1e-12)

	pool.Disable()
	assert.False(t, pool.Reserved)
	assert.Zero(t, pool.Available)
	assert.Zero(t, pool.Utilization())
}

func TestPool_DrawSnapsDust(t *testing.T) {
	saw := NewProcess("saw")
	saw.OnUse = 1
	pool := &Pool{Process: saw}
	pool.Reserve()

	pool.Draw(0.1)
	pool.Draw(0.2)
	pool.Draw(0.7000000000000001)

	assert.GreaterOrEqual(t, pool.Available, 0.0)
	assert.InDelta(t, 1.0, pool.Drawn, 1e-12)
}

func testRegistryLedger() *Ledger {
	return NewLedger([]*Resource{NewResource("wood"), NewResource("plank"), NewResource("tools"), NewResource("fuel")})
}

func TestRegistry_ValidProcessRunnable(t *testing.T) {
	cut := NewProcess("cut")
	cut.Input = []Quantity{{"wood", 1}}
	cut.Catalyst = []Quantity{{"tools", 1}}
	cut.Output = []Quantity{{"plank", 4}}

	reg := NewRegistry(testRegistryLedger(), []*Process{cut}, nil)
	assert.True(t, reg.Runnable(cut))
	assert.Empty(t, reg.Problems())
}

func TestRegistry_PoolInputIsKnown(t *testing.T) {
	saw := NewProcess("saw")
	saw.OnUse = 1
	saw.Input = []Quantity{{"fuel", 1}}

	cut := NewProcess("cut")
	cut.Input = []Quantity{{"wood", 1}, {"saw", 0.5}}
	cut.Output = []Quantity{{"plank", 4}}

	reg := NewRegistry(testRegistryLedger(), []*Process{cut}, []*Process{saw})
	assert.True(t, reg.Runnable(cut))

	pool, ok := reg.Pool("saw")
	require.True(t, ok)
	assert.Same(t, saw, pool.Process)
	assert.Len(t, reg.Pools(), 1)
}

func TestRegistry_RejectsBadDefinitions(t *testing.T) {
	tests := []struct {
		name   string
		build  func(p *Process)
		reason string
	}{
		{"zero period", func(p *Process) { p.Period = 0 }, "period must be positive"},
		{"zero concurrency", func(p *Process) { p.MaxConcurrency = 0 }, "max_concurrency"},
		{"bad modulo", func(p *Process) { p.Constraints = []Constraint{{Modulo: 0}} }, "modulo"},
		{"unknown input", func(p *Process) { p.Input = []Quantity{{"gold", 1}} }, `unknown input "gold"`},
		{"unknown output", func(p *Process) { p.Output = []Quantity{{"gold", 1}} }, `unknown output "gold"`},
		{"unknown catalyst", func(p *Process) { p.Catalyst = []Quantity{{"gold", 1}} }, `unknown catalyst "gold"`},
		{"negative input", func(p *Process) { p.Input = []Quantity{{"wood", -1}} }, "negative input"},
		{"negative output", func(p *Process) { p.Output = []Quantity{{"plank", -1}} }, "negative output"},
		{"input is catalyst", func(p *Process) {
			p.Input = []Quantity{{"tools", 1}}
			p.Catalyst = []Quantity{{"tools", 1}}
		}, "both an input and a catalyst"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewProcess("bad")
			tt.build(p)
			reg := NewRegistry(testRegistryLedger(), []*Process{p}, nil)

			assert.False(t, reg.Runnable(p))
			problems := reg.Problems()
			require.Len(t, problems, 1)
			assert.Equal(t, "bad", problems[0].Process)
			assert.Contains(t, problems[0].Reason, tt.reason)
			assert.Contains(t, problems[0].String(), "bad: ")
		})
	}
}

func TestRegistry_ProblemsInProcessOrder(t *testing.T) {
	a := NewProcess("a")
	a.Output = []Quantity{{"gold", 1}}
	b := NewProcess("b")
	c := NewProcess("c")
	c.Input = []Quantity{{"silver", 1}}

	reg := NewRegistry(testRegistryLedger(), []*Process{a, b, c}, nil)
	problems := reg.Problems()
	require.Len(t, problems, 2)
	assert.Equal(t, "a", problems[0].Process)
	assert.Equal(t, "c", problems[1].Process)
	assert.True(t, reg.Runnable(b))
}
