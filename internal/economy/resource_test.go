package economy

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T, resources ...*Resource) *Ledger {
	t.Helper()
	return NewLedger(resources)
}

func TestNewResource_Unbounded(t *testing.T) {
	r := NewResource("wood")
	assert.True(t, math.IsInf(r.Max, 1), "new resource should have no max")
	assert.Zero(t, r.Amount)
	assert.Zero(t, r.Life)
}

func TestLedger_KeepsDefinitionOrder(t *testing.T) {
	l := newTestLedger(t, NewResource("wood"), NewResource("stone"), NewResource("iron"))
	assert.Equal(t, []string{"wood", "stone", "iron"}, l.Names())
	assert.Equal(t, 3, l.Len())
}

func TestLedger_DuplicateReplacesInPlace(t *testing.T) {
	first := NewResource("wood")
	second := NewResource("wood")
	second.Amount = 7

	l := newTestLedger(t, first, NewResource("stone"), second)
	require.Equal(t, []string{"wood", "stone"}, l.Names())

	got, ok := l.Get("wood")
	require.True(t, ok)
	assert.Same(t, second, got)
	assert.Same(t, second, l.Resources()[0])
}

func TestLedger_ApplyDelta_UnknownName(t *testing.T) {
	l := newTestLedger(t, NewResource("wood"))
	assert.False(t, l.ApplyDelta("gold", 5, 0, 0))
}

func TestLedger_ApplyDelta_SchedulesDecay(t *testing.T) {
	wood := NewResource("wood")
	l := newTestLedger(t, wood)

	require.True(t, l.ApplyDelta("wood", 5, 10, 100))
	assert.Equal(t, 5.0, wood.Amount)

	expiry, qty, ok := wood.NextDecay()
	require.True(t, ok)
	assert.Equal(t, int64(110), expiry)
	assert.Equal(t, 5.0, qty)
}

func TestLedger_ApplyDelta_NoDecayForDebitsOrZeroLife(t *testing.T) {
	wood := NewResource("wood")
	wood.Amount = 20
	l := newTestLedger(t, wood)

	l.ApplyDelta("wood", -5, 10, 0)
	l.ApplyDelta("wood", 3, 0, 0)

	assert.Equal(t, 18.0, wood.Amount)
	_, _, ok := wood.NextDecay()
	assert.False(t, ok, "only positive deltas with a lifetime decay")
}

func TestLedger_ApplyDelta_KeepsQueueSorted(t *testing.T) {
	wood := NewResource("wood")
	l := newTestLedger(t, wood)

	l.ApplyDelta("wood", 1, 10, 50) // 60
	l.ApplyDelta("wood", 2, 10, 20) // 30
	l.ApplyDelta("wood", 4, 10, 40) // 50

	expiry, qty, ok := wood.NextDecay()
	require.True(t, ok)
	assert.Equal(t, int64(30), expiry)
	assert.Equal(t, 2.0, qty)
	assert.Equal(t, 7.0, wood.Pending())
}

func TestLedger_Decay_AtExpiry(t *testing.T) {
	bread := NewResource("bread")
	l := newTestLedger(t, bread)
	l.ApplyDelta("bread", 4, 10, 0)

	assert.Empty(t, l.Decay(9))
	assert.Equal(t, 4.0, bread.Amount)

	assert.Empty(t, l.Decay(10))
	assert.Equal(t, 0.0, bread.Amount)
	assert.Zero(t, bread.Pending())
}

func TestLedger_Decay_PopsEverythingDue(t *testing.T) {
	bread := NewResource("bread")
	l := newTestLedger(t, bread)
	l.ApplyDelta("bread", 1, 5, 0)
	l.ApplyDelta("bread", 2, 5, 1)
	l.ApplyDelta("bread", 3, 5, 2)

	l.Decay(6)
	assert.Equal(t, 3.0, bread.Amount)
	expiry, _, ok := bread.NextDecay()
	require.True(t, ok)
	assert.Equal(t, int64(7), expiry)
}

func TestLedger_Decay_ReportsNegative(t *testing.T) {
	bread := NewResource("bread")
	l := newTestLedger(t, bread)
	l.ApplyDelta("bread", 4, 10, 0)
	l.ApplyDelta("bread", -3, 0, 5) // Eaten without touching the queue

	negative := l.Decay(10)
	require.Len(t, negative, 1)
	assert.Same(t, bread, negative[0])
	assert.Equal(t, -3.0, bread.Amount)
}

func TestLedger_CatalystScratch(t *testing.T) {
	tools := NewResource("tools")
	tools.Amount = 5
	l := newTestLedger(t, tools)

	require.True(t, l.ReserveCatalyst("tools", 2))
	require.True(t, l.ReserveCatalyst("tools", 1))
	assert.False(t, l.ReserveCatalyst("gold", 1))

	assert.Equal(t, 3.0, tools.CatalystReserved())
	assert.Equal(t, 2.0, tools.Available())
	assert.Equal(t, 5.0, tools.Amount, "catalysts are never consumed")

	l.ResetCatalystScratch()
	assert.Zero(t, tools.CatalystReserved())
	assert.Equal(t, 5.0, tools.Available())
}

func TestResource_Headroom(t *testing.T) {
	wood := NewResource("wood")
	wood.Max = 100
	wood.Amount = 35
	assert.Equal(t, 65.0, wood.Headroom())
}
