package engine

import (
	"github.com/talgya/reson/internal/economy"
)

// reservePools debits each usable pool's own inputs in full and opens its
// whole budget. Pools whose inputs are short stay closed for the tick.
func (s *Simulation) reservePools(now int64) {
	for _, pool := range s.Registry.Pools() {
		if pool.Capacity() <= 0 {
			pool.Disable()
			if !s.zeroCapWarned[pool.Process.Name] {
				s.zeroCapWarned[pool.Process.Name] = true
				s.recordAnomaly(Anomaly{Time: now, Kind: AnomalyZeroCapacity, Subject: pool.Process.Name, Value: pool.Capacity()})
			}
			continue
		}
		if !s.poolUsable(pool.Process) {
			pool.Disable()
			continue
		}
		for _, q := range pool.Process.Input {
			s.Ledger.ApplyDelta(q.Name, -q.Amount, 0, now)
		}
		pool.Reserve()
	}
}

// poolUsable reports whether every own input of a pool is on hand.
func (s *Simulation) poolUsable(p *economy.Process) bool {
	for _, q := range p.Input {
		r, ok := s.Ledger.Get(q.Name)
		if !ok || q.Amount < 0 || r.Amount < q.Amount {
			return false
		}
	}
	return true
}

// settlePools refunds each reserved pool's unspent budget to its own
// inputs, in proportion to their per-use quantities.
func (s *Simulation) settlePools(now int64) {
	for _, pool := range s.Registry.Pools() {
		if !pool.Reserved {
			continue
		}
		refund := Refunded(pool)
		if refund <= 0 {
			continue
		}
		capacity := pool.Capacity()
		for _, q := range pool.Process.Input {
			s.Ledger.ApplyDelta(q.Name, q.Amount*refund/capacity, 0, now)
		}
	}
}

// Refunded returns what settlement gave back to a pool's inputs this tick,
// in pool budget units.
func Refunded(pool *economy.Pool) float64 {
	if !pool.Reserved {
		return 0
	}
	return pool.Available
}
