package engine

import (
	"math"

	"github.com/talgya/reson/internal/economy"
)

// tolerance absorbs float dust left behind by repeated subtraction.
const tolerance = 1e-9

// bound returns how many times qty fits into available. A zero quantity
// imposes no limit; a negative one is a definition error (ok=false).
func bound(available, qty float64) (n float64, ok bool) {
	switch {
	case qty < 0 || math.IsNaN(qty):
		return 0, false
	case qty == 0:
		return math.Inf(1), true
	case available <= 0:
		return 0, true
	}
	return math.Floor(available / qty * (1 + tolerance)), true
}

// MaxInvocations returns how many times p could fire simultaneously this
// tick: the minimum over its concurrency cap and every catalyst, input and
// output limit. Unknown names make the process unable to run.
func (s *Simulation) MaxInvocations(p *economy.Process) int {
	if !s.Registry.Runnable(p) || p.MaxConcurrency < 1 {
		return 0
	}
	limit := float64(p.MaxConcurrency)

	// Catalysts gate hardest: stop at the first one that is exhausted.
	for _, q := range p.Catalyst {
		r, ok := s.Ledger.Get(q.Name)
		if !ok {
			return 0
		}
		n, ok := bound(r.Available(), q.Amount)
		if !ok || n <= 0 {
			return 0
		}
		limit = math.Min(limit, n)
	}

	for _, q := range p.Input {
		var available float64
		if r, ok := s.Ledger.Get(q.Name); ok {
			available = r.Available()
		} else if pool, ok := s.Registry.Pool(q.Name); ok {
			available = pool.Available
		} else {
			return 0
		}
		n, ok := bound(available, q.Amount)
		if !ok {
			return 0
		}
		limit = math.Min(limit, n)
	}

	for _, q := range p.Output {
		r, ok := s.Ledger.Get(q.Name)
		if !ok {
			return 0
		}
		n, ok := bound(r.Headroom(), q.Amount)
		if !ok {
			return 0
		}
		limit = math.Min(limit, n)
	}

	if limit <= 0 {
		return 0
	}
	return int(limit)
}
