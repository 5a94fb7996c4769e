package engine

import "github.com/talgya/reson/internal/economy"

// mod returns a non-negative remainder.
func mod(a, m int64) int64 {
	r := a % m
	if r < 0 {
		r += m
	}
	return r
}

// PeriodicDue reports whether a process with the given period and phase
// offset is due at now. A non-positive period is never due.
func PeriodicDue(period, delta, now int64) bool {
	if period <= 0 {
		return false
	}
	return mod(now-delta, period) == 0
}

// WindowAdmits reports whether every constraint admits now. Each constraint
// admits when now modulo its Modulo falls in any of its ranges.
func WindowAdmits(constraints []economy.Constraint, now int64) bool {
	for _, c := range constraints {
		if c.Modulo <= 0 {
			return false
		}
		t := mod(now, c.Modulo)
		admitted := false
		for _, r := range c.Ranges {
			if r.Contains(t) {
				admitted = true
				break
			}
		}
		if !admitted {
			return false
		}
	}
	return true
}

// Due combines the periodic and time-window checks.
func Due(p *economy.Process, now int64) bool {
	return PeriodicDue(p.Period, p.PeriodDelta, now) && WindowAdmits(p.Constraints, now)
}
