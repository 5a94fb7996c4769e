// Package economy holds the resource ledger and the process registry.
// Resources are bounded stocks; processes are the rules that transform them.
package economy

import (
	"math"
)

// decayEntry is a scheduled removal of quantity produced with a finite lifetime.
type decayEntry struct {
	expiry   int64
	quantity float64
}

// Resource is a named, bounded, possibly decaying stock.
type Resource struct {
	Name   string  `json:"name"`
	Unit   string  `json:"unit,omitempty"`
	Max    float64 `json:"max"`
	Amount float64 `json:"amount"`
	Life   int64   `json:"life,omitempty"` // Seconds before produced quantity decays (0 = never)

	decay            []decayEntry // Ascending by expiry
	catalystReserved float64      // Reset every tick
}

// NewResource creates a resource with unbounded capacity.
func NewResource(name string) *Resource {
	return &Resource{
		Name: name,
		Max:  math.Inf(1),
	}
}

// Available returns the amount not committed as a catalyst this tick.
func (r *Resource) Available() float64 {
	return r.Amount - r.catalystReserved
}

// CatalystReserved returns how much of the amount is held as a catalyst this tick.
func (r *Resource) CatalystReserved() float64 {
	return r.catalystReserved
}

// Headroom returns the remaining capacity.
func (r *Resource) Headroom() float64 {
	return r.Max - r.Amount
}

// Pending returns the total quantity still waiting to decay.
func (r *Resource) Pending() float64 {
	total := 0.0
	for _, d := range r.decay {
		total += d.quantity
	}
	return total
}

// NextDecay returns the earliest scheduled decay, if any.
func (r *Resource) NextDecay() (expiry int64, quantity float64, ok bool) {
	if len(r.decay) == 0 {
		return 0, 0, false
	}
	return r.decay[0].expiry, r.decay[0].quantity, true
}

// Ledger owns resource state in definition order.
type Ledger struct {
	order []*Resource
	index map[string]*Resource
}

// NewLedger builds a ledger. Later duplicates of a name replace earlier ones
// but keep the first position.
func NewLedger(resources []*Resource) *Ledger {
	l := &Ledger{
		order: make([]*Resource, 0, len(resources)),
		index: make(map[string]*Resource, len(resources)),
	}
	for _, r := range resources {
		if r == nil {
			continue
		}
		if prev, ok := l.index[r.Name]; ok {
			for i, o := range l.order {
				if o == prev {
					l.order[i] = r
				}
			}
		} else {
			l.order = append(l.order, r)
		}
		l.index[r.Name] = r
	}
	return l
}

// Get looks up a resource by name.
func (l *Ledger) Get(name string) (*Resource, bool) {
	r, ok := l.index[name]
	return r, ok
}

// Resources returns resources in definition order.
func (l *Ledger) Resources() []*Resource {
	return l.order
}

// Names returns resource names in definition order.
func (l *Ledger) Names() []string {
	names := make([]string, len(l.order))
	for i, r := range l.order {
		names[i] = r.Name
	}
	return names
}

// Len returns the number of resources.
func (l *Ledger) Len() int {
	return len(l.order)
}

// Decay removes every queued quantity whose expiry is at or before now.
// It returns the resources left with a negative amount.
func (l *Ledger) Decay(now int64) []*Resource {
	var negative []*Resource
	for _, r := range l.order {
		popped := 0
		for popped < len(r.decay) && r.decay[popped].expiry <= now {
			r.Amount -= r.decay[popped].quantity
			popped++
		}
		if popped == 0 {
			continue
		}
		r.decay = r.decay[popped:]
		if r.Amount < 0 {
			negative = append(negative, r)
		}
	}
	return negative
}

// ApplyDelta adjusts a resource's amount. When life > 0 and delta > 0 the
// added quantity is scheduled to decay at now+life. Returns false for unknown names.
func (l *Ledger) ApplyDelta(name string, delta float64, life, now int64) bool {
	r, ok := l.index[name]
	if !ok {
		return false
	}
	r.Amount += delta
	if life > 0 && delta > 0 {
		entry := decayEntry{expiry: now + life, quantity: delta}
		// Life is constant and time only moves forward, so this is almost
		// always a plain append.
		i := len(r.decay)
		for i > 0 && r.decay[i-1].expiry > entry.expiry {
			i--
		}
		r.decay = append(r.decay, decayEntry{})
		copy(r.decay[i+1:], r.decay[i:])
		r.decay[i] = entry
	}
	return true
}

// ReserveCatalyst marks qty of a resource as held by a catalyst this tick.
func (l *Ledger) ReserveCatalyst(name string, qty float64) bool {
	r, ok := l.index[name]
	if !ok {
		return false
	}
	r.catalystReserved += qty
	return true
}

// ResetCatalystScratch zeroes every catalyst reservation.
func (l *Ledger) ResetCatalystScratch() {
	for _, r := range l.order {
		r.catalystReserved = 0
	}
}
