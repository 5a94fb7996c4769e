package economy

import (
	"fmt"
	"log/slog"
)

// Quantity is one entry of an ordered name→amount mapping.
type Quantity struct {
	Name   string  `json:"name"`
	Amount float64 `json:"amount"`
}

// Range is an inclusive interval of time values modulo a constraint's Modulo.
// Start > End wraps across the modulo boundary.
type Range struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// Contains reports whether t (already reduced modulo) lies in the range.
func (r Range) Contains(t int64) bool {
	if r.Start <= r.End {
		return t >= r.Start && t <= r.End
	}
	return t >= r.Start || t <= r.End
}

// Constraint admits times whose value modulo Modulo falls in any range.
type Constraint struct {
	Modulo int64   `json:"modulo"`
	Ranges []Range `json:"ranges"`
}

// Process is a timed transformation rule. A positive OnUse makes it a pool
// that other processes draw on by name through their Input.
type Process struct {
	Name           string       `json:"name"`
	Input          []Quantity   `json:"input,omitempty"`
	Output         []Quantity   `json:"output,omitempty"`
	Catalyst       []Quantity   `json:"catalyst,omitempty"`
	Period         int64        `json:"period"`
	PeriodDelta    int64        `json:"period_delta,omitempty"`
	Constraints    []Constraint `json:"constraints,omitempty"`
	MaxConcurrency int          `json:"max_concurrency"`
	OnUse          float64      `json:"on_use,omitempty"`
}

// NewProcess creates a process due every second with a concurrency of one.
func NewProcess(name string) *Process {
	return &Process{
		Name:           name,
		Period:         1,
		MaxConcurrency: 1,
	}
}

// IsPool reports whether the process is an on-use pool.
func (p *Process) IsPool() bool {
	return p.OnUse > 0
}

// SplitProcesses separates ordinary processes from on-use pools, keeping order.
func SplitProcesses(all []*Process) (ordinary, onUse []*Process) {
	for _, p := range all {
		if p.IsPool() {
			onUse = append(onUse, p)
		} else {
			ordinary = append(ordinary, p)
		}
	}
	return ordinary, onUse
}

// Pool is the per-tick accounting of an on-use process.
type Pool struct {
	Process   *Process
	Reserved  bool    // Own inputs were debited this tick
	Available float64 // Unspent budget
	Drawn     float64 // Budget consumed by other processes
}

// Capacity returns the pool's nominal per-tick budget.
func (p *Pool) Capacity() float64 {
	return p.Process.OnUse
}

// Reserve makes the full capacity available.
func (p *Pool) Reserve() {
	p.Reserved = true
	p.Available = p.Process.OnUse
	p.Drawn = 0
}

// Disable makes the pool unusable for the tick.
func (p *Pool) Disable() {
	p.Reserved = false
	p.Available = 0
	p.Drawn = 0
}

// Draw consumes qty of the remaining budget. Float dust below zero is
// snapped back so Available never goes negative.
func (p *Pool) Draw(qty float64) {
	p.Available -= qty
	p.Drawn += qty
	if p.Available < 0 && p.Available > -1e-9*p.Process.OnUse {
		p.Drawn += p.Available
		p.Available = 0
	}
}

// Utilization returns the fraction of capacity drawn this tick.
func (p *Pool) Utilization() float64 {
	if p.Process.OnUse <= 0 {
		return 0
	}
	return p.Drawn / p.Process.OnUse
}

// Problem describes a definition error that makes a process non-runnable.
type Problem struct {
	Process string `json:"process"`
	Reason  string `json:"reason"`
}

func (p Problem) String() string {
	return fmt.Sprintf("%s: %s", p.Process, p.Reason)
}

// Registry holds the immutable process definitions and their pool scratch.
type Registry struct {
	processes []*Process
	pools     []*Pool
	poolIndex map[string]*Pool
	disabled  map[string]string // process name → reason
}

// NewRegistry builds a registry and validates every ordinary process against
// the ledger. Invalid processes stay registered but never run.
func NewRegistry(ledger *Ledger, processes, onUse []*Process) *Registry {
	reg := &Registry{
		processes: processes,
		pools:     make([]*Pool, 0, len(onUse)),
		poolIndex: make(map[string]*Pool, len(onUse)),
		disabled:  make(map[string]string),
	}
	for _, p := range onUse {
		pool := &Pool{Process: p}
		reg.pools = append(reg.pools, pool)
		reg.poolIndex[p.Name] = pool
	}

	for _, p := range processes {
		if reason := reg.validate(ledger, p); reason != "" {
			reg.disabled[p.Name] = reason
			slog.Warn("process will never run", "process", p.Name, "reason", reason)
		}
	}
	for _, pool := range reg.pools {
		for _, q := range pool.Process.Input {
			if _, ok := ledger.Get(q.Name); !ok {
				slog.Warn("pool input is not a resource, pool will stay unusable",
					"pool", pool.Process.Name, "input", q.Name)
			}
		}
	}
	return reg
}

func (reg *Registry) validate(ledger *Ledger, p *Process) string {
	if p.Period <= 0 {
		return fmt.Sprintf("period must be positive, got %d", p.Period)
	}
	if p.MaxConcurrency < 1 {
		return fmt.Sprintf("max_concurrency must be at least 1, got %d", p.MaxConcurrency)
	}
	for _, c := range p.Constraints {
		if c.Modulo <= 0 {
			return fmt.Sprintf("constraint modulo must be positive, got %d", c.Modulo)
		}
	}
	catalysts := make(map[string]bool, len(p.Catalyst))
	for _, q := range p.Catalyst {
		if q.Amount < 0 {
			return fmt.Sprintf("negative catalyst quantity for %q", q.Name)
		}
		if _, ok := ledger.Get(q.Name); !ok {
			return fmt.Sprintf("unknown catalyst %q", q.Name)
		}
		catalysts[q.Name] = true
	}
	for _, q := range p.Input {
		if q.Amount < 0 {
			return fmt.Sprintf("negative input quantity for %q", q.Name)
		}
		if catalysts[q.Name] {
			return fmt.Sprintf("%q is both an input and a catalyst", q.Name)
		}
		if _, ok := ledger.Get(q.Name); ok {
			continue
		}
		if _, ok := reg.poolIndex[q.Name]; !ok {
			return fmt.Sprintf("unknown input %q", q.Name)
		}
	}
	for _, q := range p.Output {
		if q.Amount < 0 {
			return fmt.Sprintf("negative output quantity for %q", q.Name)
		}
		if _, ok := ledger.Get(q.Name); !ok {
			return fmt.Sprintf("unknown output %q", q.Name)
		}
	}
	return ""
}

// Processes returns the ordinary processes in definition order.
func (reg *Registry) Processes() []*Process {
	return reg.processes
}

// Pools returns the on-use pools in definition order.
func (reg *Registry) Pools() []*Pool {
	return reg.pools
}

// Pool looks up an on-use pool by name.
func (reg *Registry) Pool(name string) (*Pool, bool) {
	p, ok := reg.poolIndex[name]
	return p, ok
}

// Runnable reports whether a process passed definition checks.
func (reg *Registry) Runnable(p *Process) bool {
	_, bad := reg.disabled[p.Name]
	return !bad
}

// Problems lists the definition errors found at construction, in process order.
func (reg *Registry) Problems() []Problem {
	var out []Problem
	for _, p := range reg.processes {
		if reason, ok := reg.disabled[p.Name]; ok {
			out = append(out, Problem{Process: p.Name, Reason: reason})
		}
	}
	return out
}
