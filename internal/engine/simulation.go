// Simulation ties the ledger, the registry and the reporting sink together
// and runs the per-tick phases.
package engine

import (
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/talgya/reson/internal/economy"
	"github.com/talgya/reson/internal/report"
)

// Simulation holds the complete economy state.
type Simulation struct {
	Ledger   *economy.Ledger
	Registry *economy.Registry

	eng   *Engine
	sink  report.Sink
	stats *intervalStats

	headerWritten bool
	anomalies     []Anomaly
	zeroCapWarned map[string]bool

	// Statistics over the whole run.
	Stats SimStats
}

// New creates a simulation starting at the current wall-clock second with a
// reporting interval of one tick and no sink.
func New(resources []*economy.Resource, processes, onUse []*economy.Process) *Simulation {
	ledger := economy.NewLedger(resources)
	reg := economy.NewRegistry(ledger, processes, onUse)

	s := &Simulation{
		Ledger:        ledger,
		Registry:      reg,
		eng:           NewEngine(time.Now()),
		sink:          report.Discard{},
		stats:         newIntervalStats(ledger.Len(), len(reg.Pools())),
		zeroCapWarned: make(map[string]bool),
	}
	s.eng.OnTick = s.tick
	s.eng.OnReport = s.emit

	for _, r := range ledger.Resources() {
		if r.Amount > r.Max {
			slog.Warn("resource starts above its max", "resource", r.Name, "amount", r.Amount, "max", r.Max)
		}
	}
	return s
}

// SetStartTime sets the time of the next tick.
func (s *Simulation) SetStartTime(t time.Time) {
	s.eng.Now = t.Unix()
}

// SetReportingInterval sets how many seconds each report row covers.
// Zero disables reporting.
func (s *Simulation) SetReportingInterval(seconds uint64) {
	s.eng.ReportEvery = seconds
}

// SetSink replaces the reporting sink. A nil sink discards rows.
func (s *Simulation) SetSink(sink report.Sink) {
	if sink == nil {
		sink = report.Discard{}
	}
	s.sink = sink
	s.headerWritten = false
}

// Header describes the columns this simulation reports.
func (s *Simulation) Header() report.Header {
	h := report.Header{Resources: s.Ledger.Names()}
	for _, p := range s.Registry.Pools() {
		h.Pools = append(h.Pools, p.Process.Name)
	}
	return h
}

// Now returns the unix time of the next tick.
func (s *Simulation) Now() int64 {
	return s.eng.Now
}

// Time returns the time of the next tick.
func (s *Simulation) Time() time.Time {
	return time.Unix(s.eng.Now, 0).UTC()
}

// Run advances the simulation by duration seconds. Only a sink failure
// returns an error; the ticks completed before it remain applied.
func (s *Simulation) Run(duration uint64) error {
	if err := s.writeHeader(); err != nil {
		return err
	}
	return s.eng.Run(duration)
}

// Stop ends a running Run after the current tick.
func (s *Simulation) Stop() {
	s.eng.Stop()
}

// Step runs exactly one tick, reporting if it closes an interval.
func (s *Simulation) Step() error {
	if err := s.writeHeader(); err != nil {
		return err
	}
	return s.eng.step()
}

func (s *Simulation) writeHeader() error {
	if s.headerWritten {
		return nil
	}
	if err := s.sink.WriteHeader(s.Header()); err != nil {
		return fmt.Errorf("write report header: %w", err)
	}
	s.headerWritten = true
	return nil
}

// tick runs one simulated second. The phases are strictly ordered: pools
// reserve before any consumer draws and settle after all have drawn.
func (s *Simulation) tick(now int64) {
	for _, r := range s.Ledger.Decay(now) {
		s.recordAnomaly(Anomaly{Time: now, Kind: AnomalyNegativeDecay, Subject: r.Name, Value: r.Amount})
	}
	s.reservePools(now)
	s.Ledger.ResetCatalystScratch()
	s.executeProcesses(now)
	s.settlePools(now)
	s.stats.sample(s.Ledger, s.Registry.Pools())
	s.checkInvariants(now)
	s.Stats.Ticks++
}

// delta is one planned ledger or pool change.
type delta struct {
	name     string
	amount   float64
	life     int64
	pool     *economy.Pool
	catalyst bool
}

// plan computes every change n invocations of p make, without applying them.
func (s *Simulation) plan(p *economy.Process, n int) []delta {
	k := float64(n)
	out := make([]delta, 0, len(p.Input)+len(p.Catalyst)+len(p.Output))
	for _, q := range p.Input {
		if _, ok := s.Ledger.Get(q.Name); ok {
			out = append(out, delta{name: q.Name, amount: -q.Amount * k})
		} else if pool, ok := s.Registry.Pool(q.Name); ok {
			out = append(out, delta{name: q.Name, amount: q.Amount * k, pool: pool})
		}
	}
	for _, q := range p.Catalyst {
		out = append(out, delta{name: q.Name, amount: q.Amount * k, catalyst: true})
	}
	for _, q := range p.Output {
		var life int64
		if r, ok := s.Ledger.Get(q.Name); ok {
			life = r.Life
		}
		out = append(out, delta{name: q.Name, amount: q.Amount * k, life: life})
	}
	return out
}

func (s *Simulation) apply(changes []delta, now int64) {
	for _, d := range changes {
		switch {
		case d.pool != nil:
			d.pool.Draw(d.amount)
		case d.catalyst:
			s.Ledger.ReserveCatalyst(d.name, d.amount)
		default:
			s.Ledger.ApplyDelta(d.name, d.amount, d.life, now)
		}
	}
}

// executeProcesses fires every due ordinary process as many times as its
// limits allow, in registry order.
func (s *Simulation) executeProcesses(now int64) {
	for _, p := range s.Registry.Processes() {
		if !Due(p, now) {
			continue
		}
		n := s.MaxInvocations(p)
		if n == 0 {
			continue
		}
		s.apply(s.plan(p, n), now)
		s.Stats.Invocations += uint64(n)
	}
}

// checkInvariants reports resources outside [0, max]. Values are left as is.
func (s *Simulation) checkInvariants(now int64) {
	for _, r := range s.Ledger.Resources() {
		if r.Amount < -tolerance {
			s.recordAnomaly(Anomaly{Time: now, Kind: AnomalyNegativeAmount, Subject: r.Name, Value: r.Amount})
		}
		if r.Amount > r.Max*(1+tolerance) {
			s.recordAnomaly(Anomaly{Time: now, Kind: AnomalyOverCapacity, Subject: r.Name, Value: r.Amount})
		}
	}
}

// emit closes the current reporting interval.
func (s *Simulation) emit(now int64) error {
	row := s.stats.row(now, s.Ledger)
	s.Stats.Rows++
	slog.Debug("report", "time", SimTime(now), "row", s.Stats.Rows)
	if err := s.sink.WriteRow(row); err != nil {
		return fmt.Errorf("write report row: %w", err)
	}
	return nil
}

// Snapshot returns a human-readable view of the current state.
func (s *Simulation) Snapshot() string {
	var b strings.Builder
	fmt.Fprintf(&b, "State at %s:\n", SimTime(s.eng.Now))
	for _, r := range s.Ledger.Resources() {
		fmt.Fprintf(&b, "  %s: %s", r.Name, humanize.Commaf(r.Amount))
		if r.Unit != "" {
			fmt.Fprintf(&b, " %s", r.Unit)
		}
		if !math.IsInf(r.Max, 1) {
			fmt.Fprintf(&b, " (max %s)", humanize.Commaf(r.Max))
		}
		if pending := r.Pending(); pending > 0 {
			fmt.Fprintf(&b, " [%s decaying]", humanize.Commaf(pending))
		}
		b.WriteByte('\n')
	}
	for _, p := range s.Registry.Pools() {
		fmt.Fprintf(&b, "  %s: pool %s/tick, %.0f%% used last tick\n",
			p.Process.Name, humanize.Commaf(p.Capacity()), 100*p.Utilization())
	}
	if problems := s.Registry.Problems(); len(problems) > 0 {
		fmt.Fprintf(&b, "  %d process(es) cannot run\n", len(problems))
	}
	return b.String()
}
