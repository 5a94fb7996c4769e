package engine

import "log/slog"

// AnomalyKind classifies a modelling anomaly.
type AnomalyKind string

const (
	AnomalyNegativeAmount AnomalyKind = "negative_amount"      // End of tick amount below zero
	AnomalyNegativeDecay  AnomalyKind = "negative_after_decay" // Decay drove the amount below zero
	AnomalyOverCapacity   AnomalyKind = "over_capacity"        // Amount above max
	AnomalyZeroCapacity   AnomalyKind = "zero_capacity"        // On-use pool without a usable budget
)

// maxAnomalies bounds the in-memory anomaly log.
const maxAnomalies = 1000

// Anomaly is a notable modelling signal. It never stops the simulation.
type Anomaly struct {
	Time    int64       `json:"time" db:"time"`
	Kind    AnomalyKind `json:"kind" db:"kind"`
	Subject string      `json:"subject" db:"subject"` // Resource or pool name
	Value   float64     `json:"value" db:"value"`
}

func (s *Simulation) recordAnomaly(a Anomaly) {
	s.Stats.Anomalies++
	s.anomalies = append(s.anomalies, a)
	if len(s.anomalies) > maxAnomalies {
		s.anomalies = s.anomalies[len(s.anomalies)-maxAnomalies:]
	}
	slog.Warn("anomaly",
		"kind", a.Kind,
		"subject", a.Subject,
		"value", a.Value,
		"time", SimTime(a.Time),
	)
}

// Anomalies returns the most recent anomalies, oldest first.
func (s *Simulation) Anomalies() []Anomaly {
	out := make([]Anomaly, len(s.anomalies))
	copy(out, s.anomalies)
	return out
}

// DrainAnomalies returns the recorded anomalies and clears the log.
func (s *Simulation) DrainAnomalies() []Anomaly {
	out := s.anomalies
	s.anomalies = nil
	return out
}
