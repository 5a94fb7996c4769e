// Package engine provides the tick-based simulation loop.
package engine

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// Time scales in simulated seconds. One tick is one second.
const (
	SecondsPerMinute = 60
	SecondsPerHour   = 3600
	SecondsPerDay    = 86400
	SecondsPerWeek   = 604800   // 7 days
	SecondsPerYear   = 31557600 // 365.25 days
)

// Engine drives the simulation clock forward one second at a time.
type Engine struct {
	Now         int64  // Unix time of the next tick
	Tick        uint64 // Ticks completed (monotonic, never resets)
	ReportEvery uint64 // Ticks per reporting interval (0 = never report)

	running atomic.Bool

	// Callbacks populated during setup.
	OnTick   func(now int64)       // Every tick
	OnReport func(now int64) error // Every ReportEvery ticks, after OnTick
}

// NewEngine creates an engine whose first tick happens at start.
func NewEngine(start time.Time) *Engine {
	return &Engine{
		Now:         start.Unix(),
		ReportEvery: 1,
	}
}

// Run advances the clock by ticks seconds, or until Stop is called.
// Stop takes effect between ticks, never inside one.
func (e *Engine) Run(ticks uint64) error {
	e.running.Store(true)
	defer e.running.Store(false)
	slog.Debug("simulation engine started", "tick", e.Tick, "time", SimTime(e.Now), "ticks", ticks)

	for i := uint64(0); i < ticks; i++ {
		if !e.running.Load() {
			slog.Info("simulation engine stopped early", "tick", e.Tick, "time", SimTime(e.Now))
			return nil
		}
		if err := e.step(); err != nil {
			return err
		}
	}

	slog.Debug("simulation engine finished", "tick", e.Tick, "time", SimTime(e.Now))
	return nil
}

// Running reports whether Run is in progress.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// Stop halts the loop before the next tick. Safe to call from another goroutine.
func (e *Engine) Stop() {
	e.running.Store(false)
}

// step runs one tick at Now, then advances the clock.
func (e *Engine) step() error {
	now := e.Now

	if e.OnTick != nil {
		e.OnTick(now)
	}
	e.Tick++
	e.Now++

	if e.ReportEvery > 0 && e.Tick%e.ReportEvery == 0 && e.OnReport != nil {
		if err := e.OnReport(now); err != nil {
			return fmt.Errorf("report at tick %d: %w", e.Tick, err)
		}
	}
	return nil
}

// SimTime returns a human-readable UTC time for a unix timestamp.
func SimTime(now int64) string {
	return time.Unix(now, 0).UTC().Format("Mon 2006-01-02 15:04:05 UTC")
}
