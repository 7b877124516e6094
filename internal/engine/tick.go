// Package engine provides the round-based simulation loop.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrRunning is returned by Run when the engine is already running.
var ErrRunning = errors.New("engine already running")

// pausePoll is how often a paused engine checks whether it was resumed.
const pausePoll = 100 * time.Millisecond

// Engine drives the simulation forward one round at a time. Cancellation,
// pausing and stopping are observed between rounds only.
type Engine struct {
	Sim      *Simulation
	Interval time.Duration // Base round interval at speed 1.

	// OnRound is called after every round with its snapshot.
	OnRound func(Snapshot)

	mu        sync.Mutex
	speed     float64 // 1.0 = one round per Interval, 0 = paused.
	maxRounds int     // 0 = run until stopped.
	running   bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewEngine creates an engine for sim with default settings.
func NewEngine(sim *Simulation) *Engine {
	return &Engine{
		Sim:      sim,
		Interval: 500 * time.Millisecond,
		speed:    1.0,
	}
}

// Speed returns the current speed multiplier.
func (e *Engine) Speed() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.speed
}

// SetSpeed sets the speed multiplier. Zero or negative pauses the engine.
func (e *Engine) SetSpeed(speed float64) {
	e.mu.Lock()
	e.speed = speed
	e.mu.Unlock()
}

// Pause holds the engine between rounds.
func (e *Engine) Pause() { e.SetSpeed(0) }

// Resume continues a paused engine at normal speed.
func (e *Engine) Resume() {
	e.mu.Lock()
	if e.speed <= 0 {
		e.speed = 1.0
	}
	e.mu.Unlock()
}

// Paused reports whether the engine is holding between rounds.
func (e *Engine) Paused() bool {
	return e.Speed() <= 0
}

// MaxRounds returns the round limit, 0 meaning unlimited.
func (e *Engine) MaxRounds() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.maxRounds
}

// SetMaxRounds sets the round limit, 0 meaning unlimited.
func (e *Engine) SetMaxRounds(n int) {
	e.mu.Lock()
	e.maxRounds = n
	e.mu.Unlock()
}

// Running reports whether Run is active.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Complete reports whether the simulation has reached the round limit.
func (e *Engine) Complete() bool {
	limit := e.MaxRounds()
	return limit > 0 && e.Sim.CurrentRound() >= limit
}

// Run advances the simulation until the round limit is reached, ctx is
// cancelled, or Stop is called. It returns ctx's error on cancellation and
// nil otherwise. A round in progress always completes.
func (e *Engine) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		cancel()
		return ErrRunning
	}
	e.running = true
	e.cancel = cancel
	e.done = done
	e.mu.Unlock()

	defer func() {
		cancel()
		e.mu.Lock()
		e.running = false
		e.cancel = nil
		e.done = nil
		e.mu.Unlock()
		close(done)
	}()

	slog.Info("simulation engine started", "round", e.Sim.CurrentRound(), "max_rounds", e.MaxRounds(), "speed", e.Speed())

	for {
		if e.Complete() {
			slog.Info("simulation complete", "round", e.Sim.CurrentRound())
			return nil
		}
		if runCtx.Err() != nil {
			break
		}

		speed := e.Speed()
		if speed <= 0 {
			// Paused: sleep briefly and check again.
			if !sleep(runCtx, pausePoll) {
				break
			}
			continue
		}

		start := time.Now()
		snap := e.Sim.RunRound()
		if e.OnRound != nil {
			e.OnRound(snap)
		}

		// Sleep for the remainder of the round interval, adjusted for speed.
		elapsed := time.Since(start)
		target := time.Duration(float64(e.Interval) / speed)
		if elapsed < target && !sleep(runCtx, target-elapsed) {
			break
		}
	}

	slog.Info("simulation engine stopped", "round", e.Sim.CurrentRound())
	return ctx.Err()
}

// Stop halts the engine after the current round and waits for Run to return.
// It must not be called from OnRound.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel, done := e.cancel, e.done
	e.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// sleep waits for d or until ctx is done. It reports whether the full
// duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
