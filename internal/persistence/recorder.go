package persistence

import (
	"errors"
	"fmt"
	"sync"

	"github.com/talgya/mobility/internal/engine"
)

// ErrNoRun is returned when rounds are recorded before Begin.
var ErrNoRun = errors.New("no archive run started")

// DefaultSnapshotEvery is how many rounds pass between agent snapshots.
const DefaultSnapshotEvery = 10

// Recorder archives a live simulation into its current run. Begin opens a new
// run after every reset; Record and Finish write into it.
type Recorder struct {
	DB            *DB
	Sim           *engine.Simulation
	SnapshotEvery int

	mu  sync.Mutex
	run *Run
}

// NewRecorder creates a recorder for sim backed by db.
func NewRecorder(db *DB, sim *engine.Simulation) *Recorder {
	return &Recorder{DB: db, Sim: sim, SnapshotEvery: DefaultSnapshotEvery}
}

// Begin registers a new run for the simulation's current options.
func (r *Recorder) Begin(maxRounds int) (Run, error) {
	run, err := r.DB.CreateRun(r.Sim.Options(), maxRounds, r.Sim.Catalog())
	if err != nil {
		return Run{}, err
	}
	r.mu.Lock()
	r.run = &run
	r.mu.Unlock()
	return run, nil
}

// Run returns the run being recorded, if any.
func (r *Recorder) Run() (Run, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.run == nil {
		return Run{}, false
	}
	return *r.run, true
}

// Record archives one round: its stats, the events it produced and, every
// SnapshotEvery rounds, the agents themselves.
func (r *Recorder) Record(snap engine.Snapshot) error {
	run, ok := r.Run()
	if !ok {
		return ErrNoRun
	}

	if err := r.DB.SaveRound(run.ID, snap.RoundStats); err != nil {
		return fmt.Errorf("save round %d: %w", snap.Round, err)
	}

	// Events carry the zero-based index of the round that produced them.
	var events []engine.Event
	for _, e := range r.Sim.Events(0, "") {
		if e.Round == snap.Round-1 && e.Category != engine.CategoryControl {
			events = append(events, e)
		}
	}
	if err := r.DB.SaveEvents(run.ID, events); err != nil {
		return fmt.Errorf("save events: %w", err)
	}

	if r.SnapshotEvery > 0 && snap.Round%r.SnapshotEvery == 0 {
		return r.DB.SaveSnapshot(run.ID, r.Sim)
	}
	return nil
}

// Finish writes the final agent snapshot of the current run.
func (r *Recorder) Finish() error {
	run, ok := r.Run()
	if !ok {
		return ErrNoRun
	}
	return r.DB.SaveSnapshot(run.ID, r.Sim)
}
