package persistence

import (
	"errors"
	"testing"

	"github.com/talgya/mobility/internal/economy"
	"github.com/talgya/mobility/internal/engine"
)

func TestRecorderArchivesRounds(t *testing.T) {
	db := openTestDB(t)
	sim := engine.NewSimulation(engine.Options{Agents: 15, Seed: 3}, economy.DefaultCatalog())
	rec := NewRecorder(db, sim)
	rec.SnapshotEvery = 4

	if err := rec.Record(sim.Snapshot()); !errors.Is(err, ErrNoRun) {
		t.Fatalf("Record before Begin = %v, want ErrNoRun", err)
	}

	run, err := rec.Begin(6)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	for i := 0; i < 6; i++ {
		if err := rec.Record(sim.RunRound()); err != nil {
			t.Fatalf("Record round %d: %v", i+1, err)
		}
	}

	stats, err := db.RoundStats(run.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(stats) != 6 || stats[5].Round != 6 {
		t.Fatalf("archived %d rounds", len(stats))
	}

	// The round-4 snapshot already holds every agent.
	alive, dropped, err := db.AgentCounts(run.ID)
	if err != nil {
		t.Fatal(err)
	}
	if alive+dropped != 15 {
		t.Errorf("snapshot holds %d agents, want 15", alive+dropped)
	}

	if err := rec.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	for _, a := range sim.Snapshot().Agents {
		live, _ := sim.AgentHistory(a.ID)
		archived, err := db.AgentHistory(run.ID, a.ID)
		if err != nil {
			t.Fatal(err)
		}
		if len(archived) != len(live) {
			t.Errorf("agent %d: archived %d entries, live %d", a.ID, len(archived), len(live))
		}
	}

	events, err := db.RecentEvents(run.ID, 1000)
	if err != nil {
		t.Fatal(err)
	}
	rounds := 0
	for _, e := range events {
		if e.Category == engine.CategoryControl {
			t.Errorf("control event archived: %+v", e)
		}
		if e.Category == engine.CategoryRound {
			rounds++
		}
	}
	if rounds != 6 {
		t.Errorf("archived %d round events, want 6", rounds)
	}
}

func TestRecorderBeginStartsNewRun(t *testing.T) {
	db := openTestDB(t)
	sim := engine.NewSimulation(engine.Options{Agents: 5, Seed: 9}, economy.DefaultCatalog())
	rec := NewRecorder(db, sim)

	first, err := rec.Begin(10)
	if err != nil {
		t.Fatal(err)
	}
	sim.Reset(engine.Options{Agents: 8, Seed: 10})
	second, err := rec.Begin(20)
	if err != nil {
		t.Fatal(err)
	}

	current, ok := rec.Run()
	if !ok || current.ID != second.ID || current.ID == first.ID {
		t.Errorf("current run = %+v, want the second run", current)
	}
	if current.Agents != 8 || current.MaxRounds != 20 {
		t.Errorf("second run = %+v", current)
	}
}
