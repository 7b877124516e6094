package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/talgya/mobility/internal/engine"
	"github.com/talgya/mobility/internal/persistence"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a simulation to completion and print a summary",
		Long: `Run a simulation headless for the configured number of rounds, then print
per-class outcomes. With --db the run is archived to SQLite.

Examples:
  mobility run --agents 200 --rounds 100
  mobility run --policy threshold --seed 7 --json
  mobility run --only "Day Labor,Odd Jobs" --db data/mobility.db`,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := loadSetup(cmd)
			if err != nil {
				return err
			}
			// Headless runs go flat out unless asked to pace themselves.
			if !cmd.Flags().Changed("interval") {
				st.cfg.Simulation.RoundInterval = 0
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			result, err := runSimulation(ctx, st)
			if err != nil {
				return err
			}

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}
			writeSummary(cmd.OutOrStdout(), result)
			return nil
		},
	}
	addSimulationFlags(cmd)
	cmd.Flags().Duration("interval", 0, "Delay between rounds (e.g. 200ms)")
	return cmd
}

// runResult is what the run command reports.
type runResult struct {
	RunID       string              `json:"run_id,omitempty"`
	Seed        int64               `json:"seed"`
	Policy      string              `json:"policy"`
	Agents      int                 `json:"agents"`
	Rounds      int                 `json:"rounds"`
	Interrupted bool                `json:"interrupted,omitempty"`
	Attempts    int                 `json:"attempts"`
	Successes   int                 `json:"successes"`
	Final       engine.RoundStats   `json:"final"`
	Dropouts    []engine.Event      `json:"dropouts"`
	History     []engine.RoundStats `json:"-"`
}

// runSimulation runs one simulation headless, archiving it when persistence
// is enabled. Cancelling ctx ends the run early with a partial result.
func runSimulation(ctx context.Context, st *setup) (runResult, error) {
	cfg := st.cfg.Simulation
	sim := engine.NewSimulation(st.options(), st.catalog)
	eng := engine.NewEngine(sim)
	eng.Interval = cfg.RoundInterval
	eng.SetMaxRounds(cfg.Rounds)

	result := runResult{
		Seed:   cfg.Seed,
		Policy: cfg.Policy().String(),
		Agents: cfg.Agents,
	}

	db, err := st.openArchive()
	if err != nil {
		return result, err
	}
	var rec *persistence.Recorder
	if db != nil {
		defer db.Close()
		rec = persistence.NewRecorder(db, sim)
		run, err := rec.Begin(cfg.Rounds)
		if err != nil {
			return result, err
		}
		result.RunID = run.ID
	}

	eng.OnRound = func(snap engine.Snapshot) {
		logRound(snap)
		if rec != nil {
			if err := rec.Record(snap); err != nil {
				slog.Error("archive round failed", "round", snap.Round, "error", err)
			}
		}
	}

	start := time.Now()
	if err := eng.Run(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			return result, err
		}
		result.Interrupted = true
		slog.Info("run interrupted", "round", sim.CurrentRound())
	}
	slog.Info("run finished", "rounds", sim.CurrentRound(), "elapsed", time.Since(start).Round(time.Millisecond))

	if rec != nil {
		if err := rec.Finish(); err != nil {
			return result, err
		}
	}

	result.Rounds = sim.CurrentRound()
	result.Final = sim.Stats()
	result.History = sim.StatsHistory()
	for _, r := range result.History {
		result.Attempts += r.Attempts
		result.Successes += r.Successes
	}
	result.Dropouts = sim.Events(0, engine.CategoryDropout)
	if result.Dropouts == nil {
		result.Dropouts = []engine.Event{}
	}
	return result, nil
}
