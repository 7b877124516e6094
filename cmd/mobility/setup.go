package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/talgya/mobility/internal/agents"
	"github.com/talgya/mobility/internal/config"
	"github.com/talgya/mobility/internal/economy"
	"github.com/talgya/mobility/internal/engine"
	"github.com/talgya/mobility/internal/logging"
	"github.com/talgya/mobility/internal/persistence"
)

// addSimulationFlags registers the flags shared by run and serve.
func addSimulationFlags(cmd *cobra.Command) {
	cmd.Flags().Int("agents", 0, "Number of agents (1-500)")
	cmd.Flags().Int("rounds", 0, "Number of rounds (1-200)")
	cmd.Flags().Int64("seed", 0, "Random seed")
	cmd.Flags().String("policy", "", "Dropout policy: pressure or threshold")
	cmd.Flags().String("catalog", "", "Path to a YAML task catalog")
	cmd.Flags().StringSlice("only", nil, "Restrict the catalog to these task names")
	cmd.Flags().String("db", "", "Archive the run to this SQLite file")
}

// setup holds everything a command needs to build a simulation.
type setup struct {
	cfg     *config.Config
	catalog []agents.Task
}

// loadSetup reads config, applies flag overrides, installs the logger and
// loads the task catalog.
func loadSetup(cmd *cobra.Command) (*setup, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if err := applyFlags(cmd, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	slog.SetDefault(logging.NewLogger(cfg.Logging.Level, cmd.ErrOrStderr()))

	catalog := economy.DefaultCatalog()
	if cfg.Simulation.CatalogPath != "" {
		catalog, err = economy.LoadCatalog(cfg.Simulation.CatalogPath)
		if err != nil {
			return nil, err
		}
	}
	if cmd.Flags().Lookup("only") != nil {
		if only, _ := cmd.Flags().GetStringSlice("only"); len(only) > 0 {
			catalog, err = economy.FilterCatalog(catalog, only...)
			if err != nil {
				return nil, err
			}
		}
	}

	return &setup{cfg: cfg, catalog: catalog}, nil
}

// applyFlags overrides config values with flags the user set explicitly.
// Commands register different subsets, so unknown flags are skipped.
func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	changed := func(name string) bool {
		f := flags.Lookup(name)
		return f != nil && f.Changed
	}

	if changed("log-level") {
		cfg.Logging.Level, _ = flags.GetString("log-level")
	}
	if changed("agents") {
		cfg.Simulation.Agents, _ = flags.GetInt("agents")
	}
	if changed("rounds") {
		cfg.Simulation.Rounds, _ = flags.GetInt("rounds")
	}
	if changed("seed") {
		cfg.Simulation.Seed, _ = flags.GetInt64("seed")
	}
	if changed("policy") {
		cfg.Simulation.DropoutPolicy, _ = flags.GetString("policy")
	}
	if changed("catalog") {
		cfg.Simulation.CatalogPath, _ = flags.GetString("catalog")
	}
	if changed("interval") {
		cfg.Simulation.RoundInterval, _ = flags.GetDuration("interval")
	}
	if changed("port") {
		cfg.Server.Port, _ = flags.GetInt("port")
	}
	if changed("db") {
		db, _ := flags.GetString("db")
		if db == "" {
			return fmt.Errorf("--db needs a path")
		}
		cfg.Persistence.DBPath = db
		cfg.Persistence.Enabled = true
	}
	return nil
}

// options converts the simulation config into engine options.
func (s *setup) options() engine.Options {
	sim := s.cfg.Simulation
	return engine.Options{
		Agents:        sim.Agents,
		Seed:          sim.Seed,
		HistoryWindow: sim.HistoryWindow,
		Policy:        sim.Policy(),
	}
}

// openArchive opens the report archive when persistence is enabled.
// It returns nil without error when it is disabled.
func (s *setup) openArchive() (*persistence.DB, error) {
	if !s.cfg.Persistence.Enabled {
		return nil, nil
	}
	path := s.cfg.Persistence.DBPath
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create archive directory: %w", err)
		}
	}
	db, err := persistence.Open(path)
	if err != nil {
		return nil, err
	}
	slog.Info("archive opened", "path", path)
	return db, nil
}

// logRound is the OnRound hook shared by run and serve.
func logRound(snap engine.Snapshot) {
	slog.Debug("round complete",
		"round", snap.Round,
		"alive", snap.Alive,
		"dropouts", snap.Dropouts,
		"successes", snap.Successes,
		"attempts", snap.Attempts,
	)
	ctx := context.Background()
	if !slog.Default().Enabled(ctx, logging.LevelTrace) {
		return
	}
	for _, a := range snap.Agents {
		if a.Alive {
			slog.Log(ctx, logging.LevelTrace, "agent",
				"round", snap.Round, "id", a.ID, "task", a.LastTask,
				"succeeded", a.LastTaskSucceeded, "money", a.Money, "confidence", a.Confidence)
		}
	}
}
