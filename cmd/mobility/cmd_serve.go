package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/talgya/mobility/internal/api"
	"github.com/talgya/mobility/internal/engine"
	"github.com/talgya/mobility/internal/llm"
	"github.com/talgya/mobility/internal/persistence"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the simulation over HTTP",
		Long: `Serve the simulation over the HTTP API. Observers read state from the GET
endpoints and the SSE stream; admins start, pause, resume and reset runs
with POST /api/v1/control using the MOBILITY_ADMIN_KEY bearer token.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := loadSetup(cmd)
			if err != nil {
				return err
			}
			cfg := st.cfg

			sim := engine.NewSimulation(st.options(), st.catalog)
			eng := engine.NewEngine(sim)
			eng.Interval = cfg.Simulation.RoundInterval
			eng.SetMaxRounds(cfg.Simulation.Rounds)

			db, err := st.openArchive()
			if err != nil {
				return err
			}
			var rec *persistence.Recorder
			if db != nil {
				defer db.Close()
				rec = persistence.NewRecorder(db, sim)
			}

			eng.OnRound = func(snap engine.Snapshot) {
				logRound(snap)
				if rec != nil {
					if err := rec.Record(snap); err != nil {
						slog.Error("archive round failed", "round", snap.Round, "error", err)
					}
				}
			}

			client := llm.NewClient(cfg.LLM.APIKey, cfg.LLM.Model)
			if client.Enabled() {
				slog.Info("LLM client enabled", "model", client.Model())
			}

			srv := &api.Server{
				Sim:               sim,
				Eng:               eng,
				LLM:               client,
				Port:              cfg.Server.Port,
				AdminKey:          cfg.Server.AdminKey,
				CORSOrigins:       cfg.Server.CORSOrigins,
				NarrativesPerHour: cfg.LLM.MaxPerHour,
				DefaultRounds:     cfg.Simulation.Rounds,
				Archive:           rec,
			}

			if autostart, _ := cmd.Flags().GetBool("autostart"); autostart {
				srv.Launch(cfg.Simulation.Rounds)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			err = srv.Start(ctx)
			slog.Info("server stopped", "round", sim.CurrentRound())
			return err
		},
	}
	addSimulationFlags(cmd)
	cmd.Flags().Int("port", 0, "HTTP port")
	cmd.Flags().Duration("interval", 0, "Delay between rounds at speed 1")
	cmd.Flags().Bool("autostart", false, "Start the simulation immediately")
	return cmd
}
