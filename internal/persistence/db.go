// Package persistence provides the SQLite report archive. Runs, round
// statistics, agent summaries, agent histories and events are written as the
// simulation progresses so finished runs can be inspected later. The archive
// is write-mostly: it is never used to resume a simulation.
package persistence

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/mobility/internal/agents"
	"github.com/talgya/mobility/internal/engine"
)

// DB wraps a SQLite connection for the report archive.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_unix INTEGER NOT NULL,
		seed INTEGER NOT NULL,
		agents INTEGER NOT NULL,
		max_rounds INTEGER NOT NULL,
		policy TEXT NOT NULL,
		catalog_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS round_stats (
		run_id TEXT NOT NULL,
		round INTEGER NOT NULL,
		alive INTEGER NOT NULL,
		dropouts INTEGER NOT NULL,
		attempts INTEGER NOT NULL,
		successes INTEGER NOT NULL,
		unemployed INTEGER NOT NULL,
		new_dropouts INTEGER NOT NULL,
		mentored INTEGER NOT NULL,
		windfalls INTEGER NOT NULL,
		settled INTEGER NOT NULL,
		opportunities INTEGER NOT NULL,
		contagions INTEGER NOT NULL,
		classes_json TEXT NOT NULL,
		PRIMARY KEY (run_id, round)
	);

	CREATE TABLE IF NOT EXISTS agents (
		run_id TEXT NOT NULL,
		id INTEGER NOT NULL,
		round INTEGER NOT NULL,
		name TEXT NOT NULL,
		class TEXT NOT NULL,
		age INTEGER NOT NULL,
		alive INTEGER NOT NULL,
		talent REAL NOT NULL,
		money REAL NOT NULL,
		confidence REAL NOT NULL,
		competence REAL NOT NULL,
		aspiration REAL NOT NULL,
		risk_tolerance REAL NOT NULL,
		dropout_pressure REAL NOT NULL,
		social_capital REAL NOT NULL,
		last_task TEXT NOT NULL,
		last_task_succeeded INTEGER NOT NULL,
		PRIMARY KEY (run_id, id)
	);

	CREATE TABLE IF NOT EXISTS agent_history (
		run_id TEXT NOT NULL,
		agent_id INTEGER NOT NULL,
		round INTEGER NOT NULL,
		age INTEGER NOT NULL,
		task_name TEXT NOT NULL,
		difficulty REAL NOT NULL,
		success INTEGER NOT NULL,
		reward REAL NOT NULL,
		loss REAL NOT NULL,
		confidence REAL NOT NULL,
		competence REAL NOT NULL,
		aspiration REAL NOT NULL,
		risk_tolerance REAL NOT NULL,
		money REAL NOT NULL,
		PRIMARY KEY (run_id, agent_id, round)
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		round INTEGER NOT NULL,
		description TEXT NOT NULL,
		category TEXT NOT NULL,
		agent_id INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_events_run ON events(run_id, round);
	CREATE INDEX IF NOT EXISTS idx_history_agent ON agent_history(run_id, agent_id);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// Run describes one archived simulation run.
type Run struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"started_at"`
	Seed      int64     `json:"seed"`
	Agents    int       `json:"agents"`
	MaxRounds int       `json:"max_rounds"`
	Policy    string    `json:"policy"`
}

type runRow struct {
	ID          string `db:"id"`
	StartedUnix int64  `db:"started_unix"`
	Seed        int64  `db:"seed"`
	Agents      int    `db:"agents"`
	MaxRounds   int    `db:"max_rounds"`
	Policy      string `db:"policy"`
}

// CreateRun registers a new run and returns it with a fresh ID.
func (db *DB) CreateRun(opts engine.Options, maxRounds int, catalog []agents.Task) (Run, error) {
	catalogJSON, err := json.Marshal(catalog)
	if err != nil {
		return Run{}, fmt.Errorf("encode catalog: %w", err)
	}

	run := Run{
		ID:        uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Seed:      opts.Seed,
		Agents:    opts.Agents,
		MaxRounds: maxRounds,
		Policy:    opts.Policy.String(),
	}
	_, err = db.conn.Exec(`INSERT INTO runs
		(id, started_unix, seed, agents, max_rounds, policy, catalog_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt.UnixMilli(), run.Seed, run.Agents, run.MaxRounds, run.Policy, string(catalogJSON),
	)
	if err != nil {
		return Run{}, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

// Runs returns the most recent runs, newest first.
func (db *DB) Runs(limit int) ([]Run, error) {
	var rows []runRow
	err := db.conn.Select(&rows,
		"SELECT id, started_unix, seed, agents, max_rounds, policy FROM runs ORDER BY started_unix DESC, rowid DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, err
	}
	runs := make([]Run, len(rows))
	for i, r := range rows {
		runs[i] = Run{
			ID:        r.ID,
			StartedAt: time.UnixMilli(r.StartedUnix).UTC(),
			Seed:      r.Seed,
			Agents:    r.Agents,
			MaxRounds: r.MaxRounds,
			Policy:    r.Policy,
		}
	}
	return runs, nil
}

type roundRow struct {
	Round         int    `db:"round"`
	Alive         int    `db:"alive"`
	Dropouts      int    `db:"dropouts"`
	Attempts      int    `db:"attempts"`
	Successes     int    `db:"successes"`
	Unemployed    int    `db:"unemployed"`
	NewDropouts   int    `db:"new_dropouts"`
	Mentored      int    `db:"mentored"`
	Windfalls     int    `db:"windfalls"`
	Settled       int    `db:"settled"`
	Opportunities int    `db:"opportunities"`
	Contagions    int    `db:"contagions"`
	ClassesJSON   string `db:"classes_json"`
}

// SaveRound stores the aggregate of one round.
func (db *DB) SaveRound(runID string, s engine.RoundStats) error {
	classesJSON, err := json.Marshal(s.Classes)
	if err != nil {
		return fmt.Errorf("encode class stats: %w", err)
	}
	_, err = db.conn.Exec(`INSERT OR REPLACE INTO round_stats
		(run_id, round, alive, dropouts, attempts, successes, unemployed, new_dropouts,
		 mentored, windfalls, settled, opportunities, contagions, classes_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, s.Round, s.Alive, s.Dropouts, s.Attempts, s.Successes, s.Unemployed, s.NewDropouts,
		s.Mentored, s.Windfalls, s.Settled, s.Opportunities, s.Contagions, string(classesJSON),
	)
	if err != nil {
		return fmt.Errorf("insert round %d: %w", s.Round, err)
	}
	return nil
}

// RoundStats returns a run's per-round aggregates, oldest first.
func (db *DB) RoundStats(runID string) ([]engine.RoundStats, error) {
	var rows []roundRow
	err := db.conn.Select(&rows, `SELECT round, alive, dropouts, attempts, successes, unemployed,
		new_dropouts, mentored, windfalls, settled, opportunities, contagions, classes_json
		FROM round_stats WHERE run_id = ? ORDER BY round`, runID)
	if err != nil {
		return nil, err
	}

	out := make([]engine.RoundStats, len(rows))
	for i, r := range rows {
		out[i] = engine.RoundStats{
			Round:         r.Round,
			Alive:         r.Alive,
			Dropouts:      r.Dropouts,
			Attempts:      r.Attempts,
			Successes:     r.Successes,
			Unemployed:    r.Unemployed,
			NewDropouts:   r.NewDropouts,
			Mentored:      r.Mentored,
			Windfalls:     r.Windfalls,
			Settled:       r.Settled,
			Opportunities: r.Opportunities,
			Contagions:    r.Contagions,
		}
		if err := json.Unmarshal([]byte(r.ClassesJSON), &out[i].Classes); err != nil {
			return nil, fmt.Errorf("decode class stats for round %d: %w", r.Round, err)
		}
	}
	return out, nil
}

// SaveAgents writes the latest summary of every agent in a run (full replace).
func (db *DB) SaveAgents(runID string, round int, summaries []agents.AgentSummary) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM agents WHERE run_id = ?", runID); err != nil {
		return err
	}

	stmt, err := tx.Preparex(`INSERT INTO agents
		(run_id, id, round, name, class, age, alive, talent, money, confidence, competence,
		 aspiration, risk_tolerance, dropout_pressure, social_capital, last_task, last_task_succeeded)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, a := range summaries {
		_, err := stmt.Exec(
			runID, a.ID, round, a.Name, a.Class.String(), a.Age, a.Alive, a.Talent, a.Money,
			a.Confidence, a.Competence, a.Aspiration, a.RiskTolerance,
			a.DropoutPressure, a.SocialCapital, a.LastTask, a.LastTaskSucceeded,
		)
		if err != nil {
			return fmt.Errorf("insert agent %d: %w", a.ID, err)
		}
	}

	return tx.Commit()
}

// AgentCounts returns the archived number of living and dropped-out agents in a run.
func (db *DB) AgentCounts(runID string) (alive, dropped int, err error) {
	var rows []struct {
		Alive bool `db:"alive"`
		N     int  `db:"n"`
	}
	err = db.conn.Select(&rows, "SELECT alive, COUNT(*) AS n FROM agents WHERE run_id = ? GROUP BY alive", runID)
	if err != nil {
		return 0, 0, err
	}
	for _, r := range rows {
		if r.Alive {
			alive = r.N
		} else {
			dropped = r.N
		}
	}
	return alive, dropped, nil
}

// SaveHistory replaces the archived history of one agent.
func (db *DB) SaveHistory(runID string, agentID agents.AgentID, entries []agents.HistoryEntry) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM agent_history WHERE run_id = ? AND agent_id = ?", runID, agentID); err != nil {
		return err
	}
	for _, e := range entries {
		_, err := tx.Exec(`INSERT INTO agent_history
			(run_id, agent_id, round, age, task_name, difficulty, success, reward, loss,
			 confidence, competence, aspiration, risk_tolerance, money)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, agentID, e.Round, e.Age, e.TaskName, e.Difficulty, e.Success, e.Reward, e.Loss,
			e.Confidence, e.Competence, e.Aspiration, e.RiskTolerance, e.Money,
		)
		if err != nil {
			return fmt.Errorf("insert history for agent %d round %d: %w", agentID, e.Round, err)
		}
	}
	return tx.Commit()
}

// AgentHistory returns the archived history of one agent, oldest first.
func (db *DB) AgentHistory(runID string, agentID agents.AgentID) ([]agents.HistoryEntry, error) {
	var entries []agents.HistoryEntry
	err := db.conn.Select(&entries, `SELECT round, age, task_name, difficulty, success, reward, loss,
		confidence, competence, aspiration, risk_tolerance, money
		FROM agent_history WHERE run_id = ? AND agent_id = ? ORDER BY round`, runID, agentID)
	return entries, err
}

type eventRow struct {
	Round       int     `db:"round"`
	Description string  `db:"description"`
	Category    string  `db:"category"`
	AgentID     *uint64 `db:"agent_id"`
}

// SaveEvents appends events to the archive.
func (db *DB) SaveEvents(runID string, events []engine.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, e := range events {
		var agentID *uint64
		if e.AgentID != nil {
			id := uint64(*e.AgentID)
			agentID = &id
		}
		_, err := tx.Exec(
			"INSERT INTO events (run_id, round, description, category, agent_id) VALUES (?, ?, ?, ?, ?)",
			runID, e.Round, e.Description, e.Category, agentID,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// RecentEvents returns the most recent N events of a run, newest first.
func (db *DB) RecentEvents(runID string, limit int) ([]engine.Event, error) {
	var rows []eventRow
	err := db.conn.Select(&rows,
		"SELECT round, description, category, agent_id FROM events WHERE run_id = ? ORDER BY id DESC LIMIT ?",
		runID, limit,
	)
	if err != nil {
		return nil, err
	}
	events := make([]engine.Event, len(rows))
	for i, r := range rows {
		events[i] = engine.Event{Round: r.Round, Description: r.Description, Category: r.Category}
		if r.AgentID != nil {
			id := agents.AgentID(*r.AgentID)
			events[i].AgentID = &id
		}
	}
	return events, nil
}

// SaveSnapshot archives the simulation's current agents and histories.
// Round stats and events are archived as they happen by the caller.
func (db *DB) SaveSnapshot(runID string, sim *engine.Simulation) error {
	snap := sim.Snapshot()
	slog.Info("archiving run snapshot", "run", runID, "round", snap.Round, "agents", len(snap.Agents))

	if err := db.SaveAgents(runID, snap.Round, snap.Agents); err != nil {
		return fmt.Errorf("save agents: %w", err)
	}
	for _, a := range snap.Agents {
		history, ok := sim.AgentHistory(a.ID)
		if !ok {
			continue
		}
		if err := db.SaveHistory(runID, a.ID, history); err != nil {
			return fmt.Errorf("save history: %w", err)
		}
	}

	slog.Info("run snapshot archived", "run", runID)
	return nil
}
