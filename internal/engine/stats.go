package engine

import (
	"github.com/talgya/mobility/internal/agents"
)

// maxStatsHistory bounds the per-round stats kept in memory.
const maxStatsHistory = 1000

// ClassStats aggregates the living agents of one wealth class.
type ClassStats struct {
	Class             agents.Wealth `json:"class"`
	Total             int           `json:"total"`
	Alive             int           `json:"alive"`
	MeanConfidence    float64       `json:"mean_confidence"`
	MeanCompetence    float64       `json:"mean_competence"`
	MeanAspiration    float64       `json:"mean_aspiration"`
	MeanRiskTolerance float64       `json:"mean_risk_tolerance"`
	MeanMoney         float64       `json:"mean_money"`
}

// RoundStats is the aggregate report for one completed round.
type RoundStats struct {
	Round    int `json:"round"`
	Alive    int `json:"alive"`
	Dropouts int `json:"dropouts"`

	Attempts      int `json:"attempts"`
	Successes     int `json:"successes"`
	Unemployed    int `json:"unemployed"`
	NewDropouts   int `json:"new_dropouts"`
	Mentored      int `json:"mentored"`
	Windfalls     int `json:"windfalls"`
	Settled       int `json:"settled"`
	Opportunities int `json:"opportunities"`
	Contagions    int `json:"contagions"`

	Classes [agents.NumWealthClasses]ClassStats `json:"classes"`
}

// Class returns the aggregate for one wealth class.
func (r RoundStats) Class(w agents.Wealth) ClassStats {
	return r.Classes[w]
}

// Snapshot is the per-round state published to reporting layers.
type Snapshot struct {
	RoundStats
	Agents []agents.AgentSummary `json:"agents"`
}

// AgentDetail is the full reporting view of one agent.
type AgentDetail struct {
	agents.AgentSummary
	Identity  agents.Identity       `json:"identity"`
	TasksDone map[string]int        `json:"tasks_done"`
	DiedRound int                   `json:"died_round"`
	History   []agents.HistoryEntry `json:"history"`
}

// collectStats aggregates the population. Caller holds the lock.
func (s *Simulation) collectStats(t roundTally) RoundStats {
	stats := RoundStats{
		Round:         s.round,
		Dropouts:      len(s.dropouts),
		Attempts:      t.attempts,
		Successes:     t.successes,
		Unemployed:    t.unemployed,
		NewDropouts:   t.newDropouts,
		Mentored:      t.mentored,
		Windfalls:     t.windfalls,
		Settled:       t.settled,
		Opportunities: t.opportunities,
		Contagions:    t.contagions,
	}

	for _, w := range agents.WealthClasses {
		stats.Classes[w].Class = w
	}
	for _, a := range s.population {
		cs := &stats.Classes[a.Wealth]
		cs.Total++
		if !a.Alive {
			continue
		}
		stats.Alive++
		cs.Alive++
		cs.MeanConfidence += a.Identity.Confidence
		cs.MeanCompetence += a.Identity.Competence
		cs.MeanAspiration += a.Identity.Aspiration
		cs.MeanRiskTolerance += a.Identity.RiskTolerance
		cs.MeanMoney += a.Rewards
	}
	for i := range stats.Classes {
		cs := &stats.Classes[i]
		if cs.Alive == 0 {
			continue
		}
		n := float64(cs.Alive)
		cs.MeanConfidence /= n
		cs.MeanCompetence /= n
		cs.MeanAspiration /= n
		cs.MeanRiskTolerance /= n
		cs.MeanMoney /= n
	}
	return stats
}

func (s *Simulation) snapshotLocked() Snapshot {
	summaries := make([]agents.AgentSummary, len(s.population))
	for i, a := range s.population {
		summaries[i] = a.Summary()
	}
	return Snapshot{RoundStats: s.last, Agents: summaries}
}

// Snapshot returns the state after the most recent round.
func (s *Simulation) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Stats returns the aggregate for the most recent round.
func (s *Simulation) Stats() RoundStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// StatsHistory returns the per-round aggregates, oldest first.
func (s *Simulation) StatsHistory() []RoundStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]RoundStats, len(s.history))
	copy(out, s.history)
	return out
}
