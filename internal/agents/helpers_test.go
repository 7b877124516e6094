package agents

import (
	"testing"

	"github.com/talgya/mobility/internal/entropy"
)

// testAgent builds an agent with a fully specified, permissive self-model so
// individual gates can be exercised in isolation.
func testAgent(wealth Wealth, talent float64) *Agent {
	return &Agent{
		ID:     1,
		Name:   "Test Agent",
		Talent: talent,
		Wealth: wealth,
		Identity: Identity{
			Aspiration:    1,
			Competence:    CompetenceCap(talent),
			Confidence:    0.9,
			MaxConfidence: 1,
			RiskClass:     RiskElite,
			RiskTolerance: 0.85,
		},
		Rewards:             StartingRewards[wealth],
		Alive:               true,
		SocialCapital:       StartingSocialCapital[wealth],
		PerformanceEstimate: 0.5,
		TasksDone:           make(map[string]int),
		DiedRound:           -1,
		InitialRewards:      StartingRewards[wealth],
		History:             NewHistory(DefaultHistoryWindow),
	}
}

func ptr[T any](v T) *T {
	return &v
}

func assertInBands(t *testing.T, a *Agent) {
	t.Helper()
	if !a.Identity.InBands(a.Talent) {
		t.Fatalf("agent %d identity out of bands: %+v (talent %.3f)", a.ID, a.Identity, a.Talent)
	}
	if a.Identity.Competence > 0.6+0.4*a.Talent+1e-12 {
		t.Fatalf("agent %d competence %.4f exceeds cap %.4f", a.ID, a.Identity.Competence, 0.6+0.4*a.Talent)
	}
}

func names(tasks []Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.Name
	}
	return out
}

func contains(tasks []Task, name string) bool {
	for _, t := range tasks {
		if t.Name == name {
			return true
		}
	}
	return false
}

func newSource(seed int64) *entropy.Source {
	return entropy.New(seed)
}
