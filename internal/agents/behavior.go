// Task selection. The agent filters the catalog through its self-model and
// picks the viable task with the best expected net gain.
package agents

import (
	"github.com/talgya/mobility/internal/entropy"
)

// Available applies the eligibility gates: capital, class and affordability.
// Low-class agents get relaxed eligibility: they may take low-reward tasks
// without the required capital, occasionally breach a class gate, and may
// gamble on tasks whose loss they cannot cover.
func (a *Agent) Available(src *entropy.Source, catalog []Task) []Task {
	available := make([]Task, 0, len(catalog))
	for _, t := range catalog {
		if t.RequiredCapital != nil && a.Rewards < *t.RequiredCapital {
			if !(a.Wealth == WealthLow && t.Reward <= LowRewardBypass) {
				continue
			}
		}

		if t.RequiredClass != nil && *t.RequiredClass != a.Wealth {
			if a.Wealth != WealthLow || !src.Chance(ClassBreachChance) {
				continue
			}
		}

		if a.Rewards < t.BaseLoss && a.Wealth != WealthLow {
			continue
		}

		available = append(available, t)
	}
	return available
}

// Viable narrows the available tasks through the self-model gates.
func (a *Agent) Viable(src *entropy.Source, catalog []Task) []Task {
	id := &a.Identity
	var viable []Task
	for _, t := range a.Available(src, catalog) {
		// Aspiration: harder than what I aim for? Usually not worth considering.
		if t.Difficulty > id.Aspiration && src.Chance(AspirationReject) {
			continue
		}

		// Risk: the shortfall between confidence and difficulty must be tolerable.
		if id.Confidence-t.Difficulty < -id.RiskTolerance {
			continue
		}

		// Rigidity: older agents refuse work far below their aspiration.
		if a.Age > RigidAge && t.Difficulty < id.Aspiration-RigidMargin {
			continue
		}

		if a.Wealth == WealthHigh && t.Difficulty > id.Competence+OverconfidenceGap {
			continue
		}

		viable = append(viable, t)
	}
	return viable
}

// ExpectedValue scores a task by expected gain minus expected loss under the
// agent's running performance estimate.
func (a *Agent) ExpectedValue(t Task) float64 {
	pe := a.PerformanceEstimate
	return t.Reward*pe - t.BaseLoss*(1-pe)
}

// ChooseTask returns the viable task with the highest expected value, or the
// Unemployment fallback when nothing survives filtering. Ties go to the
// earliest catalog entry.
func (a *Agent) ChooseTask(src *entropy.Source, catalog []Task) Task {
	viable := a.Viable(src, catalog)
	if len(viable) == 0 {
		return UnemploymentTask()
	}

	best := viable[0]
	bestScore := a.ExpectedValue(best)
	for _, t := range viable[1:] {
		if score := a.ExpectedValue(t); score > bestScore {
			best, bestScore = t, score
		}
	}
	return best
}
