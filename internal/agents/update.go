// Update engine. Applies a task outcome to the agent's self-model and
// economic state, producing the next-round agent.
package agents

import (
	"math"

	"github.com/talgya/mobility/internal/entropy"
)

// UpdateReport describes the notable transitions of one update.
type UpdateReport struct {
	Mentored      bool
	RockBottom    bool
	Settled       bool
	Windfall      float64 // Bonus received, 0 if none.
	DropoutChance float64
	DroppedOut    bool
}

// DropoutChance is the per-round exit probability for the given pressure and class.
// Zero at or below the pressure threshold.
func DropoutChance(pressure float64, wealth Wealth) float64 {
	if pressure <= DropoutThresholdP {
		return 0
	}
	return Clamp((pressure-DropoutOffset)*Resilience[wealth], 0, MaxDropoutChance)
}

// AgeDecay is the rigidity factor exp(-age/AgeDecayRate).
func (a *Agent) AgeDecay() float64 {
	return math.Exp(-float64(a.Age) / AgeDecayRate)
}

// Update applies outcome to the agent. Dead agents are left untouched.
func (a *Agent) Update(src *entropy.Source, outcome Outcome, policy DropoutPolicy) UpdateReport {
	var report UpdateReport
	if !a.Alive {
		return report
	}

	id := &a.Identity
	w := a.Wealth
	rate := WealthRate[w]
	ageDecay := a.AgeDecay()

	a.DropoutPressure *= pressureDecay(a.Age)
	a.SocialCapital *= SocialCapitalDecay

	observed := 0.0
	if outcome.Success {
		observed = 1
	}
	a.PerformanceEstimate = PerformanceEMAKeep*a.PerformanceEstimate + (1-PerformanceEMAKeep)*observed

	// Feedback is weighed by how much the agent already believed in itself.
	beliefDelta := outcome.Feedback * Clamp(id.Confidence, 0.2, 1)

	if outcome.Success {
		a.Rewards += outcome.Reward * rate
		id.Confidence += SuccessConfidenceBoost * rate
		a.DropoutPressure = math.Max(0, a.DropoutPressure-SuccessPressureRelief)

		if w == WealthLow && src.Chance(MentorChance) {
			id.Competence += MentorCompetence
			id.MaxConfidence = math.Max(id.MaxConfidence, math.Min(id.MaxConfidence+MentorMaxConfidence, 1))
			report.Mentored = true
		}
	} else {
		if policy == DropoutThreshold && w == WealthLow && a.Rewards < LegacyDropoutRewards {
			a.Alive = false
			report.DroppedOut = true
		}

		a.Rewards -= outcome.Loss
		if w == WealthLow && a.Rewards < RockBottom {
			a.Rewards = RockBottom
			id.Confidence -= RockBottomPenalty
			id.Aspiration -= RockBottomPenalty
			report.RockBottom = true
		}

		// Failure hurts and persists.
		id.MaxConfidence -= Scar[w]
		a.DropoutPressure += FailurePressure[w]
	}

	switch w {
	case WealthHigh, WealthLow:
		id.Confidence += beliefDelta * ageDecay * rate
	default:
		id.Confidence += beliefDelta * ageDecay
	}

	if outcome.Success {
		id.RiskTolerance += ageDecay * RiskDriftSuccess
	} else {
		id.RiskTolerance += ageDecay * RiskDriftFailure
	}
	// Aspirational agents feel misaligned when they underperform their aspirations.
	if id.Aspiration-id.Confidence > AspirationGapLimit && a.Age > AspirationGapAge {
		a.DropoutPressure += AspirationGapPressure
	}

	drift := ageDecay * beliefDelta * AspirationDrift
	if w == WealthLow && a.Age < YoungAge {
		drift *= YoungLowDamping
	}
	id.Aspiration += drift

	// Reality check: competence chases the observed signal.
	learningRate := LearningRate * ageDecay * rate
	id.Competence += learningRate * (observed - id.Competence)
	// Confidence is pulled toward competence; optimism cannot run away.
	id.Confidence += Clamp(CalibrationRate*ageDecay*(id.Competence-id.Confidence), -CalibrationStep, CalibrationStep)

	id.Clamp(a.Talent)

	if a.Rewards > 0 {
		a.Rewards += a.Rewards * ReturnRate[w]
	}
	a.Rewards -= LivingCost[w]
	a.Rewards = math.Max(a.Rewards, RewardFloor[w])

	if a.LastTask == UnemploymentName {
		id.Confidence -= UnemploymentPenalty
		id.Aspiration -= UnemploymentPenalty
		a.DropoutPressure += UnemploymentPressure
	}

	if w == WealthLow {
		if a.Rewards > LowWealthCeiling {
			a.Rewards *= LowWealthDecay
		}
	} else if a.DropoutPressure > SettlePressure {
		// Settling: lower the bar instead of leaving.
		id.Aspiration *= SettleFactor
		id.RiskTolerance *= SettleFactor
		a.DropoutPressure *= SettleRelief
		report.Settled = true
	}

	if w == WealthLow && a.Age < YoungAge {
		a.Rewards += Stipend
	}
	if src.Chance(WindfallChance) {
		bonus := src.Uniform(WindfallMin, WindfallMax)
		a.Rewards += bonus
		id.Confidence += WindfallConfidence
		report.Windfall = bonus
	}

	a.SocialCapital = Clamp(a.SocialCapital, 0, SocialCapitalCeiling[w])
	id.Clamp(a.Talent)

	if policy == DropoutPressure {
		report.DropoutChance = DropoutChance(a.DropoutPressure, w)
		if report.DropoutChance > 0 && src.Chance(report.DropoutChance) {
			a.Alive = false
			report.DroppedOut = true
		}
	}

	return report
}
