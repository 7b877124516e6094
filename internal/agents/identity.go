package agents

import (
	"math"

	"github.com/talgya/mobility/internal/entropy"
)

// Identity is an agent's self-model.
//
//	Aspiration:    "What am I aiming for?" Ceiling of task difficulty considered.
//	Competence:    "How capable am I?" Slowly learned estimate of true skill.
//	Confidence:    "Can I succeed right now?"
//	RiskTolerance: how far confidence may fall short of difficulty before a task is rejected.
type Identity struct {
	Aspiration    float64   `json:"aspiration"`
	Competence    float64   `json:"competence"`
	Confidence    float64   `json:"confidence"`
	MaxConfidence float64   `json:"max_confidence"`
	RiskClass     RiskClass `json:"risk_class"`
	RiskTolerance float64   `json:"risk_tolerance"`
}

// NewIdentity samples a class-conditioned self-model for an agent with the
// given class and talent.
func NewIdentity(src *entropy.Source, wealth Wealth, talent float64) Identity {
	aspiration := Clamp(aspirationBase[wealth]+src.Normal(0, 0.1), 0, 1)

	// Poorer agents underestimate their talent less than richer agents overestimate it.
	competence := Clamp(talent+src.Normal(competenceBias[wealth], 0.05), 0, 1)

	weights := riskClassWeights[wealth]
	risk := RiskClass(src.WeightedChoice(weights[:]))

	confidence := Clamp(competence+src.Normal(0, 0.1), 0, 1)
	maxConfidence := maxConfidenceBase[wealth] + src.Normal(0, 0.05)

	band := RiskBands[risk]
	id := Identity{
		Aspiration:    aspiration,
		Competence:    competence,
		Confidence:    confidence,
		MaxConfidence: maxConfidence,
		RiskClass:     risk,
		RiskTolerance: src.Uniform(band.Lo, band.Hi),
	}
	id.Clamp(talent)
	return id
}

// CompetenceCap is the most competence an agent of the given talent can believe in.
func CompetenceCap(talent float64) float64 {
	return math.Min(1, 0.6+0.4*talent)
}

// ConfidenceBand is the current valid range for confidence.
func (id *Identity) ConfidenceBand() Band {
	return Band{Lo: MinConfidence, Hi: math.Max(MinConfidence, math.Min(1, id.MaxConfidence))}
}

// Clamp re-applies every invariant band.
func (id *Identity) Clamp(talent float64) {
	id.Aspiration = Clamp(id.Aspiration, 0, 1)
	id.Competence = Clamp(id.Competence, 0, CompetenceCap(talent))
	if id.MaxConfidence < MinConfidence {
		id.MaxConfidence = MinConfidence
	}
	id.Confidence = id.ConfidenceBand().Clamp(id.Confidence)
	id.RiskTolerance = RiskBands[id.RiskClass].Clamp(id.RiskTolerance)
}

// InBands reports whether every field lies in its invariant band.
func (id *Identity) InBands(talent float64) bool {
	conf := id.ConfidenceBand()
	risk := RiskBands[id.RiskClass]
	return id.Aspiration >= 0 && id.Aspiration <= 1 &&
		id.Competence >= 0 && id.Competence <= CompetenceCap(talent) &&
		id.MaxConfidence >= MinConfidence &&
		id.Confidence >= conf.Lo && id.Confidence <= conf.Hi &&
		id.RiskTolerance >= risk.Lo && id.RiskTolerance <= risk.Hi
}
