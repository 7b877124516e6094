package agents

// Per-class constant tables, indexed by Wealth or RiskClass.
// Order is always Low, Middle, High (and safe, striver, elite).

// ClassWeights is the relative frequency of each class at population creation.
var ClassWeights = [NumWealthClasses]float64{33, 34, 33}

// StartingRewards is the initial capital of each class.
var StartingRewards = [NumWealthClasses]float64{30, 50, 100}

// Identity sampling.
var (
	aspirationBase    = [NumWealthClasses]float64{0.3, 0.5, 0.8}
	competenceBias    = [NumWealthClasses]float64{0, 0.15, 0.3}
	maxConfidenceBase = [NumWealthClasses]float64{0.6, 0.8, 1.0}

	riskClassWeights = [NumWealthClasses][NumRiskClasses]float64{
		WealthLow:    {65, 30, 5},
		WealthMiddle: {30, 40, 30},
		WealthHigh:   {20, 40, 40},
	}
)

// RiskBands bounds risk tolerance for each risk class.
var RiskBands = [NumRiskClasses]Band{
	RiskSafe:    {0.05, 0.35},
	RiskStriver: {0.25, 0.60},
	RiskElite:   {0.45, 0.85},
}

// Outcome and feedback asymmetries.
var (
	// WealthRate amplifies positive feedback and gains for privileged classes.
	WealthRate = [NumWealthClasses]float64{0.7, 1.0, 1.6}
	// AdjustmentFactor scales losses and negative feedback.
	AdjustmentFactor = [NumWealthClasses]float64{1.3, 1.0, 0.5}
	// OutcomeNoise scales task variance: poorer agents face noisier outcomes.
	OutcomeNoise = [NumWealthClasses]float64{1.4, 1.0, 0.7}
)

// Failure scars and dropout mechanics.
var (
	// Scar is subtracted from max confidence on every failure.
	Scar = [NumWealthClasses]float64{0.03, 0.015, 0.0005}
	// FailurePressure is added to dropout pressure on every failure.
	FailurePressure = [NumWealthClasses]float64{0.10, 0.06, 0.03}
	// Resilience scales dropout chance once pressure passes the threshold.
	Resilience = [NumWealthClasses]float64{1.0, 0.7, 0.4}
)

// Capital mechanics.
var (
	ReturnRate  = [NumWealthClasses]float64{0, 0.01, 0.025}
	LivingCost  = [NumWealthClasses]float64{2, 4, 6}
	RewardFloor = [NumWealthClasses]float64{-10, 0, 20}
)

// Social capital.
var (
	StartingSocialCapital = [NumWealthClasses]float64{0.2, 0.5, 0.8}
	SocialCapitalCeiling  = [NumWealthClasses]float64{0.5, 0.8, 1.0}
)

// Scalar model constants.
const (
	// AgeDecayRate sets age_decay = exp(-age/AgeDecayRate), the rigidity factor.
	AgeDecayRate = 40.0
	// AgeHalfLife sets the age discount on task rewards.
	AgeHalfLife = 40.0

	MinConfidence = 0.05

	LuckStddev = 0.05

	// Selection.
	LowRewardBypass    = 10.0
	ClassBreachChance  = 0.05
	AspirationReject   = 0.7
	RigidAge           = 40
	RigidMargin        = 0.2
	OverconfidenceGap  = 0.2
	PerformanceEMAKeep = 0.9

	// Update.
	SocialCapitalDecay     = 0.995
	SuccessConfidenceBoost = 0.08
	SuccessPressureRelief  = 0.05
	MentorChance           = 0.08
	MentorCompetence       = 0.05
	MentorMaxConfidence    = 0.1
	RockBottom             = 10.0
	RockBottomPenalty      = 0.02
	RiskDriftSuccess       = 0.05
	RiskDriftFailure       = -0.10
	AspirationGapLimit     = 0.2
	AspirationGapAge       = 30
	AspirationGapPressure  = 0.02
	AspirationDrift        = 0.5
	YoungAge               = 30
	YoungLowDamping        = 0.4
	LearningRate           = 0.03
	CalibrationRate        = 0.01
	CalibrationStep        = 0.005
	UnemploymentPenalty    = 0.03
	UnemploymentPressure   = 0.05
	LowWealthCeiling       = 150.0
	LowWealthDecay         = 0.98
	SettlePressure         = 0.6
	SettleFactor           = 0.85
	SettleRelief           = 0.7
	Stipend                = 2.0
	WindfallChance         = 0.015
	WindfallMin            = 20.0
	WindfallMax            = 80.0
	WindfallConfidence     = 0.1
	DropoutThresholdP      = 0.8
	DropoutOffset          = 0.6
	MaxDropoutChance       = 0.5
	LegacyDropoutRewards   = 10.0
)

// pressureDecay returns the age-bracketed dropout pressure decay factor.
// Younger agents recover faster.
func pressureDecay(age int) float64 {
	switch {
	case age < 30:
		return 0.88
	case age < 40:
		return 0.93
	default:
		return 0.97
	}
}
