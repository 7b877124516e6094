// Package agents provides the agent data model: the identity (self-model),
// the task catalog entry, task selection and resolution, and the per-round
// update engine.
package agents

import (
	"fmt"
	"strings"
)

// AgentID is a unique identifier for an agent.
type AgentID uint64

// Wealth is the fixed socioeconomic class an agent is born into.
type Wealth uint8

const (
	WealthLow Wealth = iota
	WealthMiddle
	WealthHigh

	// NumWealthClasses sizes every per-class constant table. Adding a class
	// without extending the tables fails to compile.
	NumWealthClasses = 3
)

// WealthClasses lists every class in table order.
var WealthClasses = [NumWealthClasses]Wealth{WealthLow, WealthMiddle, WealthHigh}

var wealthNames = [NumWealthClasses]string{"Low", "Middle", "High"}

// String returns the class name ("Low", "Middle", "High").
func (w Wealth) String() string {
	if int(w) < len(wealthNames) {
		return wealthNames[w]
	}
	return fmt.Sprintf("Wealth(%d)", w)
}

// ParseWealth maps a class name (case-insensitive) to a Wealth.
func ParseWealth(s string) (Wealth, error) {
	for i, name := range wealthNames {
		if strings.EqualFold(s, name) {
			return Wealth(i), nil
		}
	}
	return 0, fmt.Errorf("unknown wealth class %q", s)
}

// MarshalText encodes the class by name for JSON and YAML.
func (w Wealth) MarshalText() ([]byte, error) {
	if int(w) >= NumWealthClasses {
		return nil, fmt.Errorf("invalid wealth class %d", w)
	}
	return []byte(w.String()), nil
}

// UnmarshalText decodes a class name.
func (w *Wealth) UnmarshalText(text []byte) error {
	parsed, err := ParseWealth(string(text))
	if err != nil {
		return err
	}
	*w = parsed
	return nil
}

// RiskClass is the agent's temperament toward risk, fixed at creation.
type RiskClass uint8

const (
	RiskSafe RiskClass = iota
	RiskStriver
	RiskElite

	NumRiskClasses = 3
)

var riskNames = [NumRiskClasses]string{"safe", "striver", "elite"}

func (r RiskClass) String() string {
	if int(r) < len(riskNames) {
		return riskNames[r]
	}
	return fmt.Sprintf("RiskClass(%d)", r)
}

// MarshalText encodes the risk class by name.
func (r RiskClass) MarshalText() ([]byte, error) {
	if int(r) >= NumRiskClasses {
		return nil, fmt.Errorf("invalid risk class %d", r)
	}
	return []byte(r.String()), nil
}

// UnmarshalText decodes a risk class name.
func (r *RiskClass) UnmarshalText(text []byte) error {
	for i, name := range riskNames {
		if strings.EqualFold(string(text), name) {
			*r = RiskClass(i)
			return nil
		}
	}
	return fmt.Errorf("unknown risk class %q", text)
}

// Band is a closed interval.
type Band struct {
	Lo, Hi float64
}

// Clamp returns v limited to the band.
func (b Band) Clamp(v float64) float64 {
	return Clamp(v, b.Lo, b.Hi)
}

// DropoutPolicy selects how agents leave the population.
type DropoutPolicy uint8

const (
	// DropoutPressure is the probabilistic exit driven by accumulated pressure.
	DropoutPressure DropoutPolicy = iota
	// DropoutThreshold is the older hard rule: a Low-class agent that fails
	// while holding less than 10 drops out immediately.
	DropoutThreshold
)

func (p DropoutPolicy) String() string {
	switch p {
	case DropoutThreshold:
		return "threshold"
	default:
		return "pressure"
	}
}

// ParseDropoutPolicy maps "pressure" or "threshold" to a policy.
func ParseDropoutPolicy(s string) (DropoutPolicy, error) {
	switch strings.ToLower(s) {
	case "", "pressure":
		return DropoutPressure, nil
	case "threshold":
		return DropoutThreshold, nil
	default:
		return 0, fmt.Errorf("unknown dropout policy %q (valid: pressure, threshold)", s)
	}
}

// Agent is a person in the simulation: a hidden talent, a fixed class,
// a mutable self-model and the economic and lifecycle state around it.
type Agent struct {
	ID   AgentID `json:"id"`
	Name string  `json:"name"`

	// Talent is the hidden ground truth. Decisions never read it directly.
	Talent float64 `json:"talent"`
	Wealth Wealth  `json:"class"`
	Age    int     `json:"age"`

	Identity Identity `json:"identity"`

	Rewards             float64 `json:"money"`
	Alive               bool    `json:"alive"`
	DropoutPressure     float64 `json:"dropout_pressure"`
	SocialCapital       float64 `json:"social_capital"`
	PerformanceEstimate float64 `json:"performance_estimate"`

	TasksDone         map[string]int `json:"tasks_done"`
	LastTask          string         `json:"last_task"`
	LastTaskSucceeded bool           `json:"last_task_succeeded"`

	// DiedRound is the round in which the agent dropped out; -1 while alive.
	DiedRound int `json:"died_round"`

	// Reporting counters.
	TasksAttempted int     `json:"tasks_attempted"`
	TasksSucceeded int     `json:"tasks_succeeded"`
	DifficultySum  float64 `json:"difficulty_sum"`
	InitialRewards float64 `json:"initial_rewards"`

	History *History `json:"-"`
}

// Outcome is the result of one task attempt.
type Outcome struct {
	Success     bool    `json:"success"`
	Reward      float64 `json:"reward"`
	Loss        float64 `json:"loss"`
	Feedback    float64 `json:"feedback"`
	Performance float64 `json:"performance"`
}
