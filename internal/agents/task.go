package agents

import (
	"errors"
	"fmt"
	"math"

	"github.com/talgya/mobility/internal/entropy"
)

// ErrInvalidTask is returned by Task.Validate for malformed catalog entries.
var ErrInvalidTask = errors.New("invalid task")

// UnemploymentName is the name of the fallback task.
const UnemploymentName = "Unemployment"

// Task is an immutable catalog entry: a stochastic outcome generator.
type Task struct {
	Name            string   `json:"name" yaml:"name"`
	Difficulty      float64  `json:"difficulty" yaml:"difficulty"`
	Reward          float64  `json:"reward" yaml:"reward"`
	Variance        float64  `json:"variance" yaml:"variance"`
	BaseLoss        float64  `json:"base_loss" yaml:"base_loss"`
	Repeatability   float64  `json:"repeatability" yaml:"repeatability"`
	RequiredCapital *float64 `json:"required_capital,omitempty" yaml:"required_capital,omitempty"`
	RequiredClass   *Wealth  `json:"required_class,omitempty" yaml:"required_class,omitempty"`
}

// Validate rejects tasks that would break resolution.
func (t Task) Validate() error {
	switch {
	case t.Name == "":
		return fmt.Errorf("%w: empty name", ErrInvalidTask)
	case !(t.Repeatability > 0) || math.IsInf(t.Repeatability, 0):
		return fmt.Errorf("%w: %q: repeatability must be positive and finite, got %g", ErrInvalidTask, t.Name, t.Repeatability)
	case !(t.Difficulty >= 0 && t.Difficulty <= 1):
		return fmt.Errorf("%w: %q: difficulty must be in [0, 1], got %g", ErrInvalidTask, t.Name, t.Difficulty)
	case !(t.Variance >= 0) || math.IsInf(t.Variance, 0):
		return fmt.Errorf("%w: %q: variance must be non-negative and finite, got %g", ErrInvalidTask, t.Name, t.Variance)
	case !finite(t.Reward) || !finite(t.BaseLoss):
		return fmt.Errorf("%w: %q: reward and base_loss must be finite, got %g and %g", ErrInvalidTask, t.Name, t.Reward, t.BaseLoss)
	case t.RequiredCapital != nil && !finite(*t.RequiredCapital):
		return fmt.Errorf("%w: %q: required_capital must be finite, got %g", ErrInvalidTask, t.Name, *t.RequiredCapital)
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// UnemploymentTask is the fallback when no catalog task survives filtering.
// Its repeatability is high enough that the reward never decays.
func UnemploymentTask() Task {
	return Task{
		Name:          UnemploymentName,
		Difficulty:    0.9,
		Reward:        0,
		Variance:      0,
		BaseLoss:      15,
		Repeatability: 1e9,
	}
}

// Resolve performs the task for agent a. It increments the agent's attempt
// counter for this task exactly once and records the task as the agent's last.
func (t Task) Resolve(src *entropy.Source, a *Agent) Outcome {
	if a.TasksDone == nil {
		a.TasksDone = make(map[string]int)
	}
	a.TasksDone[t.Name]++
	attempts := float64(a.TasksDone[t.Name])

	luck := src.Normal(0, LuckStddev)
	performance := a.Talent + luck + src.Uniform(-t.Variance, t.Variance)*OutcomeNoise[a.Wealth]

	ageDecay := math.Exp(-float64(a.Age) / AgeDecayRate)
	gap := performance - a.Identity.Confidence

	a.LastTask = t.Name

	if performance > t.Difficulty {
		a.LastTaskSucceeded = true
		repetition := math.Exp(-attempts / t.Repeatability)
		agePenalty := math.Exp(-float64(a.Age) / AgeHalfLife)
		return Outcome{
			Success:     true,
			Reward:      t.Reward * repetition * agePenalty,
			Loss:        0,
			Feedback:    gap * WealthRate[a.Wealth] * ageDecay,
			Performance: performance,
		}
	}

	a.LastTaskSucceeded = false
	return Outcome{
		Success:     false,
		Reward:      0,
		Loss:        t.BaseLoss * AdjustmentFactor[a.Wealth],
		Feedback:    gap * AdjustmentFactor[a.Wealth] * ageDecay,
		Performance: performance,
	}
}
