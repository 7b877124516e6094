// Package economy provides the task catalog: the opportunities agents
// compete for, from survival work through training, status gambles and
// traps.
package economy

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/talgya/mobility/internal/agents"
)

// Tier groups tasks by the role they play in an agent's life.
type Tier string

const (
	TierSurvival Tier = "survival" // Low reward, low loss. Keeps agents afloat.
	TierTraining Tier = "training" // Little reward now, costs capital to enter.
	TierStatus   Tier = "status"   // High reward, high variance, class gated.
	TierTrap     Tier = "trap"     // Looks good short-term, damages capital.
)

// Catalog is the on-disk catalog format.
type Catalog struct {
	Tasks []agents.Task `yaml:"tasks"`
}

var (
	middle = agents.WealthMiddle
	high   = agents.WealthHigh
)

func capital(v float64) *float64 { return &v }

// defaultTiers maps the default tasks to their tier, in catalog order.
var defaultTiers = []struct {
	tier  Tier
	tasks []agents.Task
}{
	{TierSurvival, []agents.Task{
		{Name: "Day Labor", Difficulty: 0.25, Reward: 6, Variance: 0.05, BaseLoss: 2, Repeatability: 12},
		{Name: "Retail Shift", Difficulty: 0.30, Reward: 7, Variance: 0.04, BaseLoss: 2, Repeatability: 15},
		{Name: "Food Delivery", Difficulty: 0.35, Reward: 8, Variance: 0.06, BaseLoss: 3, Repeatability: 10},
		{Name: "Warehouse Work", Difficulty: 0.40, Reward: 9, Variance: 0.05, BaseLoss: 3, Repeatability: 14},
	}},
	{TierTraining, []agents.Task{
		{Name: "Online Course", Difficulty: 0.45, Reward: 0, Variance: 0.03, BaseLoss: 5, Repeatability: 25, RequiredCapital: capital(10)},
		{Name: "Apprenticeship", Difficulty: 0.50, Reward: 2, Variance: 0.04, BaseLoss: 6, Repeatability: 30, RequiredCapital: capital(15)},
		{Name: "Practice Project", Difficulty: 0.55, Reward: 3, Variance: 0.05, BaseLoss: 7, Repeatability: 35, RequiredCapital: capital(5)},
		{Name: "Night Classes", Difficulty: 0.60, Reward: 4, Variance: 0.04, BaseLoss: 8, Repeatability: 40, RequiredCapital: capital(8)},
	}},
	{TierStatus, []agents.Task{
		{Name: "Startup Pitch", Difficulty: 0.65, Reward: 40, Variance: 0.25, BaseLoss: 12, Repeatability: 3, RequiredCapital: capital(50), RequiredClass: &middle},
		{Name: "Art Breakthrough", Difficulty: 0.70, Reward: 50, Variance: 0.30, BaseLoss: 15, Repeatability: 2, RequiredCapital: capital(30), RequiredClass: &middle},
		{Name: "Competitive Exam", Difficulty: 0.75, Reward: 60, Variance: 0.20, BaseLoss: 18, Repeatability: 4, RequiredCapital: capital(25), RequiredClass: &middle},
		{Name: "Market Speculation", Difficulty: 0.80, Reward: 80, Variance: 0.35, BaseLoss: 25, Repeatability: 1, RequiredCapital: capital(100), RequiredClass: &high},
	}},
	{TierTrap, []agents.Task{
		{Name: "Gig Overwork", Difficulty: 0.35, Reward: 12, Variance: 0.10, BaseLoss: 6, Repeatability: 6},
		{Name: "High-Interest Loan", Difficulty: 0.30, Reward: 15, Variance: 0.00, BaseLoss: 20, Repeatability: 8, RequiredCapital: capital(0)},
		{Name: "Burnout Hustle", Difficulty: 0.45, Reward: 18, Variance: 0.15, BaseLoss: 10, Repeatability: 5},
		{Name: "Reputation Gamble", Difficulty: 0.55, Reward: 25, Variance: 0.20, BaseLoss: 20, Repeatability: 2},
	}},
}

// DefaultCatalog returns a fresh copy of the built-in 16-task catalog.
// Gate pointers are copied too, so callers may modify the result freely.
func DefaultCatalog() []agents.Task {
	var out []agents.Task
	for _, group := range defaultTiers {
		for _, t := range group.tasks {
			if t.RequiredCapital != nil {
				t.RequiredCapital = capital(*t.RequiredCapital)
			}
			if t.RequiredClass != nil {
				class := *t.RequiredClass
				t.RequiredClass = &class
			}
			out = append(out, t)
		}
	}
	return out
}

// TierOf reports the tier of a default catalog task, or "" if the task is
// not part of the built-in catalog.
func TierOf(name string) Tier {
	for _, group := range defaultTiers {
		for _, t := range group.tasks {
			if t.Name == name {
				return group.tier
			}
		}
	}
	return ""
}

// Validate checks every task and rejects duplicate names.
func Validate(tasks []agents.Task) error {
	if len(tasks) == 0 {
		return fmt.Errorf("%w: catalog is empty", agents.ErrInvalidTask)
	}
	seen := make(map[string]bool, len(tasks))
	for i, t := range tasks {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("task %d: %w", i, err)
		}
		if seen[t.Name] {
			return fmt.Errorf("%w: duplicate task %q", agents.ErrInvalidTask, t.Name)
		}
		seen[t.Name] = true
	}
	return nil
}

// LoadCatalog reads and validates a YAML task catalog.
func LoadCatalog(path string) ([]agents.Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	if err := Validate(c.Tasks); err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return c.Tasks, nil
}

// FilterCatalog returns the tasks whose names are listed, in catalog order.
// Unknown names are an error.
func FilterCatalog(tasks []agents.Task, names ...string) ([]agents.Task, error) {
	if len(names) == 0 {
		return tasks, nil
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}

	var out []agents.Task
	for _, t := range tasks {
		if want[t.Name] {
			out = append(out, t)
			delete(want, t.Name)
		}
	}
	if len(want) > 0 {
		unknown := make([]string, 0, len(want))
		for n := range want {
			unknown = append(unknown, n)
		}
		slices.Sort(unknown)
		return nil, fmt.Errorf("unknown tasks: %s", strings.Join(unknown, ", "))
	}
	return out, nil
}
