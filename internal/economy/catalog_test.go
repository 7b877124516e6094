package economy

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/talgya/mobility/internal/agents"
)

func TestDefaultCatalog(t *testing.T) {
	tasks := DefaultCatalog()
	if len(tasks) != 16 {
		t.Fatalf("default catalog has %d tasks, want 16", len(tasks))
	}
	if err := Validate(tasks); err != nil {
		t.Fatalf("default catalog invalid: %v", err)
	}
	if tasks[0].Name != "Day Labor" || tasks[15].Name != "Reputation Gamble" {
		t.Errorf("catalog order: first %q, last %q", tasks[0].Name, tasks[15].Name)
	}

	counts := map[Tier]int{}
	for _, task := range tasks {
		counts[TierOf(task.Name)]++
	}
	for _, tier := range []Tier{TierSurvival, TierTraining, TierStatus, TierTrap} {
		if counts[tier] != 4 {
			t.Errorf("tier %s has %d tasks, want 4", tier, counts[tier])
		}
	}

	for _, task := range tasks {
		if task.Name != "Market Speculation" {
			continue
		}
		if task.RequiredClass == nil || *task.RequiredClass != agents.WealthHigh {
			t.Errorf("Market Speculation required class = %v", task.RequiredClass)
		}
		if task.RequiredCapital == nil || *task.RequiredCapital != 100 {
			t.Errorf("Market Speculation required capital = %v", task.RequiredCapital)
		}
	}
}

func TestDefaultCatalogIsACopy(t *testing.T) {
	first := DefaultCatalog()
	for i := range first {
		if first[i].RequiredCapital != nil {
			*first[i].RequiredCapital = -1
		}
		if first[i].RequiredClass != nil {
			*first[i].RequiredClass = agents.WealthLow
		}
		first[i].Reward = -1
	}

	for _, task := range DefaultCatalog() {
		if task.Reward == -1 {
			t.Errorf("%s: reward change leaked into the built-in catalog", task.Name)
		}
		if task.RequiredCapital != nil && *task.RequiredCapital == -1 {
			t.Errorf("%s: required capital change leaked into the built-in catalog", task.Name)
		}
		if task.RequiredClass != nil && *task.RequiredClass == agents.WealthLow {
			t.Errorf("%s: required class change leaked into the built-in catalog", task.Name)
		}
	}
}

func TestLoadCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.yaml")
	content := `tasks:
  - name: Day Labor
    difficulty: 0.25
    reward: 6
    variance: 0.05
    base_loss: 2
    repeatability: 12
  - name: Startup Pitch
    difficulty: 0.65
    reward: 40
    variance: 0.25
    base_loss: 12
    repeatability: 3
    required_capital: 50
    required_class: Middle
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	tasks, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("loaded %d tasks, want 2", len(tasks))
	}
	pitch := tasks[1]
	if pitch.RequiredClass == nil || *pitch.RequiredClass != agents.WealthMiddle {
		t.Errorf("required class = %v, want Middle", pitch.RequiredClass)
	}
	if pitch.RequiredCapital == nil || *pitch.RequiredCapital != 50 {
		t.Errorf("required capital = %v, want 50", pitch.RequiredCapital)
	}
	if tasks[0].RequiredCapital != nil || tasks[0].RequiredClass != nil {
		t.Error("ungated task picked up gates")
	}
}

func TestLoadCatalogRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"zero repeatability", "tasks:\n  - {name: Broken, difficulty: 0.5, repeatability: 0}\n"},
		{"difficulty out of range", "tasks:\n  - {name: Broken, difficulty: 1.5, repeatability: 3}\n"},
		{"negative variance", "tasks:\n  - {name: Broken, difficulty: 0.5, variance: -1, repeatability: 3}\n"},
		{"NaN repeatability", "tasks:\n  - {name: Broken, difficulty: 0.5, repeatability: .nan}\n"},
		{"NaN reward", "tasks:\n  - {name: Broken, difficulty: 0.5, reward: .nan, repeatability: 3}\n"},
		{"infinite variance", "tasks:\n  - {name: Broken, difficulty: 0.5, variance: .inf, repeatability: 3}\n"},
		{"duplicate", "tasks:\n  - {name: Twin, difficulty: 0.5, repeatability: 3}\n  - {name: Twin, difficulty: 0.4, repeatability: 3}\n"},
		{"empty", "tasks: []\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "tasks.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}
			_, err := LoadCatalog(path)
			if !errors.Is(err, agents.ErrInvalidTask) {
				t.Errorf("LoadCatalog error = %v, want ErrInvalidTask", err)
			}
		})
	}

	t.Run("unknown class", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "tasks.yaml")
		content := "tasks:\n  - {name: X, difficulty: 0.5, repeatability: 3, required_class: Royal}\n"
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadCatalog(path); err == nil {
			t.Error("unknown class accepted")
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := LoadCatalog(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
			t.Error("missing file accepted")
		}
	})
}

func TestFilterCatalog(t *testing.T) {
	tasks := DefaultCatalog()

	got, err := FilterCatalog(tasks, "Market Speculation", "Day Labor")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Name != "Day Labor" || got[1].Name != "Market Speculation" {
		t.Errorf("filtered = %v", got)
	}

	if all, _ := FilterCatalog(tasks); len(all) != len(tasks) {
		t.Errorf("empty filter returned %d tasks", len(all))
	}

	if _, err := FilterCatalog(tasks, "Day Labour"); err == nil {
		t.Error("unknown task name accepted")
	}
}
