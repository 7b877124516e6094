// Agent spawning: creates the initial population from a weighted class draw
// and a uniform talent draw.
package agents

import (
	"github.com/talgya/mobility/internal/entropy"
)

// Spawner creates agents for the simulation.
type Spawner struct {
	src    *entropy.Source
	nextID AgentID
	window int
}

// NewSpawner creates an agent spawner drawing from src. Each agent keeps the
// last window rounds of history.
func NewSpawner(src *entropy.Source, window int) *Spawner {
	if window <= 0 {
		window = DefaultHistoryWindow
	}
	return &Spawner{
		src:    src,
		nextID: 0,
		window: window,
	}
}

// SpawnPopulation creates count agents with IDs 0..count-1 (continuing from
// any previously spawned IDs).
func (s *Spawner) SpawnPopulation(count int) []*Agent {
	agents := make([]*Agent, 0, count)
	for i := 0; i < count; i++ {
		talent := s.src.Float()
		weights := ClassWeights
		wealth := Wealth(s.src.WeightedChoice(weights[:]))
		agents = append(agents, s.Spawn(wealth, talent))
	}
	return agents
}

// Spawn creates one agent with the given class and talent.
func (s *Spawner) Spawn(wealth Wealth, talent float64) *Agent {
	id := s.nextID
	s.nextID++

	identity := NewIdentity(s.src, wealth, talent)

	return &Agent{
		ID:                  id,
		Name:                s.generateName(),
		Talent:              talent,
		Wealth:              wealth,
		Age:                 0,
		Identity:            identity,
		Rewards:             StartingRewards[wealth],
		Alive:               true,
		SocialCapital:       StartingSocialCapital[wealth],
		PerformanceEstimate: identity.Confidence,
		TasksDone:           make(map[string]int),
		DiedRound:           -1,
		InitialRewards:      StartingRewards[wealth],
		History:             NewHistory(s.window),
	}
}

func (s *Spawner) generateName() string {
	var firsts []string
	if s.src.Chance(0.5) {
		firsts = maleNames
	} else {
		firsts = femaleNames
	}
	return entropy.Pick(s.src, firsts) + " " + entropy.Pick(s.src, lastNames)
}

// Name pools for procedural generation.
var maleNames = []string{
	"Aaron", "Bilal", "Carlos", "Darnell", "Elijah", "Felix", "Gabriel",
	"Hassan", "Isaac", "Jamal", "Kenji", "Luis", "Marcus", "Nikhil",
	"Omar", "Pavel", "Quentin", "Rafael", "Samuel", "Tomas", "Umar",
	"Victor", "Wei", "Xavier", "Yusuf", "Zane", "Andre", "Brian", "Caleb",
}

var femaleNames = []string{
	"Amara", "Beatriz", "Chloe", "Daniela", "Elena", "Fatima", "Grace",
	"Hana", "Imani", "Julia", "Keisha", "Lucia", "Maya", "Nadia",
	"Olivia", "Priya", "Rosa", "Sofia", "Tamika", "Uma", "Valeria",
	"Wendy", "Ximena", "Yara", "Zoe", "Aisha", "Brianna", "Camila",
}

var lastNames = []string{
	"Adams", "Baker", "Chen", "Diaz", "Evans", "Foster", "Garcia",
	"Hughes", "Ibrahim", "Johnson", "Kim", "Lopez", "Martin", "Nguyen",
	"Okafor", "Patel", "Quinn", "Rivera", "Singh", "Thompson", "Usman",
	"Vasquez", "Williams", "Xu", "Young", "Zhang", "Brooks", "Carter",
	"Delgado", "Ellis", "Fischer", "Greene", "Harris", "Jackson", "Morales",
}
