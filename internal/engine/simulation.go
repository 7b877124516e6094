// Simulation ties the population, the task catalog and the random source
// together and runs them one round at a time.
package engine

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/talgya/mobility/internal/agents"
	"github.com/talgya/mobility/internal/entropy"
	"github.com/talgya/mobility/internal/social"
)

// Options configures a simulation run.
type Options struct {
	Agents        int
	Seed          int64
	HistoryWindow int
	Policy        agents.DropoutPolicy
}

// Simulation holds the complete population state. All exported methods are
// safe for concurrent use; a round is applied atomically under the lock.
type Simulation struct {
	mu sync.RWMutex

	opts       Options
	src        *entropy.Source
	catalog    []agents.Task
	population []*agents.Agent
	index      map[agents.AgentID]*agents.Agent

	round    int // Rounds completed.
	dropouts []agents.AgentID
	last     RoundStats
	history  []RoundStats

	events    []Event
	subs      map[int]chan Event
	nextSubID int
}

// NewSimulation spawns a population from opts and prepares it to run
// against catalog.
func NewSimulation(opts Options, catalog []agents.Task) *Simulation {
	opts = opts.withDefaults()
	src := entropy.New(opts.Seed)
	population := agents.NewSpawner(src, opts.HistoryWindow).SpawnPopulation(opts.Agents)
	return newSimulation(opts, src, catalog, population)
}

// NewSimulationFrom runs an existing population. The population's agents are
// owned by the simulation from here on.
func NewSimulationFrom(opts Options, catalog []agents.Task, population []*agents.Agent) *Simulation {
	opts = opts.withDefaults()
	opts.Agents = len(population)
	return newSimulation(opts, entropy.New(opts.Seed), catalog, population)
}

func newSimulation(opts Options, src *entropy.Source, catalog []agents.Task, population []*agents.Agent) *Simulation {
	s := &Simulation{
		subs: make(map[int]chan Event),
	}
	s.load(opts, src, catalog, population)
	return s
}

func (o Options) withDefaults() Options {
	if o.Agents <= 0 {
		o.Agents = 100
	}
	if o.HistoryWindow <= 0 {
		o.HistoryWindow = agents.DefaultHistoryWindow
	}
	return o
}

// load installs a fresh population. Caller holds the write lock or owns s.
func (s *Simulation) load(opts Options, src *entropy.Source, catalog []agents.Task, population []*agents.Agent) {
	index := make(map[agents.AgentID]*agents.Agent, len(population))
	for _, a := range population {
		index[a.ID] = a
	}

	s.opts = opts
	s.src = src
	s.catalog = catalog
	s.population = population
	s.index = index
	s.round = 0
	s.dropouts = nil
	s.history = nil
	s.events = nil
	s.last = s.collectStats(roundTally{})
}

// Reset discards the current population and spawns a new one from opts.
// Subscribers stay attached.
func (s *Simulation) Reset(opts Options) {
	opts = opts.withDefaults()
	src := entropy.New(opts.Seed)
	population := agents.NewSpawner(src, opts.HistoryWindow).SpawnPopulation(opts.Agents)

	s.mu.Lock()
	s.load(opts, src, s.catalog, population)
	s.mu.Unlock()

	slog.Info("simulation reset", "agents", opts.Agents, "seed", opts.Seed, "policy", opts.Policy)
	s.EmitEvent(Event{
		Round:       0,
		Description: fmt.Sprintf("Simulation reset with %d agents", opts.Agents),
		Category:    CategoryControl,
	})
}

// roundTally counts what happened during one round.
type roundTally struct {
	attempts      int
	successes     int
	unemployed    int
	newDropouts   int
	mentored      int
	windfalls     int
	settled       int
	opportunities int
	contagions    int
}

// RunRound advances every living agent by one round and returns the
// resulting snapshot. Peers are sampled from the live population, so an
// agent may meet peers already updated earlier in the same round.
func (s *Simulation) RunRound() Snapshot {
	s.mu.Lock()

	round := s.round
	var tally roundTally
	var emitted []Event

	for _, a := range s.population {
		if !a.Alive {
			continue
		}

		task := a.ChooseTask(s.src, s.catalog)
		outcome := task.Resolve(s.src, a)
		a.Record(round, task, outcome)
		report := a.Update(s.src, outcome, s.opts.Policy)
		a.Age++

		tally.attempts++
		if outcome.Success {
			tally.successes++
		}
		if task.Name == agents.UnemploymentName {
			tally.unemployed++
		}
		if report.Settled {
			tally.settled++
		}
		if report.Mentored {
			tally.mentored++
			emitted = append(emitted, Event{
				Round:       round,
				Description: fmt.Sprintf("%s found a mentor", a.Name),
				Category:    CategoryMentor,
				AgentID:     agentRef(a.ID),
			})
		}
		if report.Windfall > 0 {
			tally.windfalls++
			emitted = append(emitted, Event{
				Round:       round,
				Description: fmt.Sprintf("%s received a windfall of %.0f", a.Name, report.Windfall),
				Category:    CategoryWindfall,
				AgentID:     agentRef(a.ID),
			})
		}

		if a.Alive {
			peers := social.SamplePeers(s.src, a, s.population)
			fx := social.Interact(s.src, a, peers)
			tally.contagions += fx.Contagions
			if fx.Opportunities > 0 {
				tally.opportunities += fx.Opportunities
				emitted = append(emitted, Event{
					Round:       round,
					Description: fmt.Sprintf("%s was opened a door by a better-connected peer", a.Name),
					Category:    CategoryOpportunity,
					AgentID:     agentRef(a.ID),
				})
			}
			continue
		}

		a.DiedRound = round
		s.dropouts = append(s.dropouts, a.ID)
		tally.newDropouts++
		emitted = append(emitted, Event{
			Round:       round,
			Description: fmt.Sprintf("%s (%s, age %d) dropped out with %.0f", a.Name, a.Wealth, a.Age, a.Rewards),
			Category:    CategoryDropout,
			AgentID:     agentRef(a.ID),
		})
	}

	s.round++
	stats := s.collectStats(tally)
	s.last = stats
	s.history = append(s.history, stats)
	if len(s.history) > maxStatsHistory {
		s.history = s.history[len(s.history)-maxStatsHistory:]
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	for _, e := range emitted {
		s.EmitEvent(e)
	}
	s.EmitEvent(Event{
		Round:       round,
		Description: fmt.Sprintf("Round %d complete: %d alive, %d dropped out", stats.Round, stats.Alive, stats.Dropouts),
		Category:    CategoryRound,
		Stats:       &stats,
	})

	return snap
}

func agentRef(id agents.AgentID) *agents.AgentID {
	return &id
}

// CurrentRound returns the number of rounds completed.
func (s *Simulation) CurrentRound() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.round
}

// Options returns the options the current population was built with.
func (s *Simulation) Options() Options {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.opts
}

// Catalog returns the task catalog.
func (s *Simulation) Catalog() []agents.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.catalog
}

// Dropouts returns the IDs of agents that have left, in the order they left.
func (s *Simulation) Dropouts() []agents.AgentID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]agents.AgentID, len(s.dropouts))
	copy(out, s.dropouts)
	return out
}

// Agent returns the detail record for one agent.
func (s *Simulation) Agent(id agents.AgentID) (AgentDetail, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.index[id]
	if !ok {
		return AgentDetail{}, false
	}
	detail := AgentDetail{
		AgentSummary: a.Summary(),
		Identity:     a.Identity,
		TasksDone:    make(map[string]int, len(a.TasksDone)),
		DiedRound:    a.DiedRound,
	}
	for name, n := range a.TasksDone {
		detail.TasksDone[name] = n
	}
	if a.History != nil {
		detail.History = a.History.Entries()
	}
	return detail, true
}

// AgentHistory returns the retained history of one agent, oldest first.
func (s *Simulation) AgentHistory(id agents.AgentID) ([]agents.HistoryEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.index[id]
	if !ok {
		return nil, false
	}
	if a.History == nil {
		return []agents.HistoryEntry{}, true
	}
	return a.History.Entries(), true
}
