package engine

import (
	"github.com/talgya/mobility/internal/agents"
)

// Event categories.
const (
	CategoryRound       = "round"
	CategoryDropout     = "dropout"
	CategoryWindfall    = "windfall"
	CategoryMentor      = "mentor"
	CategoryOpportunity = "opportunity"
	CategoryControl     = "control"
)

// maxEvents bounds the in-memory event log.
const maxEvents = 1000

// subscriberBuffer is the per-subscriber channel depth. Slow subscribers
// miss events rather than stall the simulation.
const subscriberBuffer = 64

// Event is a notable occurrence in the simulation.
type Event struct {
	Round       int             `json:"round"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	AgentID     *agents.AgentID `json:"agent_id,omitempty"`
	Stats       *RoundStats     `json:"stats,omitempty"`
}

// EmitEvent records an event and fans it out to subscribers.
func (s *Simulation) EmitEvent(e Event) {
	s.mu.Lock()
	s.events = append(s.events, e)
	if len(s.events) > maxEvents {
		s.events = s.events[len(s.events)-maxEvents:]
	}
	for _, ch := range s.subs {
		select {
		case ch <- e:
		default:
		}
	}
	s.mu.Unlock()
}

// Events returns up to limit of the most recent events, oldest first,
// optionally filtered by category. limit <= 0 returns every retained event.
func (s *Simulation) Events(limit int, category string) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Event
	for _, e := range s.events {
		if category == "" || e.Category == category {
			out = append(out, e)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// Subscribe registers a listener for new events.
func (s *Simulation) Subscribe() (int, <-chan Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSubID
	s.nextSubID++
	ch := make(chan Event, subscriberBuffer)
	s.subs[id] = ch
	return id, ch
}

// Unsubscribe removes a listener and closes its channel.
func (s *Simulation) Unsubscribe(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.subs[id]; ok {
		delete(s.subs, id)
		close(ch)
	}
}
