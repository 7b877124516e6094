// Package social implements peer influence between agents: neighbour
// sampling across the class ladder and the effects a sampled peer has on an
// agent's beliefs and opportunities.
package social

import (
	"github.com/talgya/mobility/internal/agents"
	"github.com/talgya/mobility/internal/entropy"
)

// Sampling and effect constants.
const (
	MaxPeers = 2

	UpwardPeerChance   = 0.25
	DownwardPeerChance = 0.10

	ConvergenceRate = 0.02

	OpportunityScale      = 0.05 // Chance per unit of the peer's social capital.
	OpportunityAspiration = 0.1
	OpportunityCapital    = 0.05

	ContagionChance = 0.15
	ContagionGain   = 0.02
)

// Effects counts what a round of peer interaction did to one agent.
type Effects struct {
	Peers         int
	Opportunities int
	Contagions    int
}

// SamplePeers picks up to MaxPeers living neighbours for self from the live
// population: one from the same class, then possibly one from a strictly
// higher class and one from a strictly lower class.
func SamplePeers(src *entropy.Source, self *agents.Agent, population []*agents.Agent) []*agents.Agent {
	var same, higher, lower []*agents.Agent
	for _, p := range population {
		if p == self || !p.Alive {
			continue
		}
		switch {
		case p.Wealth == self.Wealth:
			same = append(same, p)
		case p.Wealth > self.Wealth:
			higher = append(higher, p)
		default:
			lower = append(lower, p)
		}
	}

	peers := make([]*agents.Agent, 0, MaxPeers)
	if len(same) > 0 {
		peers = append(peers, entropy.Pick(src, same))
	}
	if src.Chance(UpwardPeerChance) && len(higher) > 0 {
		peers = append(peers, entropy.Pick(src, higher))
	}
	if src.Chance(DownwardPeerChance) && len(lower) > 0 {
		peers = append(peers, entropy.Pick(src, lower))
	}
	if len(peers) > MaxPeers {
		peers = peers[:MaxPeers]
	}
	return peers
}

// Interact applies each peer's influence on self. Only self is mutated.
func Interact(src *entropy.Source, self *agents.Agent, peers []*agents.Agent) Effects {
	var fx Effects
	if !self.Alive {
		return fx
	}
	id := &self.Identity

	for _, peer := range peers {
		fx.Peers++

		id.Confidence += ConvergenceRate * (peer.Identity.Confidence - id.Confidence)
		id.Confidence = agents.Clamp(id.Confidence, 0, 1)

		// Cross-class contacts open doors for the poor.
		if self.Wealth == agents.WealthLow && peer.Wealth > agents.WealthLow &&
			src.Chance(OpportunityScale*peer.SocialCapital) {
			id.Aspiration = agents.Clamp(id.Aspiration+OpportunityAspiration, 0, 1)
			self.SocialCapital = agents.Clamp(self.SocialCapital+OpportunityCapital, 0, agents.SocialCapitalCeiling[self.Wealth])
			fx.Opportunities++
		}

		if peer.Identity.Competence > id.Competence && self.LastTaskSucceeded &&
			src.Chance(ContagionChance) {
			id.Competence = agents.Clamp(id.Competence+ContagionGain, 0, 1)
			fx.Contagions++
		}
	}

	// Peer effects stay inside the self-model bands.
	id.Clamp(self.Talent)
	return fx
}
