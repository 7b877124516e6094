// Agent life-story generation via Haiku.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/talgya/mobility/internal/agents"
	"github.com/talgya/mobility/internal/engine"
)

// narrativeEvents caps how many recent rounds are described in the prompt.
const narrativeEvents = 12

// NarrativeContext holds the data needed to narrate an agent's trajectory.
type NarrativeContext struct {
	Name           string
	Age            int
	Class          agents.Wealth
	Alive          bool
	DiedRound      int
	Talent         float64
	Money          float64
	InitialMoney   float64
	Identity       agents.Identity
	FailureRate    float64
	FavouriteTask  string
	FavouriteCount int
	Recent         []string // e.g. "round 12: succeeded at Day Labor (+8)"
}

// NewNarrativeContext builds the prompt context from an agent detail record.
func NewNarrativeContext(d engine.AgentDetail) NarrativeContext {
	nc := NarrativeContext{
		Name:         d.Name,
		Age:          d.Age,
		Class:        d.Class,
		Alive:        d.Alive,
		DiedRound:    d.DiedRound,
		Talent:       d.Talent,
		Money:        d.Money,
		InitialMoney: d.InitialRewards,
		Identity:     d.Identity,
		FailureRate:  d.FailureRate,
	}
	for name, n := range d.TasksDone {
		if n > nc.FavouriteCount || (n == nc.FavouriteCount && name < nc.FavouriteTask) {
			nc.FavouriteTask, nc.FavouriteCount = name, n
		}
	}

	history := d.History
	if len(history) > narrativeEvents {
		history = history[len(history)-narrativeEvents:]
	}
	for _, h := range history {
		nc.Recent = append(nc.Recent, describeEntry(h))
	}
	return nc
}

func describeEntry(h agents.HistoryEntry) string {
	if h.Success {
		return fmt.Sprintf("round %d: succeeded at %s (+%s)", h.Round, h.TaskName, humanize.FormatFloat("#,###.#", h.Reward))
	}
	return fmt.Sprintf("round %d: failed at %s (-%s)", h.Round, h.TaskName, humanize.FormatFloat("#,###.#", h.Loss))
}

// Prompt renders the context as the user prompt sent to the model.
func (nc NarrativeContext) Prompt() string {
	var details []string
	details = append(details, fmt.Sprintf("Name: %s", nc.Name))
	details = append(details, fmt.Sprintf("Age: %d", nc.Age))
	details = append(details, fmt.Sprintf("Born into: %s wealth", nc.Class))
	details = append(details, fmt.Sprintf("Talent: %.2f", nc.Talent))
	details = append(details, fmt.Sprintf("Money: %s (started with %s)",
		humanize.FormatFloat("#,###.#", nc.Money), humanize.FormatFloat("#,###.#", nc.InitialMoney)))
	details = append(details, fmt.Sprintf("Confidence: %.2f, competence: %.2f, aspiration: %.2f, risk tolerance: %.2f",
		nc.Identity.Confidence, nc.Identity.Competence, nc.Identity.Aspiration, nc.Identity.RiskTolerance))
	details = append(details, fmt.Sprintf("Failure rate: %.0f%%", nc.FailureRate*100))

	if nc.FavouriteTask != "" {
		details = append(details, fmt.Sprintf("Most attempted work: %s (%s)", nc.FavouriteTask, humanize.Comma(int64(nc.FavouriteCount))))
	}
	if !nc.Alive {
		details = append(details, fmt.Sprintf("Gave up in round %d", nc.DiedRound))
	}
	if len(nc.Recent) > 0 {
		details = append(details, "Recent rounds: "+strings.Join(nc.Recent, "; "))
	}
	return fmt.Sprintf("Write the story of this person:\n\n%s", strings.Join(details, "\n"))
}

const narrativeSystem = `You are a social historian writing short case studies about ordinary people whose lives were shaped by the wealth they were born into.

Write a brief narrative (120-200 words) in plain, humane prose. Describe how their starting circumstances, their self-belief and their choices of work interacted. Mention concrete setbacks and successes from the record. Do not invent numbers that are not given, and do not refer to a simulation or to agents.`

// GenerateNarrative creates a Haiku-generated life story for an agent.
func GenerateNarrative(ctx context.Context, client *Client, nc NarrativeContext) (string, error) {
	if !client.Enabled() {
		return "", ErrDisabled
	}
	return client.Complete(ctx, narrativeSystem, nc.Prompt(), 400)
}
