package main

import (
	"fmt"
	"io"
	"math"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"github.com/talgya/mobility/internal/agents"
	"github.com/talgya/mobility/internal/engine"
)

// maxListedDropouts caps the dropout list in the text summary.
const maxListedDropouts = 10

// money formats an amount with thousands separators and one rounded decimal.
// CommafWithDigits truncates, so round first.
func money(v float64) string {
	return humanize.CommafWithDigits(math.Round(v*10)/10, 1)
}

// writeSummary prints the human-readable report of a finished run.
func writeSummary(w io.Writer, r runResult) {
	if r.RunID != "" {
		fmt.Fprintf(w, "Run %s\n", r.RunID)
	}
	fmt.Fprintf(w, "Seed %d, %s policy\n", r.Seed, r.Policy)

	status := "complete"
	if r.Interrupted {
		status = "interrupted"
	}
	fmt.Fprintf(w, "%s rounds (%s), %s agents: %s still in, %s dropped out\n",
		humanize.Comma(int64(r.Rounds)), status,
		humanize.Comma(int64(r.Agents)),
		humanize.Comma(int64(r.Final.Alive)),
		humanize.Comma(int64(r.Final.Dropouts)),
	)
	fmt.Fprintf(w, "Tasks: %s attempted, %s succeeded (%s)\n\n",
		humanize.Comma(int64(r.Attempts)),
		humanize.Comma(int64(r.Successes)),
		percent(r.Successes, r.Attempts),
	)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Class\tAgents\tStill in\tMean money\tConfidence\tCompetence\tAspiration\tRisk\t")
	for _, c := range r.Final.Classes {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%.2f\t%.2f\t%.2f\t%.2f\t\n",
			c.Class, c.Total, c.Alive,
			money(c.MeanMoney),
			c.MeanConfidence, c.MeanCompetence, c.MeanAspiration, c.MeanRiskTolerance,
		)
	}
	tw.Flush()

	if len(r.Dropouts) == 0 {
		return
	}
	fmt.Fprintf(w, "\nDropouts by class: %s\n", dropoutsByClass(r.Final))
	listed := r.Dropouts
	if len(listed) > maxListedDropouts {
		listed = listed[len(listed)-maxListedDropouts:]
		fmt.Fprintf(w, "Last %d dropouts:\n", maxListedDropouts)
	}
	for _, e := range listed {
		fmt.Fprintf(w, "  round %3d  %s\n", e.Round+1, e.Description)
	}
}

func percent(n, of int) string {
	if of == 0 {
		return "n/a"
	}
	return fmt.Sprintf("%.1f%%", 100*float64(n)/float64(of))
}

// dropoutsByClass renders "Low 4, Middle 1, High 0".
func dropoutsByClass(s engine.RoundStats) string {
	out := ""
	for i, w := range agents.WealthClasses {
		c := s.Class(w)
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("%s %d", w, c.Total-c.Alive)
	}
	return out
}
