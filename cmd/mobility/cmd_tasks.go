package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/talgya/mobility/internal/agents"
	"github.com/talgya/mobility/internal/economy"
)

func newTasksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List the task catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := loadSetup(cmd)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(st.catalog)
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tTIER\tDIFFICULTY\tREWARD\tVARIANCE\tLOSS\tREPEAT\tREQUIRES")
			for _, t := range st.catalog {
				tier := economy.TierOf(t.Name)
				if tier == "" {
					tier = "custom"
				}
				fmt.Fprintf(tw, "%s\t%s\t%.2f\t%.0f\t%.2f\t%.0f\t%.2f\t%s\n",
					t.Name, tier, t.Difficulty, t.Reward, t.Variance, t.BaseLoss, t.Repeatability, requirements(t))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().String("catalog", "", "Path to a YAML task catalog")
	cmd.Flags().StringSlice("only", nil, "Restrict the catalog to these task names")
	return cmd
}

// requirements renders a task's entry gates, or "-" when it has none.
func requirements(t agents.Task) string {
	switch {
	case t.RequiredCapital != nil && t.RequiredClass != nil:
		return fmt.Sprintf("%s class, money >= %.0f", *t.RequiredClass, *t.RequiredCapital)
	case t.RequiredCapital != nil:
		return fmt.Sprintf("money >= %.0f", *t.RequiredCapital)
	case t.RequiredClass != nil:
		return fmt.Sprintf("%s class", *t.RequiredClass)
	default:
		return "-"
	}
}
