package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var rulesCmd = &cobra.Command{
	Use:   "rules [set]",
	Short: "Show rule sets and their rules",
	Long: `Without arguments, list the loaded rule sets. With a set name, print its
rules in evaluation order; the first active rule that matches decides.`,
	Example: `  irrigate rules
  irrigate rules risk
  irrigate rules label --rules ./my-rules.yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRules,
}

func runRules(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if len(args) == 0 {
		for _, name := range application.Rules.List() {
			rs, err := application.Rules.Get(name)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%-8s %s\n", name, rs.Definition.Description)
		}
		return nil
	}

	engine, err := application.Rules.Engine(args[0])
	if err != nil {
		return err
	}
	list, err := engine.Store().List()
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PRIORITY\tID\tVERDICT\tACTIVE\tEXPRESSION")
	for _, r := range list {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%t\t%s\n", r.Priority, r.ID, r.Verdict, r.Active, r.Expression)
	}
	return tw.Flush()
}
