package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cropsRegion string

var cropsCmd = &cobra.Command{
	Use:   "crops",
	Short: "List known crops",
	Long: `List the crop catalog in index order, or the crops usually grown in one
region. The index is the crop feature seen by the classifier.`,
	Args: cobra.NoArgs,
	RunE: runCrops,
}

var regionsCmd = &cobra.Command{
	Use:   "regions",
	Short: "List known regions",
	Args:  cobra.NoArgs,
	RunE:  runRegions,
}

func init() {
	cropsCmd.Flags().StringVar(&cropsRegion, "region", "", "only crops usually grown in this region")
}

func runCrops(cmd *cobra.Command, args []string) error {
	catalog := application.Catalog
	out := cmd.OutOrStdout()

	if cropsRegion == "" {
		groups := catalog.Groups()
		for i, name := range catalog.Names() {
			tag := ""
			switch {
			case groups.IsHighWater(i):
				tag = "  high water"
			case groups.IsLowWater(i):
				tag = "  low water"
			}
			fmt.Fprintf(out, "%2d  %s%s\n", i, name, tag)
		}
		return nil
	}

	names, ok := catalog.CropsFor(cropsRegion)
	if !ok {
		return fmt.Errorf("unknown region %q, see 'irrigate regions'", cropsRegion)
	}
	for _, name := range names {
		fmt.Fprintln(out, name)
	}
	return nil
}

func runRegions(cmd *cobra.Command, args []string) error {
	for _, name := range application.Catalog.Regions() {
		fmt.Fprintln(cmd.OutOrStdout(), name)
	}
	return nil
}
