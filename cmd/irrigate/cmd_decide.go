package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/liamcoop/irrigation/advisor"
	"github.com/liamcoop/irrigation/batch"
)

var (
	decideSoil     float64
	decideTemp     float64
	decideHumidity float64
	decideCrop     string
	decideRegion   string
	decideMode     string
	decideJSON     bool
)

var decideCmd = &cobra.Command{
	Use:   "decide",
	Short: "Decide one field",
	Long: `Decide whether one field needs irrigation.

Unknown crops are evaluated as the default crop (Wheat) and flagged.
--mode both prints the rule verdict and the model verdict.`,
	Example: `  irrigate decide --soil 25 --temp 35 --crop Rice
  irrigate decide --soil 18 --crop Millet --region Rajasthan --mode both --lang hi`,
	Args: cobra.NoArgs,
	RunE: runDecide,
}

func init() {
	f := decideCmd.Flags()
	f.Float64Var(&decideSoil, "soil", batch.DefaultSoil, "soil moisture (%)")
	f.Float64Var(&decideTemp, "temp", batch.DefaultTemp, "temperature (°C)")
	f.Float64Var(&decideHumidity, "humidity", batch.DefaultHumidity, "relative humidity (%)")
	f.StringVar(&decideCrop, "crop", batch.DefaultCrop, "crop name")
	f.StringVar(&decideRegion, "region", "", "state or region, used to flag unusual crops")
	f.StringVar(&decideMode, "mode", string(advisor.ModeRules), "back-end: rules, model or both")
	f.BoolVar(&decideJSON, "json", false, "print results as JSON")
}

func runDecide(cmd *cobra.Command, args []string) error {
	modes, err := advisor.ParseModes(decideMode)
	if err != nil {
		return err
	}

	q := advisor.Query{
		SoilMoisture: decideSoil,
		Temperature:  decideTemp,
		Humidity:     decideHumidity,
		Crop:         decideCrop,
		Region:       decideRegion,
	}

	results, err := application.Advisor.DecideAll(cmd.Context(), q, modes, lang)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if decideJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	for i, res := range results {
		if i > 0 {
			fmt.Fprintln(out)
		}
		printResult(out, res)
	}
	return nil
}

func printResult(w io.Writer, res *advisor.Result) {
	basis := ""
	switch {
	case res.RuleID != "":
		basis = fmt.Sprintf(" (rule %s)", res.RuleID)
	case res.Probability != nil:
		basis = fmt.Sprintf(" (p=%.2f)", *res.Probability)
	}

	fmt.Fprintf(w, "%-8s %s%s\n", "Mode:", res.Mode, basis)
	fmt.Fprintf(w, "%-8s %s\n", "Verdict:", res.Verdict)
	fmt.Fprintf(w, "%-8s %s\n", "Crop:", res.Crop)
	if res.Region != "" {
		fmt.Fprintf(w, "%-8s %s\n", "Region:", res.Region)
	}
	fmt.Fprintf(w, "\n%s\n%s\n", res.Recommendation.Title, res.Recommendation.Advice)
	for _, note := range res.Notes {
		fmt.Fprintf(w, "Note: %s\n", note)
	}
}
