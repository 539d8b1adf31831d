// Command irrigate answers irrigation decision queries from the terminal.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/liamcoop/irrigation/config"
	"github.com/liamcoop/irrigation/internal/app"
	"github.com/liamcoop/irrigation/internal/logger"
)

var (
	// Global flags
	logLevel     string
	lang         string
	rulesFile    string
	modelSeed    uint64
	modelSamples int
	modelTrees   int

	// Built by the root command before any subcommand runs
	application *app.App
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "irrigate",
	Short: "Irrigation decision support",
	Long: `irrigate recommends whether a field needs irrigation from soil moisture,
temperature, humidity and crop.

Two back-ends are available:
  rules - the ordered risk rule table (High, Medium, Low)
  model - a bagged decision-tree classifier trained on synthetic labels
          (IrrigationNeeded, Optimal)

Settings come from IRRIGATION_CONFIG and the environment, flags win.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if application != nil {
			application.Close()
		}
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&logLevel, "log-level", "", "log level (TRACE, DEBUG, INFO, WARN, ERROR)")
	pf.StringVar(&lang, "lang", "", "language of recommendation texts (en, hi, es)")
	pf.StringVar(&rulesFile, "rules", "", "YAML file with rule set definitions")
	pf.Uint64Var(&modelSeed, "model-seed", 0, "seed for synthetic data and tree bagging")
	pf.IntVar(&modelSamples, "model-samples", 0, "number of synthetic training samples")
	pf.IntVar(&modelTrees, "model-trees", 0, "number of trees in the ensemble")

	rootCmd.AddCommand(decideCmd, batchCmd, trainCmd, cropsCmd, regionsCmd, rulesCmd)
}

// setup loads the configuration, applies flag overrides and wires the app.
// The CLI logs text to stderr so stdout carries only results.
func setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	pf := cmd.Flags()
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if lang != "" {
		cfg.DefaultLang = lang
	}
	if rulesFile != "" {
		cfg.Rules.File = rulesFile
	}
	if pf.Changed("model-seed") {
		cfg.Model.Seed = modelSeed
		cfg.Model.Forest.Seed = modelSeed
	}
	if pf.Changed("model-samples") {
		cfg.Model.SampleCount = modelSamples
	}
	if pf.Changed("model-trees") {
		cfg.Model.Forest.Trees = modelTrees
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger.Setup(logger.FormatText, os.Stderr)
	level, _ := logger.ParseLevel(cfg.LogLevel)
	logger.SetLevel(level)

	application, err = app.New(cmd.Context(), cfg)
	return err
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
