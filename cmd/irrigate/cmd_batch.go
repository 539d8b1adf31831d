package main

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/liamcoop/irrigation/advisor"
	"github.com/liamcoop/irrigation/internal/logger"
)

var (
	batchMode string
	batchOut  string
)

var batchCmd = &cobra.Command{
	Use:   "batch [file]",
	Short: "Decide every row of a CSV file",
	Long: `Decide every row of a CSV file with any of the columns soil, temp,
humidity and crop (names are case-insensitive) and print it with a verdict
column appended. Missing columns and empty cells default to soil=40,
temp=30, humidity=50, crop=Wheat.

A malformed file is reported as one error and nothing is written.
Reads stdin when the file is "-" or omitted.`,
	Example: `  irrigate batch fields.csv
  irrigate batch --mode model --out verdicts.csv fields.csv`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBatch,
}

func init() {
	batchCmd.Flags().StringVar(&batchMode, "mode", string(advisor.ModeRules), "back-end: rules or model")
	batchCmd.Flags().StringVarP(&batchOut, "out", "o", "", "write the result to a file instead of stdout")
}

func runBatch(cmd *cobra.Command, args []string) error {
	mode, err := advisor.ParseMode(batchMode)
	if err != nil {
		return err
	}

	var in io.Reader = cmd.InOrStdin()
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	// Buffer the result so a failed batch never leaves a partial file
	var out bytes.Buffer
	rows, err := application.Advisor.Batch(cmd.Context(), in, &out, mode)
	if err != nil {
		return err
	}

	if batchOut == "" {
		_, err = cmd.OutOrStdout().Write(out.Bytes())
		return err
	}
	if err := os.WriteFile(batchOut, out.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", batchOut, err)
	}
	logger.Info("batch written", "file", batchOut, "rows", rows)
	return nil
}
