package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"irrigation-mcp-server/internal/pipeline"
)

type runFlags struct {
	file      string
	plantType string
}

func newRunCmd(root *rootFlags) *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the five-stage pipeline over one set of sensor readings",
		Long: "Reads raw readings (soil_moisture, temperature, humidity, light, rainfall,\n" +
			"water_added_24h, soil, species) from a YAML or JSON file and prints the envelope.\n" +
			"Exits non-zero when any stage failed.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPipeline(cmd, root, flags)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&flags.file, "file", "f", "", "Readings file, or - for stdin (required)")
	f.StringVar(&flags.plantType, "plant-type", "", "Plant type selecting the water budget (tomato, potato, pepper, peach, grape)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func runPipeline(cmd *cobra.Command, root *rootFlags, flags *runFlags) error {
	now, err := root.clock()
	if err != nil {
		return err
	}

	raw := map[string]interface{}{}
	if err := readInput(cmd, flags.file, &raw); err != nil {
		return err
	}

	env := pipeline.NewManager(pipeline.WithClock(now)).Process(raw, flags.plantType)
	if root.output == "text" {
		printEnvelope(cmd.OutOrStdout(), env)
	} else if err := writeOutput(cmd, root.output, env); err != nil {
		return err
	}

	if env.Status != pipeline.RunSucceeded {
		return fmt.Errorf("pipeline run %s failed with %d errors", env.Metadata.RunID, len(env.Metadata.Errors))
	}
	return nil
}

func printEnvelope(out io.Writer, env pipeline.Envelope) {
	fmt.Fprintf(out, "Run:       %s (%s)\n", env.Metadata.RunID, env.Metadata.PlantType)
	fmt.Fprintf(out, "Status:    %s\n", env.Status)
	if s := env.Suggestion; s != nil {
		water := "no"
		if s.ShouldWater {
			water = fmt.Sprintf("yes, %.2f L", s.WaterAmountLiters)
		}
		fmt.Fprintf(out, "Water:     %s (%s)\n", water, s.Decision)
		fmt.Fprintf(out, "Priority:  %s\n", s.Priority)
		fmt.Fprintf(out, "When:      %s, next window %s\n", s.Timing.SuggestedTime, s.Timing.NextWindow)
	}
	if len(env.Details.Anomalies) > 0 {
		kinds := make([]string, 0, len(env.Details.Anomalies))
		for _, a := range env.Details.Anomalies {
			kinds = append(kinds, fmt.Sprintf("%s (%s)", a.Type, a.Severity))
		}
		fmt.Fprintf(out, "Anomalies: %s\n", strings.Join(kinds, ", "))
	}
	for _, m := range env.Metadata.Errors {
		fmt.Fprintf(out, "Error:     %s\n", m)
	}
	for _, m := range env.Metadata.Warnings {
		fmt.Fprintf(out, "Warning:   %s\n", m)
	}
}
