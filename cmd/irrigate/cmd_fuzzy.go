package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"irrigation-mcp-server/internal/config"
	"irrigation-mcp-server/internal/explain"
	"irrigation-mcp-server/internal/fuzzy"
)

// fuzzyInput is the fuzzy command file: either signals, or a plant entry plus weather.
type fuzzyInput struct {
	Signals map[string]interface{} `yaml:"signals"`
	Plant   *config.PlantConfig    `yaml:"plant"`
	Weather map[string]interface{} `yaml:"weather"`
}

var errNoFuzzyInput = errors.New("input needs a signals block or a plant block")

func newFuzzyCmd(root *rootFlags) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "fuzzy",
		Short: "Decide irrigate_today / irrigate_tomorrow / skip with the fuzzy engine",
		Long: "The input file holds either\n" +
			"  signals: {soilMoisture, rainNext24h, temp, humidity, et0, daysSinceLast, baselineInterval, ratio, stage}\n" +
			"or\n" +
			"  plant:   {id, stage, watering_interval_days, last_watered_at}\n" +
			"  weather: {temp, humidity, rainNext24h, et0, soilMoisture0to7cm, soilMoistureApprox}",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			now, err := root.clock()
			if err != nil {
				return err
			}

			var in fuzzyInput
			if err := readInput(cmd, file, &in); err != nil {
				return err
			}
			d, err := decideFuzzy(fuzzy.NewEngine(), in, now())
			if err != nil {
				return err
			}

			if root.output == "text" {
				printDecision(cmd.OutOrStdout(), d)
				return nil
			}
			return writeOutput(cmd, root.output, d)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Signals file, or - for stdin (required)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func decideFuzzy(engine *fuzzy.Engine, in fuzzyInput, now time.Time) (fuzzy.Decision, error) {
	switch {
	case in.Signals != nil:
		return engine.Decide(fuzzy.SignalsFromMap(in.Signals), now), nil
	case in.Plant != nil:
		p := in.Plant
		if p.LastWateredAt != "" && p.LastWatered() == nil {
			return fuzzy.Decision{}, fmt.Errorf("plant %s: last_watered_at %q is not RFC3339", p.ID, p.LastWateredAt)
		}
		return engine.Compute(fuzzy.Plant{
			ID:                   p.ID,
			Name:                 p.Name,
			Species:              p.Species,
			Stage:                p.Stage,
			WateringIntervalDays: p.IntervalDays(),
			LastWateredAt:        p.LastWatered(),
		}, fuzzy.WeatherFromMap(in.Weather), now), nil
	default:
		return fuzzy.Decision{}, errNoFuzzyInput
	}
}

func printDecision(out io.Writer, d fuzzy.Decision) {
	fmt.Fprintf(out, "Advice:     %s (confidence %.3f)\n", d.Recommendation, d.Confidence)
	if d.Failed() {
		fmt.Fprintf(out, "Error:      %s\n", d.Error)
	}
	fmt.Fprintf(out, "Reason:     %s\n", d.Reason)
	fmt.Fprintf(out, "Next date:  %s\n", d.NextDate)
	fmt.Fprintf(out, "Rules:      %s\n", explain.Rules(d.Tech.Rules))
	fmt.Fprintf(out, "Membership: %s\n", explain.Memberships(d.Tech.Memberships))
}
