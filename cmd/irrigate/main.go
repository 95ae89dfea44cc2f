// irrigate runs the irrigation advisor once from the command line.
//
// Usage:
//
//	irrigate run -f readings.yaml [--plant-type tomato]
//	irrigate fuzzy -f signals.yaml [--now 2025-07-15T08:00:00Z]
//	irrigate advise [plant-id ...] [--config config.yaml] [--detail]
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

type rootFlags struct {
	output string
	now    string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:   "irrigate",
		Short: "One-shot irrigation advice: five-stage pipeline, fuzzy engine, full advisor",
		Long: "irrigate runs the same decision chain as the MCP server without a transport:\n" +
			"raw readings through the five-stage pipeline, signals through the fuzzy engine,\n" +
			"or configured plants through the full advisor.",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		Version: version,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&flags.output, "output", "o", "json", "Output format: json, yaml or text")
	pf.StringVar(&flags.now, "now", "", "Evaluation time (RFC3339); defaults to the wall clock")

	root.AddCommand(newRunCmd(flags))
	root.AddCommand(newFuzzyCmd(flags))
	root.AddCommand(newAdviseCmd(flags))
	return root
}

// clock returns the evaluation clock selected by --now.
func (f *rootFlags) clock() (func() time.Time, error) {
	if f.now == "" {
		return time.Now, nil
	}
	t, err := time.Parse(time.RFC3339, f.now)
	if err != nil {
		return nil, fmt.Errorf("--now: %w", err)
	}
	return func() time.Time { return t }, nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
