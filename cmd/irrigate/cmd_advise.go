package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"irrigation-mcp-server/internal/advisor"
	"irrigation-mcp-server/internal/config"
	"irrigation-mcp-server/internal/fuzzy"
	"irrigation-mcp-server/internal/mangle"
)

type adviseFlags struct {
	configPath   string
	noWorkspace  bool
	workspaceDir string
	detail       bool
	views        bool
}

type adviceSummary struct {
	PlantID        string       `json:"plantId"`
	DecisionStatus string       `json:"decisionStatus,omitempty"`
	Recommendation fuzzy.Action `json:"recommendation,omitempty"`
	Confidence     float64      `json:"confidence,omitempty"`
	NextDate       string       `json:"nextDate,omitempty"`
	ShouldWater    bool         `json:"shouldWater,omitempty"`
	WaterLiters    float64      `json:"waterLiters,omitempty"`
	Priority       string       `json:"priority,omitempty"`
	Explanation    string       `json:"explanation,omitempty"`
	Error          string       `json:"error,omitempty"`
}

type adviseReport struct {
	BatchID   string              `json:"batchId"`
	Succeeded int                 `json:"succeeded"`
	Failed    int                 `json:"failed"`
	Items     interface{}         `json:"items"`
	Views     map[string][]string `json:"views,omitempty"`
}

func newAdviseCmd(root *rootFlags) *cobra.Command {
	flags := &adviseFlags{}
	cmd := &cobra.Command{
		Use:   "advise [plant-id ...]",
		Short: "Advise configured plants (all of them when no id is given)",
		Long: "Loads the plant registry and stations from .irrigation/config.yaml and --config,\n" +
			"then runs aggregation, the fuzzy engine, the five-stage pipeline and the explainer\n" +
			"for each plant. With --views the advice is loaded into the fact engine and the\n" +
			"derived views (attention_needed, water_today, ...) are listed.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdvise(cmd, root, flags, args)
		},
	}
	f := cmd.Flags()
	f.StringVar(&flags.configPath, "config", "", "Config file layered over the workspace config")
	f.BoolVar(&flags.noWorkspace, "no-workspace", false, "Skip .irrigation/ workspace discovery")
	f.StringVar(&flags.workspaceDir, "workspace-dir", "", "Use this directory as workspace root")
	f.BoolVar(&flags.detail, "detail", false, "Print full advice records instead of a summary")
	f.BoolVar(&flags.views, "views", false, "Evaluate derived fact views over the advice")
	return cmd
}

func runAdvise(cmd *cobra.Command, root *rootFlags, flags *adviseFlags, ids []string) error {
	now, err := root.clock()
	if err != nil {
		return err
	}

	cfg, _, err := config.LoadWithWorkspace(flags.configPath, config.WorkspaceOptions{
		Disable:     flags.noWorkspace,
		ExplicitDir: flags.workspaceDir,
	})
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	plants, err := selectPlants(cfg, ids)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	res := advisor.NewFromConfig(cfg, now).AdviseBatch(ctx, plants)

	report := adviseReport{BatchID: res.BatchID, Succeeded: res.Succeeded, Failed: res.Failed}
	if flags.detail {
		report.Items = res.Items
	} else {
		report.Items = summarize(res.Items)
	}
	if flags.views {
		report.Views, err = derivedViews(ctx, cfg.Mangle, res.Items, now())
		if err != nil {
			return err
		}
	}

	if root.output == "text" {
		printReport(cmd.OutOrStdout(), report, summarize(res.Items))
	} else if err := writeOutput(cmd, root.output, report); err != nil {
		return err
	}

	if res.Failed > 0 {
		return fmt.Errorf("%d of %d plants could not be advised", res.Failed, len(res.Items))
	}
	return nil
}

func selectPlants(cfg config.Config, ids []string) ([]advisor.Plant, error) {
	if len(ids) == 0 {
		if len(cfg.Plants) == 0 {
			return nil, fmt.Errorf("no plants configured")
		}
		plants := make([]advisor.Plant, 0, len(cfg.Plants))
		for _, pc := range cfg.Plants {
			plants = append(plants, advisor.PlantFromConfig(pc))
		}
		return plants, nil
	}

	plants := make([]advisor.Plant, 0, len(ids))
	for _, id := range ids {
		pc, ok := cfg.FindPlant(id)
		if !ok {
			return nil, fmt.Errorf("plant not found: %s", id)
		}
		plants = append(plants, advisor.PlantFromConfig(pc))
	}
	return plants, nil
}

func summarize(items []advisor.BatchItem) []adviceSummary {
	out := make([]adviceSummary, 0, len(items))
	for _, item := range items {
		s := adviceSummary{PlantID: item.PlantID, Error: item.Error}
		if a := item.Advice; a != nil {
			s.DecisionStatus = a.Decision.Status
			s.Recommendation = a.Decision.Recommendation
			s.Confidence = a.Decision.Confidence
			s.NextDate = a.Decision.NextDate
			if sug := a.Pipeline.Suggestion; sug != nil {
				s.ShouldWater = sug.ShouldWater
				s.WaterLiters = sug.WaterAmountLiters
				s.Priority = string(sug.Priority)
			}
			if a.Explanation != nil {
				s.Explanation = a.Explanation.Text
			}
		}
		out = append(out, s)
	}
	return out
}

// derivedViews loads every advice into a fresh fact engine and returns, per derived
// predicate, the sorted plant ids it holds for.
func derivedViews(ctx context.Context, cfg config.MangleConfig, items []advisor.BatchItem, at time.Time) (map[string][]string, error) {
	cfg.Enable = true
	engine, err := mangle.NewEngine(cfg)
	if err != nil {
		return nil, fmt.Errorf("fact engine: %w", err)
	}

	pub := mangle.NewPublisher(engine)
	for _, item := range items {
		if item.Advice == nil {
			continue
		}
		a := item.Advice
		subject := mangle.Subject(a.PlantID, a.Pipeline.Metadata.RunID)
		if err := pub.PublishAdvice(ctx, subject, a.Decision, a.Pipeline, at); err != nil {
			return nil, fmt.Errorf("publish %s: %w", subject, err)
		}
	}

	views := make(map[string][]string, len(mangle.DerivedPredicates))
	for _, pred := range mangle.DerivedPredicates {
		facts, err := engine.Evaluate(ctx, pred)
		if err != nil {
			return nil, fmt.Errorf("evaluate %s: %w", pred, err)
		}
		ids := make([]string, 0, len(facts))
		for _, f := range facts {
			if len(f.Args) > 0 {
				ids = append(ids, fmt.Sprintf("%v", f.Args[0]))
			}
		}
		sort.Strings(ids)
		views[pred] = ids
	}
	return views, nil
}

func printReport(out io.Writer, r adviseReport, items []adviceSummary) {
	fmt.Fprintf(out, "Batch %s: %d advised, %d failed\n", r.BatchID, r.Succeeded, r.Failed)
	for _, s := range items {
		if s.Error != "" {
			fmt.Fprintf(out, "\n%s: error: %s\n", s.PlantID, s.Error)
			continue
		}
		fmt.Fprintf(out, "\n%s: %s (confidence %.3f), priority %s", s.PlantID, s.Recommendation, s.Confidence, s.Priority)
		if s.ShouldWater {
			fmt.Fprintf(out, ", %.2f L", s.WaterLiters)
		}
		fmt.Fprintln(out)
		if s.Explanation != "" {
			for _, line := range strings.Split(s.Explanation, "\n") {
				fmt.Fprintf(out, "  %s\n", line)
			}
		}
	}
	if len(r.Views) > 0 {
		fmt.Fprintln(out)
		for _, pred := range mangle.DerivedPredicates {
			if ids := r.Views[pred]; len(ids) > 0 {
				fmt.Fprintf(out, "%s: %s\n", pred, strings.Join(ids, ", "))
			}
		}
	}
}
