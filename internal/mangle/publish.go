package mangle

import (
	"context"
	"time"

	"irrigation-mcp-server/internal/fuzzy"
	"irrigation-mcp-server/internal/pipeline"
)

// Predicates published for advisory results.
const (
	PredDecision       = "plant_decision"
	PredMembership     = "plant_membership"
	PredStatus         = "plant_status"
	PredRecommendation = "plant_recommendation"
	PredPriority       = "plant_priority"
	PredAnomaly        = "plant_anomaly"
	PredStageResult    = "plant_stage_result"
)

// Derived views declared by the irrigation schema.
var DerivedPredicates = []string{
	"attention_needed",
	"water_today",
	"fungal_watch",
	"drainage_check",
	"advice_conflict",
	"pipeline_failed",
}

// Subject picks the plant id, falling back to the run id.
func Subject(plantID, runID string) string {
	if plantID != "" {
		return plantID
	}
	return runID
}

// EnvelopeFacts flattens a pipeline envelope into facts about subject.
func EnvelopeFacts(subject string, env pipeline.Envelope, at time.Time) []Fact {
	facts := []Fact{
		{Predicate: PredStatus, Args: []interface{}{subject, string(env.Status)}, Timestamp: at},
	}
	if s := env.Suggestion; s != nil {
		action := "do_not_irrigate"
		if s.ShouldWater {
			action = "irrigate"
		}
		facts = append(facts,
			Fact{Predicate: PredRecommendation, Args: []interface{}{subject, action, string(s.Decision), s.WaterAmountLiters}, Timestamp: at},
			Fact{Predicate: PredPriority, Args: []interface{}{subject, string(s.Priority)}, Timestamp: at},
		)
	}
	for _, a := range env.Details.Anomalies {
		facts = append(facts, Fact{Predicate: PredAnomaly, Args: []interface{}{subject, a.Type, string(a.Severity)}, Timestamp: at})
	}
	for stage, res := range env.Metadata.StageResults {
		facts = append(facts, Fact{Predicate: PredStageResult, Args: []interface{}{subject, stage, string(res.Status)}, Timestamp: at})
	}
	return facts
}

// DecisionFacts flattens a fuzzy decision, memberships included.
func DecisionFacts(subject string, d fuzzy.Decision, at time.Time) []Fact {
	facts := []Fact{
		{Predicate: PredDecision, Args: []interface{}{subject, string(d.Recommendation), d.Confidence}, Timestamp: at},
	}
	for _, group := range fuzzy.GroupOrder {
		for _, term := range fuzzy.Terms(group) {
			degree, ok := d.Tech.Memberships[group][term]
			if !ok {
				continue
			}
			facts = append(facts, Fact{Predicate: PredMembership, Args: []interface{}{subject, group, term, degree}, Timestamp: at})
		}
	}
	return facts
}

// Publisher writes advisory results to an engine, replacing earlier facts per subject.
type Publisher struct {
	engine *Engine
}

// NewPublisher returns a publisher writing to e. A nil engine makes every publish a no-op.
func NewPublisher(e *Engine) *Publisher {
	return &Publisher{engine: e}
}

// PublishRun publishes a pipeline run.
func (p *Publisher) PublishRun(ctx context.Context, subject string, env pipeline.Envelope, at time.Time) error {
	if p == nil || p.engine == nil {
		return nil
	}
	return p.engine.ReplaceSubject(ctx, subject, EnvelopeFacts(subject, env, at))
}

// PublishDecision publishes a fuzzy decision alone. Failed decisions are not
// published and leave earlier facts for subject in place.
func (p *Publisher) PublishDecision(ctx context.Context, subject string, d fuzzy.Decision, at time.Time) error {
	if p == nil || p.engine == nil || d.Failed() {
		return nil
	}
	return p.engine.ReplaceSubject(ctx, subject, DecisionFacts(subject, d, at))
}

// PublishAdvice publishes a fuzzy decision and its pipeline run together. Only the
// run is published when the decision failed.
func (p *Publisher) PublishAdvice(ctx context.Context, subject string, d fuzzy.Decision, env pipeline.Envelope, at time.Time) error {
	if p == nil || p.engine == nil {
		return nil
	}
	facts := EnvelopeFacts(subject, env, at)
	if !d.Failed() {
		facts = append(DecisionFacts(subject, d, at), facts...)
	}
	return p.engine.ReplaceSubject(ctx, subject, facts)
}
