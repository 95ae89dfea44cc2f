package mangle

import (
	"context"
	"sort"
	"testing"
	"time"

	"irrigation-mcp-server/internal/fuzzy"
	"irrigation-mcp-server/internal/pipeline"
)

var publishedAt = time.Date(2025, 7, 15, 14, 30, 0, 0, time.UTC)

func runEnvelope(raw map[string]interface{}, plantType string) pipeline.Envelope {
	m := pipeline.NewManager(pipeline.WithClock(func() time.Time { return publishedAt }))
	return m.Process(raw, plantType)
}

func subjectsOf(facts []Fact) []string {
	out := make([]string, 0, len(facts))
	for _, f := range facts {
		out = append(out, f.Args[0].(string))
	}
	sort.Strings(out)
	return out
}

func TestSubject(t *testing.T) {
	if got := Subject("tomato-1", "run-1"); got != "tomato-1" {
		t.Errorf("Expected plant id, got %s", got)
	}
	if got := Subject("", "run-1"); got != "run-1" {
		t.Errorf("Expected run id, got %s", got)
	}
}

func TestEnvelopeFacts(t *testing.T) {
	env := runEnvelope(map[string]interface{}{
		"soil_moisture": 15.0,
		"temperature":   25.0,
		"humidity":      60.0,
	}, "tomato")

	facts := EnvelopeFacts("tomato-1", env, publishedAt)

	counts := map[string]int{}
	for _, f := range facts {
		counts[f.Predicate]++
		if f.Args[0] != "tomato-1" {
			t.Errorf("Expected subject tomato-1, got %v", f.Args[0])
		}
	}

	if counts[PredStatus] != 1 || counts[PredRecommendation] != 1 || counts[PredPriority] != 1 {
		t.Errorf("Unexpected fact counts %v", counts)
	}
	if counts[PredStageResult] != 5 {
		t.Errorf("Expected 5 stage results, got %d", counts[PredStageResult])
	}
	if counts[PredAnomaly] != len(env.Details.Anomalies) {
		t.Errorf("Expected %d anomalies, got %d", len(env.Details.Anomalies), counts[PredAnomaly])
	}
}

func TestEnvelopeFactsWithoutSuggestion(t *testing.T) {
	env := pipeline.Envelope{Status: pipeline.RunFailed}
	facts := EnvelopeFacts("run-9", env, publishedAt)
	if len(facts) != 1 || facts[0].Predicate != PredStatus || facts[0].Args[1] != "error" {
		t.Errorf("Expected a single error status fact, got %v", facts)
	}
}

func TestDecisionFacts(t *testing.T) {
	d := fuzzy.NewEngine().Decide(fuzzy.Signals{
		BaselineInterval: 3,
		Ratio:            fuzzy.Float(1.5),
		SoilMoisture:     fuzzy.Float(10),
		RainNext24h:      fuzzy.Float(0),
		Temp:             fuzzy.Float(33),
	}, publishedAt)

	facts := DecisionFacts("tomato-1", d, publishedAt)

	if facts[0].Predicate != PredDecision || facts[0].Args[1] != string(fuzzy.IrrigateToday) {
		t.Errorf("Expected irrigate_today decision first, got %v", facts[0])
	}
	// four groups of three terms; et0 is empty without an ET0 signal
	if len(facts) != 13 {
		t.Errorf("Expected 13 facts, got %d", len(facts))
	}
}

func TestDerivedViews(t *testing.T) {
	ctx := context.Background()

	t.Run("attention and water today", func(t *testing.T) {
		engine := newTestEngine(t, 1000)
		pub := NewPublisher(engine)

		dry := runEnvelope(map[string]interface{}{"soil_moisture": 12.0, "temperature": 30.0, "humidity": 40.0}, "tomato")
		if err := pub.PublishRun(ctx, "tomato-1", dry, publishedAt); err != nil {
			t.Fatalf("PublishRun failed: %v", err)
		}

		attention, err := engine.Evaluate(ctx, "attention_needed")
		if err != nil {
			t.Fatal(err)
		}
		if got := subjectsOf(attention); len(got) != 1 || got[0] != "tomato-1" {
			t.Errorf("Expected tomato-1 to need attention, got %v", got)
		}

		water, err := engine.Evaluate(ctx, "water_today")
		if err != nil {
			t.Fatal(err)
		}
		if len(water) != 1 {
			t.Errorf("Expected urgent irrigate recommendation to derive water_today, got %v", water)
		}
	})

	t.Run("fungal watch and drainage", func(t *testing.T) {
		engine := newTestEngine(t, 1000)
		pub := NewPublisher(engine)

		soggy := runEnvelope(map[string]interface{}{"soil_moisture": 95.0, "temperature": 22.0, "humidity": 98.0}, "grape")
		if err := pub.PublishRun(ctx, "vine-1", soggy, publishedAt); err != nil {
			t.Fatalf("PublishRun failed: %v", err)
		}

		for _, view := range []string{"fungal_watch", "drainage_check"} {
			facts, err := engine.Evaluate(ctx, view)
			if err != nil {
				t.Fatal(err)
			}
			if got := subjectsOf(facts); len(got) != 1 || got[0] != "vine-1" {
				t.Errorf("%s: expected vine-1, got %v", view, got)
			}
		}
	})

	t.Run("advice conflict", func(t *testing.T) {
		engine := newTestEngine(t, 1000)
		pub := NewPublisher(engine)

		d := fuzzy.NewEngine().Decide(fuzzy.Signals{
			BaselineInterval: 3,
			Ratio:            fuzzy.Float(0.3),
			SoilMoisture:     fuzzy.Float(90),
			RainNext24h:      fuzzy.Float(12),
			Temp:             fuzzy.Float(18),
		}, publishedAt)
		env := runEnvelope(map[string]interface{}{"soil_moisture": 50.0}, "peach")

		if err := pub.PublishAdvice(ctx, "peach-1", d, env, publishedAt); err != nil {
			t.Fatalf("PublishAdvice failed: %v", err)
		}

		facts, err := engine.Evaluate(ctx, "advice_conflict")
		if err != nil {
			t.Fatal(err)
		}
		if len(facts) != 1 {
			t.Errorf("Expected skip against an unmet water budget to conflict, got %v", facts)
		}
	})

	t.Run("pipeline failed", func(t *testing.T) {
		engine := newTestEngine(t, 1000)
		pub := NewPublisher(engine)

		if err := pub.PublishRun(ctx, "run-7", pipeline.Envelope{Status: pipeline.RunFailed}, publishedAt); err != nil {
			t.Fatalf("PublishRun failed: %v", err)
		}
		facts, err := engine.Evaluate(ctx, "pipeline_failed")
		if err != nil {
			t.Fatal(err)
		}
		if got := subjectsOf(facts); len(got) != 1 || got[0] != "run-7" {
			t.Errorf("Expected run-7, got %v", got)
		}
	})
}

func TestPublisherReplacesEarlierAdvice(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t, 1000)
	pub := NewPublisher(engine)

	today := fuzzy.Decision{Recommendation: fuzzy.IrrigateToday, Confidence: 1}
	skip := fuzzy.Decision{Recommendation: fuzzy.Skip, Confidence: 0.8}

	if err := pub.PublishDecision(ctx, "tomato-1", today, publishedAt); err != nil {
		t.Fatal(err)
	}
	if err := pub.PublishDecision(ctx, "tomato-1", skip, publishedAt.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}

	decisions := engine.FactsByPredicate(PredDecision)
	if len(decisions) != 1 || decisions[0].Args[1] != string(fuzzy.Skip) {
		t.Errorf("Expected only the latest decision, got %v", decisions)
	}
	water, err := engine.Evaluate(ctx, "water_today")
	if err != nil {
		t.Fatal(err)
	}
	if len(water) != 0 {
		t.Errorf("Expected water_today to be retracted, got %v", water)
	}
}

func TestPublisherSkipsFailedDecision(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t, 1000)
	pub := NewPublisher(engine)

	today := fuzzy.Decision{Status: fuzzy.StatusSuccess, Recommendation: fuzzy.IrrigateToday, Confidence: 1}
	failed := fuzzy.Decision{Status: fuzzy.StatusError, Error: "broken rule", Recommendation: fuzzy.Skip}

	if err := pub.PublishDecision(ctx, "tomato-1", today, publishedAt); err != nil {
		t.Fatal(err)
	}
	if err := pub.PublishDecision(ctx, "tomato-1", failed, publishedAt.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	decisions := engine.FactsByPredicate(PredDecision)
	if len(decisions) != 1 || decisions[0].Args[1] != string(fuzzy.IrrigateToday) {
		t.Errorf("Expected the earlier decision to stay, got %v", decisions)
	}

	env := runEnvelope(map[string]interface{}{"soil_moisture": 50.0}, "tomato")
	if err := pub.PublishAdvice(ctx, "basil-1", failed, env, publishedAt); err != nil {
		t.Fatal(err)
	}
	for _, f := range engine.FactsByPredicate(PredDecision) {
		if f.Args[0] == "basil-1" {
			t.Errorf("Expected no decision fact for a failed decision, got %v", f)
		}
	}
	if len(engine.FactsByPredicate(PredStatus)) == 0 {
		t.Error("Expected the pipeline run to be published")
	}
}

func TestNilPublisher(t *testing.T) {
	var pub *Publisher
	if err := pub.PublishRun(context.Background(), "x", pipeline.Envelope{}, publishedAt); err != nil {
		t.Errorf("Expected nil publisher to be a no-op, got %v", err)
	}
}
