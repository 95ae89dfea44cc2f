package mcp

import (
	"context"
	"testing"

	"irrigation-mcp-server/internal/fuzzy"
	"irrigation-mcp-server/internal/mangle"
	"irrigation-mcp-server/internal/pipeline"
)

func newRunPipelineTool(engine *mangle.Engine) *RunPipelineTool {
	return &RunPipelineTool{
		manager:   pipeline.NewManager(pipeline.WithClock(fixedClock)),
		publisher: mangle.NewPublisher(engine),
		now:       fixedClock,
	}
}

func TestRunPipelineTool(t *testing.T) {
	engine := setupTestEngine(t)
	tool := newRunPipelineTool(engine)

	t.Run("name and description", func(t *testing.T) {
		if tool.Name() != "run-pipeline" {
			t.Errorf("expected name 'run-pipeline', got %q", tool.Name())
		}
		if tool.Description() == "" {
			t.Error("expected non-empty description")
		}
	})

	t.Run("error on missing data", func(t *testing.T) {
		_, err := tool.Execute(context.Background(), map[string]interface{}{})
		if err == nil {
			t.Error("expected error for missing data")
		}
	})

	t.Run("error on non-object data", func(t *testing.T) {
		_, err := tool.Execute(context.Background(), map[string]interface{}{"data": "soil=15"})
		if err == nil {
			t.Error("expected error for non-object data")
		}
	})

	t.Run("dry tomato is urgent and published", func(t *testing.T) {
		ctx := context.Background()
		result, err := tool.Execute(ctx, map[string]interface{}{
			"plant_type": "tomato",
			"plant_id":   "tomato-9",
			"data": map[string]interface{}{
				"soil_moisture":   15.0,
				"temperature":     30.0,
				"humidity":        50.0,
				"light":           20000.0,
				"rainfall":        0.0,
				"water_added_24h": 0.0,
			},
		})
		if err != nil {
			t.Fatalf("Execute failed: %v", err)
		}

		resultMap := result.(map[string]interface{})
		if resultMap["subject"] != "tomato-9" {
			t.Errorf("expected subject tomato-9, got %v", resultMap["subject"])
		}
		if resultMap["facts_published"] != true {
			t.Errorf("expected facts to be published")
		}
		env := resultMap["envelope"].(pipeline.Envelope)
		if env.Status != pipeline.RunSucceeded {
			t.Fatalf("expected success, got %s: %+v", env.Status, env.Metadata.Errors)
		}
		if env.Suggestion == nil || !env.Suggestion.ShouldWater {
			t.Fatalf("expected a watering suggestion, got %+v", env.Suggestion)
		}
		if env.Suggestion.WaterAmountLiters != 4.0 {
			t.Errorf("expected 4.0 liters for tomato, got %v", env.Suggestion.WaterAmountLiters)
		}
		if env.Suggestion.Priority != pipeline.PriorityUrgent {
			t.Errorf("expected urgent priority, got %s", env.Suggestion.Priority)
		}

		facts, err := engine.Evaluate(ctx, "attention_needed")
		if err != nil {
			t.Fatalf("Evaluate failed: %v", err)
		}
		if len(facts) != 1 || facts[0].Args[0] != "tomato-9" {
			t.Errorf("expected attention_needed(tomato-9), got %v", facts)
		}
	})

	t.Run("anonymous run uses run id as subject", func(t *testing.T) {
		result, err := tool.Execute(context.Background(), map[string]interface{}{
			"data": map[string]interface{}{"soil_moisture": 60.0},
		})
		if err != nil {
			t.Fatalf("Execute failed: %v", err)
		}

		resultMap := result.(map[string]interface{})
		env := resultMap["envelope"].(pipeline.Envelope)
		if resultMap["subject"] != env.Metadata.RunID {
			t.Errorf("expected subject %s, got %v", env.Metadata.RunID, resultMap["subject"])
		}
		if env.Metadata.PlantType != string(pipeline.PlantGeneric) {
			t.Errorf("expected generic plant type, got %s", env.Metadata.PlantType)
		}
	})

	t.Run("rerun replaces earlier facts", func(t *testing.T) {
		ctx := context.Background()
		_, err := tool.Execute(ctx, map[string]interface{}{
			"plant_type": "tomato",
			"plant_id":   "tomato-9",
			"data": map[string]interface{}{
				"soil_moisture":   60.0,
				"temperature":     22.0,
				"humidity":        60.0,
				"light":           20000.0,
				"rainfall":        0.0,
				"water_added_24h": 4.0,
			},
		})
		if err != nil {
			t.Fatalf("Execute failed: %v", err)
		}

		facts, err := engine.Evaluate(ctx, "attention_needed")
		if err != nil {
			t.Fatalf("Evaluate failed: %v", err)
		}
		if len(facts) != 0 {
			t.Errorf("expected no attention_needed after a healthy rerun, got %v", facts)
		}
	})
}

func TestFuzzyAdviseTool(t *testing.T) {
	engine := setupTestEngine(t)
	tool := &FuzzyAdviseTool{engine: fuzzy.NewEngine(), publisher: mangle.NewPublisher(engine), now: fixedClock}

	t.Run("name and description", func(t *testing.T) {
		if tool.Name() != "fuzzy-advise" {
			t.Errorf("expected name 'fuzzy-advise', got %q", tool.Name())
		}
		if tool.Description() == "" {
			t.Error("expected non-empty description")
		}
	})

	t.Run("error without signals or plant", func(t *testing.T) {
		_, err := tool.Execute(context.Background(), map[string]interface{}{})
		if err == nil {
			t.Error("expected error without input")
		}
	})

	t.Run("error on invalid now", func(t *testing.T) {
		_, err := tool.Execute(context.Background(), map[string]interface{}{
			"signals": map[string]interface{}{},
			"now":     "yesterday",
		})
		if err == nil {
			t.Error("expected error for invalid now")
		}
	})

	t.Run("signals mode", func(t *testing.T) {
		result, err := tool.Execute(context.Background(), map[string]interface{}{
			"signals": map[string]interface{}{
				"soilMoisture":     20.0,
				"rainNext24h":      0.0,
				"temp":             32.0,
				"daysSinceLast":    4.0,
				"baselineInterval": 2.0,
			},
		})
		if err != nil {
			t.Fatalf("Execute failed: %v", err)
		}

		resultMap := result.(map[string]interface{})
		if resultMap["status"] != fuzzy.StatusSuccess {
			t.Errorf("expected status success, got %v", resultMap["status"])
		}
		d := resultMap["decision"].(fuzzy.Decision)
		if d.Recommendation != fuzzy.IrrigateToday {
			t.Errorf("expected irrigate_today, got %s", d.Recommendation)
		}
		if d.Confidence != 1 {
			t.Errorf("expected confidence 1, got %v", d.Confidence)
		}
		if _, ok := resultMap["subject"]; ok {
			t.Error("expected no subject without plant_id")
		}
	})

	t.Run("wet soil and heavy rain skip", func(t *testing.T) {
		result, err := tool.Execute(context.Background(), map[string]interface{}{
			"signals": map[string]interface{}{"soilMoisture": 85.0, "rainNext24h": 8.0},
		})
		if err != nil {
			t.Fatalf("Execute failed: %v", err)
		}

		d := result.(map[string]interface{})["decision"].(fuzzy.Decision)
		if d.Recommendation != fuzzy.Skip {
			t.Errorf("expected skip, got %s", d.Recommendation)
		}
	})

	t.Run("plant and weather mode publishes decision", func(t *testing.T) {
		ctx := context.Background()
		result, err := tool.Execute(ctx, map[string]interface{}{
			"plant": map[string]interface{}{
				"id":                     "pepper-3",
				"stage":                  "fioritura",
				"watering_interval_days": 2,
				"last_watered_at":        "2025-07-11T14:30:00Z",
			},
			"weather": map[string]interface{}{
				"temp":               32.0,
				"rainNext24h":        0.0,
				"soilMoisture0to7cm": 20.0,
			},
			"now": "2025-07-15T14:30:00Z",
		})
		if err != nil {
			t.Fatalf("Execute failed: %v", err)
		}

		resultMap := result.(map[string]interface{})
		if resultMap["subject"] != "pepper-3" {
			t.Errorf("expected subject pepper-3, got %v", resultMap["subject"])
		}
		d := resultMap["decision"].(fuzzy.Decision)
		if d.Signals.DaysSinceLast == nil || *d.Signals.DaysSinceLast != 4 {
			t.Errorf("expected 4 days since last watering, got %v", d.Signals.DaysSinceLast)
		}

		facts, err := engine.Evaluate(ctx, "water_today")
		if err != nil {
			t.Fatalf("Evaluate failed: %v", err)
		}
		if len(facts) != 1 || facts[0].Args[0] != "pepper-3" {
			t.Errorf("expected water_today(pepper-3), got %v", facts)
		}
	})

	t.Run("bad last_watered_at", func(t *testing.T) {
		_, err := tool.Execute(context.Background(), map[string]interface{}{
			"plant": map[string]interface{}{"id": "x", "last_watered_at": "last week"},
		})
		if err == nil {
			t.Error("expected error for bad last_watered_at")
		}
	})

	t.Run("failed decision is reported and not published", func(t *testing.T) {
		broken := fuzzy.NewEngineWithRules([]fuzzy.RuleDef{{
			ID:      "RX",
			Action:  fuzzy.IrrigateToday,
			Because: "broken",
			Weight:  func(fuzzy.Memberships) float64 { panic("broken rule") },
		}})
		failing := &FuzzyAdviseTool{engine: broken, publisher: mangle.NewPublisher(engine), now: fixedClock}

		result, err := failing.Execute(context.Background(), map[string]interface{}{
			"signals":  map[string]interface{}{"soilMoisture": 10.0},
			"plant_id": "fern-4",
		})
		if err != nil {
			t.Fatalf("Execute failed: %v", err)
		}
		resultMap := result.(map[string]interface{})
		if resultMap["status"] != fuzzy.StatusError {
			t.Errorf("expected status error, got %v", resultMap["status"])
		}
		if d := resultMap["decision"].(fuzzy.Decision); d.Error != "broken rule" {
			t.Errorf("expected engine error in decision, got %q", d.Error)
		}
		for _, f := range engine.Facts() {
			if len(f.Args) > 0 && f.Args[0] == "fern-4" {
				t.Errorf("expected no facts for fern-4, got %v", f)
			}
		}
	})
}

func TestSupportedPlantsTool(t *testing.T) {
	tool := &SupportedPlantsTool{manager: pipeline.NewManager()}

	result, err := tool.Execute(context.Background(), nil)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	resultMap := result.(map[string]interface{})
	plants := resultMap["plants"].([]map[string]interface{})
	if len(plants) != len(pipeline.SupportedPlants()) {
		t.Fatalf("expected %d plants, got %d", len(pipeline.SupportedPlants()), len(plants))
	}
	if plants[0]["kind"] != "tomato" || plants[0]["target_liters"] != 4.0 {
		t.Errorf("unexpected first plant %v", plants[0])
	}
	if last := plants[len(plants)-1]; last["kind"] != "generic" {
		t.Errorf("expected generic last, got %v", last)
	}
	if stages := resultMap["stages"].([]pipeline.StageName); len(stages) != 5 {
		t.Errorf("expected 5 stages, got %v", stages)
	}
}
