package mcp

import (
	"context"
	"fmt"
	"log"
	"time"

	"irrigation-mcp-server/internal/advisor"
	"irrigation-mcp-server/internal/config"
	"irrigation-mcp-server/internal/mangle"
)

type AdvisePlantTool struct {
	advisor   *advisor.Advisor
	cfg       config.Config
	publisher *mangle.Publisher
}

func (t *AdvisePlantTool) Name() string { return "advise-plant" }
func (t *AdvisePlantTool) Description() string {
	return `Full advisory for one plant: aggregate weather and soil inputs, run the fuzzy
engine and the five-stage pipeline, and explain the decision in plain text.

INPUT (one of):
- plant_id: a plant from the configured registry (see irrigation://plants)
- plant: inline {id, name, species, plant_type, category, stage, soil, lat, lng,
  watering_interval_days, last_watered_at, soil_moisture, water_added_24h}

Without lat/lng no weather is fetched and the weather source is "NONE".

WHEN TO USE:
- "Should I water plant X today?" with a human-readable answer
- You want both the fuzzy recommendation and the pipeline water budget

Facts for the plant are replaced in the fact buffer, so water_today / attention_needed
reflect the latest advice.

Returns: {plantId, inputs, decision, pipeline, explanation, generatedAt}`
}
func (t *AdvisePlantTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"plant_id": map[string]interface{}{
				"type":        "string",
				"description": "Registry plant id",
			},
			"plant": map[string]interface{}{
				"type":        "object",
				"description": "Inline plant; takes precedence over plant_id",
			},
		},
	}
}
func (t *AdvisePlantTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	var (
		p   advisor.Plant
		err error
	)
	if inline := getMapArg(args, "plant"); inline != nil {
		p, err = plantFromArgs(inline)
		if err != nil {
			return nil, fmt.Errorf("plant: %w", err)
		}
	} else {
		id := getStringArg(args, "plant_id")
		if id == "" {
			return nil, fmt.Errorf("plant_id or plant is required")
		}
		pc, ok := t.cfg.FindPlant(id)
		if !ok {
			return nil, fmt.Errorf("plant not found: %s", id)
		}
		p = advisor.PlantFromConfig(pc)
	}

	advice, err := t.advisor.Advise(ctx, p)
	if err != nil {
		return nil, err
	}
	publishAdvice(ctx, t.publisher, advice)
	return advice, nil
}

type AdviseBatchTool struct {
	advisor   *advisor.Advisor
	cfg       config.Config
	publisher *mangle.Publisher
}

func (t *AdviseBatchTool) Name() string { return "advise-batch" }
func (t *AdviseBatchTool) Description() string {
	return `Advise many plants at once with bounded parallelism.

INPUT:
- plant_ids: subset of the registry (default: every configured plant)
- plants: inline plants, advised after the registry ones
- detail: return full advice per plant (default false returns a compact summary)

One plant failing does not stop the others; its item carries an error instead.
Items keep the input order.

WHEN TO USE:
- Morning round over the whole garden
- Then evaluate-rule attention_needed to list plants that need a look

Returns: {batchId, succeeded, failed, items: [...]}`
}
func (t *AdviseBatchTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"plant_ids": map[string]interface{}{
				"type":        "array",
				"items":       map[string]interface{}{"type": "string"},
				"description": "Registry plant ids to advise",
			},
			"plants": map[string]interface{}{
				"type":        "array",
				"items":       map[string]interface{}{"type": "object"},
				"description": "Inline plants",
			},
			"detail": map[string]interface{}{
				"type":        "boolean",
				"description": "Return full advice records (default: false)",
			},
		},
	}
}
func (t *AdviseBatchTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	plants := make([]advisor.Plant, 0, len(t.cfg.Plants))

	rawIDs, hasIDs := args["plant_ids"].([]interface{})
	rawPlants, hasInline := args["plants"].([]interface{})
	switch {
	case hasIDs:
		for _, raw := range rawIDs {
			id := argString(raw)
			pc, ok := t.cfg.FindPlant(id)
			if !ok {
				return nil, fmt.Errorf("plant not found: %s", id)
			}
			plants = append(plants, advisor.PlantFromConfig(pc))
		}
	case !hasInline:
		for _, pc := range t.cfg.Plants {
			plants = append(plants, advisor.PlantFromConfig(pc))
		}
	}
	for i, raw := range rawPlants {
		m, ok := raw.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("plants[%d] must be an object", i)
		}
		p, err := plantFromArgs(m)
		if err != nil {
			return nil, fmt.Errorf("plants[%d]: %w", i, err)
		}
		plants = append(plants, p)
	}
	if len(plants) == 0 {
		return nil, fmt.Errorf("no plants to advise")
	}

	res := t.advisor.AdviseBatch(ctx, plants)
	for _, item := range res.Items {
		if item.Advice != nil {
			publishAdvice(ctx, t.publisher, *item.Advice)
		}
	}

	if getBoolArg(args, "detail", false) {
		return res, nil
	}
	return map[string]interface{}{
		"batchId":   res.BatchID,
		"succeeded": res.Succeeded,
		"failed":    res.Failed,
		"items":     summarizeBatch(res.Items),
	}, nil
}

func summarizeBatch(items []advisor.BatchItem) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(items))
	for _, item := range items {
		if item.Advice == nil {
			out = append(out, map[string]interface{}{"plantId": item.PlantID, "error": item.Error})
			continue
		}
		a := item.Advice
		entry := map[string]interface{}{
			"plantId":        item.PlantID,
			"decisionStatus": a.Decision.Status,
			"recommendation": a.Decision.Recommendation,
			"confidence":     a.Decision.Confidence,
			"nextDate":       a.Decision.NextDate,
			"pipeline":       a.Pipeline.Status,
		}
		if s := a.Pipeline.Suggestion; s != nil {
			entry["should_water"] = s.ShouldWater
			entry["water_amount_liters"] = s.WaterAmountLiters
			entry["priority"] = s.Priority
		}
		out = append(out, entry)
	}
	return out
}

func publishAdvice(ctx context.Context, pub *mangle.Publisher, a advisor.Advice) {
	at, err := time.Parse(time.RFC3339, a.GeneratedAt)
	if err != nil {
		at = time.Now()
	}
	subject := mangle.Subject(a.PlantID, a.Pipeline.Metadata.RunID)
	if err := pub.PublishAdvice(ctx, subject, a.Decision, a.Pipeline, at); err != nil {
		log.Printf("advisor: publish %s: %v", subject, err)
	}
}
