package mcp

import (
	"context"
	"fmt"
	"log"
	"time"

	"irrigation-mcp-server/internal/fuzzy"
	"irrigation-mcp-server/internal/mangle"
	"irrigation-mcp-server/internal/pipeline"
)

type RunPipelineTool struct {
	manager   *pipeline.Manager
	publisher *mangle.Publisher
	now       func() time.Time
}

func (t *RunPipelineTool) Name() string { return "run-pipeline" }
func (t *RunPipelineTool) Description() string {
	return `Run the five-stage irrigation pipeline over one set of sensor readings.

Stages: validation -> feature engineering -> estimation -> anomaly detection -> action generation.
A failing stage is recorded and the chain continues; status is "error" when any stage failed.

WHEN TO USE:
- You have raw readings for a plant (soil moisture, temperature, humidity, light, rainfall)
- You need the liters still missing for the current cycle and a priority
- You want anomalies (critical soil moisture, heat, water stress) flagged

RECOGNIZED FIELDS in data:
- soil_moisture (%), temperature (°C), humidity (%), light (lux), rainfall (mm)
- water_added_24h (liters already given this cycle)
- soil (e.g. "sabbioso", "argilloso"), species, plant_type

The result is published as plant_* facts under plant_id (or the run id), so
query-facts / evaluate-rule can read derived views like attention_needed.

Returns: {subject, envelope: {status, suggestion, details, metadata}}`
}
func (t *RunPipelineTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"data": map[string]interface{}{
				"type":        "object",
				"description": "Raw sensor readings keyed by field name",
			},
			"plant_type": map[string]interface{}{
				"type":        "string",
				"description": "Plant type selecting the water-budget strategy (tomato, potato, pepper, peach, grape); defaults to species in data",
			},
			"plant_id": map[string]interface{}{
				"type":        "string",
				"description": "Optional plant id used as the fact subject",
			},
		},
		"required": []string{"data"},
	}
}
func (t *RunPipelineTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	data := getMapArg(args, "data")
	if data == nil {
		return nil, fmt.Errorf("data must be an object of sensor readings")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	env := t.manager.Process(data, getStringArg(args, "plant_type"))
	subject := mangle.Subject(getStringArg(args, "plant_id"), env.Metadata.RunID)

	published := true
	if err := t.publisher.PublishRun(ctx, subject, env, t.now()); err != nil {
		log.Printf("run-pipeline: publish %s: %v", subject, err)
		published = false
	}

	return map[string]interface{}{
		"subject":         subject,
		"facts_published": published,
		"envelope":        env,
	}, nil
}

type FuzzyAdviseTool struct {
	engine    *fuzzy.Engine
	publisher *mangle.Publisher
	now       func() time.Time
}

func (t *FuzzyAdviseTool) Name() string { return "fuzzy-advise" }
func (t *FuzzyAdviseTool) Description() string {
	return `Decide irrigate_today / irrigate_tomorrow / skip with the fuzzy rule engine.

Two input modes:
1. signals: already-normalized inputs
   {soilMoisture, rainNext24h, temp, humidity, et0, daysSinceLast, baselineInterval, ratio, stage}
2. plant + weather: the engine derives days since last watering and the interval ratio
   plant: {id, stage, watering_interval_days, last_watered_at}
   weather: {temp, humidity, rainNext24h, et0, soilMoisture0to7cm, soilMoistureApprox}

Missing values are allowed; their membership group simply does not fire.

WHEN TO USE:
- Quick go/no-go decision with a confidence score
- Inspect which rules fired (tech.rules) and the fuzzified memberships

Returns: {subject, decision: {recommendation, reason, nextDate, confidence, signals, tech}}`
}
func (t *FuzzyAdviseTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"signals": map[string]interface{}{
				"type":        "object",
				"description": "Normalized signals; takes precedence over plant/weather",
			},
			"plant": map[string]interface{}{
				"type":        "object",
				"description": "Plant registry entry (id, stage, watering_interval_days, last_watered_at)",
			},
			"weather": map[string]interface{}{
				"type":        "object",
				"description": "Weather block (temp, humidity, rainNext24h, et0, soilMoisture0to7cm, soilMoistureApprox)",
			},
			"plant_id": map[string]interface{}{
				"type":        "string",
				"description": "Fact subject; defaults to plant.id",
			},
			"now": map[string]interface{}{
				"type":        "string",
				"description": "Evaluation time (RFC3339); defaults to the server clock",
			},
		},
	}
}
func (t *FuzzyAdviseTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	now := t.now()
	if raw := getStringArg(args, "now"); raw != "" {
		parsed, err := parseTimeArg(raw)
		if err != nil {
			return nil, fmt.Errorf("now: %w", err)
		}
		now = parsed
	}

	subject := getStringArg(args, "plant_id")
	var decision fuzzy.Decision

	signals := getMapArg(args, "signals")
	plantArgs := getMapArg(args, "plant")
	switch {
	case signals != nil:
		decision = t.engine.Decide(fuzzy.SignalsFromMap(signals), now)
	case plantArgs != nil:
		p, err := plantFromArgs(plantArgs)
		if err != nil {
			return nil, fmt.Errorf("plant: %w", err)
		}
		if subject == "" {
			subject = p.ID
		}
		decision = t.engine.Compute(fuzzy.Plant{
			ID:                   p.ID,
			Name:                 p.Name,
			Species:              p.Species,
			Stage:                p.Stage,
			WateringIntervalDays: p.WateringIntervalDays,
			LastWateredAt:        p.LastWateredAt,
		}, fuzzy.WeatherFromMap(getMapArg(args, "weather")), now)
	default:
		return nil, fmt.Errorf("either signals or plant is required")
	}

	result := map[string]interface{}{"status": decision.Status, "decision": decision}
	if subject != "" {
		result["subject"] = subject
		switch {
		case decision.Failed():
			log.Printf("fuzzy-advise: %s not published: %s", subject, decision.Error)
		default:
			if err := t.publisher.PublishDecision(ctx, subject, decision, now); err != nil {
				log.Printf("fuzzy-advise: publish %s: %v", subject, err)
			}
		}
	}
	return result, nil
}

type SupportedPlantsTool struct {
	manager *pipeline.Manager
}

func (t *SupportedPlantsTool) Name() string { return "supported-plants" }
func (t *SupportedPlantsTool) Description() string {
	return `List the plant strategies known to the pipeline and the stage order.

WHEN TO USE:
- Before run-pipeline, to pick a plant_type that selects a dedicated water budget
- Unknown plant types fall back to "generic"

Returns: {plants: [{kind, target_liters, confidence}], stages: [...]}`
}
func (t *SupportedPlantsTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}
func (t *SupportedPlantsTool) Execute(_ context.Context, _ map[string]interface{}) (interface{}, error) {
	kinds := pipeline.SupportedPlants()
	plants := make([]map[string]interface{}, 0, len(kinds))
	for _, k := range kinds {
		s := pipeline.SelectStrategy(string(k))
		plants = append(plants, map[string]interface{}{
			"kind":          string(s.Kind),
			"target_liters": s.TargetLiters,
			"confidence":    s.Confidence,
		})
	}
	return map[string]interface{}{
		"plants": plants,
		"stages": t.manager.Stages(),
	}, nil
}
