// Package advisor joins input aggregation, the fuzzy engine, the five-stage pipeline
// and the explainer into one advice per plant.
package advisor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"irrigation-mcp-server/internal/aggregator"
	"irrigation-mcp-server/internal/config"
	"irrigation-mcp-server/internal/explain"
	"irrigation-mcp-server/internal/fuzzy"
	"irrigation-mcp-server/internal/pipeline"
)

// ErrMissingPlantID is returned for plants without an identifier.
var ErrMissingPlantID = errors.New("plant id is required")

// maxLux is the upper bound of the light sensor range.
const maxLux = 100000

// Plant is everything the advisor knows about one plant.
type Plant struct {
	ID                   string     `json:"id"`
	Name                 string     `json:"name,omitempty"`
	Species              string     `json:"species,omitempty"`
	PlantType            string     `json:"plantType,omitempty"`
	Category             string     `json:"category,omitempty"`
	Stage                string     `json:"stage,omitempty"`
	Soil                 string     `json:"soil,omitempty"`
	Lat                  *float64   `json:"lat,omitempty"`
	Lng                  *float64   `json:"lng,omitempty"`
	WateringIntervalDays int        `json:"wateringIntervalDays,omitempty"`
	LastWateredAt        *time.Time `json:"lastWateredAt,omitempty"`
	SoilMoisture         *float64   `json:"soilMoisture,omitempty"`
	WaterAdded24h        float64    `json:"waterAdded24h,omitempty"`
}

// PlantFromConfig converts a registry entry. An invalid last_watered_at becomes nil.
func PlantFromConfig(p config.PlantConfig) Plant {
	return Plant{
		ID:                   p.ID,
		Name:                 p.Name,
		Species:              p.Species,
		PlantType:            p.PlantType,
		Category:             p.Category,
		Stage:                p.Stage,
		Soil:                 p.Soil,
		Lat:                  p.Lat,
		Lng:                  p.Lng,
		WateringIntervalDays: p.IntervalDays(),
		LastWateredAt:        p.LastWatered(),
		SoilMoisture:         p.SoilMoisture,
		WaterAdded24h:        p.WaterAdded24h,
	}
}

// Advice combines the fuzzy decision with the pipeline envelope for one plant.
type Advice struct {
	PlantID     string               `json:"plantId"`
	PlantName   string               `json:"plantName,omitempty"`
	Inputs      aggregator.Inputs    `json:"inputs"`
	Decision    fuzzy.Decision       `json:"decision"`
	Pipeline    pipeline.Envelope    `json:"pipeline"`
	Explanation *explain.Explanation `json:"explanation,omitempty"`
	GeneratedAt string               `json:"generatedAt"`
}

// InputSource resolves a plant's surroundings.
type InputSource interface {
	Inputs(ctx context.Context, req aggregator.Request) (aggregator.Inputs, error)
}

// Advisor runs the full advisory flow for registry plants.
type Advisor struct {
	inputs   InputSource
	engine   *fuzzy.Engine
	pipeline *pipeline.Manager
	explain  bool
	parallel int
	now      func() time.Time
}

type Option func(*Advisor)

func WithClock(now func() time.Time) Option {
	return func(a *Advisor) {
		if now != nil {
			a.now = now
		}
	}
}

// WithParallel bounds concurrent advisories in AdviseBatch.
func WithParallel(n int) Option {
	return func(a *Advisor) {
		if n > 0 {
			a.parallel = n
		}
	}
}

func WithExplain(enabled bool) Option {
	return func(a *Advisor) { a.explain = enabled }
}

// WithEngine replaces the default fuzzy engine.
func WithEngine(e *fuzzy.Engine) Option {
	return func(a *Advisor) {
		if e != nil {
			a.engine = e
		}
	}
}

// WithPipeline replaces the default pipeline manager.
func WithPipeline(m *pipeline.Manager) Option {
	return func(a *Advisor) { a.pipeline = m }
}

// New returns an advisor reading surroundings from inputs. Defaults: explanation
// on, 4 workers, wall clock.
func New(inputs InputSource, opts ...Option) *Advisor {
	a := &Advisor{
		inputs:   inputs,
		engine:   fuzzy.NewEngine(),
		explain:  true,
		parallel: 4,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.pipeline == nil {
		a.pipeline = pipeline.NewManager(pipeline.WithClock(a.now))
	}
	return a
}

// NewFromConfig builds an advisor backed by the configured stations.
func NewFromConfig(cfg config.Config, now func() time.Time) *Advisor {
	if now == nil {
		now = time.Now
	}
	agg := aggregator.NewFromConfig(cfg.Advisor, cfg.Stations, now)
	return New(agg,
		WithClock(now),
		WithParallel(cfg.Advisor.Workers()),
		WithExplain(cfg.Advisor.IsExplainEnabled()),
		WithPipeline(pipeline.NewManager(
			pipeline.WithClock(now),
			pipeline.WithDefaultPlantType(cfg.Pipeline.DefaultPlantType),
		)),
	)
}

// Advise aggregates inputs for p, runs the fuzzy engine and the pipeline, and
// attaches an explanation when enabled.
func (a *Advisor) Advise(ctx context.Context, p Plant) (Advice, error) {
	if strings.TrimSpace(p.ID) == "" {
		return Advice{}, ErrMissingPlantID
	}
	if err := ctx.Err(); err != nil {
		return Advice{}, err
	}

	in, err := a.inputs.Inputs(ctx, aggregator.Request{
		Lat:      p.Lat,
		Lng:      p.Lng,
		Species:  p.Species,
		Category: p.Category,
		Stage:    p.Stage,
	})
	if err != nil {
		return Advice{}, fmt.Errorf("plant %s: %w", p.ID, err)
	}

	now := a.now()
	decision := a.engine.Compute(fuzzy.Plant{
		ID:                   p.ID,
		Name:                 p.Name,
		Species:              p.Species,
		Stage:                p.Stage,
		WateringIntervalDays: p.WateringIntervalDays,
		LastWateredAt:        p.LastWateredAt,
	}, &in.Weather.Weather, now)

	env := a.pipeline.Process(SensorRecord(p, in.Weather), p.PlantType)

	advice := Advice{
		PlantID:     p.ID,
		PlantName:   p.Name,
		Inputs:      in,
		Decision:    decision,
		Pipeline:    env,
		GeneratedAt: now.UTC().Format(time.RFC3339),
	}
	if decision.Failed() {
		log.Printf("advisor: plant %s: fuzzy engine failed: %s", p.ID, decision.Error)
	} else if a.explain {
		profile := in.Profile
		e := explain.Explain(explain.Input{Profile: &profile, Weather: in.Weather, Decision: decision})
		advice.Explanation = &e
	}

	log.Printf("advisor: plant %s -> %s (%s, confidence %.3f), pipeline %s", p.ID, decision.Recommendation, decision.Status, decision.Confidence, env.Status)
	return advice, nil
}

// SensorRecord maps a plant and its weather block onto the pipeline's raw input.
// Unknown readings are left out for the validator to impute.
func SensorRecord(p Plant, w aggregator.Weather) map[string]interface{} {
	raw := map[string]interface{}{
		pipeline.FieldWaterAdded: p.WaterAdded24h,
	}

	switch {
	case p.SoilMoisture != nil:
		raw[pipeline.FieldSoilMoisture] = *p.SoilMoisture
	case w.Weather.SoilMoisture() != nil:
		raw[pipeline.FieldSoilMoisture] = *w.Weather.SoilMoisture()
	}
	if w.Temp != nil {
		raw[pipeline.FieldTemperature] = *w.Temp
	}
	if w.Humidity != nil {
		raw[pipeline.FieldHumidity] = *w.Humidity
	}
	if w.SolarRadiation != nil {
		// MJ/m²/day to a lux estimate
		raw[pipeline.FieldLight] = math.Max(0, math.Min(maxLux, *w.SolarRadiation*1000))
	}
	if w.PrecipDaily != nil {
		raw[pipeline.FieldRainfall] = *w.PrecipDaily
	}
	if p.Soil != "" {
		raw["soil"] = p.Soil
	}
	if p.Species != "" {
		raw["species"] = p.Species
	}
	if p.PlantType != "" {
		raw["plant_type"] = p.PlantType
	}
	return raw
}

// BatchItem is one plant's outcome. Exactly one of Advice and Error is set.
type BatchItem struct {
	PlantID string  `json:"plantId"`
	Advice  *Advice `json:"advice,omitempty"`
	Error   string  `json:"error,omitempty"`
}

// BatchResult lists one item per input plant, in input order.
type BatchResult struct {
	BatchID   string      `json:"batchId"`
	Items     []BatchItem `json:"items"`
	Succeeded int         `json:"succeeded"`
	Failed    int         `json:"failed"`
}

// AdviseBatch advises every plant with at most parallel advisories in flight.
// Items keep the input order and a failing plant does not stop the others.
func (a *Advisor) AdviseBatch(ctx context.Context, plants []Plant) BatchResult {
	res := BatchResult{
		BatchID: uuid.New().String(),
		Items:   make([]BatchItem, len(plants)),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.parallel)
	for i, p := range plants {
		g.Go(func() error {
			item := BatchItem{PlantID: p.ID}
			advice, err := a.Advise(gctx, p)
			if err != nil {
				item.Error = err.Error()
			} else {
				item.Advice = &advice
			}
			res.Items[i] = item
			return nil
		})
	}
	_ = g.Wait()

	for _, item := range res.Items {
		if item.Error != "" {
			res.Failed++
		} else {
			res.Succeeded++
		}
	}
	log.Printf("advisor: batch %s finished, %d ok, %d failed", res.BatchID, res.Succeeded, res.Failed)
	return res
}
