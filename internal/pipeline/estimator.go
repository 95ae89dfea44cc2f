package pipeline

import (
	"fmt"
	"strings"
)

// PlantKind is the strategy variant selected for a run.
type PlantKind string

const (
	PlantTomato  PlantKind = "tomato"
	PlantPotato  PlantKind = "potato"
	PlantPepper  PlantKind = "pepper"
	PlantPeach   PlantKind = "peach"
	PlantGrape   PlantKind = "grape"
	PlantGeneric PlantKind = "generic"
)

// FieldWaterAdded is the raw field carrying liters already given in the current cycle.
const FieldWaterAdded = "water_added_24h"

const (
	doNotWaterMargin  = 0.2 // liters
	integrationCutoff = 1.0 // liters
)

// Strategy is the per-plant water budget: a fixed target per cycle and the
// confidence attached to decisions made with it.
type Strategy struct {
	Kind         PlantKind
	Keywords     []string
	TargetLiters float64
	Confidence   float64
}

// Order matters: the first strategy whose keyword matches wins.
var strategies = []Strategy{
	{Kind: PlantTomato, Keywords: []string{"tomato", "pomodoro"}, TargetLiters: 4.0, Confidence: 0.90},
	{Kind: PlantPotato, Keywords: []string{"potato", "patata"}, TargetLiters: 3.0, Confidence: 0.85},
	{Kind: PlantPepper, Keywords: []string{"pepper", "peperone"}, TargetLiters: 2.5, Confidence: 0.85},
	{Kind: PlantPeach, Keywords: []string{"peach", "pesca", "pesco"}, TargetLiters: 12.0, Confidence: 0.75},
	{Kind: PlantGrape, Keywords: []string{"grape", "uva", "vite"}, TargetLiters: 8.0, Confidence: 0.80},
}

var genericStrategy = Strategy{Kind: PlantGeneric, TargetLiters: 2.0, Confidence: 0.60}

// SelectStrategy matches plantType case-insensitively against each strategy's keywords,
// falling back to the generic budget.
func SelectStrategy(plantType string) Strategy {
	p := strings.ToLower(strings.TrimSpace(plantType))
	if p == "" {
		return genericStrategy
	}
	for _, s := range strategies {
		for _, kw := range s.Keywords {
			if strings.Contains(p, kw) {
				return s
			}
		}
	}
	return genericStrategy
}

// SupportedPlants lists every strategy kind, generic last.
func SupportedPlants() []PlantKind {
	out := make([]PlantKind, 0, len(strategies)+1)
	for _, s := range strategies {
		out = append(out, s.Kind)
	}
	return append(out, PlantGeneric)
}

// Estimate computes the water-budget decision for the liters already added this cycle.
func (s Strategy) Estimate(waterAdded float64) Estimation {
	missing := s.TargetLiters - waterAdded

	var (
		decision  Decision
		amountML  float64
		reasoning string
	)
	switch {
	case missing <= doNotWaterMargin:
		decision = DecisionDoNotWater
		reasoning = fmt.Sprintf("Cycle target of %.1f L for %s already reached.", s.TargetLiters, s.Kind)
	case missing < integrationCutoff:
		decision = DecisionWaterIntegration
		amountML = missing * 1000
		reasoning = fmt.Sprintf("%.1f L given of %.1f L target for %s: top up the remainder.", waterAdded, s.TargetLiters, s.Kind)
	default:
		decision = DecisionWaterStandard
		amountML = missing * 1000
		reasoning = fmt.Sprintf("%.1f L still needed to meet the %.1f L cycle target for %s.", missing, s.TargetLiters, s.Kind)
	}

	return Estimation{
		ShouldWater:      decision != DecisionDoNotWater,
		Decision:         decision,
		WaterAmountML:    amountML,
		Confidence:       s.Confidence,
		Reasoning:        reasoning,
		PlantType:        string(s.Kind),
		TargetLiters:     s.TargetLiters,
		WaterAddedLiters: waterAdded,
	}
}

// Estimator selects the plant strategy and writes the estimation.
type Estimator struct{}

func (Estimator) Name() StageName { return StageEstimation }

func (Estimator) Run(rc *RunContext) (map[string]interface{}, error) {
	data := rc.CleanedData()
	if len(data) == 0 {
		return nil, ErrMissingCleanedData
	}

	strategy := SelectStrategy(rc.PlantType())

	added := 0.0
	if v, present := data[FieldWaterAdded]; present && v != nil {
		n, ok := toFloat(v)
		switch {
		case !ok || !isFinite(n):
			rc.AddWarning(StageEstimation, fmt.Sprintf("invalid %s value %v, assuming 0", FieldWaterAdded, v))
		case n < 0:
			rc.AddWarning(StageEstimation, fmt.Sprintf("negative %s value %s, assuming 0", FieldWaterAdded, formatNumber(n)))
		default:
			added = n
		}
	}

	est := strategy.Estimate(added)
	if err := rc.setEstimation(est); err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"estimation":    est,
		"strategy_used": string(strategy.Kind),
	}, nil
}
