package pipeline

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// ActionGenerator turns the estimation and its surroundings into the final suggestion.
type ActionGenerator struct{}

func (ActionGenerator) Name() StageName { return StageActionGeneration }

func (ActionGenerator) Run(rc *RunContext) (map[string]interface{}, error) {
	est := rc.Estimation()
	if est == nil {
		return nil, ErrMissingEstimation
	}

	now := rc.Now()
	features := rc.Features()
	plant := plantLabel(rc)
	soil := rc.CleanedData().StringOr("soil", DefaultSoil)

	s := Suggestions{
		MainAction:           mainAction(*est),
		SecondaryActions:     secondaryActions(rc.Anomalies(), features),
		Timing:               suggestTiming(now, features),
		FrequencyEstimation:  EstimateFrequency(plant, features),
		FertilizerEstimation: EstimateFertilizer(plant, soil),
		Notes:                notes(rc.Warnings()),
		Priority:             DerivePriority(rc.Anomalies(), features),
		GeneratedAt:          now.UTC().Format(time.RFC3339),
	}
	if err := rc.setSuggestions(s); err != nil {
		return nil, err
	}
	return map[string]interface{}{"suggestions": s}, nil
}

// plantLabel prefers the declared species over the generic plant type.
func plantLabel(rc *RunContext) string {
	raw := Record(rc.Raw())
	if species := raw.StringOr("species", ""); species != "" {
		return strings.ToLower(species)
	}
	if rc.PlantType() != "" {
		return strings.ToLower(rc.PlantType())
	}
	return strings.ToLower(raw.StringOr("plant_type", string(PlantGeneric)))
}

func mainAction(est Estimation) MainAction {
	action := "do_not_irrigate"
	if est.ShouldWater {
		action = "irrigate"
	}
	return MainAction{
		Action:            action,
		Decision:          est.Decision,
		WaterAmountML:     est.WaterAmountML,
		WaterAmountLiters: round(est.WaterAmountML/1000, 2),
		Reasoning:         est.Reasoning,
		Confidence:        est.Confidence,
		Description:       describe(est),
	}
}

func describe(est Estimation) string {
	liters := est.WaterAmountML / 1000
	switch est.Decision {
	case DecisionDoNotWater:
		return "Optimal amount reached for this cycle. Do not irrigate."
	case DecisionWaterIntegration:
		return fmt.Sprintf("Top-up needed: %.1f liters still missing to complete the cycle.", liters)
	default:
		return fmt.Sprintf("Irrigate with %.1f liters to cover the cycle requirement.", liters)
	}
}

func secondaryActions(anomalies []Anomaly, features *Features) []SecondaryAction {
	out := make([]SecondaryAction, 0, len(anomalies)+1)
	for _, a := range anomalies {
		kind := "monitoring"
		switch a.Severity {
		case SeverityCritical:
			kind = "urgent"
		case SeverityWarning:
			kind = "preventive"
		}
		out = append(out, SecondaryAction{Type: kind, Action: a.Recommendation, Reason: a.Message})
	}
	if features != nil && features.DiseaseRisk >= 70 {
		out = append(out, SecondaryAction{
			Type:   "preventive",
			Action: "Water at the base only and keep foliage dry; inspect leaves for fungal spots.",
			Reason: fmt.Sprintf("fungal disease risk %.0f/100", features.DiseaseRisk),
		})
	}
	return out
}

func suggestTiming(now time.Time, features *Features) Timing {
	next := time.Date(now.Year(), now.Month(), now.Day(), 6, 0, 0, 0, now.Location())
	if next.Before(now) {
		next = next.AddDate(0, 0, 1)
	}
	phase := DayPhase(now)
	if features != nil && features.DayPhase != "" {
		phase = features.DayPhase
	}
	return Timing{
		SuggestedTime: "early morning",
		NextWindow:    next.Format(time.RFC3339),
		CurrentPhase:  phase,
		IdealHours:    []string{"06:00-09:00", "18:00-20:00"},
	}
}

// EstimateFrequency labels the days between waterings from ET0, plant habit and
// soil retention.
func EstimateFrequency(plant string, features *Features) FrequencyEstimation {
	et0, retention := 0.0, 1.0
	if features != nil {
		et0 = features.Evapotranspiration
		if features.SoilRetentionFactor > 0 {
			retention = features.SoilRetentionFactor
		}
	}

	kind := SelectStrategy(plant).Kind
	isTree := kind == PlantPeach || kind == PlantGrape
	treeFactor := 1.0
	if isTree {
		treeFactor = 2.0
	}

	baseDays := 7 * treeFactor
	if et0 > 0 {
		baseDays = math.Max(1, 4*treeFactor/et0)
	}
	adjusted := baseDays * retention

	var label, detail string
	switch {
	case adjusted <= 2:
		label, detail = "ALTA", "Very frequent (1-2 days)"
	case adjusted <= 5:
		label, detail = "MEDIA", "Frequent (3-5 days)"
	case adjusted <= 10:
		label, detail = "BASSA", "Weekly"
	default:
		label, detail = "MINIMA", "Rare / fortnightly"
	}

	return FrequencyEstimation{
		Label:        label,
		Detail:       detail,
		AdjustedDays: round(adjusted, 2),
		Reasoning:    fmt.Sprintf("Frequency from ET0 %.2f mm/day, soil retention %.2f, tree or vine=%t.", et0, retention, isTree),
	}
}

// EstimateFertilizer picks nutrient type and cadence by plant family, scaled by soil.
func EstimateFertilizer(plant, soil string) FertilizerEstimation {
	var (
		kind     string
		baseDays int
		desc     string
	)
	switch SelectStrategy(plant).Kind {
	case PlantTomato, PlantPotato, PlantPepper:
		kind, baseDays = "Potassium-rich NPK (K)", 14
		desc = "Solanaceous crop: high nutrient demand while fruiting."
	case PlantPeach:
		kind, baseDays = "Slow-release granular organic", 60
		desc = "Stone fruit tree: seasonal feeding."
	case PlantGrape:
		kind, baseDays = "Vine-specific blend (Mg/K)", 45
		desc = "Vine: targeted supplements, avoid excess nitrogen."
	default:
		kind, baseDays = "Universal NPK", 30
		desc = "Standard feeding."
	}

	days := baseDays
	advice := desc + " Balanced soil."
	switch ClassifySoil(soil) {
	case SoilSandy:
		days = int(float64(baseDays) * 0.6)
		advice = desc + " Sandy soil leaches nutrients: smaller, more frequent doses."
	case SoilClay:
		days = int(float64(baseDays) * 1.2)
		advice = desc + " Clay soil retains salts: feed less often."
	}

	return FertilizerEstimation{
		Type:          kind,
		FrequencyDays: days,
		Frequency:     fmt.Sprintf("Every %d days", days),
		Reasoning:     advice,
	}
}

// DerivePriority ranks the suggestion from anomaly severity and irrigation urgency.
func DerivePriority(anomalies []Anomaly, features *Features) Priority {
	for _, a := range anomalies {
		if a.Severity == SeverityCritical {
			return PriorityUrgent
		}
	}
	urgency := 0
	if features != nil {
		urgency = features.IrrigationUrgency
	}
	switch {
	case urgency >= 8:
		return PriorityUrgent
	case urgency >= 6:
		return PriorityHigh
	case urgency >= 3:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

func notes(warnings []Message) []string {
	out := make([]string, 0, len(warnings))
	for _, w := range warnings {
		out = append(out, w.String())
	}
	return out
}
