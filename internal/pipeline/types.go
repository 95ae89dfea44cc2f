package pipeline

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Record is the canonical cleaned sensor record: numeric sensor fields plus any
// unrecognized raw fields passed through unchanged.
type Record map[string]interface{}

// Float returns the numeric value stored under key.
func (r Record) Float(key string) (float64, bool) {
	v, ok := r[key]
	if !ok {
		return 0, false
	}
	return toFloat(v)
}

// FloatOr returns the numeric value under key or def when absent or non-numeric.
func (r Record) FloatOr(key string, def float64) float64 {
	if v, ok := r.Float(key); ok {
		return v
	}
	return def
}

// StringOr returns the trimmed string under key or def when absent or empty.
func (r Record) StringOr(key, def string) string {
	v, ok := r[key]
	if !ok || v == nil {
		return def
	}
	s := strings.TrimSpace(toString(v))
	if s == "" {
		return def
	}
	return s
}

// Features are the agronomic metrics derived from the cleaned record.
type Features struct {
	SoilRetentionFactor float64 `json:"soil_retention_factor"`
	FieldCapacity       float64 `json:"field_capacity"`
	WiltingPoint        float64 `json:"wilting_point"`
	SoilBehavior        string  `json:"soil_behavior"`
	AWCPercentage       float64 `json:"awc_percentage"`
	VPD                 float64 `json:"vpd"`
	DiseaseRisk         float64 `json:"disease_risk"`
	WaterStressIndex    float64 `json:"water_stress_index"`
	Evapotranspiration  float64 `json:"evapotranspiration"`
	DayPhase            string  `json:"day_phase"`
	Season              string  `json:"season"`
	ClimateComfortIndex float64 `json:"climate_comfort_index"`
	WaterDeficit        float64 `json:"water_deficit"`
	IrrigationUrgency   int     `json:"irrigation_urgency"`
}

// Decision is the water-budget outcome of a strategy.
type Decision string

const (
	DecisionDoNotWater       Decision = "do_not_water"
	DecisionWaterIntegration Decision = "water_integration"
	DecisionWaterStandard    Decision = "water_standard"
)

// Estimation is the strategy output for one run.
type Estimation struct {
	ShouldWater      bool     `json:"should_water"`
	Decision         Decision `json:"decision"`
	WaterAmountML    float64  `json:"water_amount_ml"`
	Confidence       float64  `json:"confidence"`
	Reasoning        string   `json:"reasoning"`
	PlantType        string   `json:"plant_type"`
	TargetLiters     float64  `json:"target_liters"`
	WaterAddedLiters float64  `json:"water_added_liters"`
}

// Severity grades an anomaly.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Anomaly is one threshold breach with its canned recommendation.
type Anomaly struct {
	Type           string   `json:"type"`
	Severity       Severity `json:"severity"`
	Value          float64  `json:"value"`
	Threshold      float64  `json:"threshold"`
	Message        string   `json:"message"`
	Recommendation string   `json:"recommendation"`
}

// Suggestions is the final structured output of the action stage.
type Suggestions struct {
	MainAction           MainAction           `json:"main_action"`
	SecondaryActions     []SecondaryAction    `json:"secondary_actions"`
	Timing               Timing               `json:"timing"`
	FrequencyEstimation  FrequencyEstimation  `json:"frequency_estimation"`
	FertilizerEstimation FertilizerEstimation `json:"fertilizer_estimation"`
	Notes                []string             `json:"notes"`
	Priority             Priority             `json:"priority"`
	GeneratedAt          string               `json:"generated_at"`
}

// MainAction is the watering instruction derived from the estimation.
type MainAction struct {
	Action            string   `json:"action"`
	Decision          Decision `json:"decision"`
	WaterAmountML     float64  `json:"water_amount_ml"`
	WaterAmountLiters float64  `json:"water_amount_liters"`
	Reasoning         string   `json:"reasoning"`
	Confidence        float64  `json:"confidence"`
	Description       string   `json:"description"`
}

// SecondaryAction is an urgent, preventive or monitoring follow-up.
type SecondaryAction struct {
	Type   string `json:"type"`
	Action string `json:"action"`
	Reason string `json:"reason"`
}

type Timing struct {
	SuggestedTime string   `json:"suggested_time"`
	NextWindow    string   `json:"next_window"`
	CurrentPhase  string   `json:"current_phase"`
	IdealHours    []string `json:"ideal_hours"`
}

// FrequencyEstimation is the irrigation cadence class (ALTA, MEDIA, BASSA, MINIMA).
type FrequencyEstimation struct {
	Label        string  `json:"label"`
	Detail       string  `json:"detail"`
	AdjustedDays float64 `json:"adjusted_days"`
	Reasoning    string  `json:"reasoning"`
}

type FertilizerEstimation struct {
	Type          string `json:"type"`
	FrequencyDays int    `json:"frequency_days"`
	Frequency     string `json:"frequency"`
	Reasoning     string `json:"reasoning"`
}

// Priority ranks how soon the suggestion should be acted on.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// toFloat converts loosely typed input (JSON, YAML, MCP arguments) to a finite or
// non-finite float. Booleans and nil are not numbers.
func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func toString(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	default:
		b, err := json.Marshal(s)
		if err != nil {
			return ""
		}
		return strings.Trim(string(b), `"`)
	}
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
