// Package fuzzy implements the fuzzy-logic irrigation advisor: signals are
// fuzzified, a fixed rule base fires, weights are max-aggregated per action and
// the winning action is returned with a confidence score.
package fuzzy

import (
	"fmt"
	"log"
	"strings"
	"time"
)

// Plant is the registry view the engine needs.
type Plant struct {
	ID                   string     `json:"id,omitempty" yaml:"id"`
	Name                 string     `json:"name,omitempty" yaml:"name"`
	Species              string     `json:"species,omitempty" yaml:"species"`
	Stage                string     `json:"stage,omitempty" yaml:"stage"`
	WateringIntervalDays int        `json:"wateringIntervalDays,omitempty" yaml:"watering_interval_days"`
	LastWateredAt        *time.Time `json:"lastWateredAt,omitempty" yaml:"last_watered_at"`
}

// Weather is the resolved external input. Nil fields are unknown.
type Weather struct {
	Temp               *float64 `json:"temp"`
	Humidity           *float64 `json:"humidity"`
	RainNext24h        *float64 `json:"rainNext24h"`
	ET0                *float64 `json:"et0"`
	SoilMoisture0to7cm *float64 `json:"soilMoisture0to7cm"`
	SoilMoistureApprox *float64 `json:"soilMoistureApprox"`
}

// SoilMoisture prefers the 0-7 cm reading over the approximation.
func (w *Weather) SoilMoisture() *float64 {
	if w == nil {
		return nil
	}
	if w.SoilMoisture0to7cm != nil {
		return w.SoilMoisture0to7cm
	}
	return w.SoilMoistureApprox
}

// Signals are the engine inputs after normalization.
type Signals struct {
	DaysSinceLast    *int     `json:"daysSinceLast"`
	BaselineInterval int      `json:"baselineInterval"`
	Ratio            *float64 `json:"ratio"`
	SoilMoisture     *float64 `json:"soilMoisture"`
	RainNext24h      *float64 `json:"rainNext24h"`
	Temp             *float64 `json:"temp"`
	Humidity         *float64 `json:"humidity"`
	ET0              *float64 `json:"et0"`
}

// Tech is the technical payload behind a decision.
type Tech struct {
	Memberships  Memberships        `json:"memberships"`
	Rules        []Rule             `json:"rules"`
	ActionScores map[Action]float64 `json:"actionScores"`
}

// Decision statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Decision is the engine output. Status is StatusError when evaluation failed; the
// recommendation then falls back to Skip with zero confidence.
type Decision struct {
	Status         string  `json:"status"`
	Error          string  `json:"error,omitempty"`
	Recommendation Action  `json:"recommendation"`
	Reason         string  `json:"reason"`
	NextDate       string  `json:"nextDate"`
	Confidence     float64 `json:"confidence"`
	Signals        Signals `json:"signals"`
	Tech           Tech    `json:"tech"`
}

// Engine is stateless; the zero value is ready to use.
type Engine struct {
	// rules overrides the built-in rule base when set.
	rules []RuleDef
}

// Failed reports whether the decision came from a failed evaluation.
func (d Decision) Failed() bool {
	return d.Status == StatusError
}

// NewEngine returns an engine over the built-in rules R1..R6.
func NewEngine() *Engine {
	return &Engine{}
}

// NewEngineWithRules returns an engine evaluating rules instead of the built-in set.
// R0 still fires when none of them does; an empty list keeps the built-in set.
func NewEngineWithRules(rules []RuleDef) *Engine {
	return &Engine{rules: append([]RuleDef(nil), rules...)}
}

// Compute derives signals from plant and weather and decides. It never panics.
func (e *Engine) Compute(plant Plant, weather *Weather, now time.Time) Decision {
	return e.Decide(BuildSignals(plant, weather, now), now)
}

// Decide runs fuzzification, rule evaluation, aggregation and selection.
func (e *Engine) Decide(s Signals, now time.Time) (d Decision) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("fuzzy engine panic: %v", r)
			d = Decision{
				Status:         StatusError,
				Error:          fmt.Sprint(r),
				Recommendation: Skip,
				Reason:         fmt.Sprintf("engine failure: %v", r),
				NextDate:       now.Format(time.RFC3339),
				Signals:        s,
			}
		}
	}()

	m := Fuzzify(s)
	rules := evaluate(e.ruleSet(), m)
	scores := Aggregate(rules)
	action, confidence := Choose(scores)

	return Decision{
		Status:         StatusSuccess,
		Recommendation: action,
		Reason:         Reason(rules, action),
		NextDate:       nextDate(action, s.BaselineInterval, now).Format(time.RFC3339),
		Confidence:     confidence,
		Signals:        s,
		Tech: Tech{
			Memberships:  m,
			Rules:        rules,
			ActionScores: scores,
		},
	}
}

func (e *Engine) ruleSet() []RuleDef {
	if e == nil || e.rules == nil {
		return ruleBase
	}
	return e.rules
}

func nextDate(action Action, baseline int, now time.Time) time.Time {
	switch action {
	case IrrigateToday:
		return now
	case IrrigateTomorrow:
		return now.AddDate(0, 0, 1)
	default:
		step := baseline / 2
		if step < 1 {
			step = 1
		}
		return now.AddDate(0, 0, step)
	}
}

// BuildSignals normalizes plant and weather into engine signals.
func BuildSignals(plant Plant, weather *Weather, now time.Time) Signals {
	baseline := plant.WateringIntervalDays
	if baseline <= 0 {
		baseline = BaselineFromStage(plant.Stage)
	}

	s := Signals{
		BaselineInterval: baseline,
		DaysSinceLast:    DaysSince(plant.LastWateredAt, now),
		SoilMoisture:     weather.SoilMoisture(),
	}
	if weather != nil {
		s.RainNext24h = weather.RainNext24h
		s.Temp = weather.Temp
		s.Humidity = weather.Humidity
		s.ET0 = weather.ET0
	}
	if s.DaysSinceLast != nil {
		r := float64(*s.DaysSinceLast) / float64(baseline)
		s.Ratio = &r
	}
	return s
}

// DaysSince returns whole days elapsed since last, floored at zero; nil when unknown.
func DaysSince(last *time.Time, now time.Time) *int {
	if last == nil || last.IsZero() {
		return nil
	}
	days := int(now.Sub(*last).Hours() / 24)
	if days < 0 {
		days = 0
	}
	return &days
}

// BaselineFromStage returns the default watering interval in days for a growth stage.
func BaselineFromStage(stage string) int {
	s := strings.ToLower(stage)
	for _, kw := range []string{"semina", "sowing", "transplant", "trapianto", "cresc", "growth", "fiori", "flower"} {
		if strings.Contains(s, kw) {
			return 2
		}
	}
	return 3
}

// Float returns a pointer to v, for building optional signals.
func Float(v float64) *float64 {
	return &v
}
