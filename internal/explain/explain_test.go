package explain

import (
	"strings"
	"testing"
	"time"

	"irrigation-mcp-server/internal/aggregator"
	"irrigation-mcp-server/internal/fuzzy"
)

var sampleTime = time.Date(2025, 7, 15, 14, 30, 0, 0, time.UTC)

func sampleDecision() fuzzy.Decision {
	return fuzzy.Decision{
		Recommendation: fuzzy.IrrigateToday,
		Reason:         "Interval exceeded, little rain and soil not wet",
		NextDate:       "2025-07-15T14:30:00Z",
		Confidence:     0.667,
		Tech: fuzzy.Tech{
			Memberships: fuzzy.Memberships{
				fuzzy.GroupSoil:  {"dry": 1, "moist": 0, "wet": 0},
				fuzzy.GroupRain:  {"low": 1, "medium": 0, "high": 0},
				fuzzy.GroupRatio: {"early": 0, "due": 0, "overdue": 1},
				fuzzy.GroupTemp:  {"low": 0, "moderate": 0, "high": 1},
				fuzzy.GroupET0:   {},
			},
			Rules: []fuzzy.Rule{
				{ID: "R3", Action: fuzzy.IrrigateToday, Weight: 1, Because: "Interval exceeded, little rain and soil not wet"},
				{ID: "R5", Action: fuzzy.IrrigateTomorrow, Weight: 0.5, Because: "Hot weather and dry soil"},
			},
		},
	}
}

func TestText(t *testing.T) {
	w := aggregator.Weather{
		Weather: fuzzy.Weather{
			ET0:                fuzzy.Float(5.2),
			RainNext24h:        fuzzy.Float(0),
			SoilMoistureApprox: fuzzy.Float(20),
		},
		PrecipDaily: fuzzy.Float(3),
	}
	profile := &aggregator.Profile{KcStage: 1.15, StageNorm: aggregator.StageMid}

	got := Text(Input{Profile: profile, Weather: w, Decision: sampleDecision()})
	want := strings.Join([]string{
		"Advice: Irrigate today.",
		"Reason: Interval exceeded, little rain and soil not wet.",
		"Data: ET0=5.2 mm/day, Kc=1.15 (stage=mid), ETc≈5.98 mm/day, Rain 24h=0 mm, Soil=20%.",
		"Fuzzy: soil: dry=1.00, moist=0.00; rain: low=1.00, medium=0.00; ratio: overdue=1.00, early=0.00; temp: high=1.00, low=0.00.",
		"Rules: R3→irrigate_today (w=1.00): Interval exceeded, little rain and soil not wet | R5→irrigate_tomorrow (w=0.50): Hot weather and dry soil.",
		"Confidence: 0.67. Next check: 15 Jul, 14:30.",
	}, "\n")

	if got != want {
		t.Errorf("Text mismatch.\nExpected:\n%s\nGot:\n%s", want, got)
	}
}

func TestTextMissingValues(t *testing.T) {
	d := fuzzy.Decision{Recommendation: fuzzy.Skip, NextDate: "not a date"}
	got := Text(Input{Decision: d})

	for _, want := range []string{
		"Advice: Do not irrigate.",
		"Reason: n/d.",
		"Data: ET0=n/d, Kc=n/d (stage=n/d), Rain 24h=n/d, Soil=n/d.",
		"Fuzzy: n/d.",
		"Rules: n/d.",
		"Next check: n/d.",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("Expected %q in:\n%s", want, got)
		}
	}
	if strings.Contains(got, "ETc") {
		t.Error("Did not expect ETc without ET0")
	}
}

func TestRainFallsBackToDailyPrecipitation(t *testing.T) {
	w := aggregator.Weather{PrecipDaily: fuzzy.Float(3.456)}
	got := Text(Input{Weather: w, Decision: sampleDecision()})
	if !strings.Contains(got, "Rain 24h=3.46 mm") {
		t.Errorf("Expected daily precipitation fallback, got:\n%s", got)
	}
}

func TestExplainWithEngineDecision(t *testing.T) {
	s := fuzzy.Signals{
		BaselineInterval: 3,
		Ratio:            fuzzy.Float(1.5),
		SoilMoisture:     fuzzy.Float(10),
		RainNext24h:      fuzzy.Float(0),
		Temp:             fuzzy.Float(33),
	}
	d := fuzzy.NewEngine().Decide(s, sampleTime)

	e := Explain(Input{Decision: d})
	if !e.Deterministic {
		t.Error("Expected deterministic explanation")
	}
	if !strings.HasPrefix(e.Text, "Advice: Irrigate today.") {
		t.Errorf("Unexpected advice line:\n%s", e.Text)
	}
	if lines := strings.Split(e.Text, "\n"); len(lines) != 6 {
		t.Errorf("Expected 6 lines, got %d", len(lines))
	}
}

func TestNumber(t *testing.T) {
	tests := []struct {
		in   float64
		unit string
		want string
	}{
		{5.2, "", "5.2"},
		{10, " mm", "10 mm"},
		{0.004, "", "0"},
		{-0.001, "", "0"},
		{1.005, "%", "1%"},
		{2.5, "%", "2.5%"},
	}
	for _, tt := range tests {
		if got := number(&tt.in, tt.unit); got != tt.want {
			t.Errorf("number(%v): expected %q, got %q", tt.in, tt.want, got)
		}
	}
	if got := number(nil, " mm"); got != missing {
		t.Errorf("Expected %s, got %s", missing, got)
	}
}
