package pipeline

import (
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestValidateEmptyInputFillsDefaults(t *testing.T) {
	cleaned, issues := Validate(map[string]interface{}{})

	want := Record{
		FieldSoilMoisture: 50.0,
		FieldTemperature:  20.0,
		FieldHumidity:     60.0,
		FieldLight:        10000.0,
		FieldRainfall:     0.0,
	}
	if diff := cmp.Diff(want, cleaned); diff != "" {
		t.Errorf("cleaned data mismatch (-want +got):\n%s", diff)
	}
	if len(issues) != 5 {
		t.Fatalf("Expected 5 warnings, got %d: %v", len(issues), issues)
	}
	for name := range want {
		found := false
		for _, issue := range issues {
			if strings.Contains(issue, name) {
				found = true
			}
		}
		if !found {
			t.Errorf("No warning references %s", name)
		}
	}
}

func TestValidateClampsOutOfRange(t *testing.T) {
	cleaned, issues := Validate(map[string]interface{}{FieldSoilMoisture: 150})

	if got := cleaned[FieldSoilMoisture]; got != 100.0 {
		t.Errorf("Expected soil_moisture clamped to 100, got %v", got)
	}

	mentions := 0
	for _, issue := range issues {
		if strings.Contains(issue, FieldSoilMoisture) {
			mentions++
		}
	}
	if mentions != 1 {
		t.Errorf("Expected exactly 1 warning for soil_moisture, got %d: %v", mentions, issues)
	}
}

func TestValidateConversion(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
		want  float64
		issue bool
	}{
		{"float", 21.5, 21.5, false},
		{"int", 30, 30, false},
		{"numeric string", " 18.25 ", 18.25, false},
		{"garbage string", "warm", 20, true},
		{"bool", true, 20, true},
		{"nil", nil, 20, true},
		{"NaN", math.NaN(), 20, true},
		{"+Inf", math.Inf(1), 20, true},
		{"below range", -40, -10, true},
		{"above range", 80.0, 50, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cleaned, issues := Validate(map[string]interface{}{
				FieldSoilMoisture: 40,
				FieldTemperature:  tt.value,
				FieldHumidity:     55,
				FieldLight:        2000,
				FieldRainfall:     1,
			})
			if got := cleaned[FieldTemperature]; got != tt.want {
				t.Errorf("Expected temperature %v, got %v", tt.want, got)
			}
			if tt.issue != (len(issues) == 1) {
				t.Errorf("Unexpected issues for %v: %v", tt.value, issues)
			}
		})
	}
}

func TestValidateIdempotent(t *testing.T) {
	inputs := []map[string]interface{}{
		{},
		{FieldSoilMoisture: 150, FieldTemperature: -99, FieldHumidity: "abc", FieldLight: 1e9, FieldRainfall: -3},
		{FieldSoilMoisture: 45, FieldTemperature: 24.5, FieldHumidity: 62, FieldLight: 15000, FieldRainfall: 0},
		{FieldTemperature: math.Inf(-1), "soil": "sabbioso", "species": "Pomodoro"},
	}

	for i, in := range inputs {
		once, _ := Validate(in)
		twice, issues := Validate(once)
		if diff := cmp.Diff(once, twice); diff != "" {
			t.Errorf("input %d: second pass changed the record (-once +twice):\n%s", i, diff)
		}
		if len(issues) != 0 {
			t.Errorf("input %d: second pass reported issues: %v", i, issues)
		}
	}
}

func TestValidatePassesUnknownFields(t *testing.T) {
	cleaned, _ := Validate(map[string]interface{}{
		"soil":            "argilloso",
		"water_added_24h": 1.5,
	})
	if cleaned["soil"] != "argilloso" {
		t.Errorf("Expected soil to pass through, got %v", cleaned["soil"])
	}
	if cleaned["water_added_24h"] != 1.5 {
		t.Errorf("Expected water_added_24h to pass through, got %v", cleaned["water_added_24h"])
	}
}

func TestValidatorStage(t *testing.T) {
	rc := NewRunContext("run", "tomato", map[string]interface{}{FieldSoilMoisture: 150}, nil)

	data, err := Validator{}.Run(rc)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if data["issues_found"] != 5 {
		t.Errorf("Expected 5 issues, got %v", data["issues_found"])
	}
	if len(rc.Warnings()) != 5 {
		t.Errorf("Expected 5 warnings on the context, got %d", len(rc.Warnings()))
	}
	if rc.CleanedData() == nil {
		t.Fatal("Expected cleaned data to be set")
	}

	if _, err := (Validator{}).Run(rc); err == nil {
		t.Error("Expected second run to fail on write-once cleaned data")
	}
}
