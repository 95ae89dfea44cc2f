package pipeline

import (
	"fmt"
	"strconv"
)

// Canonical sensor fields, in validation order.
const (
	FieldSoilMoisture = "soil_moisture"
	FieldTemperature  = "temperature"
	FieldHumidity     = "humidity"
	FieldLight        = "light"
	FieldRainfall     = "rainfall"
)

type fieldRule struct {
	name     string
	min, max float64
	def      float64
}

// Ranges: moisture and humidity in %, temperature in °C, light in lux, rainfall in mm.
var sensorFields = []fieldRule{
	{name: FieldSoilMoisture, min: 0, max: 100, def: 50},
	{name: FieldTemperature, min: -10, max: 50, def: 20},
	{name: FieldHumidity, min: 0, max: 100, def: 60},
	{name: FieldLight, min: 0, max: 100000, def: 10000},
	{name: FieldRainfall, min: 0, max: 500, def: 0},
}

// SensorDefaults returns the imputation default for every canonical field.
func SensorDefaults() map[string]float64 {
	out := make(map[string]float64, len(sensorFields))
	for _, f := range sensorFields {
		out[f.name] = f.def
	}
	return out
}

// Validator clamps and imputes the canonical sensor fields. It never fails.
type Validator struct{}

func (Validator) Name() StageName { return StageValidation }

func (Validator) Run(rc *RunContext) (map[string]interface{}, error) {
	cleaned, issues := Validate(rc.Raw())
	for _, issue := range issues {
		rc.AddWarning(StageValidation, issue)
	}
	if err := rc.setCleanedData(cleaned); err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"cleaned_data": cleaned,
		"issues_found": len(issues),
		"issues":       issues,
	}, nil
}

// Validate produces the cleaned record for raw and the list of issues found.
// The output is always within the declared ranges, so Validate(Validate(x)) == Validate(x).
func Validate(raw map[string]interface{}) (Record, []string) {
	cleaned := make(Record, len(raw)+len(sensorFields))
	issues := make([]string, 0)

	rules := make(map[string]fieldRule, len(sensorFields))
	for _, f := range sensorFields {
		rules[f.name] = f
	}

	for key, value := range raw {
		if _, known := rules[key]; !known {
			cleaned[key] = value
		}
	}

	for _, f := range sensorFields {
		value, present := raw[f.name]
		if !present {
			cleaned[f.name] = f.def
			issues = append(issues, fmt.Sprintf("field '%s' missing, using default %s", f.name, formatNumber(f.def)))
			continue
		}
		clean, issue := validateValue(f, value)
		cleaned[f.name] = clean
		if issue != "" {
			issues = append(issues, issue)
		}
	}

	return cleaned, issues
}

func validateValue(f fieldRule, value interface{}) (float64, string) {
	n, ok := toFloat(value)
	if !ok {
		return f.def, fmt.Sprintf("non-numeric value for '%s': %v", f.name, value)
	}
	if !isFinite(n) {
		return f.def, fmt.Sprintf("invalid value for '%s': %v", f.name, value)
	}
	if n < f.min || n > f.max {
		c := clamp(n, f.min, f.max)
		return c, fmt.Sprintf("value out of range for '%s': %s (clamped to %s)", f.name, formatNumber(n), formatNumber(c))
	}
	return n, ""
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
