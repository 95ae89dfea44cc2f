package pipeline

import "fmt"

// Fixed thresholds scanned by the anomaly detector.
const (
	soilMoistureMin   = 20
	soilMoistureMax   = 90
	temperatureMin    = 5
	temperatureMax    = 40
	humidityMin       = 20
	humidityMax       = 95
	waterStressMax    = 80
	urgencyMax        = 9
	waterAmountMaxML  = 3000
	confidenceMin     = 0.5
	waterDeficitMax   = 10
	climateComfortMin = 30
)

// AnomalyDetector scans cleaned data, features and estimation against fixed
// thresholds. It never blocks downstream stages.
type AnomalyDetector struct{}

func (AnomalyDetector) Name() StageName { return StageAnomalyDetection }

func (AnomalyDetector) Run(rc *RunContext) (map[string]interface{}, error) {
	found := DetectAnomalies(rc.CleanedData(), rc.Features(), rc.Estimation())

	critical := 0
	for _, a := range found {
		rc.appendAnomaly(a)
		if a.Severity == SeverityCritical {
			critical++
			rc.AddWarning(StageAnomalyDetection, "critical anomaly: "+a.Message)
		}
	}

	return map[string]interface{}{
		"anomalies_found": len(found),
		"critical_count":  critical,
		"anomalies":       found,
	}, nil
}

// DetectAnomalies returns every threshold breach; nil inputs are skipped.
func DetectAnomalies(data Record, features *Features, est *Estimation) []Anomaly {
	out := make([]Anomaly, 0)
	if data != nil {
		out = append(out, dataAnomalies(data)...)
	}
	if features != nil {
		out = append(out, featureAnomalies(*features)...)
	}
	if est != nil {
		out = append(out, estimationAnomalies(*est)...)
	}
	return out
}

func dataAnomalies(data Record) []Anomaly {
	var out []Anomaly

	if v, ok := data.Float(FieldSoilMoisture); ok {
		switch {
		case v < soilMoistureMin:
			out = append(out, anomaly("low_soil_moisture", SeverityCritical, v, soilMoistureMin,
				fmt.Sprintf("soil moisture critically low: %s%%", formatNumber(v)),
				"Irrigate urgently."))
		case v > soilMoistureMax:
			out = append(out, anomaly("high_soil_moisture", SeverityWarning, v, soilMoistureMax,
				fmt.Sprintf("soil moisture very high: %s%%", formatNumber(v)),
				"Check drainage: risk of root rot."))
		}
	}

	if v, ok := data.Float(FieldTemperature); ok {
		switch {
		case v < temperatureMin:
			out = append(out, anomaly("low_temperature", SeverityCritical, v, temperatureMin,
				fmt.Sprintf("temperature critically low: %s°C", formatNumber(v)),
				"Protect plants from the cold."))
		case v > temperatureMax:
			out = append(out, anomaly("high_temperature", SeverityCritical, v, temperatureMax,
				fmt.Sprintf("temperature critically high: %s°C", formatNumber(v)),
				"Provide shade and increase irrigation."))
		}
	}

	if v, ok := data.Float(FieldHumidity); ok {
		switch {
		case v < humidityMin:
			out = append(out, anomaly("low_humidity", SeverityWarning, v, humidityMin,
				fmt.Sprintf("air humidity very low: %s%%", formatNumber(v)),
				"Increase watering frequency and misting."))
		case v > humidityMax:
			out = append(out, anomaly("high_humidity", SeverityWarning, v, humidityMax,
				fmt.Sprintf("air humidity very high: %s%%", formatNumber(v)),
				"Improve ventilation: fungal risk."))
		}
	}

	return out
}

func featureAnomalies(f Features) []Anomaly {
	var out []Anomaly

	if f.WaterStressIndex > waterStressMax {
		out = append(out, anomaly("high_water_stress", SeverityCritical, f.WaterStressIndex, waterStressMax,
			fmt.Sprintf("critical water stress: %.1f/100", f.WaterStressIndex),
			"Immediate action required: irrigate and monitor."))
	}
	if f.IrrigationUrgency >= urgencyMax {
		out = append(out, anomaly("critical_irrigation_needed", SeverityCritical, float64(f.IrrigationUrgency), urgencyMax,
			fmt.Sprintf("maximum irrigation urgency: %d/10", f.IrrigationUrgency),
			"Irrigate immediately."))
	}
	if f.WaterDeficit > waterDeficitMax {
		out = append(out, anomaly("high_water_deficit", SeverityWarning, f.WaterDeficit, waterDeficitMax,
			fmt.Sprintf("high water deficit: %.1fmm", f.WaterDeficit),
			"Schedule an abundant irrigation."))
	}
	if f.ClimateComfortIndex < climateComfortMin {
		out = append(out, anomaly("poor_climate_conditions", SeverityWarning, f.ClimateComfortIndex, climateComfortMin,
			fmt.Sprintf("unfavourable climate conditions: %.1f/100", f.ClimateComfortIndex),
			"Monitor plants closely."))
	}
	return out
}

func estimationAnomalies(e Estimation) []Anomaly {
	var out []Anomaly

	if e.WaterAmountML > waterAmountMaxML {
		out = append(out, anomaly("excessive_water_recommendation", SeverityInfo, e.WaterAmountML, waterAmountMaxML,
			fmt.Sprintf("large irrigation recommended: %sml", formatNumber(e.WaterAmountML)),
			"Check that the plant can take this volume."))
	}
	if e.Confidence < confidenceMin {
		out = append(out, anomaly("low_confidence_estimation", SeverityInfo, e.Confidence, confidenceMin,
			fmt.Sprintf("low confidence estimate: %.0f%%", e.Confidence*100),
			"Verify conditions manually."))
	}
	return out
}

func anomaly(kind string, sev Severity, value, threshold float64, msg, rec string) Anomaly {
	return Anomaly{
		Type:           kind,
		Severity:       sev,
		Value:          value,
		Threshold:      threshold,
		Message:        msg,
		Recommendation: rec,
	}
}
