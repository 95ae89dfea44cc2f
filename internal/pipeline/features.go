package pipeline

import (
	"math"
	"time"
)

// FeatureEngineer derives soil-hydrology, climate and stress indices from the
// cleaned record.
type FeatureEngineer struct{}

func (FeatureEngineer) Name() StageName { return StageFeatureEngineering }

func (FeatureEngineer) Run(rc *RunContext) (map[string]interface{}, error) {
	data := rc.CleanedData()
	if len(data) == 0 {
		return nil, ErrMissingCleanedData
	}

	f := DeriveFeatures(data, rc.Now())
	if err := rc.setFeatures(f); err != nil {
		return nil, err
	}
	return map[string]interface{}{"features": f}, nil
}

// DeriveFeatures computes every feature from a cleaned record at the given wall-clock time.
func DeriveFeatures(data Record, now time.Time) Features {
	moisture := data.FloatOr(FieldSoilMoisture, 50)
	temp := data.FloatOr(FieldTemperature, 20)
	rh := data.FloatOr(FieldHumidity, 60)
	light := data.FloatOr(FieldLight, 10000)
	rain := data.FloatOr(FieldRainfall, 0)

	soil := LookupSoil(data.StringOr("soil", DefaultSoil))

	var f Features
	f.SoilRetentionFactor = soil.RetentionFactor
	f.FieldCapacity = soil.FieldCapacity
	f.WiltingPoint = soil.WiltingPoint
	f.SoilBehavior = soil.Description
	f.AWCPercentage = AvailableWater(moisture, soil)

	f.VPD = VaporPressureDeficit(temp, rh)
	f.DiseaseRisk = DiseaseRisk(temp, rh, f.VPD)

	f.WaterStressIndex = WaterStress(moisture, temp, rh)
	f.Evapotranspiration = Evapotranspiration(temp, rh, light)
	f.DayPhase = DayPhase(now)
	f.Season = Season(now)
	f.ClimateComfortIndex = ClimateComfort(temp, rh)
	f.WaterDeficit = WaterDeficit(moisture, f.Evapotranspiration, f.SoilRetentionFactor)
	f.IrrigationUrgency = IrrigationUrgency(f.WaterStressIndex, f.WaterDeficit, rain)
	return f
}

// VaporPressureDeficit returns the VPD in kPa, rounded to two decimals.
func VaporPressureDeficit(temp, rh float64) float64 {
	es := 0.6108 * math.Exp((17.27*temp)/(temp+237.3))
	ea := es * (rh / 100)
	return round(es-ea, 2)
}

// DiseaseRisk scores fungal pressure from 0 to 100.
func DiseaseRisk(temp, rh, vpd float64) float64 {
	risk := 0.0
	switch {
	case rh > 80:
		risk += 40
	case rh > 70:
		risk += 20
	}
	if temp >= 15 && temp <= 28 {
		risk += 30
	}
	if vpd < 0.4 {
		risk += 30
	}
	return math.Min(100, risk)
}

// WaterStress blends soil, heat and air dryness into an index from 0 to 100.
func WaterStress(moisture, temp, rh float64) float64 {
	soilStress := math.Max(0, 100-moisture*2)
	tempStress := math.Max(0, (temp-15)*3)
	humidityStress := math.Max(0, 100-rh)
	return clamp(soilStress*0.6+tempStress*0.25+humidityStress*0.15, 0, 100)
}

// Evapotranspiration approximates ET in mm/day with a Thornthwaite-style heat term
// corrected for humidity and light, clamped to [0, 15].
func Evapotranspiration(temp, rh, light float64) float64 {
	base := 0.0
	if temp > 0 {
		base = 16 * math.Pow(10*temp/365, 1.5)
	}
	humidityFactor := 1 - (rh/100)*0.3
	lightFactor := 1 + (light/100000)*0.3
	return round(clamp(base*humidityFactor*lightFactor, 0, 15), 2)
}

// DayPhase buckets the local hour: [6,12) morning, [12,18) afternoon, [18,22) evening, else night.
func DayPhase(now time.Time) string {
	h := now.Hour()
	switch {
	case h >= 6 && h < 12:
		return "morning"
	case h >= 12 && h < 18:
		return "afternoon"
	case h >= 18 && h < 22:
		return "evening"
	default:
		return "night"
	}
}

// Season returns the meteorological season for the northern hemisphere.
func Season(now time.Time) string {
	switch now.Month() {
	case time.December, time.January, time.February:
		return "winter"
	case time.March, time.April, time.May:
		return "spring"
	case time.June, time.July, time.August:
		return "summer"
	default:
		return "autumn"
	}
}

// ClimateComfort rates closeness to 21 °C and 60 % RH from 0 to 100.
func ClimateComfort(temp, rh float64) float64 {
	tDev := math.Abs(temp-21) / 15
	hDev := math.Abs(rh-60) / 40
	return clamp(100-(tDev*50+hDev*50), 0, 100)
}

// WaterDeficit returns the deficit in mm against a 60 % moisture optimum plus the
// ET load scaled by the inverse soil retention factor.
func WaterDeficit(moisture, et, retention float64) float64 {
	if retention <= 0 {
		retention = 1
	}
	moistureDeficit := (60 - moisture) / 10
	etAdjusted := et * (1 / retention)
	return round(math.Max(0, moistureDeficit+etAdjusted*0.5), 2)
}

// IrrigationUrgency is an integer in [0, 10].
func IrrigationUrgency(stress, deficit, rain float64) int {
	urgency := stress/10 + deficit*0.5
	if rain > 0 {
		urgency -= rain * 0.3
	}
	return int(clamp(urgency, 0, 10))
}
