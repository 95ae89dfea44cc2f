package fuzzy

import (
	"encoding/json"
	"strconv"
	"strings"
)

// SignalsFromMap reads signals from loosely typed input (tool arguments, JSON files).
// Recognized keys: soilMoisture, rainNext24h, temp, humidity, et0, daysSinceLast,
// baselineInterval, ratio. When ratio is absent it is derived from daysSinceLast and
// baselineInterval; baselineInterval defaults from stage.
func SignalsFromMap(in map[string]interface{}) Signals {
	s := Signals{
		SoilMoisture: optFloat(in, "soilMoisture"),
		RainNext24h:  optFloat(in, "rainNext24h"),
		Temp:         optFloat(in, "temp"),
		Humidity:     optFloat(in, "humidity"),
		ET0:          optFloat(in, "et0"),
		Ratio:        optFloat(in, "ratio"),
	}

	s.BaselineInterval = BaselineFromStage(optString(in, "stage"))
	if b := optFloat(in, "baselineInterval"); b != nil && *b >= 1 {
		s.BaselineInterval = int(*b)
	}
	if d := optFloat(in, "daysSinceLast"); d != nil && *d >= 0 {
		days := int(*d)
		s.DaysSinceLast = &days
	}
	if s.Ratio == nil && s.DaysSinceLast != nil {
		r := float64(*s.DaysSinceLast) / float64(s.BaselineInterval)
		s.Ratio = &r
	}
	return s
}

// WeatherFromMap reads a weather block keyed like the Weather JSON fields. A nil map
// yields nil weather.
func WeatherFromMap(in map[string]interface{}) *Weather {
	if in == nil {
		return nil
	}
	return &Weather{
		Temp:               optFloat(in, "temp"),
		Humidity:           optFloat(in, "humidity"),
		RainNext24h:        optFloat(in, "rainNext24h"),
		ET0:                optFloat(in, "et0"),
		SoilMoisture0to7cm: optFloat(in, "soilMoisture0to7cm"),
		SoilMoistureApprox: optFloat(in, "soilMoistureApprox"),
	}
}

func optFloat(in map[string]interface{}, key string) *float64 {
	v, ok := in[key]
	if !ok || v == nil {
		return nil
	}
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return nil
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	if !isFinite(f) {
		return nil
	}
	return &f
}

func optString(in map[string]interface{}, key string) string {
	s, _ := in[key].(string)
	return s
}
