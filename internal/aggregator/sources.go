package aggregator

import "context"

// CurrentReading is the near-term forecast for a point. Nil fields are unknown.
type CurrentReading struct {
	Temp         *float64 `json:"temp"`
	Humidity     *float64 `json:"humidity"`
	RainNext24h  *float64 `json:"rainNext24h"`
	DailyTempMin *float64 `json:"dailyTempMin"`
	DailyTempMax *float64 `json:"dailyTempMax"`
	PrecipDaily  *float64 `json:"precipDaily"`
	WindMean     *float64 `json:"windMean"`
}

// DailyReading is the agro-climatic daily summary for a point. Solar radiation is in
// MJ/m²/day, precipitation and ET0 in mm/day.
type DailyReading struct {
	Temp           *float64 `json:"temp"`
	TempMin        *float64 `json:"tempMin"`
	TempMax        *float64 `json:"tempMax"`
	Humidity       *float64 `json:"humidity"`
	Wind           *float64 `json:"wind"`
	SolarRadiation *float64 `json:"solarRadiation"`
	PrecipDaily    *float64 `json:"precipDaily"`
	ET0            *float64 `json:"et0"`
}

// SoilReading is the satellite soil moisture for a point.
type SoilReading struct {
	SoilMoisture0to7cm *float64 `json:"soilMoisture0to7cm"`
}

// WeatherSource supplies current conditions and the 24 h forecast.
type WeatherSource interface {
	Current(ctx context.Context, lat, lng float64) (CurrentReading, error)
}

// DailySource supplies the daily agro-climatic summary.
type DailySource interface {
	Daily(ctx context.Context, lat, lng float64) (DailyReading, error)
}

// SoilSource supplies topsoil moisture.
type SoilSource interface {
	Soil(ctx context.Context, lat, lng float64) (SoilReading, error)
}
