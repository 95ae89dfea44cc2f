package aggregator

import (
	"context"
	"errors"
	"fmt"

	"irrigation-mcp-server/internal/config"
)

// ErrNoStation is returned when no configured station lies within the search radius.
var ErrNoStation = errors.New("no station within range")

// StationSource serves readings from statically configured stations, picking the
// nearest one within radiusKm. It implements WeatherSource, DailySource and SoilSource.
type StationSource struct {
	stations []config.StationConfig
	radiusKm float64
}

// NewStationSource serves readings from the nearest station within radiusKm.
func NewStationSource(stations []config.StationConfig, radiusKm float64) *StationSource {
	return &StationSource{stations: stations, radiusKm: radiusKm}
}

// Nearest returns the closest station and its distance in km.
func (s *StationSource) Nearest(lat, lng float64) (config.StationConfig, float64, error) {
	best, bestDist := -1, 0.0
	for i, st := range s.stations {
		d := distanceKm(lat, lng, st.Lat, st.Lng)
		if d > s.radiusKm {
			continue
		}
		if best < 0 || d < bestDist {
			best, bestDist = i, d
		}
	}
	if best < 0 {
		return config.StationConfig{}, 0, fmt.Errorf("%.4f,%.4f: %w", lat, lng, ErrNoStation)
	}
	return s.stations[best], bestDist, nil
}

func (s *StationSource) Current(ctx context.Context, lat, lng float64) (CurrentReading, error) {
	if err := ctx.Err(); err != nil {
		return CurrentReading{}, err
	}
	st, _, err := s.Nearest(lat, lng)
	if err != nil {
		return CurrentReading{}, err
	}
	return CurrentReading{
		Temp:         st.Temp,
		Humidity:     st.Humidity,
		RainNext24h:  st.RainNext24h,
		DailyTempMin: st.TempMin,
		DailyTempMax: st.TempMax,
		PrecipDaily:  st.PrecipDaily,
		WindMean:     st.WindMean,
	}, nil
}

func (s *StationSource) Daily(ctx context.Context, lat, lng float64) (DailyReading, error) {
	if err := ctx.Err(); err != nil {
		return DailyReading{}, err
	}
	st, _, err := s.Nearest(lat, lng)
	if err != nil {
		return DailyReading{}, err
	}
	return DailyReading{
		TempMin:        st.TempMin,
		TempMax:        st.TempMax,
		Wind:           st.WindMean,
		SolarRadiation: st.SolarRadiation,
		ET0:            st.ET0,
	}, nil
}

func (s *StationSource) Soil(ctx context.Context, lat, lng float64) (SoilReading, error) {
	if err := ctx.Err(); err != nil {
		return SoilReading{}, err
	}
	st, _, err := s.Nearest(lat, lng)
	if err != nil {
		return SoilReading{}, err
	}
	return SoilReading{SoilMoisture0to7cm: st.SoilMoisture0to7cm}, nil
}
