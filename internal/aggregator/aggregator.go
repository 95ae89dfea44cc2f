// Package aggregator merges weather, daily climate and soil readings for a location
// into the inputs consumed by the fuzzy engine and the explainer.
package aggregator

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"irrigation-mcp-server/internal/config"
	"irrigation-mcp-server/internal/fuzzy"
)

// SourceNone marks a weather block built without coordinates.
const SourceNone = "NONE"

// Fallback keys recorded when a value had to be derived.
const (
	FallbackPrecipDaily    = "precipDaily"
	FallbackET0            = "et0"
	FallbackWind           = "wind"
	FallbackSolarRadiation = "solarRadiation"
	FallbackSoilMoisture   = "soilMoistureApprox"
	FallbackRainNext24h    = "rainNext24h"
)

// Weather is the merged weather block. The embedded fuzzy.Weather carries the values
// the fuzzy engine reads.
type Weather struct {
	fuzzy.Weather
	PrecipDaily    *float64          `json:"precipDaily"`
	SolarRadiation *float64          `json:"solarRadiation"`
	Wind           *float64          `json:"wind"`
	Source         string            `json:"source"`
	Fallbacks      map[string]string `json:"fallbacks"`
}

func (w Weather) clone() Weather {
	out := w
	out.Fallbacks = make(map[string]string, len(w.Fallbacks))
	for k, v := range w.Fallbacks {
		out.Fallbacks[k] = v
	}
	return out
}

type Geo struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Inputs is everything the advisor needs about a plant's surroundings.
type Inputs struct {
	HadGeo  bool    `json:"hadGeo"`
	Geo     *Geo    `json:"geo,omitempty"`
	Profile Profile `json:"profile"`
	Weather Weather `json:"weather"`
	Cached  bool    `json:"cached"`
}

// Request locates a plant and names its profile. Lat and Lng are both set or both nil.
type Request struct {
	Lat      *float64
	Lng      *float64
	Species  string
	Category string
	Stage    string
}

type Aggregator struct {
	weather   WeatherSource
	daily     DailySource
	soil      SoilSource
	cache     *Cache
	precision int
	now       func() time.Time
}

type Option func(*Aggregator)

// WithSources sets the upstream sources. Any of them may be nil.
func WithSources(w WeatherSource, d DailySource, s SoilSource) Option {
	return func(a *Aggregator) {
		a.weather, a.daily, a.soil = w, d, s
	}
}

func WithCache(c *Cache) Option {
	return func(a *Aggregator) { a.cache = c }
}

func WithGridPrecision(p int) Option {
	return func(a *Aggregator) { a.precision = p }
}

func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		if now != nil {
			a.now = now
		}
	}
}

// New returns an aggregator without sources or cache; see WithSources and WithCache.
func New(opts ...Option) *Aggregator {
	a := &Aggregator{precision: 2, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// NewFromConfig serves all three sources from the configured stations.
func NewFromConfig(cfg config.AdvisorConfig, stations []config.StationConfig, now func() time.Time) *Aggregator {
	if now == nil {
		now = time.Now
	}
	st := NewStationSource(stations, cfg.StationRadius())
	return New(
		WithSources(st, st, st),
		WithCache(NewCache(cfg.CacheDuration(), now)),
		WithGridPrecision(cfg.GridPrecision),
		WithClock(now),
	)
}

// Inputs resolves the profile and, when coordinates are given, the weather block for
// the grid cell. Only context cancellation is returned as an error; failing sources
// are logged and treated as empty.
func (a *Aggregator) Inputs(ctx context.Context, req Request) (Inputs, error) {
	in := Inputs{
		Profile: LookupProfile(req.Species, req.Category, req.Stage),
		Weather: Weather{Source: SourceNone, Fallbacks: map[string]string{}},
	}
	if req.Lat == nil || req.Lng == nil {
		return in, nil
	}
	lat, lng := *req.Lat, *req.Lng
	in.HadGeo = true
	in.Geo = &Geo{Lat: lat, Lng: lng}

	key := GridKey(lat, lng, a.precision)
	if a.cache != nil {
		if w, ok := a.cache.Get(key); ok {
			in.Weather = w
			in.Cached = true
			return in, nil
		}
	}

	w, err := a.fetch(ctx, lat, lng)
	if err != nil {
		return Inputs{}, fmt.Errorf("aggregating inputs for %s: %w", key, err)
	}
	if a.cache != nil {
		a.cache.Put(key, w)
	}
	in.Weather = w
	return in, nil
}

func (a *Aggregator) fetch(ctx context.Context, lat, lng float64) (Weather, error) {
	var (
		cur  CurrentReading
		day  DailyReading
		soil SoilReading
	)
	var hasCur, hasDay, hasSoil bool

	g, gctx := errgroup.WithContext(ctx)
	if a.weather != nil {
		g.Go(func() error {
			r, err := a.weather.Current(gctx, lat, lng)
			if err != nil {
				return sourceFailed(gctx, "weather", err)
			}
			cur, hasCur = r, true
			return nil
		})
	}
	if a.daily != nil {
		g.Go(func() error {
			r, err := a.daily.Daily(gctx, lat, lng)
			if err != nil {
				return sourceFailed(gctx, "daily", err)
			}
			day, hasDay = r, true
			return nil
		})
	}
	if a.soil != nil {
		g.Go(func() error {
			r, err := a.soil.Soil(gctx, lat, lng)
			if err != nil {
				return sourceFailed(gctx, "soil", err)
			}
			soil, hasSoil = r, true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Weather{}, err
	}

	var used []string
	if hasCur {
		used = append(used, "weather")
	}
	if hasDay {
		used = append(used, "daily")
	}
	if hasSoil {
		used = append(used, "soil")
	}
	source := "AGGR(" + strings.Join(used, "+") + ")"

	return Merge(lat, a.now(), cur, day, soil, source), nil
}

func sourceFailed(ctx context.Context, name string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	log.Printf("aggregator: %s source failed: %v", name, err)
	return nil
}

// Merge combines the three readings, deriving missing values and recording each
// derivation in Fallbacks.
func Merge(lat float64, day time.Time, cur CurrentReading, daily DailyReading, soil SoilReading, source string) Weather {
	w := Weather{Source: source, Fallbacks: map[string]string{}}

	w.Temp = firstOf(cur.Temp, daily.Temp)
	w.Humidity = firstOf(cur.Humidity, daily.Humidity)

	if rain := sanitize(cur.RainNext24h); rain != nil {
		w.RainNext24h = rain
	} else {
		w.RainNext24h = fuzzy.Float(0)
		w.Fallbacks[FallbackRainNext24h] = "assumed 0"
	}

	switch {
	case sanitize(daily.PrecipDaily) != nil:
		w.PrecipDaily = sanitize(daily.PrecipDaily)
	case sanitize(cur.PrecipDaily) != nil:
		w.PrecipDaily = sanitize(cur.PrecipDaily)
		w.Fallbacks[FallbackPrecipDaily] = "weather daily sum"
	default:
		w.PrecipDaily = fuzzy.Float(*w.RainNext24h)
		w.Fallbacks[FallbackPrecipDaily] = "rainNext24h"
	}

	w.ET0 = sanitize(daily.ET0)
	if w.ET0 == nil {
		tmin := firstOf(daily.TempMin, cur.DailyTempMin)
		tmax := firstOf(daily.TempMax, cur.DailyTempMax)
		if tmin != nil && tmax != nil {
			tmean := (*tmin + *tmax) / 2
			if t := sanitize(daily.Temp); t != nil {
				tmean = *t
			}
			if et0, ok := HargreavesET0(lat, *tmin, *tmax, tmean, day); ok {
				w.ET0 = fuzzy.Float(et0)
				w.Fallbacks[FallbackET0] = "hargreaves"
			}
		}
	}

	if wind := sanitize(daily.Wind); wind != nil {
		w.Wind = wind
	} else if wind := sanitize(cur.WindMean); wind != nil {
		w.Wind = wind
		w.Fallbacks[FallbackWind] = "weather daily mean"
	}

	if rad := sanitize(daily.SolarRadiation); rad != nil {
		w.SolarRadiation = rad
	} else if ra, ok := ExtraterrestrialRadiation(lat, day.YearDay()); ok {
		w.SolarRadiation = fuzzy.Float(round2(ra))
		w.Fallbacks[FallbackSolarRadiation] = "extraterrestrial radiation"
	}

	w.SoilMoisture0to7cm = sanitize(soil.SoilMoisture0to7cm)
	if w.SoilMoisture0to7cm != nil {
		w.SoilMoistureApprox = fuzzy.Float(*w.SoilMoisture0to7cm)
	} else if w.Humidity != nil {
		w.SoilMoistureApprox = fuzzy.Float(SoilMoistureFromHumidity(*w.Humidity))
		w.Fallbacks[FallbackSoilMoisture] = "air humidity"
	}
	return w
}

func firstOf(vals ...*float64) *float64 {
	for _, v := range vals {
		if s := sanitize(v); s != nil {
			return s
		}
	}
	return nil
}
