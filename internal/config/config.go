package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// WorkspaceDirName is the directory name for project-level irrigation config.
	WorkspaceDirName = ".irrigation"
	// WorkspaceConfigFile is the config file name inside the workspace directory.
	WorkspaceConfigFile = "config.yaml"
	// MaxSearchDepth limits how many parent directories to walk when discovering a workspace.
	MaxSearchDepth = 10
)

// WorkspaceOptions controls workspace discovery behavior.
type WorkspaceOptions struct {
	// Disable skips workspace discovery entirely (--no-workspace flag).
	Disable bool
	// ExplicitDir uses this directory as workspace root instead of walking up (--workspace-dir flag).
	ExplicitDir string
}

// Config captures all tunable settings for the irrigation advisor.
type Config struct {
	Server   ServerConfig    `yaml:"server"`
	MCP      MCPConfig       `yaml:"mcp"`
	Mangle   MangleConfig    `yaml:"mangle"`
	Pipeline PipelineConfig  `yaml:"pipeline"`
	Advisor  AdvisorConfig   `yaml:"advisor"`
	Stations []StationConfig `yaml:"stations"`
	Plants   []PlantConfig   `yaml:"plants"`
}

type ServerConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	LogFile string `yaml:"log_file"`
}

type MCPConfig struct {
	// When set, starts an SSE server on this port instead of stdio-only.
	SSEPort int `yaml:"sse_port"`
}

// MangleConfig controls the embedded deductive engine.
type MangleConfig struct {
	Enable          bool   `yaml:"enable"`
	SchemaPath      string `yaml:"schema_path"`
	FactBufferLimit int    `yaml:"fact_buffer_limit"`
}

// PipelineConfig holds defaults applied when the plant registry is silent.
type PipelineConfig struct {
	DefaultPlantType string `yaml:"default_plant_type"`
	DefaultSoil      string `yaml:"default_soil"`
}

// AdvisorConfig tunes the aggregation and batch advisory flow.
type AdvisorConfig struct {
	// Parallel bounds concurrent advisories in a batch (default: 4).
	Parallel int `yaml:"parallel"`
	// CacheTTL is how long aggregated weather stays fresh per grid cell (e.g., "15m").
	CacheTTL string `yaml:"cache_ttl"`
	// GridPrecision is the number of decimals coordinates are rounded to for caching.
	GridPrecision int `yaml:"grid_precision"`
	// Explain attaches a deterministic explanation to every advice (default: true).
	Explain *bool `yaml:"explain"`
	// StationRadiusKm is the max distance to a configured station (default: 50).
	StationRadiusKm float64 `yaml:"station_radius_km"`
}

// StationConfig is a static weather and soil reading used as an offline data source.
// Unset readings are unknown.
type StationConfig struct {
	Name               string   `yaml:"name"`
	Lat                float64  `yaml:"lat"`
	Lng                float64  `yaml:"lng"`
	Temp               *float64 `yaml:"temp"`
	Humidity           *float64 `yaml:"humidity"`
	RainNext24h        *float64 `yaml:"rain_next_24h"`
	TempMin            *float64 `yaml:"temp_min"`
	TempMax            *float64 `yaml:"temp_max"`
	PrecipDaily        *float64 `yaml:"precip_daily"`
	WindMean           *float64 `yaml:"wind_mean"`
	SolarRadiation     *float64 `yaml:"solar_radiation"`
	ET0                *float64 `yaml:"et0"`
	SoilMoisture0to7cm *float64 `yaml:"soil_moisture_0_7cm"`
}

// PlantConfig is a plant registry entry.
type PlantConfig struct {
	ID                   string   `yaml:"id"`
	Name                 string   `yaml:"name"`
	Species              string   `yaml:"species"`
	PlantType            string   `yaml:"plant_type"`
	Category             string   `yaml:"category"`
	Stage                string   `yaml:"stage"`
	Soil                 string   `yaml:"soil"`
	Lat                  *float64 `yaml:"lat"`
	Lng                  *float64 `yaml:"lng"`
	WateringIntervalDays int      `yaml:"watering_interval_days"`
	// LastWateredAt is an RFC 3339 timestamp.
	LastWateredAt string `yaml:"last_watered_at"`
	// SoilMoisture is the latest local sensor reading, if any.
	SoilMoisture  *float64 `yaml:"soil_moisture"`
	WaterAdded24h float64  `yaml:"water_added_24h"`
	// Growth holds taxonomy growth data used when no interval is set.
	Growth *GrowthConfig `yaml:"growth"`
}

// GrowthConfig is species growth data from a plant taxonomy.
type GrowthConfig struct {
	PrecipitationMin    *float64 `yaml:"precipitation_min"`
	PrecipitationMax    *float64 `yaml:"precipitation_max"`
	AtmosphericHumidity string   `yaml:"atmospheric_humidity"`
	ShadeTolerance      string   `yaml:"shade_tolerance"`
	Light               *float64 `yaml:"light"`
}

// DefaultConfig provides reasonable defaults for local development.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Name:    "irrigation-mcp",
			Version: "0.1.0",
			LogFile: "irrigation-mcp.log",
		},
		MCP: MCPConfig{
			SSEPort: 0,
		},
		Mangle: MangleConfig{
			Enable:          true,
			SchemaPath:      "schemas/irrigation.mg",
			FactBufferLimit: 2048,
		},
		Pipeline: PipelineConfig{
			DefaultPlantType: "generic",
			DefaultSoil:      "universale",
		},
		Advisor: AdvisorConfig{
			Parallel:        4,
			CacheTTL:        "15m",
			GridPrecision:   2,
			StationRadiusKm: 50,
		},
	}
}

// Load reads YAML config from disk and overlays defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, errors.New("config path is required")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, err
	}

	return cfg, cfg.Validate()
}

// DiscoverWorkspace walks up from startDir looking for a .irrigation/config.yaml file.
// Returns the workspace root directory (parent of .irrigation/) or empty string if not found.
func DiscoverWorkspace(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("resolving start directory: %w", err)
	}

	for i := 0; i < MaxSearchDepth; i++ {
		candidate := filepath.Join(dir, WorkspaceDirName, WorkspaceConfigFile)
		if _, err := os.Stat(candidate); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", nil
}

// LoadWithWorkspace implements multi-layer config merge:
//
//	DefaultConfig() <- .irrigation/config.yaml <- explicit --config <- CLI flags
//
// Returns the merged config and the workspace directory (empty if none found).
func LoadWithWorkspace(explicitConfig string, opts WorkspaceOptions) (Config, string, error) {
	cfg := DefaultConfig()
	wsDir := ""

	if !opts.Disable {
		var err error
		if opts.ExplicitDir != "" {
			candidate := filepath.Join(opts.ExplicitDir, WorkspaceDirName, WorkspaceConfigFile)
			if _, statErr := os.Stat(candidate); statErr == nil {
				wsDir = opts.ExplicitDir
			}
		} else {
			cwd, cwdErr := os.Getwd()
			if cwdErr != nil {
				return cfg, "", fmt.Errorf("getting working directory: %w", cwdErr)
			}
			wsDir, err = DiscoverWorkspace(cwd)
			if err != nil {
				return cfg, "", fmt.Errorf("discovering workspace: %w", err)
			}
		}

		if wsDir != "" {
			wsConfigPath := filepath.Join(wsDir, WorkspaceDirName, WorkspaceConfigFile)
			raw, err := os.ReadFile(wsConfigPath)
			if err != nil {
				return cfg, "", fmt.Errorf("reading workspace config %s: %w", wsConfigPath, err)
			}
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return cfg, "", fmt.Errorf("parsing workspace config %s: %w", wsConfigPath, err)
			}
			cfg = resolveWorkspacePaths(cfg, wsDir)
		}
	}

	if explicitConfig != "" {
		raw, err := os.ReadFile(explicitConfig)
		if err != nil {
			return cfg, wsDir, fmt.Errorf("reading explicit config %s: %w", explicitConfig, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, wsDir, fmt.Errorf("parsing explicit config %s: %w", explicitConfig, err)
		}
	}

	return cfg, wsDir, cfg.Validate()
}

// InitWorkspace creates a .irrigation/ directory with a template config at root.
func InitWorkspace(root string) error {
	wsDir := filepath.Join(root, WorkspaceDirName)

	if _, err := os.Stat(wsDir); err == nil {
		return fmt.Errorf("workspace directory already exists: %s", wsDir)
	}

	dirs := []string{
		wsDir,
		filepath.Join(wsDir, "schemas"),
		filepath.Join(wsDir, "data"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0755); err != nil {
			return fmt.Errorf("creating directory %s: %w", d, err)
		}
	}

	templateConfig := `# Irrigation advisor project-level configuration
# Values here override defaults but are overridden by --config and CLI flags.

# advisor:
#   parallel: 4
#   cache_ttl: "15m"

# stations:
#   - name: garden
#     lat: 45.46
#     lng: 9.19
#     temp: 27
#     humidity: 55
#     rain_next_24h: 0

# plants:
#   - id: tomato-1
#     species: pomodoro
#     stage: fioritura
#     soil: argilloso
#     lat: 45.46
#     lng: 9.19
#     last_watered_at: "2025-07-14T07:00:00Z"
`
	configPath := filepath.Join(wsDir, WorkspaceConfigFile)
	if err := os.WriteFile(configPath, []byte(templateConfig), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	gitignoreContent := "# Runtime data (logs) - do not version control\ndata/\n"
	gitignorePath := filepath.Join(wsDir, ".gitignore")
	if err := os.WriteFile(gitignorePath, []byte(gitignoreContent), 0644); err != nil {
		return fmt.Errorf("writing .gitignore: %w", err)
	}

	return nil
}

// resolveWorkspacePaths resolves relative paths in the config against the workspace directory.
func resolveWorkspacePaths(cfg Config, wsDir string) Config {
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(wsDir, p)
	}

	cfg.Server.LogFile = resolve(cfg.Server.LogFile)
	cfg.Mangle.SchemaPath = resolve(cfg.Mangle.SchemaPath)
	return cfg
}

// Validate ensures required fields exist so the server can start deterministically.
func (c *Config) Validate() error {
	if c.Server.Name == "" {
		return errors.New("server.name is required")
	}
	if c.Advisor.Parallel < 0 {
		return errors.New("advisor.parallel must not be negative")
	}
	if c.Advisor.GridPrecision < 0 || c.Advisor.GridPrecision > 6 {
		return errors.New("advisor.grid_precision must be between 0 and 6")
	}

	for i, s := range c.Stations {
		if s.Name == "" {
			return fmt.Errorf("stations[%d].name is required", i)
		}
		if err := validateCoordinates(s.Lat, s.Lng); err != nil {
			return fmt.Errorf("station %s: %w", s.Name, err)
		}
	}

	seen := make(map[string]bool, len(c.Plants))
	for i, p := range c.Plants {
		if p.ID == "" {
			return fmt.Errorf("plants[%d].id is required", i)
		}
		if seen[p.ID] {
			return fmt.Errorf("duplicate plant id %q", p.ID)
		}
		seen[p.ID] = true
		if (p.Lat == nil) != (p.Lng == nil) {
			return fmt.Errorf("plant %s: lat and lng must be set together", p.ID)
		}
		if p.Lat != nil {
			if err := validateCoordinates(*p.Lat, *p.Lng); err != nil {
				return fmt.Errorf("plant %s: %w", p.ID, err)
			}
		}
		if p.LastWateredAt != "" {
			if _, err := time.Parse(time.RFC3339, p.LastWateredAt); err != nil {
				return fmt.Errorf("plant %s: last_watered_at: %w", p.ID, err)
			}
		}
	}
	return nil
}

func validateCoordinates(lat, lng float64) error {
	if lat < -90 || lat > 90 {
		return fmt.Errorf("latitude %v out of range", lat)
	}
	if lng < -180 || lng > 180 {
		return fmt.Errorf("longitude %v out of range", lng)
	}
	return nil
}

// CacheDuration returns the parsed cache TTL with a sane default.
func (a AdvisorConfig) CacheDuration() time.Duration {
	if a.CacheTTL == "" {
		return 15 * time.Minute
	}
	d, err := time.ParseDuration(a.CacheTTL)
	if err != nil {
		return 15 * time.Minute
	}
	return d
}

// Workers returns the batch concurrency limit with a sane default.
func (a AdvisorConfig) Workers() int {
	if a.Parallel <= 0 {
		return 4
	}
	return a.Parallel
}

// IsExplainEnabled returns whether advice carries an explanation (default: true).
func (a AdvisorConfig) IsExplainEnabled() bool {
	if a.Explain == nil {
		return true
	}
	return *a.Explain
}

// StationRadius returns the station search radius in km with a sane default.
func (a AdvisorConfig) StationRadius() float64 {
	if a.StationRadiusKm <= 0 {
		return 50
	}
	return a.StationRadiusKm
}

// LastWatered returns the parsed last watering time, nil when unset or invalid.
func (p PlantConfig) LastWatered() *time.Time {
	if p.LastWateredAt == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, p.LastWateredAt)
	if err != nil {
		return nil
	}
	return &t
}

// IntervalDays returns the configured watering interval, else the one derived
// from growth data, else 0.
func (p PlantConfig) IntervalDays() int {
	if p.WateringIntervalDays > 0 {
		return p.WateringIntervalDays
	}
	if p.Growth != nil {
		return p.Growth.WateringIntervalDays()
	}
	return 0
}

// WateringIntervalDays derives an interval from annual precipitation (mm, min
// preferred over max) and atmospheric humidity. Wetter habitats water less often.
func (g GrowthConfig) WateringIntervalDays() int {
	mm := g.PrecipitationMin
	if mm == nil {
		mm = g.PrecipitationMax
	}

	base := 4
	if mm != nil {
		switch {
		case *mm >= 60:
			base = 8
		case *mm >= 30:
			base = 5
		default:
			base = 3
		}
	}

	switch strings.ToLower(g.AtmosphericHumidity) {
	case "high":
		base += 2
	case "low":
		base = max(2, base-1)
	}
	return base
}

// Sunlight derives the exposure label from shade tolerance, then the 0-10 light
// scale. Empty when neither is known.
func (g GrowthConfig) Sunlight() string {
	switch strings.ToLower(g.ShadeTolerance) {
	case "tolerant":
		return "ombra"
	case "intermediate":
		return "mezz'ombra"
	}
	if g.Light == nil {
		return ""
	}
	switch {
	case *g.Light >= 7:
		return "pieno sole"
	case *g.Light >= 4:
		return "mezz'ombra"
	default:
		return "ombra"
	}
}

// FindPlant returns the registry entry with the given id.
func (c *Config) FindPlant(id string) (PlantConfig, bool) {
	for _, p := range c.Plants {
		if p.ID == id {
			return p, true
		}
	}
	return PlantConfig{}, false
}
